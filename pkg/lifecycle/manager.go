package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorusnet/chorus/pkg/events"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

var (
	// ErrUnknownTask is returned when a transition targets a task that does
	// not exist. Unlike duplicate transitions this is a hard error.
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidSpec is returned by Submit for structurally invalid specs.
	ErrInvalidSpec = errors.New("invalid task spec")
)

// Manager enforces the task state machine over a storage.Store.
type Manager struct {
	store       storage.Store
	broker      *events.Broker
	locks       *taskLocks
	releaseSlot func(workerID string)
}

// NewManager creates a lifecycle manager. broker may be nil (no events).
func NewManager(store storage.Store, broker *events.Broker) *Manager {
	return &Manager{
		store:  store,
		broker: broker,
		locks:  newTaskLocks(),
	}
}

// OnSlotRelease installs the hook called once per assignment when it stops
// holding a worker capacity slot: on the worker's response, or when the task
// completes, fails, or is cancelled without one. The hook runs after the
// transition is persisted.
func (m *Manager) OnSlotRelease(fn func(workerID string)) {
	m.releaseSlot = fn
}

func (m *Manager) releaseSlots(workerIDs []string) {
	if m.releaseSlot == nil {
		return
	}
	for _, wid := range workerIDs {
		m.releaseSlot(wid)
	}
}

// expirePending moves every still-pending assignment to Expired and returns
// the affected worker IDs so their slots can be released.
func expirePending(task *types.Task) []string {
	var expired []string
	for i := range task.Assignments {
		if task.Assignments[i].Status == types.AssignmentPending {
			task.Assignments[i].Status = types.AssignmentExpired
			expired = append(expired, task.Assignments[i].WorkerID)
		}
	}
	return expired
}

func (m *Manager) publish(typ events.EventType, taskID, msg string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     typ,
		Message:  msg,
		Metadata: map[string]string{"task_id": taskID},
	})
}

// Submit persists a new Pending task built from spec and returns its ID.
// Content validation (languages, input sizes) happens at ingress before this
// point; Submit only enforces structural invariants on worker counts.
func (m *Manager) Submit(spec *types.Task) (string, error) {
	if !types.ValidTaskKind(spec.Kind) {
		return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidSpec, spec.Kind)
	}
	if spec.RequiredWorkerCount < 1 {
		spec.RequiredWorkerCount = 1
	}
	if spec.MinWorkerCount < 1 {
		spec.MinWorkerCount = 1
	}
	if spec.MaxWorkerCount < 1 {
		spec.MaxWorkerCount = spec.RequiredWorkerCount
	}
	if spec.MinWorkerCount > spec.RequiredWorkerCount || spec.RequiredWorkerCount > spec.MaxWorkerCount {
		return "", fmt.Errorf("%w: worker counts must satisfy min <= required <= max (%d/%d/%d)",
			ErrInvalidSpec, spec.MinWorkerCount, spec.RequiredWorkerCount, spec.MaxWorkerCount)
	}
	if !types.ValidPriority(spec.Priority) {
		spec.Priority = types.PriorityNormal
	}

	now := time.Now().UTC()
	task := *spec
	task.TaskID = uuid.New().String()
	task.Status = types.TaskStatusPending
	task.AssignedWorkers = nil
	task.Assignments = nil
	task.WorkerResponses = nil
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := m.store.CreateTask(&task); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}

	log.WithTaskID(task.TaskID).Info().
		Str("task_type", string(task.Kind)).
		Str("priority", string(task.Priority)).
		Int("required_workers", task.RequiredWorkerCount).
		Msg("task submitted")
	m.publish(events.EventTaskCreated, task.TaskID, string(task.Kind))

	return task.TaskID, nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(taskID string) (*types.Task, error) {
	task, err := m.store.GetTask(taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return task, err
}

// ClaimForDistribution atomically transitions Pending -> Assigned for the
// given workers. It returns false (without error) when the task is no longer
// Pending, which is how concurrent distributor passes lose the race.
func (m *Manager) ClaimForDistribution(taskID string, workerIDs []string) (bool, error) {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return false, err
	}
	if task.Status != types.TaskStatusPending {
		log.WithTaskID(taskID).Debug().
			Str("status", string(task.Status)).
			Msg("claim skipped: task not pending")
		return false, nil
	}
	if len(workerIDs) == 0 {
		return false, nil
	}
	if len(workerIDs) > task.MaxWorkerCount {
		workerIDs = workerIDs[:task.MaxWorkerCount]
	}

	now := time.Now().UTC()
	task.Status = types.TaskStatusAssigned
	task.DistributedAt = &now
	task.UpdatedAt = now
	for _, wid := range workerIDs {
		if task.HasWorker(wid) {
			continue
		}
		task.AssignedWorkers = append(task.AssignedWorkers, wid)
		task.Assignments = append(task.Assignments, types.Assignment{
			AssignmentID: uuid.New().String(),
			WorkerID:     wid,
			AssignedAt:   now,
			Status:       types.AssignmentPending,
		})
	}

	if err := m.store.UpdateTask(task); err != nil {
		return false, fmt.Errorf("failed to persist assignment: %w", err)
	}

	log.WithTaskID(taskID).Info().
		Int("workers", len(task.AssignedWorkers)).
		Msg("task assigned")
	m.publish(events.EventTaskAssigned, taskID, fmt.Sprintf("%d workers", len(task.AssignedWorkers)))

	return true, nil
}

// RecordResponse appends a worker response exactly once per worker and
// advances the status when thresholds are met. The returned status is the
// task's status after the call; stored reports whether this call actually
// appended the response (false for duplicates and contract violations).
func (m *Manager) RecordResponse(taskID, workerID string, resp types.WorkerResponse) (status types.TaskStatus, stored bool, err error) {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return "", false, err
	}

	logger := log.WithTaskID(taskID)

	switch task.Status {
	case types.TaskStatusAssigned, types.TaskStatusInProgress, types.TaskStatusCompleted:
		// accepting responses
	default:
		logger.Warn().
			Str("worker_id", workerID).
			Str("status", string(task.Status)).
			Msg("response dropped: task not accepting responses")
		return task.Status, false, nil
	}

	if !task.HasWorker(workerID) {
		// Contract violation: respond-without-assignment. Logged no-op.
		logger.Warn().Str("worker_id", workerID).Msg("response dropped: worker not assigned")
		return task.Status, false, nil
	}
	if _, dup := task.ResponseFrom(workerID); dup {
		logger.Debug().Str("worker_id", workerID).Msg("duplicate response discarded")
		return task.Status, false, nil
	}

	now := time.Now().UTC()
	resp.WorkerID = workerID
	resp.SubmittedAt = now
	task.WorkerResponses = append(task.WorkerResponses, resp)

	var released []string
	for i := range task.Assignments {
		if task.Assignments[i].WorkerID == workerID {
			// A late response on an expired assignment holds no slot.
			if task.Assignments[i].Status == types.AssignmentPending {
				released = append(released, workerID)
			}
			task.Assignments[i].Status = types.AssignmentResponded
		}
	}

	if task.Status == types.TaskStatusAssigned {
		task.Status = types.TaskStatusInProgress
	}
	if len(task.WorkerResponses) >= task.MinWorkerCount {
		task.Status = types.TaskStatusCompleted
		// The task stops being served to the remaining assignees, so their
		// slots are handed back now rather than waiting on a re-registration.
		released = append(released, expirePending(task)...)
	}
	if len(task.WorkerResponses) >= task.RequiredWorkerCount && task.CompletedAt == nil {
		task.CompletedAt = &now
	}
	task.UpdatedAt = now

	if err := m.store.UpdateTask(task); err != nil {
		return "", false, fmt.Errorf("failed to persist response: %w", err)
	}
	m.releaseSlots(released)

	logger.Info().
		Str("worker_id", workerID).
		Int("responses", len(task.WorkerResponses)).
		Str("status", string(task.Status)).
		Msg("worker response recorded")
	if task.Status == types.TaskStatusCompleted && len(task.WorkerResponses) == task.MinWorkerCount {
		m.publish(events.EventTaskCompleted, taskID, "")
	} else if task.Status == types.TaskStatusInProgress && len(task.WorkerResponses) == 1 {
		m.publish(events.EventTaskInProgress, taskID, "")
	}

	return task.Status, true, nil
}

// MarkDone transitions Completed -> Done after an audit has been recorded.
// A duplicate call is a logged no-op.
func (m *Manager) MarkDone(taskID string) error {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status == types.TaskStatusDone {
		log.WithTaskID(taskID).Debug().Msg("duplicate done transition ignored")
		return nil
	}
	if task.Status != types.TaskStatusCompleted {
		log.WithTaskID(taskID).Warn().
			Str("status", string(task.Status)).
			Msg("done transition skipped: task not completed")
		return nil
	}

	task.Status = types.TaskStatusDone
	task.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateTask(task); err != nil {
		return fmt.Errorf("failed to persist done transition: %w", err)
	}
	m.publish(events.EventTaskDone, taskID, "")
	return nil
}

// MarkFailed transitions any non-terminal status to Failed.
func (m *Manager) MarkFailed(taskID, reason string) error {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() || task.Status == types.TaskStatusFailed {
		log.WithTaskID(taskID).Debug().
			Str("status", string(task.Status)).
			Msg("fail transition ignored")
		return nil
	}

	task.Status = types.TaskStatusFailed
	task.FailReason = reason
	task.UpdatedAt = time.Now().UTC()
	var released []string
	for i := range task.Assignments {
		if task.Assignments[i].Status == types.AssignmentPending {
			task.Assignments[i].Status = types.AssignmentFailed
			released = append(released, task.Assignments[i].WorkerID)
		}
	}
	if err := m.store.UpdateTask(task); err != nil {
		return fmt.Errorf("failed to persist failure: %w", err)
	}
	m.releaseSlots(released)

	log.WithTaskID(taskID).Warn().Str("reason", reason).Msg("task failed")
	m.publish(events.EventTaskFailed, taskID, reason)
	return nil
}

// Cancel transitions any non-terminal status to Cancelled.
func (m *Manager) Cancel(taskID string) error {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status.IsTerminal() {
		log.WithTaskID(taskID).Debug().Msg("cancel ignored: task terminal")
		return nil
	}

	task.Status = types.TaskStatusCancelled
	task.UpdatedAt = time.Now().UTC()
	released := expirePending(task)
	if err := m.store.UpdateTask(task); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	m.releaseSlots(released)
	m.publish(events.EventTaskCancelled, taskID, "")
	return nil
}

// Redistribute returns a Failed task to Pending, clearing assignments and
// responses and bumping the retry counter. Only Failed tasks qualify.
func (m *Manager) Redistribute(taskID string) error {
	unlock := m.locks.acquire(taskID)
	defer unlock()

	task, err := m.Get(taskID)
	if err != nil {
		return err
	}
	if task.Status != types.TaskStatusFailed {
		log.WithTaskID(taskID).Debug().
			Str("status", string(task.Status)).
			Msg("redistribute skipped: task not failed")
		return nil
	}

	task.Status = types.TaskStatusPending
	task.AssignedWorkers = nil
	task.Assignments = nil
	task.WorkerResponses = nil
	task.FailReason = ""
	task.RetryCount++
	task.DistributedAt = nil
	task.CompletedAt = nil
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateTask(task); err != nil {
		return fmt.Errorf("failed to persist redistribution: %w", err)
	}

	log.WithTaskID(taskID).Info().Int("retry", task.RetryCount).Msg("task requeued")
	m.publish(events.EventTaskRequeued, taskID, "")
	return nil
}
