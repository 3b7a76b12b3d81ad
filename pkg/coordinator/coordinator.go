package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chorusnet/chorus/pkg/blob"
	"github.com/chorusnet/chorus/pkg/config"
	"github.com/chorusnet/chorus/pkg/consensus"
	"github.com/chorusnet/chorus/pkg/events"
	"github.com/chorusnet/chorus/pkg/lifecycle"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/registry"
	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

// performanceSmoothing is the EMA factor applied to a worker's performance
// score when a new audit evaluation arrives.
const performanceSmoothing = 0.2

// Coordinator owns the coordinator process state and exposes every
// operation the HTTP layer serves.
type Coordinator struct {
	cfg       *config.Config
	store     storage.Store
	blobs     *blob.Gateway
	lifecycle *lifecycle.Manager
	registry  *registry.Registry
	consensus *consensus.Engine
	broker    *events.Broker
	subs      []events.Subscriber
}

// New assembles a coordinator over the given store and blob store.
func New(cfg *config.Config, store storage.Store, blobStore blob.Store) (*Coordinator, error) {
	broker := events.NewBroker()
	broker.Start()
	subs := []events.Subscriber{
		broker.StartLogSubscriber(),
		broker.StartMetricsSubscriber(),
	}

	reg, err := registry.NewRegistry(store)
	if err != nil {
		return nil, fmt.Errorf("failed to init registry: %w", err)
	}

	engine := consensus.NewEngine(store, reg, broker, consensus.Config{
		Window:      cfg.ConsensusWindow,
		MinAuditors: cfg.MinConsensusAuditors,
	})

	mgr := lifecycle.NewManager(store, broker)
	// Slots release through the lifecycle so every exit from a pending
	// assignment (response, completion, failure, cancellation) hands the
	// capacity back exactly once.
	mgr.OnSlotRelease(func(workerID string) {
		reg.AdjustLoad(workerID, -1)
	})

	return &Coordinator{
		cfg:       cfg,
		store:     store,
		blobs:     blob.NewGateway(blobStore, cfg.MaxInputBytes),
		lifecycle: mgr,
		registry:  reg,
		consensus: engine,
		broker:    broker,
		subs:      subs,
	}, nil
}

// Close stops the broker. The store and blob store are closed by the caller
// that opened them.
func (c *Coordinator) Close() {
	for _, sub := range c.subs {
		c.broker.Unsubscribe(sub)
	}
	c.broker.Stop()
}

// Lifecycle exposes the task state machine (used by the distributor and
// janitor).
func (c *Coordinator) Lifecycle() *lifecycle.Manager { return c.lifecycle }

// Registry exposes the worker registry.
func (c *Coordinator) Registry() *registry.Registry { return c.registry }

// Consensus exposes the consensus engine.
func (c *Coordinator) Consensus() *consensus.Engine { return c.consensus }

// Blobs exposes the blob gateway.
func (c *Coordinator) Blobs() *blob.Gateway { return c.blobs }

// Events exposes the event broker.
func (c *Coordinator) Events() *events.Broker { return c.broker }

// Config exposes the loaded configuration.
func (c *Coordinator) Config() *config.Config { return c.cfg }

// SubmitTask validates req at ingress and creates a Pending task. Invalid
// submissions are rejected without creating any task row.
func (c *Coordinator) SubmitTask(req *SubmitRequest) (string, error) {
	if err := validateSubmit(req, c.cfg.MaxInputBytes); err != nil {
		return "", err
	}

	var input types.InputRef
	if len(req.Data) > 0 {
		blobID, err := c.blobs.Put(req.Data, "")
		if err != nil {
			return "", fmt.Errorf("failed to store input: %w", err)
		}
		input.BlobID = blobID
	} else {
		input.Text = req.Text
	}

	spec := &types.Task{
		Kind:                req.Kind,
		Priority:            req.Priority,
		SourceLanguage:      req.SourceLanguage,
		TargetLanguage:      req.TargetLanguage,
		Input:               input,
		RequiredWorkerCount: req.RequiredWorkerCount,
		MinWorkerCount:      req.MinWorkerCount,
		MaxWorkerCount:      req.MaxWorkerCount,
	}
	return c.lifecycle.Submit(spec)
}

// GetTask returns a task snapshot.
func (c *Coordinator) GetTask(taskID string) (*types.Task, error) {
	return c.lifecycle.Get(taskID)
}

// CancelTask moves a non-terminal task to Cancelled.
func (c *Coordinator) CancelTask(taskID string) error {
	return c.lifecycle.Cancel(taskID)
}

// PendingTasks returns up to limit Pending tasks in distribution order:
// priority descending, then created_at ascending.
func (c *Coordinator) PendingTasks(limit int) ([]*types.Task, error) {
	return c.store.ListPendingTasks(limit)
}

// StaleAssignedTasks returns Assigned tasks whose assignment predates cutoff.
func (c *Coordinator) StaleAssignedTasks(cutoff time.Time) ([]*types.Task, error) {
	return c.store.ListAssignedBefore(cutoff)
}

// FailedTasks returns up to limit tasks in the Failed state.
func (c *Coordinator) FailedTasks(limit int) ([]*types.Task, error) {
	return c.store.ListFailedTasks(limit)
}

// ListCompletedTasks returns tasks awaiting audit.
func (c *Coordinator) ListCompletedTasks(limit int) ([]*types.Task, error) {
	return c.store.ListTasksByStatus(types.TaskStatusCompleted, limit)
}

// TasksForWorker returns the tasks currently assigned to workerID that it
// has not yet answered. This backs the worker pull endpoint.
func (c *Coordinator) TasksForWorker(workerID string) ([]*types.Task, error) {
	var out []*types.Task
	for _, status := range []types.TaskStatus{types.TaskStatusAssigned, types.TaskStatusInProgress} {
		tasks, err := c.store.ListTasksByStatus(status, 200)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !t.HasWorker(workerID) {
				continue
			}
			if _, answered := t.ResponseFrom(workerID); answered {
				continue
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// RecordWorkerResponse stores a worker's result. Load slots are released by
// the lifecycle's slot-release hook, not here.
func (c *Coordinator) RecordWorkerResponse(taskID, workerID string, resp types.WorkerResponse) (types.TaskStatus, error) {
	status, _, err := c.lifecycle.RecordResponse(taskID, workerID, resp)
	if err != nil {
		return "", err
	}
	return status, nil
}

// RegisterWorker records a worker's self-registration. Consensus-derived
// updates preempt these values as soon as auditors report.
func (c *Coordinator) RegisterWorker(info *types.WorkerInfo) error {
	if err := c.registry.Register(info); err != nil {
		return err
	}
	c.broker.Publish(&events.Event{
		ID:       uuid.New().String(),
		Type:     events.EventWorkerRegistered,
		Message:  info.WorkerID,
		Metadata: map[string]string{"worker_id": info.WorkerID},
	})
	return nil
}

// ReceiveAuditorReport ingests one auditor's worker-status batch.
func (c *Coordinator) ReceiveAuditorReport(auditorID string, statuses []types.ReportedStatus, epoch uint64) error {
	return c.consensus.ReceiveReport(auditorID, statuses, epoch)
}

// AuditedTaskIDs returns the task IDs this auditor has already evaluated.
func (c *Coordinator) AuditedTaskIDs(auditorID string) ([]string, error) {
	return c.store.ListAuditedTaskIDs(auditorID)
}

// RecordEvaluation stores an audit evaluation, folds the scores into each
// worker's performance EMA, and marks the task Done. A repeat evaluation
// from the same auditor is a no-op: the first stays authoritative.
func (c *Coordinator) RecordEvaluation(ev *types.AuditEvaluation) error {
	if ev.TaskID == "" || ev.AuditorID == "" {
		return validationErr("evaluation requires task_id and auditor_id")
	}
	if _, err := c.lifecycle.Get(ev.TaskID); err != nil {
		return err
	}

	err := c.store.SaveEvaluation(ev)
	if errors.Is(err, storage.ErrDuplicate) {
		log.WithTaskID(ev.TaskID).Debug().
			Str("auditor_id", ev.AuditorID).
			Msg("duplicate evaluation ignored")
		return nil
	}
	if err != nil {
		return err
	}

	for workerID, score := range ev.Scores {
		c.updatePerformance(workerID, score.Combined)
	}

	return c.lifecycle.MarkDone(ev.TaskID)
}

// updatePerformance folds one audited combined score (in [0,1]) into the
// worker's performance EMA.
func (c *Coordinator) updatePerformance(workerID string, combined float64) {
	w := c.registry.Get(workerID)
	if w == nil {
		return
	}
	w.PerformanceScore = (1-performanceSmoothing)*w.PerformanceScore + performanceSmoothing*combined
	if err := c.registry.Apply(w); err != nil {
		log.WithWorkerID(workerID).Error().Err(err).Msg("failed to persist performance update")
	}
}

// ConsensusView returns the published consensus records.
func (c *Coordinator) ConsensusView() ([]*types.ConsensusRecord, error) {
	return c.consensus.ListConsensusWorkers()
}

// RegisteredWorkers returns the registry's current worker records,
// self-reported values included.
func (c *Coordinator) RegisteredWorkers() []*types.WorkerInfo {
	return c.registry.List()
}

// TaskCounts returns the number of tasks per status.
func (c *Coordinator) TaskCounts() (map[types.TaskStatus]int, error) {
	return c.store.CountTasksByStatus()
}

// WorkerCounts returns how many known workers are serving and how many
// exist in total.
func (c *Coordinator) WorkerCounts() (serving, total int) {
	for _, w := range c.registry.List() {
		total++
		if w.IsServing {
			serving++
		}
	}
	return serving, total
}

// ConsensusCount returns the number of workers with a published consensus
// record.
func (c *Coordinator) ConsensusCount() (int, error) {
	records, err := c.consensus.ListConsensusWorkers()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
