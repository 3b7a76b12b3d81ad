package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTask(id string, status types.TaskStatus, priority types.TaskPriority, createdAt time.Time) *types.Task {
	return &types.Task{
		TaskID:              id,
		Kind:                types.TaskKindTranscription,
		Status:              status,
		Priority:            priority,
		SourceLanguage:      "en",
		Input:               types.InputRef{BlobID: "blob-" + id},
		RequiredWorkerCount: 3,
		MinWorkerCount:      1,
		MaxWorkerCount:      5,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
}

func TestTaskRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	task := newTask("task-1", types.TaskStatusPending, types.PriorityNormal, now)
	task.TargetLanguage = "es"
	require.NoError(t, store.CreateTask(task))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, got.TaskID)
	assert.Equal(t, task.Kind, got.Kind)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Equal(t, "es", got.TargetLanguage)
	assert.Equal(t, task.Input, got.Input)
	assert.Equal(t, 3, got.RequiredWorkerCount)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Nil(t, got.DistributedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestCreateTaskDuplicate(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.CreateTask(newTask("task-1", types.TaskStatusPending, types.PriorityNormal, now)))
	err := store.CreateTask(newTask("task-1", types.TaskStatusPending, types.PriorityNormal, now))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTask("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTask(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	task := newTask("task-1", types.TaskStatusPending, types.PriorityNormal, now)
	require.NoError(t, store.CreateTask(task))

	task.Status = types.TaskStatusAssigned
	task.AssignedWorkers = []string{"worker-1", "worker-2"}
	task.Assignments = []types.Assignment{
		{AssignmentID: "a-1", WorkerID: "worker-1", AssignedAt: now, Status: types.AssignmentPending},
	}
	distributed := now.Add(time.Second)
	task.DistributedAt = &distributed
	task.UpdatedAt = distributed
	require.NoError(t, store.UpdateTask(task))

	got, err := store.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusAssigned, got.Status)
	assert.Equal(t, []string{"worker-1", "worker-2"}, got.AssignedWorkers)
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, "worker-1", got.Assignments[0].WorkerID)
	require.NotNil(t, got.DistributedAt)
}

func TestUpdateTaskNotFound(t *testing.T) {
	store := newTestStore(t)
	task := newTask("ghost", types.TaskStatusPending, types.PriorityNormal, time.Now().UTC())
	assert.ErrorIs(t, store.UpdateTask(task), ErrNotFound)
}

func TestListPendingTasksOrdering(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	// Insertion order deliberately scrambled.
	require.NoError(t, store.CreateTask(newTask("normal-late", types.TaskStatusPending, types.PriorityNormal, base.Add(2*time.Second))))
	require.NoError(t, store.CreateTask(newTask("urgent", types.TaskStatusPending, types.PriorityUrgent, base.Add(3*time.Second))))
	require.NoError(t, store.CreateTask(newTask("low", types.TaskStatusPending, types.PriorityLow, base)))
	require.NoError(t, store.CreateTask(newTask("normal-early", types.TaskStatusPending, types.PriorityNormal, base.Add(time.Second))))
	require.NoError(t, store.CreateTask(newTask("assigned", types.TaskStatusAssigned, types.PriorityUrgent, base)))

	tasks, err := store.ListPendingTasks(10)
	require.NoError(t, err)

	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.TaskID
	}
	assert.Equal(t, []string{"urgent", "normal-early", "normal-late", "low"}, ids)
}

func TestListPendingTasksLimit(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateTask(newTask(id, types.TaskStatusPending, types.PriorityNormal, base)))
		base = base.Add(time.Second)
	}

	tasks, err := store.ListPendingTasks(2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestListAssignedBefore(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	stale := newTask("stale", types.TaskStatusAssigned, types.PriorityNormal, now.Add(-time.Hour))
	fresh := newTask("fresh", types.TaskStatusAssigned, types.PriorityNormal, now)
	pending := newTask("pending", types.TaskStatusPending, types.PriorityNormal, now.Add(-time.Hour))
	require.NoError(t, store.CreateTask(stale))
	require.NoError(t, store.CreateTask(fresh))
	require.NoError(t, store.CreateTask(pending))

	tasks, err := store.ListAssignedBefore(now.Add(-30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "stale", tasks[0].TaskID)
}

func TestCountTasksByStatus(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.CreateTask(newTask("p1", types.TaskStatusPending, types.PriorityNormal, now)))
	require.NoError(t, store.CreateTask(newTask("p2", types.TaskStatusPending, types.PriorityNormal, now)))
	require.NoError(t, store.CreateTask(newTask("d1", types.TaskStatusDone, types.PriorityNormal, now)))

	counts, err := store.CountTasksByStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.TaskStatusPending])
	assert.Equal(t, 1, counts[types.TaskStatusDone])
	assert.Equal(t, 0, counts[types.TaskStatusFailed])
}

func TestWorkerUpsert(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	w := &types.WorkerInfo{
		WorkerID:    "worker-1",
		Hotkey:      "hk-1",
		Stake:       100,
		IsServing:   true,
		CurrentLoad: 1,
		MaxCapacity: 4,
		Specialization: map[types.TaskKind]types.SpecializationStats{
			types.TaskKindTTS: {Total: 7, Successful: 6},
		},
		LastSeen: now,
	}
	require.NoError(t, store.UpsertWorker(w))

	got, err := store.GetWorker("worker-1")
	require.NoError(t, err)
	assert.Equal(t, "hk-1", got.Hotkey)
	assert.True(t, got.IsServing)
	assert.Equal(t, 4, got.MaxCapacity)
	assert.Equal(t, 7, got.Specialization[types.TaskKindTTS].Total)

	// Second upsert replaces the row.
	w.IsServing = false
	w.CurrentLoad = 0
	require.NoError(t, store.UpsertWorker(w))

	got, err = store.GetWorker("worker-1")
	require.NoError(t, err)
	assert.False(t, got.IsServing)

	workers, err := store.ListWorkers()
	require.NoError(t, err)
	assert.Len(t, workers, 1)
}

func TestGetWorkerNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetWorker("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func floatPtr(v float64) *float64 { return &v }

func TestAuditorReportReplacement(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	first := &types.AuditorReport{
		AuditorID:  "auditor-1",
		WorkerID:   "worker-1",
		Epoch:      1,
		Timestamp:  now.Add(-time.Minute),
		Status:     types.ReportedStatus{WorkerID: "worker-1", Stake: floatPtr(100)},
		Confidence: 0.8,
	}
	require.NoError(t, store.SaveAuditorReport(first))

	second := &types.AuditorReport{
		AuditorID:  "auditor-1",
		WorkerID:   "worker-1",
		Epoch:      2,
		Timestamp:  now,
		Status:     types.ReportedStatus{WorkerID: "worker-1", Stake: floatPtr(200)},
		Confidence: 0.9,
	}
	require.NoError(t, store.SaveAuditorReport(second))

	reports, err := store.ListReportsSince("worker-1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, uint64(2), reports[0].Epoch)
	assert.InDelta(t, 200, *reports[0].Status.Stake, 1e-9)
	assert.InDelta(t, 0.9, reports[0].Confidence, 1e-9)
}

func TestListReportsSinceWindow(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	old := &types.AuditorReport{
		AuditorID: "auditor-1", WorkerID: "worker-1",
		Timestamp: now.Add(-2 * time.Hour),
		Status:    types.ReportedStatus{WorkerID: "worker-1"},
	}
	recent := &types.AuditorReport{
		AuditorID: "auditor-2", WorkerID: "worker-1",
		Timestamp: now.Add(-time.Minute),
		Status:    types.ReportedStatus{WorkerID: "worker-1"},
	}
	require.NoError(t, store.SaveAuditorReport(old))
	require.NoError(t, store.SaveAuditorReport(recent))

	reports, err := store.ListReportsSince("worker-1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "auditor-2", reports[0].AuditorID)
}

func TestPruneReportsBefore(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Minute} {
		r := &types.AuditorReport{
			AuditorID: "auditor-1",
			WorkerID:  "worker-" + string(rune('a'+i)),
			Timestamp: now.Add(-age),
			Status:    types.ReportedStatus{WorkerID: "worker"},
		}
		require.NoError(t, store.SaveAuditorReport(r))
	}

	n, err := store.PruneReportsBefore(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestConsensusRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := &types.ConsensusRecord{
		WorkerID: "worker-1",
		Status: types.WorkerInfo{
			WorkerID:  "worker-1",
			Hotkey:    "hk-1",
			IsServing: true,
		},
		Confidence:           0.85,
		ContributingAuditors: []string{"auditor-1", "auditor-2"},
		LastConsensusAt:      now,
		Conflicts:            []types.FieldConflict{{Field: "hotkey", Reason: "no weighted majority; kept first seen"}},
	}
	require.NoError(t, store.SaveConsensus(rec))

	got, err := store.GetConsensus("worker-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Status.Hotkey, got.Status.Hotkey)
	assert.InDelta(t, 0.85, got.Confidence, 1e-9)
	assert.Equal(t, rec.ContributingAuditors, got.ContributingAuditors)
	require.Len(t, got.Conflicts, 1)
	assert.Equal(t, "hotkey", got.Conflicts[0].Field)

	// Upsert replaces.
	rec.Confidence = 0.5
	require.NoError(t, store.SaveConsensus(rec))
	got, err = store.GetConsensus("worker-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Confidence, 1e-9)

	records, err := store.ListConsensus()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestGetConsensusNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetConsensus("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveEvaluationIdempotent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	ev := &types.AuditEvaluation{
		TaskID:      "task-1",
		AuditorID:   "auditor-1",
		EvaluatedAt: now,
		Scores: map[string]types.WorkerScore{
			"worker-1": {Accuracy: 0.9, Final: 450},
		},
	}
	require.NoError(t, store.SaveEvaluation(ev))

	// A second save for the same pair leaves the first authoritative.
	again := &types.AuditEvaluation{
		TaskID:      "task-1",
		AuditorID:   "auditor-1",
		EvaluatedAt: now.Add(time.Minute),
		Scores: map[string]types.WorkerScore{
			"worker-1": {Accuracy: 0.1, Final: 50},
		},
	}
	assert.ErrorIs(t, store.SaveEvaluation(again), ErrDuplicate)

	got, err := store.GetEvaluation("task-1", "auditor-1")
	require.NoError(t, err)
	assert.InDelta(t, 450, got.Scores["worker-1"].Final, 1e-9)

	// Another auditor may still evaluate the same task.
	other := &types.AuditEvaluation{
		TaskID:      "task-1",
		AuditorID:   "auditor-2",
		EvaluatedAt: now,
		Scores:      map[string]types.WorkerScore{"worker-1": {Final: 300}},
	}
	require.NoError(t, store.SaveEvaluation(other))

	n, err := store.CountEvaluations("task-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListAuditedTaskIDs(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	for _, taskID := range []string{"task-1", "task-2"} {
		require.NoError(t, store.SaveEvaluation(&types.AuditEvaluation{
			TaskID:      taskID,
			AuditorID:   "auditor-1",
			EvaluatedAt: now,
			Scores:      map[string]types.WorkerScore{},
		}))
	}
	require.NoError(t, store.SaveEvaluation(&types.AuditEvaluation{
		TaskID:      "task-3",
		AuditorID:   "auditor-2",
		EvaluatedAt: now,
		Scores:      map[string]types.WorkerScore{},
	}))

	ids, err := store.ListAuditedTaskIDs("auditor-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, ids)

	ids, err = store.ListAuditedTaskIDs("auditor-3")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetEvaluationNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetEvaluation("task-1", "auditor-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
