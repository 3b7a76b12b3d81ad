package lifecycle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, nil)
}

func transcriptionSpec() *types.Task {
	return &types.Task{
		Kind:                types.TaskKindTranscription,
		Priority:            types.PriorityNormal,
		SourceLanguage:      "en",
		Input:               types.InputRef{BlobID: "blob-1"},
		RequiredWorkerCount: 2,
		MinWorkerCount:      1,
		MaxWorkerCount:      3,
	}
}

func submit(t *testing.T, m *Manager, spec *types.Task) string {
	t.Helper()
	id, err := m.Submit(spec)
	require.NoError(t, err)
	return id
}

func response(transcript string) types.WorkerResponse {
	return types.WorkerResponse{
		OutputRef:      types.OutputRef{Transcript: transcript},
		ProcessingTime: 1.5,
	}
}

func TestSubmitValidation(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name    string
		mutate  func(*types.Task)
		wantErr bool
	}{
		{
			name:   "valid spec",
			mutate: func(s *types.Task) {},
		},
		{
			name:    "unknown kind",
			mutate:  func(s *types.Task) { s.Kind = "mining" },
			wantErr: true,
		},
		{
			name: "min above required",
			mutate: func(s *types.Task) {
				s.MinWorkerCount = 3
				s.RequiredWorkerCount = 2
			},
			wantErr: true,
		},
		{
			name: "required above max",
			mutate: func(s *types.Task) {
				s.RequiredWorkerCount = 5
				s.MaxWorkerCount = 3
			},
			wantErr: true,
		},
		{
			name:   "zero counts are defaulted",
			mutate: func(s *types.Task) { s.RequiredWorkerCount = 0; s.MinWorkerCount = 0; s.MaxWorkerCount = 0 },
		},
		{
			name:   "unknown priority is defaulted",
			mutate: func(s *types.Task) { s.Priority = "whenever" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := transcriptionSpec()
			tt.mutate(spec)
			id, err := m.Submit(spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpec)
				return
			}
			require.NoError(t, err)

			task, err := m.Get(id)
			require.NoError(t, err)
			assert.Equal(t, types.TaskStatusPending, task.Status)
			assert.True(t, types.ValidPriority(task.Priority))
			assert.GreaterOrEqual(t, task.RequiredWorkerCount, 1)
		})
	}
}

func TestSubmitIgnoresCallerState(t *testing.T) {
	m := newTestManager(t)

	spec := transcriptionSpec()
	spec.Status = types.TaskStatusDone
	spec.AssignedWorkers = []string{"worker-1"}
	spec.WorkerResponses = []types.WorkerResponse{{WorkerID: "worker-1"}}

	id := submit(t, m, spec)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Empty(t, task.AssignedWorkers)
	assert.Empty(t, task.WorkerResponses)
}

func TestGetUnknownTask(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("no-such-task")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestClaimForDistribution(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	claimed, err := m.ClaimForDistribution(id, []string{"worker-1", "worker-2"})
	require.NoError(t, err)
	assert.True(t, claimed)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusAssigned, task.Status)
	assert.Equal(t, []string{"worker-1", "worker-2"}, task.AssignedWorkers)
	require.Len(t, task.Assignments, 2)
	assert.Equal(t, types.AssignmentPending, task.Assignments[0].Status)
	require.NotNil(t, task.DistributedAt)
}

func TestClaimLosesWhenNotPending(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	claimed, err := m.ClaimForDistribution(id, []string{"worker-1"})
	require.NoError(t, err)
	require.True(t, claimed)

	// A second pass finds the task already Assigned and loses quietly.
	claimed, err = m.ClaimForDistribution(id, []string{"worker-2"})
	require.NoError(t, err)
	assert.False(t, claimed)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"worker-1"}, task.AssignedWorkers)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	const claimers = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := m.ClaimForDistribution(id, []string{fmt.Sprintf("worker-%d", i)})
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusAssigned, task.Status)
	// Only the winning pass's worker holds the assignment.
	assert.Len(t, task.AssignedWorkers, 1)
	assert.Len(t, task.Assignments, 1)
}

func TestClaimTruncatesToMaxWorkers(t *testing.T) {
	m := newTestManager(t)
	spec := transcriptionSpec()
	spec.MaxWorkerCount = 2
	id := submit(t, m, spec)

	claimed, err := m.ClaimForDistribution(id, []string{"w1", "w2", "w3", "w4"})
	require.NoError(t, err)
	require.True(t, claimed)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Len(t, task.AssignedWorkers, 2)
}

func TestClaimWithNoWorkers(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	claimed, err := m.ClaimForDistribution(id, nil)
	require.NoError(t, err)
	assert.False(t, claimed)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
}

func TestRecordResponseThresholds(t *testing.T) {
	m := newTestManager(t)
	spec := transcriptionSpec()
	spec.MinWorkerCount = 2
	spec.RequiredWorkerCount = 3
	spec.MaxWorkerCount = 3
	id := submit(t, m, spec)

	_, err := m.ClaimForDistribution(id, []string{"w1", "w2", "w3"})
	require.NoError(t, err)

	status, stored, err := m.RecordResponse(id, "w1", response("first"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, types.TaskStatusInProgress, status)

	status, stored, err = m.RecordResponse(id, "w2", response("second"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, types.TaskStatusCompleted, status)

	// CompletedAt is only stamped at the required threshold.
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Nil(t, task.CompletedAt)

	status, stored, err = m.RecordResponse(id, "w3", response("third"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, types.TaskStatusCompleted, status)

	task, err = m.Get(id)
	require.NoError(t, err)
	assert.NotNil(t, task.CompletedAt)
	for _, a := range task.Assignments {
		assert.Equal(t, types.AssignmentResponded, a.Status)
	}
}

func TestRecordResponseDuplicateIsNoOp(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())
	_, err := m.ClaimForDistribution(id, []string{"w1", "w2"})
	require.NoError(t, err)

	_, stored, err := m.RecordResponse(id, "w1", response("original"))
	require.NoError(t, err)
	require.True(t, stored)

	status, stored, err := m.RecordResponse(id, "w1", response("changed my mind"))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, types.TaskStatusCompleted, status)

	task, err := m.Get(id)
	require.NoError(t, err)
	require.Len(t, task.WorkerResponses, 1)
	assert.Equal(t, "original", task.WorkerResponses[0].OutputRef.Transcript)
}

func TestConcurrentResponsesFromSameWorkerStoredOnce(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())
	_, err := m.ClaimForDistribution(id, []string{"w1", "w2"})
	require.NoError(t, err)

	const attempts = 20
	var (
		wg        sync.WaitGroup
		storedCnt atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, stored, err := m.RecordResponse(id, "w1", response(fmt.Sprintf("attempt-%d", i)))
			assert.NoError(t, err)
			if stored {
				storedCnt.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), storedCnt.Load())

	task, err := m.Get(id)
	require.NoError(t, err)
	require.Len(t, task.WorkerResponses, 1)
	assert.Equal(t, "w1", task.WorkerResponses[0].WorkerID)
}

func TestRecordResponseWithoutAssignment(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())
	_, err := m.ClaimForDistribution(id, []string{"w1"})
	require.NoError(t, err)

	_, stored, err := m.RecordResponse(id, "intruder", response("unsolicited"))
	require.NoError(t, err)
	assert.False(t, stored)

	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Empty(t, task.WorkerResponses)
}

func TestRecordResponseOnPendingTask(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	status, stored, err := m.RecordResponse(id, "w1", response("early"))
	require.NoError(t, err)
	assert.False(t, stored)
	assert.Equal(t, types.TaskStatusPending, status)
}

func TestRecordResponseUnknownTask(t *testing.T) {
	m := newTestManager(t)
	_, _, err := m.RecordResponse("no-such-task", "w1", response("lost"))
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestMarkDone(t *testing.T) {
	m := newTestManager(t)
	spec := transcriptionSpec()
	spec.MinWorkerCount = 1
	spec.RequiredWorkerCount = 1
	spec.MaxWorkerCount = 1
	id := submit(t, m, spec)
	_, err := m.ClaimForDistribution(id, []string{"w1"})
	require.NoError(t, err)
	_, _, err = m.RecordResponse(id, "w1", response("done deal"))
	require.NoError(t, err)

	require.NoError(t, m.MarkDone(id))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusDone, task.Status)

	// Duplicate is a logged no-op.
	require.NoError(t, m.MarkDone(id))
}

func TestMarkDoneSkippedWhenNotCompleted(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	require.NoError(t, m.MarkDone(id))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
}

func TestMarkFailedAndRedistribute(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())
	_, err := m.ClaimForDistribution(id, []string{"w1", "w2"})
	require.NoError(t, err)

	require.NoError(t, m.MarkFailed(id, "assignment timeout"))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, "assignment timeout", task.FailReason)
	for _, a := range task.Assignments {
		assert.Equal(t, types.AssignmentFailed, a.Status)
	}

	require.NoError(t, m.Redistribute(id))
	task, err = m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Empty(t, task.AssignedWorkers)
	assert.Empty(t, task.Assignments)
	assert.Empty(t, task.WorkerResponses)
	assert.Empty(t, task.FailReason)
	assert.Equal(t, 1, task.RetryCount)
	assert.Nil(t, task.DistributedAt)
}

func TestRedistributeSkippedWhenNotFailed(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	require.NoError(t, m.Redistribute(id))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, 0, task.RetryCount)
}

func TestMarkFailedIgnoredOnTerminal(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())
	require.NoError(t, m.Cancel(id))

	require.NoError(t, m.MarkFailed(id, "too late"))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCancelled, task.Status)
}

func TestCancel(t *testing.T) {
	m := newTestManager(t)
	id := submit(t, m, transcriptionSpec())

	require.NoError(t, m.Cancel(id))
	task, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCancelled, task.Status)

	// Cancelling a terminal task is ignored.
	require.NoError(t, m.Cancel(id))
	assert.ErrorIs(t, m.Cancel("no-such-task"), ErrUnknownTask)
}
