package janitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/blob"
	"github.com/chorusnet/chorus/pkg/config"
	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blob.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	cfg := config.Default()
	cfg.DataDir = dir

	coord, err := coordinator.New(cfg, store, blobs)
	require.NoError(t, err)
	t.Cleanup(coord.Close)
	return coord
}

func assignedTask(t *testing.T, coord *coordinator.Coordinator, workerID string) string {
	t.Helper()
	require.NoError(t, coord.RegisterWorker(&types.WorkerInfo{
		WorkerID:    workerID,
		IsServing:   true,
		MaxCapacity: 4,
	}))

	id, err := coord.SubmitTask(&coordinator.SubmitRequest{
		Kind:           types.TaskKindTranscription,
		SourceLanguage: "en",
		Data:           []byte("audio bytes"),
	})
	require.NoError(t, err)

	claimed, err := coord.Lifecycle().ClaimForDistribution(id, []string{workerID})
	require.NoError(t, err)
	require.True(t, claimed)
	coord.Registry().AdjustLoad(workerID, 1)
	return id
}

func TestSweepFailsStaleAssignmentAndRequeues(t *testing.T) {
	coord := newTestCoordinator(t)
	id := assignedTask(t, coord, "worker-1")

	// A negative timeout makes every assignment stale immediately.
	j := NewJanitor(coord, time.Minute, -time.Hour, 3)
	require.NoError(t, j.Sweep())

	// The fail pass and the requeue pass run in the same sweep, so the
	// task lands back in Pending with a spent retry.
	task, err := coord.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Empty(t, task.AssignedWorkers)

	// The worker's load slot was released by the fail pass.
	assert.Equal(t, 0, coord.Registry().Get("worker-1").CurrentLoad)
}

func TestSweepLeavesFreshAssignmentsAlone(t *testing.T) {
	coord := newTestCoordinator(t)
	id := assignedTask(t, coord, "worker-1")

	j := NewJanitor(coord, time.Minute, time.Hour, 3)
	require.NoError(t, j.Sweep())

	task, err := coord.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusAssigned, task.Status)
	assert.Equal(t, 1, coord.Registry().Get("worker-1").CurrentLoad)
}

func TestSweepStopsAtRetryBudget(t *testing.T) {
	coord := newTestCoordinator(t)
	id := assignedTask(t, coord, "worker-1")
	require.NoError(t, coord.Lifecycle().MarkFailed(id, "worker crashed"))

	j := NewJanitor(coord, time.Minute, time.Hour, 0)
	require.NoError(t, j.Sweep())

	task, err := coord.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, 0, task.RetryCount)
}

func TestSweepRetriesUntilBudgetSpent(t *testing.T) {
	coord := newTestCoordinator(t)
	id := assignedTask(t, coord, "worker-1")

	j := NewJanitor(coord, time.Minute, time.Hour, 2)

	for retry := 1; retry <= 2; retry++ {
		require.NoError(t, coord.Lifecycle().MarkFailed(id, "worker crashed"))
		require.NoError(t, j.Sweep())

		task, err := coord.GetTask(id)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusPending, task.Status)
		assert.Equal(t, retry, task.RetryCount)

		claimed, err := coord.Lifecycle().ClaimForDistribution(id, []string{"worker-1"})
		require.NoError(t, err)
		require.True(t, claimed)
	}

	// Third failure exhausts the budget.
	require.NoError(t, coord.Lifecycle().MarkFailed(id, "worker crashed"))
	require.NoError(t, j.Sweep())

	task, err := coord.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, 2, task.RetryCount)
}
