package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

func newTestRegistry(t *testing.T) (*Registry, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg, err := NewRegistry(store)
	require.NoError(t, err)
	return reg, store
}

func servingWorker(id string, kind types.TaskKind) *types.WorkerInfo {
	return &types.WorkerInfo{
		WorkerID:    id,
		Hotkey:      "hk-" + id,
		IsServing:   true,
		MaxCapacity: 4,
		Specialization: map[types.TaskKind]types.SpecializationStats{
			kind: {Total: 1},
		},
	}
}

func TestRegisterRequiresWorkerID(t *testing.T) {
	reg, _ := newTestRegistry(t)
	assert.Error(t, reg.Register(&types.WorkerInfo{}))
}

func TestRegisterDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register(&types.WorkerInfo{WorkerID: "worker-1", IsServing: true}))

	w := reg.Get("worker-1")
	require.NotNil(t, w)
	assert.Equal(t, 1, w.MaxCapacity)
	assert.InDelta(t, 0.5, w.PerformanceScore, 1e-9)
	assert.False(t, w.LastSeen.IsZero())
}

func TestReRegisterPreservesLoadAndScore(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register(servingWorker("worker-1", types.TaskKindTTS)))
	require.NoError(t, reg.Apply(&types.WorkerInfo{
		WorkerID:         "worker-1",
		IsServing:        true,
		MaxCapacity:      4,
		PerformanceScore: 0.9,
	}))
	reg.AdjustLoad("worker-1", 2)

	// A reboot re-registration must not reset what consensus established.
	require.NoError(t, reg.Register(servingWorker("worker-1", types.TaskKindTTS)))

	w := reg.Get("worker-1")
	require.NotNil(t, w)
	assert.Equal(t, 2, w.CurrentLoad)
	assert.InDelta(t, 0.9, w.PerformanceScore, 1e-9)
}

func TestRegistryPersistence(t *testing.T) {
	reg, store := newTestRegistry(t)
	require.NoError(t, reg.Register(servingWorker("worker-1", types.TaskKindTranscription)))

	// A fresh registry over the same store sees the worker.
	reloaded, err := NewRegistry(store)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Count())
	require.NotNil(t, reloaded.Get("worker-1"))
}

func TestGetReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(servingWorker("worker-1", types.TaskKindTTS)))

	w := reg.Get("worker-1")
	w.CurrentLoad = 99

	assert.Equal(t, 0, reg.Get("worker-1").CurrentLoad)
	assert.Nil(t, reg.Get("unknown"))
}

func TestListAvailable(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register(servingWorker("serving", types.TaskKindTTS)))

	idle := servingWorker("idle", types.TaskKindTTS)
	idle.IsServing = false
	require.NoError(t, reg.Register(idle))

	full := servingWorker("full", types.TaskKindTTS)
	full.MaxCapacity = 1
	require.NoError(t, reg.Register(full))
	reg.AdjustLoad("full", 1)

	stale := servingWorker("stale", types.TaskKindTTS)
	require.NoError(t, reg.Register(stale))
	require.NoError(t, reg.Apply(&types.WorkerInfo{
		WorkerID:    "stale",
		IsServing:   true,
		MaxCapacity: 4,
		LastSeen:    time.Now().Add(-2 * StalenessWindow),
	}))

	available := reg.ListAvailable("")
	require.Len(t, available, 1)
	assert.Equal(t, "serving", available[0].WorkerID)
}

func TestListAvailableByKind(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Register(servingWorker("tts-worker", types.TaskKindTTS)))
	require.NoError(t, reg.Register(servingWorker("stt-worker", types.TaskKindTranscription)))

	available := reg.ListAvailable(types.TaskKindTTS)
	require.Len(t, available, 1)
	assert.Equal(t, "tts-worker", available[0].WorkerID)

	assert.Len(t, reg.ListAvailable(""), 2)
}

func TestAdjustLoadClamps(t *testing.T) {
	reg, _ := newTestRegistry(t)
	w := servingWorker("worker-1", types.TaskKindTTS)
	w.MaxCapacity = 2
	require.NoError(t, reg.Register(w))

	reg.AdjustLoad("worker-1", 5)
	assert.Equal(t, 2, reg.Get("worker-1").CurrentLoad)

	reg.AdjustLoad("worker-1", -10)
	assert.Equal(t, 0, reg.Get("worker-1").CurrentLoad)

	// Unknown workers are ignored.
	reg.AdjustLoad("ghost", 1)
}

func TestListIncludesStale(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(servingWorker("worker-1", types.TaskKindTTS)))
	require.NoError(t, reg.Apply(&types.WorkerInfo{
		WorkerID: "worker-1",
		LastSeen: time.Now().Add(-2 * StalenessWindow),
	}))

	assert.Len(t, reg.List(), 1)
	assert.Empty(t, reg.ListAvailable(""))
}
