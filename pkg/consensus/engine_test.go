package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

func newTestEngine(t *testing.T, minAuditors int) (*Engine, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewEngine(store, nil, nil, Config{
		Window:      time.Hour,
		MinAuditors: minAuditors,
	}), store
}

func servingStatus(workerID string) types.ReportedStatus {
	return types.ReportedStatus{
		WorkerID:  workerID,
		Hotkey:    ptr("hk-" + workerID),
		Stake:     ptr(100.0),
		IsServing: ptr(true),
	}
}

func TestReceiveReportRequiresAuditorID(t *testing.T) {
	engine, _ := newTestEngine(t, 1)
	err := engine.ReceiveReport("", []types.ReportedStatus{servingStatus("worker-1")}, 1)
	assert.Error(t, err)
}

func TestReceiveReportDropsMissingWorkerID(t *testing.T) {
	engine, _ := newTestEngine(t, 1)

	err := engine.ReceiveReport("auditor-1", []types.ReportedStatus{
		{},
		servingStatus("worker-1"),
	}, 1)
	require.NoError(t, err)

	rec, err := engine.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestConsensusWithheldBelowAuditorThreshold(t *testing.T) {
	engine, _ := newTestEngine(t, 2)

	err := engine.ReceiveReport("auditor-1", []types.ReportedStatus{servingStatus("worker-1")}, 1)
	require.NoError(t, err)

	rec, err := engine.GetConsensus("worker-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestConsensusPublishedAtThreshold(t *testing.T) {
	engine, _ := newTestEngine(t, 2)

	require.NoError(t, engine.ReceiveReport("auditor-1", []types.ReportedStatus{servingStatus("worker-1")}, 1))
	require.NoError(t, engine.ReceiveReport("auditor-2", []types.ReportedStatus{servingStatus("worker-1")}, 1))

	rec, err := engine.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "worker-1", rec.WorkerID)
	assert.True(t, rec.Status.IsServing)
	assert.ElementsMatch(t, []string{"auditor-1", "auditor-2"}, rec.ContributingAuditors)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.LessOrEqual(t, rec.Confidence, 1.0)
}

func TestConflictLowersConfidence(t *testing.T) {
	// Fully specified fresh reports saturate the [0, 1] clamp, where the
	// conflict penalty is invisible. A sparse report (no hotkey, no stake)
	// scores 0.8, so two agreeing auditors land at 0.9 after the
	// multi-auditor bonus and a conflict is observable as a 0.1 drop.
	sparseStatus := func(serving bool) types.ReportedStatus {
		return types.ReportedStatus{
			WorkerID:  "worker-1",
			IsServing: ptr(serving),
		}
	}

	agreeing, _ := newTestEngine(t, 2)
	require.NoError(t, agreeing.ReceiveReport("auditor-1", []types.ReportedStatus{sparseStatus(true)}, 1))
	require.NoError(t, agreeing.ReceiveReport("auditor-2", []types.ReportedStatus{sparseStatus(true)}, 1))
	clean, err := agreeing.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, clean)
	assert.Empty(t, clean.Conflicts)
	assert.InDelta(t, 0.9, clean.Confidence, 1e-9)

	split, _ := newTestEngine(t, 2)
	require.NoError(t, split.ReceiveReport("auditor-1", []types.ReportedStatus{sparseStatus(true)}, 1))
	require.NoError(t, split.ReceiveReport("auditor-2", []types.ReportedStatus{sparseStatus(false)}, 1))
	conflicted, err := split.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, conflicted)

	assert.NotEmpty(t, conflicted.Conflicts)
	assert.Less(t, conflicted.Confidence, clean.Confidence)
	assert.InDelta(t, 0.8, conflicted.Confidence, 1e-9)
}

func TestRecomputeSupersedesOlderConsensus(t *testing.T) {
	engine, _ := newTestEngine(t, 1)

	require.NoError(t, engine.ReceiveReport("auditor-1", []types.ReportedStatus{servingStatus("worker-1")}, 1))

	rec, err := engine.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Status.IsServing)

	// A later report from the same auditor replaces the earlier one, so the
	// stale serving=true observation no longer votes.
	stopped := servingStatus("worker-1")
	stopped.IsServing = ptr(false)
	require.NoError(t, engine.ReceiveReport("auditor-1", []types.ReportedStatus{stopped}, 2))

	rec, err = engine.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.Status.IsServing)
	assert.Empty(t, rec.Conflicts)
}

func TestGetConsensusSurvivesCacheFlush(t *testing.T) {
	engine, _ := newTestEngine(t, 1)
	require.NoError(t, engine.ReceiveReport("auditor-1", []types.ReportedStatus{servingStatus("worker-1")}, 1))

	engine.FlushCache()

	rec, err := engine.GetConsensus("worker-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "worker-1", rec.WorkerID)
}
