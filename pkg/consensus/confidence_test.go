package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chorusnet/chorus/pkg/types"
)

func ptr[T any](v T) *T { return &v }

func fullStatus(now time.Time) types.ReportedStatus {
	return types.ReportedStatus{
		WorkerID:         "worker-1",
		Hotkey:           ptr("hk-1"),
		Stake:            ptr(100.0),
		IsServing:        ptr(true),
		CurrentLoad:      ptr(1),
		MaxCapacity:      ptr(4),
		PerformanceScore: ptr(0.9),
		Specialization: map[types.TaskKind]types.SpecializationStats{
			types.TaskKindTranscription: {Total: 10, Successful: 9},
		},
		LastSeen: ptr(now.Add(-time.Minute)),
	}
}

func TestScoreConfidence(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		status   types.ReportedStatus
		expected float64
	}{
		{
			name:     "complete fresh report hits the ceiling",
			status:   fullStatus(now),
			expected: 1.0,
		},
		{
			name:     "minimal report loses all required-field penalties",
			status:   types.ReportedStatus{},
			expected: 0.6,
		},
		{
			name: "required fields only",
			status: types.ReportedStatus{
				WorkerID:  "worker-1",
				Hotkey:    ptr("hk-1"),
				Stake:     ptr(100.0),
				IsServing: ptr(true),
			},
			expected: 1.0,
		},
		{
			name: "empty hotkey counts as missing",
			status: types.ReportedStatus{
				WorkerID:  "worker-1",
				Hotkey:    ptr(""),
				Stake:     ptr(100.0),
				IsServing: ptr(true),
			},
			expected: 0.9,
		},
		{
			name: "detail bonus is capped",
			status: types.ReportedStatus{
				WorkerID:         "worker-1",
				PerformanceScore: ptr(0.5),
				CurrentLoad:      ptr(2),
				Specialization: map[types.TaskKind]types.SpecializationStats{
					types.TaskKindTTS: {},
				},
			},
			// 1.0 minus three required-field penalties plus the 0.15 cap.
			expected: 0.85,
		},
		{
			name: "recent but not fresh observation",
			status: types.ReportedStatus{
				WorkerID:  "worker-1",
				Hotkey:    ptr("hk-1"),
				Stake:     ptr(100.0),
				IsServing: ptr(true),
				LastSeen:  ptr(now.Add(-10 * time.Minute)),
			},
			expected: 1.0,
		},
		{
			name: "stale observation earns no recency bonus",
			status: types.ReportedStatus{
				WorkerID: "worker-1",
				LastSeen: ptr(now.Add(-time.Hour)),
			},
			expected: 0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scoreConfidence(&tt.status, now), 1e-9)
		})
	}
}

func TestScoreConfidenceBounds(t *testing.T) {
	now := time.Now().UTC()
	c := scoreConfidence(&types.ReportedStatus{}, now)
	assert.GreaterOrEqual(t, c, 0.1)
	assert.LessOrEqual(t, c, 1.0)
}
