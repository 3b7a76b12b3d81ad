package consensus

import (
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

// Confidence bounds and adjustments for a single auditor report.
const (
	confidenceFloor   = 0.1
	confidenceCeiling = 1.0

	missingFieldPenalty = 0.1
	detailFieldBonus    = 0.05
	maxDetailBonus      = 0.15

	freshBonus   = 0.10
	freshWindow  = 5 * time.Minute
	recentBonus  = 0.05
	recentWindow = 15 * time.Minute
)

// scoreConfidence rates a report in [0.1, 1.0] from its completeness
// (required fields), detail (optional fields), and recency of observation.
func scoreConfidence(s *types.ReportedStatus, now time.Time) float64 {
	c := 1.0

	// Required fields: uid, hotkey, stake, is_serving.
	if s.WorkerID == "" {
		c -= missingFieldPenalty
	}
	if s.Hotkey == nil || *s.Hotkey == "" {
		c -= missingFieldPenalty
	}
	if s.Stake == nil {
		c -= missingFieldPenalty
	}
	if s.IsServing == nil {
		c -= missingFieldPenalty
	}

	// Detail fields, capped.
	detail := 0.0
	if s.PerformanceScore != nil {
		detail += detailFieldBonus
	}
	if s.CurrentLoad != nil {
		detail += detailFieldBonus
	}
	if len(s.Specialization) > 0 {
		detail += detailFieldBonus
	}
	if detail > maxDetailBonus {
		detail = maxDetailBonus
	}
	c += detail

	if s.LastSeen != nil {
		age := now.Sub(*s.LastSeen)
		switch {
		case age <= freshWindow:
			c += freshBonus
		case age <= recentWindow:
			c += recentBonus
		}
	}

	if c < confidenceFloor {
		c = confidenceFloor
	}
	if c > confidenceCeiling {
		c = confidenceCeiling
	}
	return c
}
