package consensus

import (
	"math"
	"sort"

	"github.com/chorusnet/chorus/pkg/types"
)

// majorityThreshold is the share of total confidence weight a value needs to
// win a boolean or string field outright.
const majorityThreshold = 0.6

// reconcile merges the given reports (all for one worker, all inside the
// consensus window) into a single worker view plus any field conflicts.
// Reports are processed oldest first so "first seen" is well defined.
func reconcile(reports []*types.AuditorReport) (types.WorkerInfo, []types.FieldConflict) {
	sorted := make([]*types.AuditorReport, len(reports))
	copy(sorted, reports)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var conflicts []types.FieldConflict
	info := types.WorkerInfo{
		WorkerID:    sorted[0].WorkerID,
		MaxCapacity: 1,
	}

	// Numeric fields: confidence-weighted mean.
	if v, ok := weightedMean(sorted, func(s *types.ReportedStatus) *float64 { return s.Stake }); ok {
		info.Stake = v
	}
	if v, ok := weightedMean(sorted, func(s *types.ReportedStatus) *float64 { return s.PerformanceScore }); ok {
		info.PerformanceScore = v
	}
	if v, ok := weightedMean(sorted, func(s *types.ReportedStatus) *float64 { return intPtrToFloat(s.CurrentLoad) }); ok {
		info.CurrentLoad = int(math.Round(v))
	}
	if v, ok := weightedMean(sorted, func(s *types.ReportedStatus) *float64 { return intPtrToFloat(s.MaxCapacity) }); ok {
		info.MaxCapacity = int(math.Round(v))
		if info.MaxCapacity < 1 {
			info.MaxCapacity = 1
		}
	}

	// Boolean field: weighted majority.
	serving, conflict, ok := weightedMajorityBool(sorted)
	if ok {
		info.IsServing = serving
		if conflict {
			conflicts = append(conflicts, types.FieldConflict{
				Field:  "is_serving",
				Reason: "no weighted majority; kept first seen",
			})
		}
	}

	// String field: weighted majority.
	hotkey, conflict, ok := weightedMajorityString(sorted)
	if ok {
		info.Hotkey = hotkey
		if conflict {
			conflicts = append(conflicts, types.FieldConflict{
				Field:  "hotkey",
				Reason: "no weighted majority; kept first seen",
			})
		}
	}

	// Nested and timestamp fields: highest confidence wins, most recent
	// report breaks ties.
	if best := bestReport(sorted, func(s *types.ReportedStatus) bool { return len(s.Specialization) > 0 }); best != nil {
		info.Specialization = best.Status.Specialization
	}
	if best := bestReport(sorted, func(s *types.ReportedStatus) bool { return s.LastSeen != nil }); best != nil {
		info.LastSeen = *best.Status.LastSeen
	}

	return info, conflicts
}

func intPtrToFloat(p *int) *float64 {
	if p == nil {
		return nil
	}
	v := float64(*p)
	return &v
}

// weightedMean averages a numeric field across the reports that carry it,
// weighted by report confidence. ok is false when no report carries it.
func weightedMean(reports []*types.AuditorReport, field func(*types.ReportedStatus) *float64) (float64, bool) {
	var sum, weight float64
	for _, r := range reports {
		v := field(&r.Status)
		if v == nil {
			continue
		}
		sum += *v * r.Confidence
		weight += r.Confidence
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// weightedMajorityBool resolves is_serving by weighted vote. When no value
// reaches the majority threshold the first-seen value is kept and conflict
// is true.
func weightedMajorityBool(reports []*types.AuditorReport) (value, conflict, ok bool) {
	var trueWeight, falseWeight float64
	var first *bool
	for _, r := range reports {
		v := r.Status.IsServing
		if v == nil {
			continue
		}
		if first == nil {
			first = v
		}
		if *v {
			trueWeight += r.Confidence
		} else {
			falseWeight += r.Confidence
		}
	}
	if first == nil {
		return false, false, false
	}
	total := trueWeight + falseWeight
	switch {
	case trueWeight/total >= majorityThreshold:
		return true, false, true
	case falseWeight/total >= majorityThreshold:
		return false, false, true
	default:
		return *first, true, true
	}
}

// weightedMajorityString resolves hotkey by weighted vote with the same
// threshold and fallback as the boolean rule.
func weightedMajorityString(reports []*types.AuditorReport) (value string, conflict, ok bool) {
	weights := make(map[string]float64)
	var total float64
	first := ""
	seen := false
	for _, r := range reports {
		v := r.Status.Hotkey
		if v == nil || *v == "" {
			continue
		}
		if !seen {
			first = *v
			seen = true
		}
		weights[*v] += r.Confidence
		total += r.Confidence
	}
	if !seen {
		return "", false, false
	}
	for v, w := range weights {
		if w/total >= majorityThreshold {
			return v, false, true
		}
	}
	return first, true, true
}

// bestReport returns the report with the highest confidence among those for
// which has() holds; ties go to the most recent timestamp.
func bestReport(reports []*types.AuditorReport, has func(*types.ReportedStatus) bool) *types.AuditorReport {
	var best *types.AuditorReport
	for _, r := range reports {
		if !has(&r.Status) {
			continue
		}
		if best == nil ||
			r.Confidence > best.Confidence ||
			(r.Confidence == best.Confidence && r.Timestamp.After(best.Timestamp)) {
			best = r
		}
	}
	return best
}
