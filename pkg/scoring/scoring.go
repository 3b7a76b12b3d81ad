// Package scoring computes per-worker scores for audited tasks.
//
// Each worker response is rated on accuracy (agreement with the auditor's
// reference execution), speed, and structural quality, then combined with
// task-type-specific weights and scaled to a final score capped at 500.
package scoring

import (
	"strings"

	"github.com/chorusnet/chorus/pkg/types"
)

// ScoreCap is the maximum final score for a single task.
const ScoreCap = 500.0

// Weights holds the per-component blend for one task kind.
type Weights struct {
	Accuracy float64
	Speed    float64
	Quality  float64
}

var defaultWeights = Weights{Accuracy: 0.60, Speed: 0.25, Quality: 0.15}

var kindWeights = map[types.TaskKind]Weights{
	types.TaskKindTranscription:   {Accuracy: 0.65, Speed: 0.25, Quality: 0.10},
	types.TaskKindTTS:             {Accuracy: 0.50, Speed: 0.20, Quality: 0.30},
	types.TaskKindSummarization:   {Accuracy: 0.60, Speed: 0.20, Quality: 0.20},
	types.TaskKindTextTranslation: {Accuracy: 0.60, Speed: 0.20, Quality: 0.20},
	types.TaskKindDocTranslation:  {Accuracy: 0.60, Speed: 0.20, Quality: 0.20},
}

// WeightsFor returns the component weights for kind, falling back to the
// default blend for kinds without a dedicated row.
func WeightsFor(kind types.TaskKind) Weights {
	if w, ok := kindWeights[kind]; ok {
		return w
	}
	return defaultWeights
}

// optimalSeconds is the per-kind processing-time baseline for speed scoring.
func optimalSeconds(kind types.TaskKind) float64 {
	switch kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		return 2
	case types.TaskKindTTS:
		return 3
	default:
		return 5
	}
}

// Score rates one worker response against the auditor's reference output.
func Score(kind types.TaskKind, resp *types.WorkerResponse, reference string) types.WorkerScore {
	w := WeightsFor(kind)

	var accuracy float64
	if kind == types.TaskKindTTS {
		accuracy = ttsAccuracy(resp.ProcessingTime)
	} else {
		accuracy = TextAccuracy(textOutput(kind, &resp.OutputRef), reference)
	}

	speed := speedScore(kind, resp.ProcessingTime)
	quality := qualityScore(kind, &resp.OutputRef)

	combined := w.Accuracy*accuracy + w.Speed*speed + w.Quality*quality
	final := combined * ScoreCap
	if final > ScoreCap {
		final = ScoreCap
	}

	return types.WorkerScore{
		Accuracy: accuracy,
		Speed:    speed,
		Quality:  quality,
		Combined: combined,
		Final:    final,
	}
}

// textOutput extracts the text payload a text-producing kind is scored on.
func textOutput(kind types.TaskKind, out *types.OutputRef) string {
	switch kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		return out.Transcript
	case types.TaskKindSummarization:
		return out.Summary
	case types.TaskKindTextTranslation, types.TaskKindDocTranslation:
		return out.Translated
	default:
		return ""
	}
}

// TextAccuracy is the longest-common-subsequence ratio between the two
// strings after lowercasing and whitespace normalization, in [0,1].
func TextAccuracy(got, want string) float64 {
	a := []rune(normalize(got))
	b := []rune(normalize(want))
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(lcsLength(a, b)) / float64(longest)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// lcsLength is the classic two-row DP; memory is O(min side) of the shorter
// string.
func lcsLength(a, b []rune) int {
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// ttsAccuracy rates TTS output plausibility from processing time alone:
// audio is not decoded, so implausibly fast or slow synthesis is the signal.
func ttsAccuracy(seconds float64) float64 {
	switch {
	case seconds < 0.1:
		return 0.3
	case seconds > 30:
		return 0.2
	default:
		v := 1 - seconds/10
		if v < 0.5 {
			return 0.5
		}
		return v
	}
}

// speedScore is a piecewise rating against the kind's optimal time.
func speedScore(kind types.TaskKind, seconds float64) float64 {
	opt := optimalSeconds(kind)
	switch {
	case seconds <= opt:
		return 1.0
	case seconds <= 2*opt:
		return 0.8
	case seconds <= 5*opt:
		return 0.6
	default:
		return 0.3
	}
}

// qualityScore is the fraction of required output fields present with
// non-empty values.
func qualityScore(kind types.TaskKind, out *types.OutputRef) float64 {
	var required []string
	switch kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		required = []string{out.Transcript}
	case types.TaskKindTTS:
		required = []string{out.AudioBlob}
	case types.TaskKindSummarization:
		required = []string{out.Summary}
	case types.TaskKindTextTranslation, types.TaskKindDocTranslation:
		required = []string{out.Translated}
	default:
		return 0
	}

	present := 0
	for _, f := range required {
		if strings.TrimSpace(f) != "" {
			present++
		}
	}
	return float64(present) / float64(len(required))
}
