package executor

import (
	"context"
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

// Echo is a deterministic executor that reflects its input back as the
// kind's output field. It stands in for a real model in local runs and
// tests: two Echo executors always agree, so audit accuracy is 1.0.
type Echo struct {
	// Delay is added to the measured elapsed time to simulate inference
	// latency without sleeping.
	Delay time.Duration
}

// Run implements Executor.
func (e *Echo) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := req.Text
	if text == "" {
		text = string(req.Data)
	}

	var out types.OutputRef
	var audio []byte
	switch req.Kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		out.Transcript = text
	case types.TaskKindSummarization:
		out.Summary = text
	case types.TaskKindTextTranslation, types.TaskKindDocTranslation:
		out.Translated = text
	case types.TaskKindTTS:
		audio = []byte(text)
	}

	return &Result{Output: out, Audio: audio, Elapsed: e.Delay}, nil
}
