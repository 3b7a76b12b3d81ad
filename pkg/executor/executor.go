// Package executor abstracts the inference pipelines behind a uniform
// interface. The coordinator core never sees a model: workers and auditors
// invoke whatever Executor their process was configured with, and any
// semantically equivalent inference is acceptable.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

// DefaultTimeout bounds a single inference run.
const DefaultTimeout = 60 * time.Second

// Request carries one task's input to an inference backend. Exactly one of
// Text or Data is populated, matching the task's InputRef.
type Request struct {
	Kind           types.TaskKind `json:"task_type"`
	SourceLanguage string         `json:"source_language,omitempty"`
	TargetLanguage string         `json:"target_language,omitempty"`
	Text           string         `json:"text,omitempty"`
	Data           []byte         `json:"data,omitempty"`
}

// Result is the backend's output plus the measured processing time. TTS
// backends return raw audio in Audio; the caller stores it as a blob and
// fills OutputRef.AudioBlob.
type Result struct {
	Output  types.OutputRef `json:"output"`
	Audio   []byte          `json:"audio_data,omitempty"`
	Elapsed time.Duration   `json:"-"`
}

// Executor runs one inference request. Implementations must respect ctx.
type Executor interface {
	Run(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, req *Request) (*Result, error)

// Run implements Executor.
func (f Func) Run(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// Registry maps task kinds to their executors.
type Registry struct {
	executors map[types.TaskKind]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[types.TaskKind]Executor)}
}

// Set registers exec for kind, replacing any previous entry.
func (r *Registry) Set(kind types.TaskKind, exec Executor) {
	r.executors[kind] = exec
}

// Get returns the executor for kind.
func (r *Registry) Get(kind types.TaskKind) (Executor, error) {
	exec, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("no executor configured for task type %q", kind)
	}
	return exec, nil
}

// Kinds returns the task kinds this registry can serve.
func (r *Registry) Kinds() []types.TaskKind {
	out := make([]types.TaskKind, 0, len(r.executors))
	for k := range r.executors {
		out = append(out, k)
	}
	return out
}
