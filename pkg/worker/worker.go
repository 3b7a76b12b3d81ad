package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/executor"
	"github.com/chorusnet/chorus/pkg/health"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/types"
)

const (
	// dedupSetSize bounds the processed and in-flight sets.
	dedupSetSize = 1000

	// minAudioBytes and minTextBytes are the smallest blob inputs the worker
	// will feed an executor, per input kind. Anything smaller gets a
	// broken-file response. These match the auditor's plausibility floors so
	// a worker never burns an execution on input the audit will zero-score.
	minAudioBytes = 1000
	minTextBytes  = 10
)

// minInputBytes returns the blob-size floor for a task kind. Audio-input
// pipelines need a real waveform; text and document inputs just need to be
// non-trivial.
func minInputBytes(kind types.TaskKind) int {
	switch kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		return minAudioBytes
	default:
		return minTextBytes
	}
}

// Config holds one worker's identity and knobs.
type Config struct {
	WorkerID     string
	Hotkey       string
	Stake        float64
	MaxCapacity  int
	PollInterval time.Duration

	// BackendProbe, when set, gates is_serving on the inference backend
	// being reachable.
	BackendProbe health.Checker
}

// Worker pulls assignments from one coordinator and executes them locally.
type Worker struct {
	cfg    Config
	client *client.Client
	execs  *executor.Registry

	// mu serializes set transitions; check-and-insert is one critical
	// section.
	mu        sync.Mutex
	processed *lru.Cache[string, struct{}]
	inFlight  *lru.Cache[string, struct{}]

	probeStatus *health.Status
	serving     bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a worker over the given coordinator client and executors.
func New(cfg Config, c *client.Client, execs *executor.Registry) (*Worker, error) {
	if cfg.WorkerID == "" {
		return nil, fmt.Errorf("worker requires a worker ID")
	}
	if cfg.MaxCapacity < 1 {
		cfg.MaxCapacity = 1
	}

	processed, err := lru.New[string, struct{}](dedupSetSize)
	if err != nil {
		return nil, err
	}
	inFlight, err := lru.New[string, struct{}](dedupSetSize)
	if err != nil {
		return nil, err
	}

	return &Worker{
		cfg:         cfg,
		client:      c,
		execs:       execs,
		processed:   processed,
		inFlight:    inFlight,
		probeStatus: health.NewStatus(),
		serving:     true,
		stopCh:      make(chan struct{}),
	}, nil
}

// Register announces the worker to the coordinator with its executor kinds
// as specialization hints.
func (w *Worker) Register(ctx context.Context) error {
	return w.register(ctx, true)
}

func (w *Worker) register(ctx context.Context, serving bool) error {
	spec := make(map[types.TaskKind]types.SpecializationStats)
	for _, kind := range w.execs.Kinds() {
		spec[kind] = types.SpecializationStats{}
	}
	info := &types.WorkerInfo{
		WorkerID:       w.cfg.WorkerID,
		Hotkey:         w.cfg.Hotkey,
		Stake:          w.cfg.Stake,
		IsServing:      serving,
		MaxCapacity:    w.cfg.MaxCapacity,
		Specialization: spec,
		LastSeen:       time.Now().UTC(),
	}
	return w.client.RegisterWorker(ctx, info)
}

// Start runs the poll loop until Stop is called.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop terminates the poll loop and waits for the in-progress cycle.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	logger := log.WithWorkerID(w.cfg.WorkerID)
	for {
		select {
		case <-ticker.C:
			if err := w.Poll(context.Background()); err != nil {
				logger.Error().Err(err).Msg("poll cycle failed")
			}
		case <-w.stopCh:
			return
		}
	}
}

// Poll performs one pull-execute-respond cycle. Each cycle doubles as a
// heartbeat: the registration is refreshed with the probed serving state so
// the coordinator's staleness window never expires a live worker.
func (w *Worker) Poll(ctx context.Context) error {
	logger := log.WithWorkerID(w.cfg.WorkerID)

	serving := w.probeBackend(ctx)
	if err := w.register(ctx, serving); err != nil {
		logger.Warn().Err(err).Msg("heartbeat registration failed")
	}
	if !serving {
		logger.Warn().Msg("inference backend unhealthy, skipping pull")
		return nil
	}

	tasks, err := w.client.TasksForWorker(ctx, w.cfg.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to pull assignments: %w", err)
	}

	for _, task := range tasks {
		if !w.claim(task.TaskID) {
			continue
		}
		w.process(ctx, task)
	}
	return nil
}

// probeBackend runs the configured backend probe, if any, and folds the
// result into the serving flag.
func (w *Worker) probeBackend(ctx context.Context) bool {
	if w.cfg.BackendProbe == nil {
		return true
	}
	result := w.cfg.BackendProbe.Check(ctx)
	w.probeStatus.Update(result, health.DefaultConfig())
	w.serving = w.probeStatus.Healthy
	return w.serving
}

// Serving reports whether the worker currently advertises itself as serving.
func (w *Worker) Serving() bool {
	return w.serving
}

// claim atomically moves taskID into the in-flight set. It returns false
// when the task was already processed or is already in flight.
func (w *Worker) claim(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.processed.Contains(taskID) || w.inFlight.Contains(taskID) {
		return false
	}
	w.inFlight.Add(taskID, struct{}{})
	return true
}

func (w *Worker) markProcessed(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processed.Add(taskID, struct{}{})
}

func (w *Worker) release(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight.Remove(taskID)
}

// process executes one task and posts the response. The task always leaves
// the in-flight set, whatever happens.
func (w *Worker) process(ctx context.Context, task *types.Task) {
	defer w.release(task.TaskID)

	logger := log.WithTaskID(task.TaskID)

	output, elapsed := w.execute(ctx, task)
	accuracy := 1.0
	if output.Broken || output.Error != "" {
		accuracy = 0
	}

	err := w.client.SubmitResponse(ctx, task.TaskID, w.cfg.WorkerID, output, elapsed.Seconds(), accuracy, 1.0)
	if err != nil {
		logger.Error().Err(err).Msg("failed to submit response")
		return
	}
	w.markProcessed(task.TaskID)
	logger.Info().
		Str("task_type", string(task.Kind)).
		Dur("elapsed", elapsed).
		Msg("task processed")
}

// execute resolves the task input, runs the executor, and shapes failures
// into structured outputs so the task lifecycle keeps moving.
func (w *Worker) execute(ctx context.Context, task *types.Task) (types.OutputRef, time.Duration) {
	req := &executor.Request{
		Kind:           task.Kind,
		SourceLanguage: task.SourceLanguage,
		TargetLanguage: task.TargetLanguage,
	}

	if task.Input.Inline() {
		req.Text = task.Input.Text
		if len(req.Text) == 0 {
			return types.OutputRef{Broken: true}, 0
		}
	} else {
		data, err := w.client.GetBlob(ctx, task.Input.BlobID)
		if err != nil {
			log.WithTaskID(task.TaskID).Warn().Err(err).Msg("blob fetch failed")
			return types.OutputRef{Error: "input fetch failed"}, 0
		}
		if len(data) < minInputBytes(task.Kind) {
			return types.OutputRef{Broken: true}, 0
		}
		req.Data = data
	}

	exec, err := w.execs.Get(task.Kind)
	if err != nil {
		return types.OutputRef{Error: err.Error()}, 0
	}

	runCtx, cancel := context.WithTimeout(ctx, executor.DefaultTimeout)
	defer cancel()

	result, err := exec.Run(runCtx, req)
	if err != nil {
		log.WithTaskID(task.TaskID).Warn().Err(err).Msg("executor failed")
		return types.OutputRef{Error: err.Error()}, 0
	}

	output := result.Output
	if len(result.Audio) > 0 && output.AudioBlob == "" {
		blobID, err := w.client.UploadTTSAudio(ctx, result.Audio)
		if err != nil {
			log.WithTaskID(task.TaskID).Warn().Err(err).Msg("tts audio upload failed")
			return types.OutputRef{Error: "audio upload failed"}, result.Elapsed
		}
		output.AudioBlob = blobID
	}
	return output, result.Elapsed
}
