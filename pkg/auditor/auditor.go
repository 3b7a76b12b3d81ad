package auditor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/executor"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/scoring"
	"github.com/chorusnet/chorus/pkg/trust"
	"github.com/chorusnet/chorus/pkg/types"
)

const (
	// auditedSetSize bounds the in-memory audited-task LRU.
	auditedSetSize = 10000

	// collectBatchSize bounds how many completed tasks one cycle examines.
	collectBatchSize = 100

	// minAudioBytes and minTextChars are the plausibility floors for audit
	// inputs. Anything smaller is marked audited with zero scores.
	minAudioBytes = 1000
	minTextChars  = 10
)

// StatusSource supplies worker-status observations for consensus reports.
// How an auditor observes workers is deployment-specific; the pipeline only
// needs something to forward.
type StatusSource interface {
	Observe(ctx context.Context) ([]types.ReportedStatus, error)
}

// Config holds one auditor's identity and knobs.
type Config struct {
	AuditorID string

	// AuditIntervalBlocks is how many substrate blocks pass between audit
	// cycles.
	AuditIntervalBlocks uint64

	// MaxTopWorkers caps how many workers per task contribute to score
	// accumulation.
	MaxTopWorkers int

	// BlockPollInterval is how often the substrate is asked for the
	// current block.
	BlockPollInterval time.Duration

	// Statuses, when set, is observed and reported every block poll.
	Statuses StatusSource
}

// Auditor drives the audit loop against one coordinator.
type Auditor struct {
	cfg       Config
	client    *client.Client
	execs     *executor.Registry
	substrate trust.IdentityAndEmit

	audited *lru.Cache[string, struct{}]

	lastAuditBlock     uint64
	lastWeightSetBlock uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an auditor over the given coordinator client, executors, and
// trust substrate.
func New(cfg Config, c *client.Client, execs *executor.Registry, substrate trust.IdentityAndEmit) (*Auditor, error) {
	if cfg.AuditorID == "" {
		return nil, fmt.Errorf("auditor requires an auditor ID")
	}
	if cfg.AuditIntervalBlocks == 0 {
		cfg.AuditIntervalBlocks = 100
	}
	if cfg.MaxTopWorkers < 1 {
		cfg.MaxTopWorkers = 10
	}
	if cfg.BlockPollInterval <= 0 {
		cfg.BlockPollInterval = 10 * time.Second
	}

	audited, err := lru.New[string, struct{}](auditedSetSize)
	if err != nil {
		return nil, err
	}

	return &Auditor{
		cfg:       cfg,
		client:    c,
		execs:     execs,
		substrate: substrate,
		audited:   audited,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs the block-driven audit loop until Stop is called.
func (a *Auditor) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop terminates the loop and waits for the in-progress cycle.
func (a *Auditor) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Auditor) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.BlockPollInterval)
	defer ticker.Stop()

	logger := log.WithAuditorID(a.cfg.AuditorID)
	for {
		select {
		case <-ticker.C:
			if err := a.Tick(context.Background()); err != nil {
				logger.Error().Err(err).Msg("audit tick failed")
			}
		case <-a.stopCh:
			return
		}
	}
}

// Tick checks the substrate block height, forwards status observations, and
// runs an audit cycle when the interval has elapsed.
func (a *Auditor) Tick(ctx context.Context) error {
	block, err := a.substrate.CurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current block: %w", err)
	}

	a.reportStatuses(ctx, block)

	if block < a.lastAuditBlock+a.cfg.AuditIntervalBlocks {
		return nil
	}
	a.lastAuditBlock = block
	return a.RunCycle(ctx, block)
}

// reportStatuses observes workers and forwards the batch to the consensus
// engine. Observation failures are logged, never fatal.
func (a *Auditor) reportStatuses(ctx context.Context, block uint64) {
	if a.cfg.Statuses == nil {
		return
	}
	logger := log.WithAuditorID(a.cfg.AuditorID)

	statuses, err := a.cfg.Statuses.Observe(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("worker status observation failed")
		return
	}
	if len(statuses) == 0 {
		return
	}
	if err := a.client.ReportWorkerStatus(ctx, a.cfg.AuditorID, statuses, block); err != nil {
		logger.Warn().Err(err).Msg("failed to submit worker status report")
	}
}

// RunCycle executes one full audit cycle at the given block height.
func (a *Auditor) RunCycle(ctx context.Context, block uint64) error {
	logger := log.WithAuditorID(a.cfg.AuditorID)

	tasks, err := a.collect(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Debug().Msg("no tasks to audit")
		return nil
	}

	cumulative := make(map[string]float64)
	audited := 0
	for _, task := range tasks {
		if a.auditTask(ctx, task, cumulative) {
			audited++
		}
	}

	a.emitWeights(ctx, cumulative, block)

	logger.Info().
		Uint64("block", block).
		Int("candidates", len(tasks)).
		Int("audited", audited).
		Msg("audit cycle complete")
	return nil
}

// collect fetches completed tasks and filters out everything this auditor
// has already evaluated.
func (a *Auditor) collect(ctx context.Context) ([]*types.Task, error) {
	tasks, err := a.client.CompletedTasks(ctx, collectBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to collect completed tasks: %w", err)
	}

	// The coordinator's dedup set is authoritative; fold it into the LRU.
	ids, err := a.client.AuditedTasks(ctx, a.cfg.AuditorID)
	if err != nil {
		log.WithAuditorID(a.cfg.AuditorID).Warn().Err(err).
			Msg("failed to fetch audited task set, relying on local LRU")
	}
	for _, id := range ids {
		a.audited.Add(id, struct{}{})
	}

	var out []*types.Task
	for _, task := range tasks {
		if len(task.WorkerResponses) == 0 || task.TaskID == "" {
			continue
		}
		if a.audited.Contains(task.TaskID) {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

// auditTask re-executes one task and scores its responses into cumulative.
// It returns true when the task was evaluated (including zero-score
// evaluations for implausible inputs).
func (a *Auditor) auditTask(ctx context.Context, task *types.Task, cumulative map[string]float64) bool {
	logger := log.WithTaskID(task.TaskID)

	input, plausible, err := a.extractInput(ctx, task)
	if err != nil {
		logger.Warn().Err(err).Msg("input extraction failed, skipping task")
		return false
	}
	if !plausible {
		// Zero-score the task so it is never re-examined.
		scores := make(map[string]types.WorkerScore, len(task.WorkerResponses))
		for _, resp := range task.WorkerResponses {
			scores[resp.WorkerID] = types.WorkerScore{}
		}
		a.submitEvaluation(ctx, task.TaskID, scores)
		return true
	}

	reference, err := a.reExecute(ctx, task, input)
	if err != nil {
		// Skipped, not marked: the next cycle retries.
		logger.Warn().Err(err).Msg("reference execution failed, skipping task")
		return false
	}

	scores := make(map[string]types.WorkerScore, len(task.WorkerResponses))
	for i := range task.WorkerResponses {
		resp := &task.WorkerResponses[i]
		scores[resp.WorkerID] = scoring.Score(task.Kind, resp, reference)
	}

	for workerID, final := range topScores(scores, a.cfg.MaxTopWorkers) {
		cumulative[workerID] += final
	}

	a.submitEvaluation(ctx, task.TaskID, scores)
	return true
}

// auditInput is the payload fed to the reference execution.
type auditInput struct {
	text string
	data []byte
}

// extractInput resolves a task's input, inline text first, then the blob.
// plausible is false when the input is present but too small to audit.
func (a *Auditor) extractInput(ctx context.Context, task *types.Task) (input auditInput, plausible bool, err error) {
	if task.Input.Inline() {
		input.text = task.Input.Text
		return input, len(input.text) >= minTextChars, nil
	}

	data, err := a.client.GetBlob(ctx, task.Input.BlobID)
	if err != nil {
		return input, false, fmt.Errorf("failed to fetch input blob: %w", err)
	}
	input.data = data

	switch task.Kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		return input, len(data) >= minAudioBytes, nil
	default:
		return input, len(data) >= minTextChars, nil
	}
}

// reExecute runs the task through the auditor's executor and returns the
// reference text output.
func (a *Auditor) reExecute(ctx context.Context, task *types.Task, input auditInput) (string, error) {
	exec, err := a.execs.Get(task.Kind)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, executor.DefaultTimeout)
	defer cancel()

	result, err := exec.Run(runCtx, &executor.Request{
		Kind:           task.Kind,
		SourceLanguage: task.SourceLanguage,
		TargetLanguage: task.TargetLanguage,
		Text:           input.text,
		Data:           input.data,
	})
	if err != nil {
		return "", err
	}

	switch task.Kind {
	case types.TaskKindTranscription, types.TaskKindVideoTranscription:
		return result.Output.Transcript, nil
	case types.TaskKindSummarization:
		return result.Output.Summary, nil
	case types.TaskKindTextTranslation, types.TaskKindDocTranslation:
		return result.Output.Translated, nil
	default:
		// TTS accuracy is time-based; no reference text needed.
		return "", nil
	}
}

// topScores keeps the top limit workers by final score for one task and
// returns worker -> final, each capped at the score cap.
func topScores(scores map[string]types.WorkerScore, limit int) map[string]float64 {
	type entry struct {
		workerID string
		final    float64
	}
	entries := make([]entry, 0, len(scores))
	for id, s := range scores {
		final := s.Final
		if final > scoring.ScoreCap {
			final = scoring.ScoreCap
		}
		entries = append(entries, entry{id, final})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].final != entries[j].final {
			return entries[i].final > entries[j].final
		}
		return entries[i].workerID < entries[j].workerID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.workerID] = e.final
	}
	return out
}

// submitEvaluation records the evaluation with the coordinator and adds the
// task to the local LRU whatever the outcome, so a coordinator failure does
// not cause a local re-audit.
func (a *Auditor) submitEvaluation(ctx context.Context, taskID string, scores map[string]types.WorkerScore) {
	defer a.audited.Add(taskID, struct{}{})

	if err := a.client.SubmitEvaluation(ctx, taskID, a.cfg.AuditorID, scores); err != nil {
		log.WithTaskID(taskID).Warn().Err(err).Msg("failed to submit evaluation")
	}
}

// emitWeights normalizes the cycle's cumulative scores into a sparse weight
// vector and pushes it through the substrate. An empty or all-zero vector is
// an explicit no-op.
func (a *Auditor) emitWeights(ctx context.Context, cumulative map[string]float64, block uint64) {
	logger := log.WithAuditorID(a.cfg.AuditorID)

	weights := make(map[string]float64)
	total := 0.0
	for workerID, score := range cumulative {
		w := score
		if w > scoring.ScoreCap {
			w = scoring.ScoreCap
		}
		if w > 0 {
			weights[workerID] = w
			total += w
		}
	}
	if len(weights) == 0 || total == 0 {
		logger.Debug().Msg("no positive weights, skipping emission")
		return
	}
	for workerID := range weights {
		weights[workerID] /= total
	}

	if err := a.substrate.SetWeights(ctx, weights); err != nil {
		logger.Error().Err(err).Msg("weight emission failed")
		return
	}
	a.lastWeightSetBlock = block
	logger.Info().
		Uint64("block", block).
		Int("workers", len(weights)).
		Msg("weights emitted")
}

// LastWeightSetBlock returns the block of the most recent successful
// emission.
func (a *Auditor) LastWeightSetBlock() uint64 {
	return a.lastWeightSetBlock
}
