package consensus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/chorusnet/chorus/pkg/events"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/registry"
	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

const (
	// cacheTTL bounds staleness of the in-memory consensus cache.
	cacheTTL = time.Minute

	// conflictPenalty is subtracted from overall consensus confidence per
	// conflicted field.
	conflictPenalty = 0.1

	// auditorBonusStep rewards additional distinct auditors, capped at two
	// steps beyond the first.
	auditorBonusStep = 0.1
)

// Config tunes the consensus engine.
type Config struct {
	// Window is how far back reports count toward consensus.
	Window time.Duration
	// MinAuditors is the number of distinct auditors required before a
	// consensus record is published.
	MinAuditors int
}

// Engine ingests per-auditor worker reports and maintains the consensus view.
type Engine struct {
	store    storage.Store
	registry *registry.Registry
	broker   *events.Broker
	cfg      Config

	cache *gocache.Cache

	// recompute is serialized per worker; ingestion stays parallel across
	// workers.
	mu          sync.Mutex
	workerLocks map[string]*sync.Mutex
}

// NewEngine creates a consensus engine. broker may be nil.
func NewEngine(store storage.Store, reg *registry.Registry, broker *events.Broker, cfg Config) *Engine {
	return &Engine{
		store:       store,
		registry:    reg,
		broker:      broker,
		cfg:         cfg,
		cache:       gocache.New(cacheTTL, 2*cacheTTL),
		workerLocks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) workerLock(workerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.workerLocks[workerID]
	if !ok {
		m = &sync.Mutex{}
		e.workerLocks[workerID] = m
	}
	return m
}

// ReceiveReport ingests one auditor's batch of worker observations. A
// malformed entry is logged and dropped; it never blocks the rest of the
// batch.
func (e *Engine) ReceiveReport(auditorID string, statuses []types.ReportedStatus, epoch uint64) error {
	if auditorID == "" {
		return fmt.Errorf("auditor ID is required")
	}
	now := time.Now().UTC()
	logger := log.WithAuditorID(auditorID)

	for i := range statuses {
		status := statuses[i]
		if status.WorkerID == "" {
			logger.Warn().Int("index", i).Msg("report without worker ID dropped")
			continue
		}

		report := &types.AuditorReport{
			AuditorID:  auditorID,
			WorkerID:   status.WorkerID,
			Epoch:      epoch,
			Timestamp:  now,
			Status:     status,
			Confidence: scoreConfidence(&status, now),
		}
		if err := e.store.SaveAuditorReport(report); err != nil {
			logger.Error().Err(err).
				Str("worker_id", status.WorkerID).
				Msg("failed to persist auditor report")
			continue
		}

		if err := e.Recompute(status.WorkerID); err != nil {
			logger.Error().Err(err).
				Str("worker_id", status.WorkerID).
				Msg("consensus recomputation failed")
		}
	}
	return nil
}

// Recompute rebuilds the consensus record for one worker from reports inside
// the window. Below the auditor threshold nothing is published and any cache
// entry is left to expire.
func (e *Engine) Recompute(workerID string) error {
	lock := e.workerLock(workerID)
	lock.Lock()
	defer lock.Unlock()

	since := time.Now().Add(-e.cfg.Window)
	reports, err := e.store.ListReportsSince(workerID, since)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}

	auditors := make(map[string]bool)
	for _, r := range reports {
		auditors[r.AuditorID] = true
	}
	if len(auditors) < e.cfg.MinAuditors {
		log.WithWorkerID(workerID).Debug().
			Int("auditors", len(auditors)).
			Int("required", e.cfg.MinAuditors).
			Msg("consensus withheld: not enough auditors")
		return nil
	}

	info, conflicts := reconcile(reports)

	var confSum float64
	contributing := make([]string, 0, len(auditors))
	for a := range auditors {
		contributing = append(contributing, a)
	}
	for _, r := range reports {
		confSum += r.Confidence
	}
	confidence := confSum / float64(len(reports))
	bonusSteps := len(auditors) - 1
	if bonusSteps > 2 {
		bonusSteps = 2
	}
	confidence += auditorBonusStep * float64(bonusSteps)
	confidence -= conflictPenalty * float64(len(conflicts))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rec := &types.ConsensusRecord{
		WorkerID:             workerID,
		Status:               info,
		Confidence:           confidence,
		ContributingAuditors: contributing,
		LastConsensusAt:      time.Now().UTC(),
		Conflicts:            conflicts,
	}

	if err := e.store.SaveConsensus(rec); err != nil {
		return fmt.Errorf("failed to persist consensus: %w", err)
	}
	e.cache.Set(workerID, rec, cacheTTL)

	if e.registry != nil {
		if err := e.registry.Apply(&info); err != nil {
			log.WithWorkerID(workerID).Error().Err(err).Msg("failed to apply consensus to registry")
		}
	}

	log.WithWorkerID(workerID).Debug().
		Float64("confidence", confidence).
		Int("auditors", len(auditors)).
		Int("conflicts", len(conflicts)).
		Msg("consensus updated")
	if e.broker != nil {
		e.broker.Publish(&events.Event{
			ID:       uuid.New().String(),
			Type:     events.EventConsensusUpdated,
			Message:  workerID,
			Metadata: map[string]string{"worker_id": workerID},
		})
	}
	return nil
}

// GetConsensus returns the latest consensus record for workerID, or nil when
// none has been published.
func (e *Engine) GetConsensus(workerID string) (*types.ConsensusRecord, error) {
	if cached, ok := e.cache.Get(workerID); ok {
		return cached.(*types.ConsensusRecord), nil
	}
	rec, err := e.store.GetConsensus(workerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.cache.Set(workerID, rec, cacheTTL)
	return rec, nil
}

// ListConsensusWorkers returns a snapshot of every published consensus
// record. This is the view the distributor filters workers against.
func (e *Engine) ListConsensusWorkers() ([]*types.ConsensusRecord, error) {
	return e.store.ListConsensus()
}

// FlushCache clears the consensus cache. Correctness never depends on cache
// contents.
func (e *Engine) FlushCache() {
	e.cache.Flush()
}
