// Package registry tracks the worker population visible to the coordinator.
//
// The registry is read-mostly: workers write on boot via Register, and the
// consensus engine overwrites entries whenever a new consensus is reached.
// Listings are snapshots; consumers must tolerate changes between list and
// act. Workers not observed within the staleness window are ignored by
// listings but never deleted.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/storage"
	"github.com/chorusnet/chorus/pkg/types"
)

// StalenessWindow is how long a worker record stays eligible after its last
// observation.
const StalenessWindow = time.Hour

// Registry holds per-worker load, capability, and health state.
type Registry struct {
	store storage.Store

	mu      sync.RWMutex
	workers map[string]*types.WorkerInfo
}

// NewRegistry creates a registry backed by store, loading any persisted
// worker records.
func NewRegistry(store storage.Store) (*Registry, error) {
	r := &Registry{
		store:   store,
		workers: make(map[string]*types.WorkerInfo),
	}
	persisted, err := store.ListWorkers()
	if err != nil {
		return nil, fmt.Errorf("failed to load workers: %w", err)
	}
	for _, w := range persisted {
		r.workers[w.WorkerID] = w
	}
	return r, nil
}

// Register inserts or refreshes a worker record from the worker itself.
// Consensus-derived updates take the same path via Apply.
func (r *Registry) Register(w *types.WorkerInfo) error {
	if w.WorkerID == "" {
		return fmt.Errorf("worker ID is required")
	}
	if w.MaxCapacity < 1 {
		w.MaxCapacity = 1
	}
	w.LastSeen = time.Now().UTC()

	r.mu.Lock()
	if existing, ok := r.workers[w.WorkerID]; ok {
		// Self-registration must not reset consensus-derived load or score.
		w.CurrentLoad = existing.CurrentLoad
		if w.PerformanceScore == 0 {
			w.PerformanceScore = existing.PerformanceScore
		}
	} else if w.PerformanceScore == 0 {
		w.PerformanceScore = 0.5 // neutral prior for unseen workers
	}
	r.workers[w.WorkerID] = w
	r.mu.Unlock()

	if err := r.store.UpsertWorker(w); err != nil {
		return fmt.Errorf("failed to persist worker: %w", err)
	}
	log.WithWorkerID(w.WorkerID).Info().
		Int("max_capacity", w.MaxCapacity).
		Bool("is_serving", w.IsServing).
		Msg("worker registered")
	return nil
}

// Apply overwrites a worker record with a consensus-derived view, preserving
// the locally tracked load counter.
func (r *Registry) Apply(status *types.WorkerInfo) error {
	r.mu.Lock()
	applied := *status
	if existing, ok := r.workers[status.WorkerID]; ok {
		applied.CurrentLoad = existing.CurrentLoad
	}
	if applied.MaxCapacity < 1 {
		applied.MaxCapacity = 1
	}
	r.workers[status.WorkerID] = &applied
	r.mu.Unlock()

	return r.store.UpsertWorker(&applied)
}

// Get returns a copy of the worker record, or nil if unknown.
func (r *Registry) Get(workerID string) *types.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// ListAvailable returns a snapshot of workers that are serving, have spare
// capacity, and were seen within the staleness window. If kind is non-empty,
// only workers specialized in that kind are returned.
func (r *Registry) ListAvailable(kind types.TaskKind) []*types.WorkerInfo {
	cutoff := time.Now().Add(-StalenessWindow)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.WorkerInfo
	for _, w := range r.workers {
		if !w.Available() || w.LastSeen.Before(cutoff) {
			continue
		}
		if kind != "" && !w.Handles(kind) {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// List returns a snapshot of every known worker, stale ones included.
func (r *Registry) List() []*types.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.WorkerInfo, 0, len(r.workers))
	for _, w := range r.workers {
		cp := *w
		out = append(out, &cp)
	}
	return out
}

// AdjustLoad changes a worker's current load by delta, clamped to
// [0, MaxCapacity].
func (r *Registry) AdjustLoad(workerID string, delta int) {
	r.mu.Lock()
	w, ok := r.workers[workerID]
	if !ok {
		r.mu.Unlock()
		log.WithWorkerID(workerID).Warn().Msg("load adjustment for unknown worker ignored")
		return
	}
	w.CurrentLoad += delta
	if w.CurrentLoad < 0 {
		w.CurrentLoad = 0
	}
	if w.CurrentLoad > w.MaxCapacity {
		w.CurrentLoad = w.MaxCapacity
	}
	cp := *w
	r.mu.Unlock()

	if err := r.store.UpsertWorker(&cp); err != nil {
		log.WithWorkerID(workerID).Error().Err(err).Msg("failed to persist load adjustment")
	}
}

// Count returns the number of known workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
