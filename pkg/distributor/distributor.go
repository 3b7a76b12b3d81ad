package distributor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/metrics"
	"github.com/chorusnet/chorus/pkg/types"
)

// batchSize bounds how many pending tasks one cycle considers.
const batchSize = 50

// Distributor periodically assigns pending tasks to workers.
type Distributor struct {
	coord    *coordinator.Coordinator
	interval time.Duration
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewDistributor creates a distributor driven by the given cycle interval.
func NewDistributor(coord *coordinator.Coordinator, interval time.Duration) *Distributor {
	return &Distributor{
		coord:    coord,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (d *Distributor) Start() {
	go d.run()
}

// Stop stops the distributor.
func (d *Distributor) Stop() {
	close(d.stopCh)
}

func (d *Distributor) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	logger := log.WithComponent("distributor")
	for {
		select {
		case <-ticker.C:
			if err := d.Distribute(); err != nil {
				logger.Error().Err(err).Msg("distribution cycle failed")
			}
		case <-d.stopCh:
			return
		}
	}
}

// Distribute performs one distribution cycle.
func (d *Distributor) Distribute() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.DistributionDuration)
		metrics.DistributionCyclesTotal.Inc()
	}()

	pending, err := d.coord.PendingTasks(batchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending tasks: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	eligible, err := d.eligibleWorkers()
	if err != nil {
		return fmt.Errorf("failed to list eligible workers: %w", err)
	}
	if len(eligible) == 0 {
		log.WithComponent("distributor").Debug().Msg("no eligible workers, skipping cycle")
		return nil
	}

	logger := log.WithComponent("distributor")
	for _, task := range pending {
		if err := d.distributeTask(task, eligible); err != nil {
			logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to distribute task")
			continue
		}
	}
	return nil
}

// eligibleWorkers returns available workers filtered by consensus health.
// A worker whose consensus record says not-serving is excluded; a worker
// without any consensus record keeps its self-reported availability until
// auditors cover it.
func (d *Distributor) eligibleWorkers() ([]*types.WorkerInfo, error) {
	available := d.coord.Registry().ListAvailable("")
	if len(available) == 0 {
		return nil, nil
	}

	records, err := d.coord.Consensus().ListConsensusWorkers()
	if err != nil {
		return nil, err
	}
	unhealthy := make(map[string]bool)
	for _, rec := range records {
		if !rec.Status.IsServing {
			unhealthy[rec.WorkerID] = true
		}
	}

	out := available[:0]
	for _, w := range available {
		if !unhealthy[w.WorkerID] {
			out = append(out, w)
		}
	}
	return out, nil
}

func (d *Distributor) distributeTask(task *types.Task, eligible []*types.WorkerInfo) error {
	// Duplicate protection: the claim below re-checks status under the
	// per-task lock; this early check just avoids pointless sorting.
	current, err := d.coord.GetTask(task.TaskID)
	if err != nil {
		return err
	}
	if current.Status != types.TaskStatusPending {
		return nil
	}

	suitable := suitableWorkers(task.Kind, eligible)
	if len(suitable) == 0 {
		suitable = eligible
	}
	sortByAvailability(suitable)

	count := task.RequiredWorkerCount
	if count > len(suitable) {
		count = len(suitable)
	}
	if count < task.MinWorkerCount {
		log.WithTaskID(task.TaskID).Debug().
			Int("suitable", len(suitable)).
			Int("min", task.MinWorkerCount).
			Msg("not enough workers, leaving task pending")
		return nil
	}

	selected := make([]string, 0, count)
	for _, w := range suitable[:count] {
		selected = append(selected, w.WorkerID)
	}

	claimed, err := d.coord.Lifecycle().ClaimForDistribution(task.TaskID, selected)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the race to a concurrent pass; selected workers were never
		// charged.
		return nil
	}

	for _, wid := range selected {
		d.coord.Registry().AdjustLoad(wid, +1)
	}
	metrics.TasksDistributed.Inc()
	return nil
}

// suitableWorkers filters to workers specialized in kind.
func suitableWorkers(kind types.TaskKind, workers []*types.WorkerInfo) []*types.WorkerInfo {
	var out []*types.WorkerInfo
	for _, w := range workers {
		if w.Handles(kind) {
			out = append(out, w)
		}
	}
	return out
}

// availabilityScore ranks a worker by performance weighted by spare
// capacity.
func availabilityScore(w *types.WorkerInfo) float64 {
	if w.MaxCapacity <= 0 {
		return 0
	}
	spare := 1 - float64(w.CurrentLoad)/float64(w.MaxCapacity)
	return w.PerformanceScore * spare
}

// sortByAvailability orders workers best first: availability score, then
// stake, then worker ID for determinism.
func sortByAvailability(workers []*types.WorkerInfo) {
	sort.Slice(workers, func(i, j int) bool {
		si, sj := availabilityScore(workers[i]), availabilityScore(workers[j])
		if si != sj {
			return si > sj
		}
		if workers[i].Stake != workers[j].Stake {
			return workers[i].Stake > workers[j].Stake
		}
		return workers[i].WorkerID < workers[j].WorkerID
	})
}
