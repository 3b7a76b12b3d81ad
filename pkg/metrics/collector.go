package metrics

import (
	"strconv"
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

// Source supplies the gauges the collector refreshes. The coordinator
// implements it.
type Source interface {
	TaskCounts() (map[types.TaskStatus]int, error)
	WorkerCounts() (serving, total int)
	ConsensusCount() (int, error)
}

// DefaultCollectInterval is how often gauges are refreshed.
const DefaultCollectInterval = 30 * time.Second

// Collector periodically refreshes the task, worker, and consensus gauges
// from a Source.
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector over source. interval <= 0 uses the
// default.
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the refresh loop.
func (c *Collector) Start() {
	go c.run()
}

// Stop stops the refresh loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			return
		}
	}
}

// Collect performs one gauge refresh. Failures leave the previous values in
// place; the collector is strictly best-effort.
func (c *Collector) Collect() {
	if counts, err := c.source.TaskCounts(); err == nil {
		for _, status := range []types.TaskStatus{
			types.TaskStatusPending, types.TaskStatusAssigned,
			types.TaskStatusInProgress, types.TaskStatusCompleted,
			types.TaskStatusDone, types.TaskStatusFailed,
			types.TaskStatusCancelled,
		} {
			TasksTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}

	serving, total := c.source.WorkerCounts()
	WorkersTotal.WithLabelValues(strconv.FormatBool(true)).Set(float64(serving))
	WorkersTotal.WithLabelValues(strconv.FormatBool(false)).Set(float64(total - serving))

	if n, err := c.source.ConsensusCount(); err == nil {
		ConsensusRecords.Set(float64(n))
	}
}
