// Package janitor heals stuck tasks in the background.
//
// Two passes run each cycle: Assigned tasks with no responses past the
// assignment timeout are failed, and Failed tasks under the redistribution
// cap are returned to Pending. Together with the distributor this is the
// only retry mechanism for task execution.
package janitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/metrics"
)

// failedBatchSize bounds how many failed tasks one pass reconsiders.
const failedBatchSize = 100

// Janitor periodically fails stale assignments and requeues failed tasks.
type Janitor struct {
	coord             *coordinator.Coordinator
	interval          time.Duration
	assignmentTimeout time.Duration
	maxRedistribute   int

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewJanitor creates a janitor sweeping at the given interval.
func NewJanitor(coord *coordinator.Coordinator, interval, assignmentTimeout time.Duration, maxRedistribute int) *Janitor {
	return &Janitor{
		coord:             coord,
		interval:          interval,
		assignmentTimeout: assignmentTimeout,
		maxRedistribute:   maxRedistribute,
		stopCh:            make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (j *Janitor) Start() {
	go j.run()
}

// Stop stops the janitor.
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger := log.WithComponent("janitor")
	for {
		select {
		case <-ticker.C:
			if err := j.Sweep(); err != nil {
				logger.Error().Err(err).Msg("janitor sweep failed")
			}
		case <-j.stopCh:
			return
		}
	}
}

// Sweep performs one janitor cycle.
func (j *Janitor) Sweep() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.failStaleAssignments(); err != nil {
		return err
	}
	return j.requeueFailed()
}

// failStaleAssignments fails Assigned tasks with zero responses older than
// the assignment timeout. MarkFailed releases the assignees' load slots.
func (j *Janitor) failStaleAssignments() error {
	cutoff := time.Now().Add(-j.assignmentTimeout)
	stale, err := j.coord.StaleAssignedTasks(cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale assignments: %w", err)
	}

	for _, task := range stale {
		if len(task.WorkerResponses) > 0 {
			// A response arrived; the task is progressing on its own.
			continue
		}
		if err := j.coord.Lifecycle().MarkFailed(task.TaskID, "assignment timeout"); err != nil {
			log.WithTaskID(task.TaskID).Error().Err(err).Msg("failed to fail stale task")
			continue
		}
		metrics.TasksFailed.Inc()
	}
	return nil
}

// requeueFailed returns Failed tasks to Pending until their retry budget is
// spent.
func (j *Janitor) requeueFailed() error {
	failed, err := j.coord.FailedTasks(failedBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list failed tasks: %w", err)
	}

	for _, task := range failed {
		if task.RetryCount >= j.maxRedistribute {
			log.WithTaskID(task.TaskID).Debug().
				Int("retries", task.RetryCount).
				Msg("retry budget exhausted, leaving task failed")
			continue
		}
		if err := j.coord.Lifecycle().Redistribute(task.TaskID); err != nil {
			log.WithTaskID(task.TaskID).Error().Err(err).Msg("failed to requeue task")
			continue
		}
		metrics.TasksRequeued.Inc()
	}
	return nil
}
