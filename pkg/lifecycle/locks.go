package lifecycle

import (
	"sync"
)

// taskLocks serializes mutations per task ID. Entries are created on first
// use and retained; task counts are bounded by submission volume, and a
// mutex is a few words.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for taskID and returns its unlock function.
func (l *taskLocks) acquire(taskID string) func() {
	l.mu.Lock()
	m, ok := l.locks[taskID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[taskID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
