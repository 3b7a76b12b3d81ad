package trust

import (
	"context"
	"sync"
	"time"
)

// Sim is an in-process substrate for local runs and tests: blocks advance
// with wall-clock time (or manually) and emitted weights are retained for
// inspection.
type Sim struct {
	hotkey    string
	blockTime time.Duration
	start     time.Time

	mu       sync.Mutex
	manual   uint64
	useClock bool
	emitted  []map[string]float64
}

// NewSim creates a simulated substrate whose block height advances every
// blockTime. With blockTime = 0 the height only moves via AdvanceBlocks.
func NewSim(hotkey string, blockTime time.Duration) *Sim {
	return &Sim{
		hotkey:    hotkey,
		blockTime: blockTime,
		start:     time.Now(),
		useClock:  blockTime > 0,
	}
}

// Identity implements IdentityAndEmit.
func (s *Sim) Identity() string { return s.hotkey }

// CurrentBlock implements IdentityAndEmit.
func (s *Sim) CurrentBlock(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.useClock {
		return s.manual + uint64(time.Since(s.start)/s.blockTime), nil
	}
	return s.manual, nil
}

// AdvanceBlocks moves the simulated height forward by n.
func (s *Sim) AdvanceBlocks(n uint64) {
	s.mu.Lock()
	s.manual += n
	s.mu.Unlock()
}

// SetWeights implements IdentityAndEmit.
func (s *Sim) SetWeights(ctx context.Context, weights map[string]float64) error {
	cp := make(map[string]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	s.mu.Lock()
	s.emitted = append(s.emitted, cp)
	s.mu.Unlock()
	return nil
}

// Ping implements IdentityAndEmit.
func (s *Sim) Ping(ctx context.Context) error { return nil }

// Emitted returns every weight vector set so far, oldest first.
func (s *Sim) Emitted() []map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]float64, len(s.emitted))
	copy(out, s.emitted)
	return out
}
