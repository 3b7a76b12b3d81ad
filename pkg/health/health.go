package health

import (
	"context"
	"time"
)

// CheckType identifies how an endpoint is probed.
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result is the outcome of a single probe.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes one endpoint.
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config tunes how probe results fold into a verdict.
type Config struct {
	// Interval between probes.
	Interval time.Duration

	// Timeout for a single probe.
	Timeout time.Duration

	// Retries is how many consecutive failures flip the verdict to
	// unhealthy.
	Retries int

	// StartPeriod is a grace window after monitoring starts during which
	// failures are expected. Inference backends loading models need it.
	StartPeriod time.Duration
}

// DefaultConfig returns the probing defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Retries:  3,
	}
}

// Status folds consecutive probe results into one verdict. A single slow or
// failed probe never flips a serving worker; recovery is immediate.
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
	StartedAt            time.Time
}

// NewStatus starts monitoring with an optimistic verdict.
func NewStatus() *Status {
	return &Status{
		Healthy:   true,
		StartedAt: time.Now(),
	}
}

// Update folds one probe result in. The verdict turns unhealthy only after
// cfg.Retries consecutive failures and healthy again on the first success.
func (s *Status) Update(result Result, cfg Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= cfg.Retries {
		s.Healthy = false
	}
}

// InStartPeriod reports whether the startup grace window is still open.
func (s *Status) InStartPeriod(cfg Config) bool {
	if cfg.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < cfg.StartPeriod
}
