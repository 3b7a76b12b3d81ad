package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes an endpoint with a bare TCP connect. It covers
// inference backends that expose no HTTP health surface.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

// NewTCPChecker creates a connect-only checker for address with a 5 second
// timeout.
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

// Check implements Checker.
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("connected to %s", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type implements Checker.
func (t *TCPChecker) Type() CheckType { return CheckTypeTCP }

// WithTimeout sets the connect timeout.
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
