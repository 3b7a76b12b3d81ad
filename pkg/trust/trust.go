// Package trust adapts the external trust substrate: stake-weighted
// identity, block progression, and weight emission. The substrate itself is
// out of scope; everything here goes through the IdentityAndEmit interface
// so a simulated substrate can stand in for local runs and tests.
package trust

import (
	"context"
	"errors"
)

// ErrUnreachable indicates the substrate could not be contacted. At process
// startup this is fatal (exit code 2).
var ErrUnreachable = errors.New("trust substrate unreachable")

// IdentityAndEmit is the auditor's window onto the trust substrate.
type IdentityAndEmit interface {
	// Identity returns this process's hotkey on the substrate.
	Identity() string

	// CurrentBlock returns the substrate's current block height.
	CurrentBlock(ctx context.Context) (uint64, error)

	// SetWeights emits a normalized weight vector over worker IDs. The
	// vector is sparse: it only names workers with positive weight.
	SetWeights(ctx context.Context, weights map[string]float64) error

	// Ping verifies reachability; used once at startup.
	Ping(ctx context.Context) error
}
