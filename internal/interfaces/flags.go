package interfaces

import "context"

// RunFlagStore is the persisted running flag workers poll for
// cooperative cancellation: once per backtest step and at each
// live-mode wait slice.
type RunFlagStore interface {
	SetRunning(ctx context.Context, executionID int64, running bool) error
	IsRunning(ctx context.Context, executionID int64) (bool, error)
}
