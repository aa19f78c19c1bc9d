package interfaces

import (
	"context"
	"time"

	"stratify/internal/types"
)

// CandleSource supplies ordered OHLCV candles for one instrument and
// timeframe. Implementations gap-fill missing sub-ranges from their
// upstream and cap any single request at a maximum candle count,
// shrinking the requested start when the count would exceed it.
type CandleSource interface {
	// GetCandles returns candles covering [start, end], extended
	// backwards by extraLookback candles of indicator warm-up.
	GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time, extraLookback int) ([]types.Candle, error)
}
