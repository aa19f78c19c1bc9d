package interfaces

import (
	"context"
	"time"

	"stratify/internal/types"
)

// CandleFetcher pulls raw OHLCV history from the venue. Implementations
// must return candles ordered by timestamp and no more than limit rows.
type CandleFetcher interface {
	Fetch(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]types.Candle, error)
}

// CandleCache is the persistent candle store the source reads through
// and back-fills. Insert is an upsert keyed on (symbol, timeframe, ts).
type CandleCache interface {
	Range(ctx context.Context, symbol, timeframe string, startTs, endTs int64) ([]types.Candle, error)
	Insert(ctx context.Context, symbol, timeframe string, candles []types.Candle) error
}
