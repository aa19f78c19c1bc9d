package candles

import (
	"context"
	"fmt"
	"time"

	"stratify/internal/interfaces"
	"stratify/internal/logger"
	"stratify/internal/types"
)

// DataGapError reports a hole the source could not back-fill: candles
// exist after the gap, so silently truncating would skip history.
type DataGapError struct {
	Symbol    string
	Timeframe string
	FromTs    int64
	ToTs      int64
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("candle data gap for %s %s between %d and %d",
		e.Symbol, e.Timeframe, e.FromTs, e.ToTs)
}

// NopFetcher serves nothing: the source then answers purely from the
// cache, for offline backtests over already-journalled candles.
type NopFetcher struct{}

func (NopFetcher) Fetch(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]types.Candle, error) {
	return nil, nil
}

// Source satisfies interfaces.CandleSource by reading through a
// persistent cache and back-filling misses from the venue. Safe for
// concurrent use by independent executions as long as the cache and
// fetcher are.
type Source struct {
	cache       interfaces.CandleCache
	fetcher     interfaces.CandleFetcher
	maxPerFetch int
}

func NewSource(cache interfaces.CandleCache, fetcher interfaces.CandleFetcher, maxPerFetch int) *Source {
	if maxPerFetch < 1 {
		maxPerFetch = 1000
	}
	return &Source{cache: cache, fetcher: fetcher, maxPerFetch: maxPerFetch}
}

// GetCandles returns the ordered candles covering [start, end] plus
// extraLookback leading candles. A single call never spans more than
// maxPerFetch candles; the start is shrunk to fit. A shortfall at
// either end (history starting later than the warm-up window, or the
// venue having nothing newer yet) returns the shorter series; an
// interior hole returns a DataGapError.
func (s *Source) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time, extraLookback int) ([]types.Candle, error) {
	dur, err := types.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	start = start.Add(-time.Duration(extraLookback) * dur)

	startTs := alignDown(start.UnixMilli(), dur.Milliseconds())
	endTs := alignDown(end.UnixMilli(), dur.Milliseconds())
	if endTs < startTs {
		return nil, nil
	}
	step := dur.Milliseconds()
	if n := (endTs-startTs)/step + 1; n > int64(s.maxPerFetch) {
		startTs = endTs - int64(s.maxPerFetch-1)*step
		logger.Debug(ctx, "candle request clamped",
			"symbol", symbol, "timeframe", timeframe, "start_ts", startTs)
	}

	cached, err := s.cache.Range(ctx, symbol, timeframe, startTs, endTs)
	if err != nil {
		return nil, fmt.Errorf("read candle cache: %w", err)
	}
	have := make(map[int64]types.Candle, len(cached))
	for _, c := range cached {
		have[c.Ts] = c
	}

	if err := s.backfill(ctx, symbol, timeframe, startTs, endTs, step, have); err != nil {
		return nil, err
	}
	return assemble(symbol, timeframe, startTs, endTs, step, have)
}

// backfill fetches every contiguous run of missing buckets and upserts
// the results into the cache.
func (s *Source) backfill(ctx context.Context, symbol, timeframe string, startTs, endTs, step int64, have map[int64]types.Candle) error {
	for ts := startTs; ts <= endTs; ts += step {
		if _, ok := have[ts]; ok {
			continue
		}
		runStart := ts
		for ts <= endTs {
			if _, ok := have[ts]; ok {
				break
			}
			ts += step
		}
		runEnd := ts - step

		fetched, err := s.fetcher.Fetch(ctx, symbol, timeframe,
			time.UnixMilli(runStart), time.UnixMilli(runEnd), s.maxPerFetch)
		if err != nil {
			return fmt.Errorf("fetch candles %s %s: %w", symbol, timeframe, err)
		}
		if len(fetched) == 0 {
			continue
		}
		if err := s.cache.Insert(ctx, symbol, timeframe, fetched); err != nil {
			return fmt.Errorf("back-fill candle cache: %w", err)
		}
		for _, c := range fetched {
			have[c.Ts] = c
		}
	}
	return nil
}

// assemble orders the covered buckets and enforces contiguity between
// the first and last present bucket. A shortfall at either end is
// tolerated: the venue's history may start after the warm-up window
// and may not have produced the newest bucket yet. A hole between
// present buckets is a DataGapError.
func assemble(symbol, timeframe string, startTs, endTs, step int64, have map[int64]types.Candle) ([]types.Candle, error) {
	out := make([]types.Candle, 0, (endTs-startTs)/step+1)
	gapFrom := int64(-1)
	for ts := startTs; ts <= endTs; ts += step {
		c, ok := have[ts]
		if !ok {
			if len(out) > 0 && gapFrom < 0 {
				gapFrom = ts
			}
			continue
		}
		if gapFrom >= 0 {
			return nil, &DataGapError{Symbol: symbol, Timeframe: timeframe, FromTs: gapFrom, ToTs: ts - step}
		}
		out = append(out, c)
	}
	return out, nil
}

func alignDown(ts, step int64) int64 { return ts - ts%step }
