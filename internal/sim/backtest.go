package sim

import (
	"context"
	"time"

	"stratify/internal/indicator"
	"stratify/internal/logger"
)

// runBacktest replays the bounded candle range once, in order. The
// range is extended backwards by the indicator warm-up; warm-up rows
// feed the indicators but are never stepped.
func (d *Driver) runBacktest(ctx context.Context) error {
	started := time.Now()
	candles, err := d.p.Source.GetCandles(ctx, d.exec.Symbol, d.exec.Timeframe,
		time.UnixMilli(d.exec.StartTs), time.UnixMilli(d.exec.EndTs), d.warm)
	if err != nil {
		return err
	}
	if d.p.Metrics != nil {
		d.p.Metrics.CandleFetchDur.Observe(time.Since(started).Seconds())
	}
	if len(candles) == 0 {
		logger.Lifecycle(ctx, d.exec.ID, "empty range, nothing to backtest")
		return nil
	}

	d.frame = indicator.NewFrame(candles)
	if _, err := d.eng.ComputeAll(d.defs, d.frame); err != nil {
		return err
	}

	for i := range d.frame.Candles {
		if d.frame.Candles[i].Ts < d.exec.StartTs {
			continue
		}
		running, err := d.checkRunning(ctx)
		if err != nil {
			return err
		}
		if !running {
			logger.Lifecycle(ctx, d.exec.ID, "cancelled",
				"candle_ts", d.frame.Candles[i].Ts)
			return ErrCancelled
		}
		if err := d.step(ctx, i); err != nil {
			return err
		}
	}
	return nil
}
