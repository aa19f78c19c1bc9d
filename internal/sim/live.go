package sim

import (
	"context"
	"time"

	"stratify/internal/gateway"
	"stratify/internal/indicator"
	"stratify/internal/logger"
	"stratify/internal/types"
)

// pricePusher is implemented by gateways that need the driver to feed
// them prices (the dry-run paper gateway).
type pricePusher interface {
	Push(symbol string, c types.Candle)
}

// runLive polls the market at timeframe cadence forever. It only stops
// on cancellation or an unrecoverable error; candle shortfalls are
// waited out, never treated as fatal.
func (d *Driver) runLive(ctx context.Context) error {
	tf, err := types.TimeframeDuration(d.exec.Timeframe)
	if err != nil {
		return err
	}

	// Best-effort venue-side margin configuration.
	if err := d.p.Gateway.SetLeverage(ctx, d.exec.Symbol, d.exec.Leverage); err != nil {
		logger.Warn(ctx, "set leverage ignored", "error", err)
	}
	if err := d.p.Gateway.SetMarginMode(ctx, d.exec.Symbol, "isolated"); err != nil {
		logger.Warn(ctx, "set margin mode ignored", "error", err)
	}

	now := d.p.Clock()
	start := now.Add(-time.Duration(d.p.Retention) * tf)
	candles, err := d.p.Source.GetCandles(ctx, d.exec.Symbol, d.exec.Timeframe, start, now, d.warm)
	if err != nil {
		return err
	}
	d.frame = indicator.NewFrame(candles)
	if _, err := d.eng.ComputeAll(d.defs, d.frame); err != nil {
		return err
	}
	d.pushPrices()

	// Candles newer than the start of the execution are stepped once
	// before entering the cadence loop.
	for i := range d.frame.Candles {
		if d.frame.Candles[i].Ts < d.exec.StartTs {
			continue
		}
		if err := d.step(ctx, i); err != nil {
			return err
		}
	}

	for {
		lastTs := int64(0)
		if d.frame.Len() > 0 {
			lastTs = d.frame.Candles[d.frame.Len()-1].Ts
		}
		// The next candle opens one interval after the last and is
		// complete one interval after that.
		due := time.UnixMilli(lastTs).Add(2 * tf)

		cancelled, err := d.waitUntil(ctx, due)
		if err != nil {
			return err
		}
		if cancelled {
			logger.Lifecycle(ctx, d.exec.ID, "cancelled")
			return ErrCancelled
		}

		c, cancelled, err := d.fetchNext(ctx, lastTs, tf)
		if err != nil {
			return err
		}
		if cancelled {
			logger.Lifecycle(ctx, d.exec.ID, "cancelled")
			return ErrCancelled
		}

		d.frame.Append(c)
		for d.frame.Len() > d.p.Retention+d.warm {
			d.frame.DropOldest()
		}
		if err := d.eng.ComputeTail(d.defs, d.frame, d.frame.Len()-1); err != nil {
			return err
		}
		d.pushPrices()

		if err := d.step(ctx, d.frame.Len()-1); err != nil {
			return err
		}
	}
}

// waitUntil sleeps in bounded slices until due, re-checking the
// cancellation flag between slices so a flipped flag is observed
// within one increment.
func (d *Driver) waitUntil(ctx context.Context, due time.Time) (cancelled bool, err error) {
	for {
		running, err := d.checkRunning(ctx)
		if err != nil {
			return false, err
		}
		if !running {
			return true, nil
		}
		remaining := due.Sub(d.p.Clock())
		if remaining <= 0 {
			return false, nil
		}
		slice := d.p.FlagPollInterval
		if remaining < slice {
			slice = remaining
		}
		d.p.Sleep(ctx, slice)
	}
}

// fetchNext fetches exactly the one candle after lastTs, waiting in
// flag-checked slices while the venue has not produced it yet.
func (d *Driver) fetchNext(ctx context.Context, lastTs int64, tf time.Duration) (types.Candle, bool, error) {
	nextTs := lastTs + tf.Milliseconds()
	for {
		started := time.Now()
		candles, err := d.p.Source.GetCandles(ctx, d.exec.Symbol, d.exec.Timeframe,
			time.UnixMilli(nextTs), time.UnixMilli(nextTs), 0)
		if err != nil {
			return types.Candle{}, false, err
		}
		if d.p.Metrics != nil {
			d.p.Metrics.CandleFetchDur.Observe(time.Since(started).Seconds())
		}
		if len(candles) > 0 {
			return candles[len(candles)-1], false, nil
		}

		running, err := d.checkRunning(ctx)
		if err != nil {
			return types.Candle{}, false, err
		}
		if !running {
			return types.Candle{}, true, nil
		}
		d.p.Sleep(ctx, d.p.FlagPollInterval)
	}
}

// touchPrice reads the side of the book a market order would hit: best
// ask for a buy, best bid for a sell. Falls back when the book is
// unavailable or empty.
func (d *Driver) touchPrice(ctx context.Context, side types.Side, fallback float64) float64 {
	book, err := d.p.Gateway.FetchL2OrderBook(ctx, d.exec.Symbol)
	if err != nil {
		logger.Warn(ctx, "order book unavailable, sizing from candle close", "error", err)
		return fallback
	}
	if side == types.SideBuy && len(book.Asks) > 0 {
		return book.Asks[0].Price
	}
	if side == types.SideSell && len(book.Bids) > 0 {
		return book.Bids[0].Price
	}
	return fallback
}

func (d *Driver) pushPrices() {
	p, ok := d.p.Gateway.(pricePusher)
	if !ok || d.frame.Len() == 0 {
		return
	}
	p.Push(d.exec.Symbol, d.frame.Candles[d.frame.Len()-1])
}

// reconcileOpenOrders asks the venue about every locally resting order
// and applies reported fills and cancellations to the ledger.
func (d *Driver) reconcileOpenOrders(ctx context.Context, c types.Candle) error {
	for _, o := range d.led.OpenOrders() {
		venueID, ok := d.liveOrders[o.ID]
		if !ok {
			continue
		}
		ord, err := d.p.Gateway.FetchOrder(ctx, d.exec.Symbol, venueID)
		if err != nil {
			if d.p.Metrics != nil {
				d.p.Metrics.GatewayErrors.Inc()
			}
			return &gateway.Error{Op: "fetch_order", Err: err}
		}
		switch {
		case ord.Closed():
			price := ord.AvgFillPrice
			if price <= 0 {
				price = o.Price
			}
			ts := ord.Timestamp
			if ts == 0 {
				ts = c.Ts
			}
			delete(d.liveOrders, o.ID)
			if t, ok := d.led.FillOpen(o.ID, price, ts); ok && t != nil {
				if err := d.recordFills(ctx, []types.Trade{*t}); err != nil {
					return err
				}
			}
		case ord.Status == "canceled" || ord.Status == "rejected":
			delete(d.liveOrders, o.ID)
			d.led.Cancel(o.ID)
		}
	}
	return nil
}

// placeLive routes an intent through the venue before the ledger. The
// amount is pre-sized against the ledger's constraints so the venue
// never sees an order the capital cannot cover.
func (d *Driver) placeLive(ctx context.Context, intent types.OrderIntent, c types.Candle) error {
	switch intent.Type {
	case types.OrderCancelAll:
		if err := d.p.Gateway.CancelAllOrders(ctx, d.exec.Symbol); err != nil {
			if d.p.Metrics != nil {
				d.p.Metrics.GatewayErrors.Inc()
			}
			return &gateway.Error{Op: "cancel_all_orders", Err: err}
		}
		d.led.CancelAll()
		d.liveOrders = make(map[int64]string)
		return nil

	case types.OrderMarket:
		// A market order fills at the touch, not the candle close, so
		// sizing works off the live book; the candle close covers a
		// book that cannot be read.
		ref := d.touchPrice(ctx, intent.Side, c.Close)
		sized := d.led.PreviewAmount(intent.Side, intent.Amount, ref, d.exec.TakerFee)
		if sized <= 0 {
			return nil
		}
		ord, err := d.p.Gateway.CreateOrder(ctx, types.GatewayOrderRequest{
			Symbol: d.exec.Symbol, Type: intent.Type, Side: intent.Side, Amount: sized,
		})
		if err != nil {
			if d.p.Metrics != nil {
				d.p.Metrics.GatewayErrors.Inc()
			}
			return &gateway.Error{Op: "create_order", Err: err}
		}
		price, amount, ts := ord.AvgFillPrice, ord.FilledAmount, ord.Timestamp
		if price <= 0 {
			price = ref
		}
		if amount <= 0 {
			amount = sized
		}
		if ts == 0 {
			ts = c.Ts
		}
		t, filled := d.led.Submit(types.OrderIntent{
			Type: types.OrderMarket, Side: intent.Side, Amount: amount,
		}, price, ts)
		if !filled {
			return nil
		}
		return d.recordFills(ctx, []types.Trade{*t})

	case types.OrderLimit:
		sized := d.led.PreviewAmount(intent.Side, intent.Amount, intent.Price, d.exec.MakerFee)
		if sized <= 0 || intent.Price <= 0 {
			return nil
		}
		ord, err := d.p.Gateway.CreateOrder(ctx, types.GatewayOrderRequest{
			Symbol: d.exec.Symbol, Type: intent.Type, Side: intent.Side,
			Amount: sized, Price: intent.Price,
		})
		if err != nil {
			if d.p.Metrics != nil {
				d.p.Metrics.GatewayErrors.Inc()
			}
			return &gateway.Error{Op: "create_order", Err: err}
		}
		before := d.led.OpenOrders()
		d.led.Submit(types.OrderIntent{
			Type: types.OrderLimit, Side: intent.Side, Amount: sized, Price: intent.Price,
		}, c.Close, c.Ts)
		after := d.led.OpenOrders()
		if len(after) > len(before) {
			d.liveOrders[after[len(after)-1].ID] = ord.ID
		}
		return nil
	}
	return nil
}
