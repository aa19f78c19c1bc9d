package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stratify/internal/indicator"
	"stratify/internal/interfaces"
	"stratify/internal/ledger"
	"stratify/internal/logger"
	"stratify/internal/metrics"
	"stratify/internal/rule"
	"stratify/internal/trace"
	"stratify/internal/types"
)

// ErrCancelled reports a run stopped by a cleared running flag or a
// cancelled context. Callers journal it as a distinct outcome, not a
// failure.
var ErrCancelled = errors.New("execution cancelled")

// Params wires one execution's collaborators into a Driver. Gateway is
// nil for backtests. OnTrades receives every batch of new fills in
// order; OnIndicatorsChanged persists lazily defaulted indicator
// parameters back onto the strategy.
type Params struct {
	Execution *types.Execution
	Source    interfaces.CandleSource
	Flags     interfaces.RunFlagStore
	Gateway   interfaces.ExchangeGateway
	Metrics   *metrics.Metrics

	FlagPollInterval     time.Duration
	Retention            int
	EmitLiquidationTrade bool

	OnTrades            func(ctx context.Context, trades []types.Trade) error
	OnIndicatorsChanged func(ctx context.Context, indicators string) error

	// Overridable for tests.
	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

// Driver steps one execution candle-by-candle: indicators, compiled
// rules, ledger. It owns all of its state; nothing here is shared
// between executions.
type Driver struct {
	p     Params
	exec  *types.Execution
	defs  []indicator.Definition
	rules []rule.CompiledRule
	eng   *indicator.Engine
	led   *ledger.Ledger
	frame *indicator.Frame
	warm  int

	// ledger order id -> venue order id, live mode only
	liveOrders map[int64]string
}

var ledgerCols = func() map[string]bool {
	m := make(map[string]bool)
	for _, c := range ledger.Columns() {
		m[c] = true
	}
	return m
}()

// New parses and compiles the execution's indicator and rule
// definitions, failing before any candle is touched if they are
// malformed.
func New(p Params) (*Driver, error) {
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.Sleep == nil {
		p.Sleep = func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
	if p.FlagPollInterval <= 0 {
		p.FlagPollInterval = 10 * time.Second
	}

	e := p.Execution
	var defs []indicator.Definition
	if e.Indicators != "" {
		if err := json.Unmarshal([]byte(e.Indicators), &defs); err != nil {
			return nil, fmt.Errorf("parse indicators: %w", err)
		}
	}
	changed := false
	for i := range defs {
		c, err := defs[i].ApplyDefaults()
		if err != nil {
			return nil, err
		}
		changed = changed || c
	}

	known := []string{"open", "high", "low", "close", "volume"}
	for i := range defs {
		known = append(known, defs[i].Columns()...)
	}
	known = append(known, ledger.Columns()...)

	parsed, err := rule.ParseRuleSet(e.OrderConditions)
	if err != nil {
		return nil, err
	}
	compiled, err := rule.Compile(parsed, known)
	if err != nil {
		return nil, err
	}

	warm := 0
	for i := range defs {
		if x := defs[i].ExtraCandles(); x > warm {
			warm = x
		}
	}

	d := &Driver{
		p:     p,
		exec:  e,
		defs:  defs,
		rules: compiled,
		eng:   indicator.NewEngine(),
		warm:  warm,
		led: ledger.New(ledger.Config{
			Spot:                 e.Spot(),
			Leverage:             e.Leverage,
			MakerFee:             e.MakerFee,
			TakerFee:             e.TakerFee,
			Initial:              e.InitialTradableValue,
			EmitLiquidationTrade: p.EmitLiquidationTrade,
			ExternalFills:        p.Gateway != nil,
		}),
		liveOrders: make(map[int64]string),
	}

	if changed && p.OnIndicatorsChanged != nil {
		data, err := json.Marshal(defs)
		if err != nil {
			return nil, fmt.Errorf("marshal indicators: %w", err)
		}
		e.Indicators = string(data)
		if err := p.OnIndicatorsChanged(context.Background(), e.Indicators); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Run drives the execution to completion (backtest) or until
// cancelled (live).
func (d *Driver) Run(ctx context.Context) error {
	if d.exec.Kind == types.KindReal {
		return d.runLive(ctx)
	}
	return d.runBacktest(ctx)
}

// Summary returns the ledger aggregates.
func (d *Driver) Summary() types.Summary { return d.led.Summary() }

// Trades returns the full ordered fill list.
func (d *Driver) Trades() []types.Trade { return d.led.Trades() }

func (d *Driver) curLookup(i int) rule.Lookup {
	return func(name string) float64 {
		if ledgerCols[name] {
			return d.led.Value(name)
		}
		return d.frame.Value(name, i)
	}
}

func (d *Driver) prevLookup(i int) rule.Lookup {
	return func(name string) float64 {
		if ledgerCols[name] {
			return d.led.PrevValue(name)
		}
		return d.frame.Value(name, i-1)
	}
}

// step runs one candle through the ledger and the compiled rules.
func (d *Driver) step(ctx context.Context, i int) error {
	c := d.frame.Candles[i]
	ctx, span := trace.StartStep(ctx, d.exec.ID, c.Ts)
	defer span.End()
	started := time.Now()

	liqBefore := d.led.Liquidations()
	fills := d.led.Step(c)
	if err := d.recordFills(ctx, fills); err != nil {
		return err
	}
	if d.p.Metrics != nil && d.led.Liquidations() > liqBefore {
		d.p.Metrics.Liquidations.Add(float64(d.led.Liquidations() - liqBefore))
	}

	if d.exec.Kind == types.KindReal {
		if err := d.reconcileOpenOrders(ctx, c); err != nil {
			return err
		}
	}

	cur, prev := d.curLookup(i), d.prevLookup(i)
	for _, r := range d.rules {
		if !r.Holds(cur, prev) {
			continue
		}
		for _, o := range r.Orders {
			intent := o.Intent(cur)
			if err := d.place(ctx, intent, c); err != nil {
				return err
			}
		}
	}

	if d.p.Metrics != nil {
		d.p.Metrics.StepsTotal.Inc()
		d.p.Metrics.StepDuration.Observe(time.Since(started).Seconds())
	}
	return nil
}

// place routes an intent to the ledger, and in live mode to the venue
// first.
func (d *Driver) place(ctx context.Context, intent types.OrderIntent, c types.Candle) error {
	if d.exec.Kind == types.KindReal {
		return d.placeLive(ctx, intent, c)
	}
	t, filled := d.led.Submit(intent, c.Close, c.Ts)
	if !filled {
		return nil
	}
	return d.recordFills(ctx, []types.Trade{*t})
}

func (d *Driver) recordFills(ctx context.Context, fills []types.Trade) error {
	if len(fills) == 0 {
		return nil
	}
	for _, t := range fills {
		logger.Fill(ctx, d.exec.ID, t)
		if d.p.Metrics != nil {
			d.p.Metrics.TradesTotal.WithLabelValues(string(t.Side)).Inc()
		}
	}
	if d.p.OnTrades != nil {
		return d.p.OnTrades(ctx, fills)
	}
	return nil
}

// checkRunning polls the cooperative cancellation flag.
func (d *Driver) checkRunning(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	running, err := d.p.Flags.IsRunning(ctx, d.exec.ID)
	if err != nil {
		return false, fmt.Errorf("read running flag: %w", err)
	}
	return running, nil
}
