package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"stratify/internal/gateway"
	"stratify/internal/types"
)

const minuteMs = int64(60_000)

// fixedSource serves a pre-built candle series, ignoring the requested
// bounds except for filtering.
type fixedSource struct {
	candles []types.Candle
}

func (s fixedSource) GetCandles(_ context.Context, _, _ string, start, end time.Time, extraLookback int) ([]types.Candle, error) {
	from := start.UnixMilli() - int64(extraLookback)*minuteMs
	var out []types.Candle
	for _, c := range s.candles {
		if c.Ts >= from && c.Ts <= end.UnixMilli() {
			out = append(out, c)
		}
	}
	return out, nil
}

// countdownFlags reports running for a fixed number of polls, then false.
type countdownFlags struct {
	remaining int
}

func (f *countdownFlags) SetRunning(context.Context, int64, bool) error { return nil }

func (f *countdownFlags) IsRunning(context.Context, int64) (bool, error) {
	if f.remaining <= 0 {
		return false, nil
	}
	f.remaining--
	return true, nil
}

func alwaysRunning() *countdownFlags { return &countdownFlags{remaining: 1 << 30} }

func series(closes ...float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			Ts:    int64(i+1) * minuteMs,
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
			Vol:   1000,
		}
	}
	return out
}

func backtestExec(rules string) *types.Execution {
	return &types.Execution{
		ID:                   1,
		Kind:                 types.KindBacktest,
		Symbol:               "BTC/USDT",
		Timeframe:            "1m",
		Leverage:             1,
		TakerFee:             0.001,
		MakerFee:             0.0005,
		InitialTradableValue: 10_000,
		OrderConditions:      rules,
		StartTs:              minuteMs,
		EndTs:                100 * minuteMs,
	}
}

const crossRules = `[{
	"conditions": [
		{"left_operand": "close", "operator": "crossabove", "right_operand": "SMA_3"}
	],
	"orders": [{"type": "market", "side": "buy", "amount": "1"}]
}]`

const smaDefs = `[{"id": "a", "short_name": "SMA", "params": [{"key": "timeperiod", "value": 3}]}]`

func TestBacktestCrossStrategy(t *testing.T) {
	// Flat, dip, recovery: close crosses back above its SMA once.
	src := fixedSource{candles: series(100, 100, 100, 100, 90, 90, 90, 101, 102, 103)}
	exec := backtestExec(crossRules)
	exec.Indicators = smaDefs

	d, err := New(Params{Execution: exec, Source: src, Flags: alwaysRunning()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	trades := d.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades: got %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Side != types.SideBuy || tr.Amount != 1 || tr.Price != 101 {
		t.Errorf("trade: got %+v", tr)
	}
}

func TestBacktestDeterministicReplay(t *testing.T) {
	src := fixedSource{candles: series(100, 100, 100, 95, 90, 101, 105, 95, 88, 104, 110, 90)}

	run := func() []types.Trade {
		exec := backtestExec(crossRules)
		exec.Indicators = smaDefs
		d, err := New(Params{Execution: exec, Source: src, Flags: alwaysRunning()})
		if err != nil {
			t.Fatal(err)
		}
		if err := d.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		return d.Trades()
	}

	first, second := run(), run()
	if len(first) != len(second) {
		t.Fatalf("trade counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("trade %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestWarmupRowsNotStepped(t *testing.T) {
	src := fixedSource{candles: series(100, 100, 100, 100, 100, 100, 100, 100)}
	exec := backtestExec(`[{
		"conditions": [{"left_operand": "close", "operator": ">", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "buy", "amount": "0.001"}]
	}]`)
	// Warm-up rows exist before StartTs; only rows at or after it trade.
	exec.StartTs = 5 * minuteMs

	d, err := New(Params{Execution: exec, Source: src, Flags: alwaysRunning()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	trades := d.Trades()
	if len(trades) != 4 {
		t.Fatalf("trades: got %d, want 4", len(trades))
	}
	if trades[0].Timestamp != 5*minuteMs {
		t.Errorf("first trade ts: got %d, want %d", trades[0].Timestamp, 5*minuteMs)
	}
}

func TestBacktestCancellationStopsReplay(t *testing.T) {
	src := fixedSource{candles: series(100, 100, 100, 100, 100, 100, 100, 100)}
	exec := backtestExec(`[{
		"conditions": [{"left_operand": "close", "operator": ">", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "buy", "amount": "0.001"}]
	}]`)

	// Three successful polls, then the flag reads false.
	d, err := New(Params{Execution: exec, Source: src, Flags: &countdownFlags{remaining: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("run: got %v, want ErrCancelled", err)
	}
	if got := len(d.Trades()); got != 3 {
		t.Errorf("trades after cancellation: got %d, want 3", got)
	}
}

func TestEmptyBacktestRange(t *testing.T) {
	exec := backtestExec("")
	d, err := New(Params{Execution: exec, Source: fixedSource{}, Flags: alwaysRunning()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(d.Trades()) != 0 {
		t.Error("empty range must produce no trades")
	}
}

func TestCompileFailureBeforeAnyCandle(t *testing.T) {
	exec := backtestExec(`[{
		"conditions": [{"left_operand": "no_such_column", "operator": ">", "right_operand": "0"}],
		"orders": []
	}]`)
	if _, err := New(Params{Execution: exec, Source: fixedSource{}, Flags: alwaysRunning()}); err == nil {
		t.Fatal("expected a compilation error")
	}
}

func TestIndicatorDefaultsPersisted(t *testing.T) {
	exec := backtestExec("")
	exec.Indicators = `[{"id": "a", "short_name": "SMA", "params": []}]`

	var persisted string
	_, err := New(Params{
		Execution: exec,
		Source:    fixedSource{},
		Flags:     alwaysRunning(),
		OnIndicatorsChanged: func(_ context.Context, indicators string) error {
			persisted = indicators
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if persisted == "" {
		t.Fatal("defaulted params must be persisted")
	}
	if persisted != exec.Indicators {
		t.Error("execution must carry the persisted indicator JSON")
	}
}

func TestLedgerColumnsVisibleToRules(t *testing.T) {
	// Buy once, then sell everything as soon as a position shows.
	rules := `[{
		"conditions": [{"left_operand": "position_amount", "operator": "==", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "buy", "amount": "1"}]
	}, {
		"conditions": [{"left_operand": "position_amount", "operator": ">", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "sell", "amount": "position_amount"}]
	}]`
	src := fixedSource{candles: series(100, 100, 100)}
	exec := backtestExec(rules)

	d, err := New(Params{Execution: exec, Source: src, Flags: alwaysRunning()})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	trades := d.Trades()
	// Every candle: the flat rule fires, then the position rule unwinds it.
	if len(trades) != 6 {
		t.Fatalf("trades: got %d, want 6", len(trades))
	}
	for i := 0; i < len(trades); i += 2 {
		if trades[i].Side != types.SideBuy || trades[i+1].Side != types.SideSell {
			t.Fatalf("trade pair %d: %s then %s", i/2, trades[i].Side, trades[i+1].Side)
		}
	}
}

func TestLiveCancellationBeforeFirstWaitSlice(t *testing.T) {
	src := fixedSource{candles: series(100, 100, 100, 100, 100)}
	exec := backtestExec("")
	exec.Kind = types.KindReal
	exec.StartTs = 100 * minuteMs // ahead of history: nothing stepped

	sleeps := 0
	clock := time.UnixMilli(5 * minuteMs)
	d, err := New(Params{
		Execution: exec,
		Source:    src,
		Flags:     &countdownFlags{remaining: 0},
		Gateway:   gateway.NewPaper(1_000_000),
		Retention: 50,
		Clock:     func() time.Time { return clock },
		Sleep:     func(context.Context, time.Duration) { sleeps++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("run: got %v, want ErrCancelled", err)
	}
	if sleeps != 0 {
		t.Errorf("sleeps before observing the cleared flag: got %d, want 0", sleeps)
	}
}

func TestLiveFillsAtVenuePrice(t *testing.T) {
	// One candle arrives after start; the paper venue fills a market
	// order at its last pushed price.
	src := fixedSource{candles: series(100, 100, 100, 105)}
	exec := backtestExec(`[{
		"conditions": [{"left_operand": "close", "operator": ">", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "buy", "amount": "1"}]
	}]`)
	exec.Kind = types.KindReal
	exec.StartTs = 4 * minuteMs

	// No polls happen during the initial step; the first wait poll then
	// reads false and the loop exits.
	d, err := New(Params{
		Execution: exec,
		Source:    src,
		Flags:     &countdownFlags{remaining: 0},
		Gateway:   gateway.NewPaper(1_000_000),
		Retention: 50,
		Clock:     func() time.Time { return time.UnixMilli(4 * minuteMs) },
		Sleep:     func(context.Context, time.Duration) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("run: got %v, want ErrCancelled", err)
	}

	trades := d.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades: got %d, want 1", len(trades))
	}
	if trades[0].Price != 105 {
		t.Errorf("fill price: got %v, want 105", trades[0].Price)
	}
}

func TestLiveMarketSizingUsesBookTouch(t *testing.T) {
	// An order bigger than the capital is resized against the book's
	// best ask, not the candle close. The paper book quotes
	// close*1.0005 on the ask side.
	src := fixedSource{candles: series(100, 100, 100, 100)}
	exec := backtestExec(`[{
		"conditions": [{"left_operand": "close", "operator": ">", "right_operand": "0"}],
		"orders": [{"type": "market", "side": "buy", "amount": "1000"}]
	}]`)
	exec.Kind = types.KindReal
	exec.StartTs = 4 * minuteMs

	d, err := New(Params{
		Execution: exec,
		Source:    src,
		Flags:     &countdownFlags{remaining: 0},
		Gateway:   gateway.NewPaper(1_000_000),
		Retention: 50,
		Clock:     func() time.Time { return time.UnixMilli(4 * minuteMs) },
		Sleep:     func(context.Context, time.Duration) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); !errors.Is(err, ErrCancelled) {
		t.Fatalf("run: got %v, want ErrCancelled", err)
	}

	trades := d.Trades()
	if len(trades) != 1 {
		t.Fatalf("trades: got %d, want 1", len(trades))
	}
	ask := 100 * 1.0005
	want := 10_000 / (ask * 1.001)
	if math.Abs(trades[0].Amount-want) > 1e-9 {
		t.Errorf("sized amount: got %v, want %v", trades[0].Amount, want)
	}
}
