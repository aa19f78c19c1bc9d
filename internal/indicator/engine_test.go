package indicator

import (
	"math"
	"testing"

	"stratify/internal/types"
)

func candlesFromCloses(closes ...float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			Ts:    int64(i) * 60_000,
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
			Vol:   100,
		}
	}
	return out
}

func assertVal(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.IsNaN(want) {
		if !math.IsNaN(got) {
			t.Errorf("%s: got %v, want NaN", label, got)
		}
		return
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %v, want %v", label, got, want)
	}
}

func TestSMA(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 3, 4, 5))
	defs := []Definition{{ID: "1", ShortName: "SMA", Params: []Param{{Key: "timeperiod", Value: 3}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	for i, w := range want {
		assertVal(t, "SMA_3", f.Value("SMA_3", i), w)
	}
}

func TestEMA(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 3, 4, 5))
	defs := []Definition{{ID: "1", ShortName: "EMA", Params: []Param{{Key: "timeperiod", Value: 3}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	// Seeded with SMA(1,2,3)=2, smoothing factor 1/2.
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	for i, w := range want {
		assertVal(t, "EMA_3", f.Value("EMA_3", i), w)
	}
}

func TestRSI(t *testing.T) {
	f := NewFrame(candlesFromCloses(10, 11, 12, 11, 13))
	defs := []Definition{{ID: "1", ShortName: "RSI", Params: []Param{{Key: "timeperiod", Value: 3}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	name := defs[0].Columns()[0]
	// Seed: gains 2, losses 1 over three diffs -> RS=2 -> 66.67.
	// Next diff +2: avgGain=10/9, avgLoss=2/9 -> RS=5 -> 83.33.
	assertVal(t, "RSI warm-up", f.Value(name, 2), math.NaN())
	assertVal(t, "RSI seed", f.Value(name, 3), 100-100.0/3)
	assertVal(t, "RSI smoothed", f.Value(name, 4), 100-100.0/6)
}

func TestMomentum(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 4, 7, 11))
	defs := []Definition{{ID: "1", ShortName: "MOM", Params: []Param{{Key: "timeperiod", Value: 2}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	name := defs[0].Columns()[0]
	want := []float64{math.NaN(), math.NaN(), 3, 5, 7}
	for i, w := range want {
		assertVal(t, "MOM_2", f.Value(name, i), w)
	}
}

func TestBBands(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 3))
	defs := []Definition{{ID: "1", ShortName: "BBANDS", Params: []Param{
		{Key: "timeperiod", Value: 3}, {Key: "nbdevup", Value: 2}, {Key: "nbdevdn", Value: 2},
	}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	sd := math.Sqrt(2.0 / 3)
	assertVal(t, "middle", f.Value("BBANDS_3_2_2_middleband", 2), 2)
	assertVal(t, "upper", f.Value("BBANDS_3_2_2_upperband", 2), 2+2*sd)
	assertVal(t, "lower", f.Value("BBANDS_3_2_2_lowerband", 2), 2-2*sd)
}

func TestApplyDefaultsAndNaming(t *testing.T) {
	d := Definition{ID: "1", ShortName: "MACD"}
	changed, err := d.ApplyDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("missing params must report a change")
	}
	if got := d.Name(); got != "MACD_12_26_9" {
		t.Errorf("name: got %q", got)
	}
	cols := d.Columns()
	wantCols := []string{"MACD_12_26_9_macd", "MACD_12_26_9_macdsignal", "MACD_12_26_9_macdhist"}
	if len(cols) != len(wantCols) {
		t.Fatalf("columns: got %v", cols)
	}
	for i := range cols {
		if cols[i] != wantCols[i] {
			t.Errorf("column %d: got %q, want %q", i, cols[i], wantCols[i])
		}
	}

	// A second pass is a no-op.
	changed, err = d.ApplyDefaults()
	if err != nil || changed {
		t.Errorf("second pass: changed=%v err=%v", changed, err)
	}

	if _, err := (&Definition{ShortName: "VWAP"}).ApplyDefaults(); err == nil {
		t.Error("unknown kind must fail")
	}
}

func TestExplicitParamsOverrideDefaults(t *testing.T) {
	d := Definition{ID: "1", ShortName: "SMA", Params: []Param{{Key: "timeperiod", Value: 20}}}
	if _, err := d.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	if got := d.Name(); got != "SMA_20" {
		t.Errorf("name: got %q", got)
	}
}

func TestComputeTailMatchesFullPass(t *testing.T) {
	closes := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		closes = append(closes, 100+10*math.Sin(float64(i)/3))
	}
	candles := candlesFromCloses(closes...)

	defs := []Definition{
		{ID: "1", ShortName: "EMA", Params: []Param{{Key: "timeperiod", Value: 5}}},
		{ID: "2", ShortName: "RSI", Params: []Param{{Key: "timeperiod", Value: 7}}},
	}
	eng := NewEngine()

	full := NewFrame(candles)
	if _, err := eng.ComputeAll(defs, full); err != nil {
		t.Fatal(err)
	}

	inc := NewFrame(candles[:len(candles)-1])
	if _, err := eng.ComputeAll(defs, inc); err != nil {
		t.Fatal(err)
	}
	inc.Append(candles[len(candles)-1])
	if err := eng.ComputeTail(defs, inc, inc.Len()-1); err != nil {
		t.Fatal(err)
	}

	for _, d := range defs {
		for _, col := range d.Columns() {
			for i := 0; i < full.Len(); i++ {
				fv, iv := full.Value(col, i), inc.Value(col, i)
				if math.IsNaN(fv) && math.IsNaN(iv) {
					continue
				}
				if math.Abs(fv-iv) > 1e-9 {
					t.Fatalf("%s row %d: full=%v tail=%v", col, i, fv, iv)
				}
			}
		}
	}
}

func TestAppendLeavesNaNPlaceholder(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 3, 4))
	defs := []Definition{{ID: "1", ShortName: "SMA", Params: []Param{{Key: "timeperiod", Value: 2}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	f.Append(candlesFromCloses(5)[0])
	assertVal(t, "placeholder", f.Value("SMA_2", 4), math.NaN())
}

func TestDropOldestShrinksColumns(t *testing.T) {
	f := NewFrame(candlesFromCloses(1, 2, 3))
	defs := []Definition{{ID: "1", ShortName: "SMA", Params: []Param{{Key: "timeperiod", Value: 2}}}}
	if _, err := NewEngine().ComputeAll(defs, f); err != nil {
		t.Fatal(err)
	}
	f.DropOldest()
	if f.Len() != 2 {
		t.Fatalf("len: got %d", f.Len())
	}
	assertVal(t, "shifted", f.Value("SMA_2", 0), 1.5)
	assertVal(t, "out of range", f.Value("SMA_2", 2), math.NaN())
}

func TestExtraCandles(t *testing.T) {
	sma := Definition{ShortName: "SMA", Params: []Param{{Key: "timeperiod", Value: 50}}}
	if got := sma.ExtraCandles(); got != 100 {
		t.Errorf("SMA lookback: got %d", got)
	}
	macd := Definition{ShortName: "MACD", Params: []Param{
		{Key: "fastperiod", Value: 12}, {Key: "slowperiod", Value: 26}, {Key: "signalperiod", Value: 9},
	}}
	if got := macd.ExtraCandles(); got != 104 {
		t.Errorf("MACD lookback: got %d", got)
	}
}
