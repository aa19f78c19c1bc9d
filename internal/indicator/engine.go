package indicator

import (
	"fmt"
	"math"
)

// Engine computes indicator columns over a candle frame. Columns are
// pure functions of the candle prefix ending at each row, so a tail
// recompute after appending one candle produces values identical to a
// full pass.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// ComputeAll enriches the frame with every definition's columns.
// Missing params are assigned their defaults; the returned flag tells
// the caller the definitions changed and need persisting back onto the
// owning strategy.
func (e *Engine) ComputeAll(defs []Definition, f *Frame) (changed bool, err error) {
	for i := range defs {
		c, err := defs[i].ApplyDefaults()
		if err != nil {
			return changed, err
		}
		changed = changed || c
		if err := e.compute(&defs[i], f, 0); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// ComputeTail recomputes only the rows from index `from` onwards for
// every definition, using the history already held in the frame.
func (e *Engine) ComputeTail(defs []Definition, f *Frame, from int) error {
	for i := range defs {
		if _, err := defs[i].ApplyDefaults(); err != nil {
			return err
		}
		if err := e.compute(&defs[i], f, from); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) compute(d *Definition, f *Frame, from int) error {
	series, err := computeSeries(d, f)
	if err != nil {
		return err
	}
	cols := d.Columns()
	if len(series) != len(cols) {
		return fmt.Errorf("indicator %s: got %d outputs, want %d", d.ShortName, len(series), len(cols))
	}
	for j, name := range cols {
		if from == 0 || !f.HasColumn(name) {
			f.setColumn(name, series[j])
			continue
		}
		dst := make([]float64, f.Len())
		for i := 0; i < f.Len(); i++ {
			if i < from {
				dst[i] = f.Value(name, i)
			} else {
				dst[i] = series[j][i]
			}
		}
		f.setColumn(name, dst)
	}
	return nil
}

func computeSeries(d *Definition, f *Frame) ([][]float64, error) {
	n := f.Len()
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range f.Candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		vols[i] = c.Vol
	}

	switch d.ShortName {
	case "SMA":
		return wrap(sma(closes, d.intParam("timeperiod"))), nil
	case "EMA":
		return wrap(ema(closes, d.intParam("timeperiod"))), nil
	case "WMA":
		return wrap(wma(closes, d.intParam("timeperiod"))), nil
	case "DEMA":
		return wrap(dema(closes, d.intParam("timeperiod"))), nil
	case "TEMA":
		return wrap(tema(closes, d.intParam("timeperiod"))), nil
	case "TRIMA":
		return wrap(trima(closes, d.intParam("timeperiod"))), nil
	case "RSI":
		return wrap(rsi(closes, d.intParam("timeperiod"))), nil
	case "MOM":
		return wrap(mom(closes, d.intParam("timeperiod"))), nil
	case "ROC":
		return wrap(roc(closes, d.intParam("timeperiod"))), nil
	case "CCI":
		return wrap(cci(highs, lows, closes, d.intParam("timeperiod"))), nil
	case "WILLR":
		return wrap(willr(highs, lows, closes, d.intParam("timeperiod"))), nil
	case "MFI":
		return wrap(mfi(highs, lows, closes, vols, d.intParam("timeperiod"))), nil
	case "ATR":
		return wrap(atr(highs, lows, closes, d.intParam("timeperiod"))), nil
	case "NATR":
		return wrap(natr(highs, lows, closes, d.intParam("timeperiod"))), nil
	case "ADX":
		return wrap(adx(highs, lows, closes, d.intParam("timeperiod"))), nil
	case "OBV":
		return wrap(obv(closes, vols)), nil
	case "SAR":
		return wrap(sar(highs, lows, d.paramValue("acceleration"), d.paramValue("maximum"))), nil
	case "MACD":
		m, s, h := macd(closes, d.intParam("fastperiod"), d.intParam("slowperiod"), d.intParam("signalperiod"))
		return [][]float64{m, s, h}, nil
	case "BBANDS":
		up, mid, low := bbands(closes, d.intParam("timeperiod"), d.paramValue("nbdevup"), d.paramValue("nbdevdn"))
		return [][]float64{up, mid, low}, nil
	case "STOCH":
		k, dd := stoch(highs, lows, closes, d.intParam("fastk_period"), d.intParam("slowk_period"), d.intParam("slowd_period"))
		return [][]float64{k, dd}, nil
	case "STOCHRSI":
		k, dd := stochRSI(closes, d.intParam("timeperiod"), d.intParam("fastk_period"), d.intParam("fastd_period"))
		return [][]float64{k, dd}, nil
	case "AROON":
		down, up := aroon(highs, lows, d.intParam("timeperiod"))
		return [][]float64{down, up}, nil
	}
	return nil, fmt.Errorf("unknown indicator kind %q", d.ShortName)
}

func wrap(col []float64) [][]float64 { return [][]float64{col} }

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
