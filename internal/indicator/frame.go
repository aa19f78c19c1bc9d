package indicator

import (
	"math"

	"stratify/internal/types"
)

// Frame is the candle window plus every derived column, owned by a
// single execution and never shared between workers.
type Frame struct {
	Candles []types.Candle
	columns map[string][]float64
}

func NewFrame(candles []types.Candle) *Frame {
	return &Frame{Candles: candles, columns: make(map[string][]float64)}
}

func (f *Frame) Len() int { return len(f.Candles) }

// Value returns the named column at row i. Candle fields are addressable
// by their OHLCV names; unknown names and out-of-range rows are NaN.
func (f *Frame) Value(name string, i int) float64 {
	if i < 0 || i >= len(f.Candles) {
		return math.NaN()
	}
	switch name {
	case "open":
		return f.Candles[i].Open
	case "high":
		return f.Candles[i].High
	case "low":
		return f.Candles[i].Low
	case "close":
		return f.Candles[i].Close
	case "volume":
		return f.Candles[i].Vol
	}
	col, ok := f.columns[name]
	if !ok || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// HasColumn reports whether the frame holds a derived column.
func (f *Frame) HasColumn(name string) bool {
	switch name {
	case "open", "high", "low", "close", "volume":
		return true
	}
	_, ok := f.columns[name]
	return ok
}

// ColumnNames returns candle fields plus every derived column.
func (f *Frame) ColumnNames() []string {
	names := []string{"open", "high", "low", "close", "volume"}
	for name := range f.columns {
		names = append(names, name)
	}
	return names
}

func (f *Frame) setColumn(name string, vals []float64) {
	f.columns[name] = vals
}

// Append adds one trailing candle and extends every derived column with
// a NaN placeholder until the engine recomputes the tail.
func (f *Frame) Append(c types.Candle) {
	f.Candles = append(f.Candles, c)
	for name, col := range f.columns {
		f.columns[name] = append(col, math.NaN())
	}
}

// DropOldest removes the leading candle once the rolling live window
// exceeds its retention size.
func (f *Frame) DropOldest() {
	if len(f.Candles) == 0 {
		return
	}
	f.Candles = f.Candles[1:]
	for name, col := range f.columns {
		if len(col) > 0 {
			f.columns[name] = col[1:]
		}
	}
}
