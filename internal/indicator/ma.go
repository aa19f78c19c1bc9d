package indicator

import "math"

// Rolling helpers below fill the warm-up rows with NaN rather than
// failing on short windows; every value depends only on the prefix
// ending at its row.

func sma(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	if n <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range vals {
		sum += v
		if i >= n {
			sum -= vals[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

func ema(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	if n <= 0 || len(vals) < n {
		return out
	}
	// Seed with the SMA of the first n values, then smooth.
	seed := 0.0
	for i := 0; i < n; i++ {
		seed += vals[i]
	}
	prev := seed / float64(n)
	out[n-1] = prev
	k := 2.0 / float64(n+1)
	for i := n; i < len(vals); i++ {
		prev = vals[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

func wma(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	if n <= 0 {
		return out
	}
	denom := float64(n*(n+1)) / 2
	for i := n - 1; i < len(vals); i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += vals[i-n+1+j] * float64(j+1)
		}
		out[i] = sum / denom
	}
	return out
}

func dema(vals []float64, n int) []float64 {
	e1 := ema(vals, n)
	e2 := ema(stripLeadingNaN(e1), n)
	e2 = padLeadingNaN(e2, len(vals))
	out := nanSlice(len(vals))
	for i := range vals {
		out[i] = 2*e1[i] - e2[i]
	}
	return out
}

func tema(vals []float64, n int) []float64 {
	e1 := ema(vals, n)
	e2 := padLeadingNaN(ema(stripLeadingNaN(e1), n), len(vals))
	e3 := padLeadingNaN(ema(stripLeadingNaN(e2), n), len(vals))
	out := nanSlice(len(vals))
	for i := range vals {
		out[i] = 3*e1[i] - 3*e2[i] + e3[i]
	}
	return out
}

func trima(vals []float64, n int) []float64 {
	var n1, n2 int
	if n%2 == 1 {
		n1 = (n + 1) / 2
		n2 = n1
	} else {
		n1 = n/2 + 1
		n2 = n / 2
	}
	first := sma(vals, n2)
	second := padLeadingNaN(sma(stripLeadingNaN(first), n1), len(vals))
	return second
}

func macd(vals []float64, fast, slow, signal int) (macdLine, signalLine, hist []float64) {
	fastE := ema(vals, fast)
	slowE := ema(vals, slow)
	macdLine = nanSlice(len(vals))
	for i := range vals {
		macdLine[i] = fastE[i] - slowE[i]
	}
	signalLine = padLeadingNaN(ema(stripLeadingNaN(macdLine), signal), len(vals))
	hist = nanSlice(len(vals))
	for i := range vals {
		hist[i] = macdLine[i] - signalLine[i]
	}
	return macdLine, signalLine, hist
}

func bbands(vals []float64, n int, devUp, devDown float64) (upper, middle, lower []float64) {
	middle = sma(vals, n)
	upper = nanSlice(len(vals))
	lower = nanSlice(len(vals))
	for i := n - 1; i < len(vals); i++ {
		variance := 0.0
		for j := i - n + 1; j <= i; j++ {
			d := vals[j] - middle[i]
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(n))
		upper[i] = middle[i] + devUp*sd
		lower[i] = middle[i] - devDown*sd
	}
	return upper, middle, lower
}

func sar(highs, lows []float64, accel, maxAccel float64) []float64 {
	out := nanSlice(len(highs))
	if len(highs) < 2 {
		return out
	}
	long := highs[1]+lows[1] >= highs[0]+lows[0]
	af := accel
	var psar, ep float64
	if long {
		psar, ep = lows[0], highs[1]
	} else {
		psar, ep = highs[0], lows[1]
	}
	out[1] = psar
	for i := 2; i < len(highs); i++ {
		psar += af * (ep - psar)
		if long {
			// SAR never enters the prior two candles' range.
			psar = math.Min(psar, math.Min(lows[i-1], lows[i-2]))
			if lows[i] < psar {
				long = false
				psar = ep
				ep = lows[i]
				af = accel
			} else if highs[i] > ep {
				ep = highs[i]
				af = math.Min(af+accel, maxAccel)
			}
		} else {
			psar = math.Max(psar, math.Max(highs[i-1], highs[i-2]))
			if highs[i] > psar {
				long = true
				psar = ep
				ep = highs[i]
				af = accel
			} else if lows[i] < ep {
				ep = lows[i]
				af = math.Min(af+accel, maxAccel)
			}
		}
		out[i] = psar
	}
	return out
}

// stripLeadingNaN drops the warm-up prefix so a second smoothing pass
// can seed from real values; padLeadingNaN restores the original length.
func stripLeadingNaN(vals []float64) []float64 {
	for i, v := range vals {
		if !math.IsNaN(v) {
			return vals[i:]
		}
	}
	return nil
}

func padLeadingNaN(vals []float64, n int) []float64 {
	out := nanSlice(n)
	copy(out[n-len(vals):], vals)
	return out
}
