package indicator

import "math"

func rsi(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	if n <= 0 || len(vals) < n+1 {
		return out
	}
	var avgGain, avgLoss float64
	for i := 1; i <= n; i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(n)
	avgLoss /= float64(n)
	out[n] = rsiValue(avgGain, avgLoss)
	for i := n + 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

func mom(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	for i := n; i < len(vals); i++ {
		out[i] = vals[i] - vals[i-n]
	}
	return out
}

func roc(vals []float64, n int) []float64 {
	out := nanSlice(len(vals))
	for i := n; i < len(vals); i++ {
		if vals[i-n] != 0 {
			out[i] = (vals[i] - vals[i-n]) / vals[i-n] * 100
		}
	}
	return out
}

func cci(highs, lows, closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	tp := make([]float64, len(closes))
	for i := range closes {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	mean := sma(tp, n)
	for i := n - 1; i < len(tp); i++ {
		dev := 0.0
		for j := i - n + 1; j <= i; j++ {
			dev += math.Abs(tp[j] - mean[i])
		}
		dev /= float64(n)
		if dev != 0 {
			out[i] = (tp[i] - mean[i]) / (0.015 * dev)
		}
	}
	return out
}

func willr(highs, lows, closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	for i := n - 1; i < len(closes); i++ {
		hh, ll := highestLowest(highs, lows, i, n)
		if hh != ll {
			out[i] = (hh - closes[i]) / (hh - ll) * -100
		}
	}
	return out
}

func stoch(highs, lows, closes []float64, fastK, slowK, slowD int) (slowk, slowd []float64) {
	fastk := nanSlice(len(closes))
	for i := fastK - 1; i < len(closes); i++ {
		hh, ll := highestLowest(highs, lows, i, fastK)
		if hh != ll {
			fastk[i] = (closes[i] - ll) / (hh - ll) * 100
		}
	}
	slowk = padLeadingNaN(sma(stripLeadingNaN(fastk), slowK), len(closes))
	slowd = padLeadingNaN(sma(stripLeadingNaN(slowk), slowD), len(closes))
	return slowk, slowd
}

func stochRSI(vals []float64, n, fastK, fastD int) (fastk, fastd []float64) {
	r := rsi(vals, n)
	fastk = nanSlice(len(vals))
	for i := range vals {
		if i < fastK-1 || math.IsNaN(r[i]) {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		valid := true
		for j := i - fastK + 1; j <= i; j++ {
			if j < 0 || math.IsNaN(r[j]) {
				valid = false
				break
			}
			lo = math.Min(lo, r[j])
			hi = math.Max(hi, r[j])
		}
		if valid && hi != lo {
			fastk[i] = (r[i] - lo) / (hi - lo) * 100
		}
	}
	fastd = padLeadingNaN(sma(stripLeadingNaN(fastk), fastD), len(vals))
	return fastk, fastd
}

func aroon(highs, lows []float64, n int) (down, up []float64) {
	down = nanSlice(len(highs))
	up = nanSlice(len(highs))
	for i := n; i < len(highs); i++ {
		hiIdx, loIdx := i, i
		for j := i - n; j <= i; j++ {
			if highs[j] >= highs[hiIdx] {
				hiIdx = j
			}
			if lows[j] <= lows[loIdx] {
				loIdx = j
			}
		}
		up[i] = float64(n-(i-hiIdx)) / float64(n) * 100
		down[i] = float64(n-(i-loIdx)) / float64(n) * 100
	}
	return down, up
}

func highestLowest(highs, lows []float64, i, n int) (hh, ll float64) {
	hh, ll = math.Inf(-1), math.Inf(1)
	for j := i - n + 1; j <= i; j++ {
		hh = math.Max(hh, highs[j])
		ll = math.Min(ll, lows[j])
	}
	return hh, ll
}
