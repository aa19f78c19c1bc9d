package indicator

import "math"

func trueRange(highs, lows, closes []float64, i int) float64 {
	if i == 0 {
		return highs[0] - lows[0]
	}
	return math.Max(highs[i]-lows[i],
		math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
}

func atr(highs, lows, closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	if n <= 0 || len(closes) < n+1 {
		return out
	}
	// Wilder smoothing seeded with the mean of the first n true ranges.
	sum := 0.0
	for i := 1; i <= n; i++ {
		sum += trueRange(highs, lows, closes, i)
	}
	prev := sum / float64(n)
	out[n] = prev
	for i := n + 1; i < len(closes); i++ {
		prev = (prev*float64(n-1) + trueRange(highs, lows, closes, i)) / float64(n)
		out[i] = prev
	}
	return out
}

func natr(highs, lows, closes []float64, n int) []float64 {
	a := atr(highs, lows, closes, n)
	out := nanSlice(len(closes))
	for i := range closes {
		if closes[i] != 0 {
			out[i] = a[i] / closes[i] * 100
		}
	}
	return out
}

func adx(highs, lows, closes []float64, n int) []float64 {
	out := nanSlice(len(closes))
	if n <= 0 || len(closes) < 2*n+1 {
		return out
	}
	plusDM := make([]float64, len(closes))
	minusDM := make([]float64, len(closes))
	tr := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		tr[i] = trueRange(highs, lows, closes, i)
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= n; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nanSlice(len(closes))
	dx[n] = dxValue(smPlus, smMinus, smTR)
	for i := n + 1; i < len(closes); i++ {
		smTR = smTR - smTR/float64(n) + tr[i]
		smPlus = smPlus - smPlus/float64(n) + plusDM[i]
		smMinus = smMinus - smMinus/float64(n) + minusDM[i]
		dx[i] = dxValue(smPlus, smMinus, smTR)
	}

	sum := 0.0
	for i := n; i < 2*n; i++ {
		sum += dx[i]
	}
	prev := sum / float64(n)
	out[2*n-1] = prev
	for i := 2 * n; i < len(closes); i++ {
		prev = (prev*float64(n-1) + dx[i]) / float64(n)
		out[i] = prev
	}
	return out
}

func dxValue(plus, minus, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	pdi := plus / tr * 100
	mdi := minus / tr * 100
	if pdi+mdi == 0 {
		return 0
	}
	return math.Abs(pdi-mdi) / (pdi + mdi) * 100
}

func obv(closes, vols []float64) []float64 {
	out := nanSlice(len(closes))
	if len(closes) == 0 {
		return out
	}
	running := vols[0]
	out[0] = running
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			running += vols[i]
		case closes[i] < closes[i-1]:
			running -= vols[i]
		}
		out[i] = running
	}
	return out
}

func mfi(highs, lows, closes, vols []float64, n int) []float64 {
	out := nanSlice(len(closes))
	if n <= 0 || len(closes) < n+1 {
		return out
	}
	tp := make([]float64, len(closes))
	for i := range closes {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	for i := n; i < len(closes); i++ {
		var pos, neg float64
		for j := i - n + 1; j <= i; j++ {
			flow := tp[j] * vols[j]
			if tp[j] > tp[j-1] {
				pos += flow
			} else if tp[j] < tp[j-1] {
				neg += flow
			}
		}
		if neg == 0 {
			out[i] = 100
		} else {
			out[i] = 100 - 100/(1+pos/neg)
		}
	}
	return out
}
