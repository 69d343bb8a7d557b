package competition

import "math"

// Score maps a competitor state to a single comparable number.
// Every term is normalised to a bounded range before weighting.
func Score(s CompetitorState, w Weights) float64 {
	normReturn := clamp(finite(s.PnLPercent)*10, -100, 100)
	normSharpe := clamp(finite(s.SharpeRatio)*33, 0, 100)
	normWinRate := clamp(finite(s.WinRate), 0, 100)
	normConsistency := 100 - clamp(finite(s.MaxDrawdownPercent)*2, 0, 100)

	return normReturn*w.Returns +
		normSharpe*w.Sharpe +
		normWinRate*w.WinRate +
		normConsistency*w.Consistency
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// finite maps NaN to 0 and leaves infinities for clamp to bound.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
