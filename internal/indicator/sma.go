package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average
func EMA(prices []float64, period int) []float64 {
	if len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	// Start with SMA as first EMA value
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	// Calculate EMA for remaining prices
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// StdDev calculates the population standard deviation of the last period prices
func StdDev(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	window := prices[len(prices)-period:]
	var mean float64
	for _, p := range window {
		mean += p
	}
	mean /= float64(period)

	var variance float64
	for _, p := range window {
		d := p - mean
		variance += d * d
	}

	return math.Sqrt(variance / float64(period))
}

// ZScore returns how many standard deviations the last price sits from
// the mean of the last period prices. Zero when the window is flat.
func ZScore(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	sma := SMA(prices[len(prices)-period:], period)
	sd := StdDev(prices, period)
	if sd == 0 {
		return 0
	}
	return (prices[len(prices)-1] - sma[0]) / sd
}

// RateOfChange returns the percent change over the last period prices
func RateOfChange(prices []float64, period int) float64 {
	if period <= 0 || len(prices) <= period {
		return 0
	}

	prev := prices[len(prices)-1-period]
	if prev == 0 {
		return 0
	}
	return (prices[len(prices)-1] - prev) / prev * 100
}
