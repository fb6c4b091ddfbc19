package market

import (
	"fmt"
	"math"
)

// Analyze derives the per-cycle analysis shape from a daily candle window.
// At least two candles are required to compute a return.
func Analyze(asset string, candles []Candle) (Analysis, error) {
	if len(candles) < 2 {
		return Analysis{}, fmt.Errorf("analyze %s: need at least 2 candles, got %d", asset, len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		if closes[i] <= 0 {
			return Analysis{}, fmt.Errorf("analyze %s: non-positive close at bar %d", asset, i)
		}
	}

	// Per-bar returns; the first bar has no prior close so it is excluded.
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}

	totalReturn := (closes[len(closes)-1] - closes[0]) / closes[0]

	direction := TrendSideways
	switch {
	case totalReturn > 0.02:
		direction = TrendBullish
	case totalReturn < -0.02:
		direction = TrendBearish
	}

	support := candles[0].Low.InexactFloat64()
	resistance := candles[0].High.InexactFloat64()
	for _, c := range candles[1:] {
		if low := c.Low.InexactFloat64(); low < support {
			support = low
		}
		if high := c.High.InexactFloat64(); high > resistance {
			resistance = high
		}
	}

	return Analysis{
		Asset:          asset,
		CurrentPrice:   closes[len(closes)-1],
		PriceChange24h: totalReturn,
		Volatility24h:  stddev(returns),
		Trend: Trend{
			Direction:  direction,
			Strength:   math.Min(100, math.Abs(totalReturn)*100),
			Support:    support,
			Resistance: resistance,
		},
	}, nil
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return math.Sqrt(variance)
}
