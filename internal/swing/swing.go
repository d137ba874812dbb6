// Package swing detects confirmed swing highs and lows with an adaptive
// confirmation window, generalizing the fixed-strength swing finder the
// price-action analyzer used into a window that widens with volatility.
package swing

import (
	"math"

	"smc-scanner/internal/models"
)

const (
	// DefaultBaseLookback is L0, the un-adjusted confirmation window the
	// volatility ratio scales up or down from.
	DefaultBaseLookback = 20

	minLookback = 5
	maxLookback = 30

	atrWindow       = 14
	meanPriceWindow = 20

	// breakoutMarginPct is the minimum margin by which a candidate extreme
	// must clear every candle in its window to be confirmed a swing point,
	// filtering out near-ties from floating-point noise.
	breakoutMarginPct = 0.1
)

// AdaptiveLookback derives the swing confirmation window L from l0 (the base
// lookback) and the ratio of average true range to mean price over the
// supplied candles: choppier, higher-volatility series need more bars on
// either side to confirm a genuine extremum, so L scales with that ratio and
// is clamped to a sane range.
func AdaptiveLookback(candles []models.Candle, l0 int) int {
	if l0 <= 0 {
		l0 = DefaultBaseLookback
	}
	if len(candles) < 2 {
		return minLookback
	}

	atr := averageTrueRange(candles, atrWindow)
	meanPrice := meanTypicalPrice(candles, meanPriceWindow)
	if meanPrice == 0 {
		return minLookback
	}

	vRatio := atr / meanPrice * 100

	var f float64
	switch {
	case vRatio < 1:
		f = 0.5
	case vRatio > 3:
		f = 1.5
	default:
		f = 1.0
	}

	l := int(math.Floor(float64(l0) * f))
	return clampInt(l, minLookback, maxLookback)
}

// averageTrueRange computes the average true range over the last n candles
// (or fewer, if the series is shorter).
func averageTrueRange(candles []models.Candle, n int) float64 {
	start := len(candles) - n
	if start < 1 {
		start = 1
	}

	var trSum float64
	var count int
	for i := start; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		trSum += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return trSum / float64(count)
}

// meanTypicalPrice averages (high+low+close)/3 over the last n candles (or
// fewer, if the series is shorter).
func meanTypicalPrice(candles []models.Candle, n int) float64 {
	start := len(candles) - n
	if start < 0 {
		start = 0
	}

	var sum float64
	var count int
	for i := start; i < len(candles); i++ {
		sum += candles[i].Typical()
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Find identifies confirmed swing highs and lows using a fixed confirmation
// window L on either side of each candidate bar. A swing point at index i
// requires L candles behind and L candles ahead, so points are only
// confirmed once price has moved L bars past them; appending future
// candles never changes an already-confirmed point.
func Find(candles []models.Candle, l int) []models.SwingPoint {
	if l < 1 {
		l = 1
	}
	n := len(candles)
	var points []models.SwingPoint

	for i := l; i < n-l; i++ {
		if isSwingHigh(candles, i, l) {
			points = append(points, models.SwingPoint{
				Index:     i,
				Price:     candles[i].High,
				Kind:      models.SwingHigh,
				Timestamp: candles[i].Timestamp,
			})
		}
		if isSwingLow(candles, i, l) {
			points = append(points, models.SwingPoint{
				Index:     i,
				Price:     candles[i].Low,
				Kind:      models.SwingLow,
				Timestamp: candles[i].Timestamp,
			})
		}
	}

	return points
}

// isSwingHigh reports whether candles[i].High clears every high in the
// window [i-l, i+l] (excluding i itself) by at least breakoutMarginPct.
func isSwingHigh(candles []models.Candle, i, l int) bool {
	high := candles[i].High
	margin := high * breakoutMarginPct / 100
	for j := 1; j <= l; j++ {
		if high-candles[i-j].High < margin || high-candles[i+j].High < margin {
			return false
		}
	}
	return true
}

// isSwingLow reports whether candles[i].Low clears every low in the window
// [i-l, i+l] (excluding i itself) by at least breakoutMarginPct.
func isSwingLow(candles []models.Candle, i, l int) bool {
	low := candles[i].Low
	margin := low * breakoutMarginPct / 100
	for j := 1; j <= l; j++ {
		if candles[i-j].Low-low < margin || candles[i+j].Low-low < margin {
			return false
		}
	}
	return true
}

// LastHigh returns the most recent swing high, if any.
func LastHigh(points []models.SwingPoint) (models.SwingPoint, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Kind == models.SwingHigh {
			return points[i], true
		}
	}
	return models.SwingPoint{}, false
}

// LastLow returns the most recent swing low, if any.
func LastLow(points []models.SwingPoint) (models.SwingPoint, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Kind == models.SwingLow {
			return points[i], true
		}
	}
	return models.SwingPoint{}, false
}
