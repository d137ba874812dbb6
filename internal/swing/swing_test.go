package swing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"smc-scanner/internal/models"
)

func candleAt(i int, high, low float64) models.Candle {
	return models.Candle{
		Timestamp: time.Unix(int64(i)*300, 0),
		Open:      (high + low) / 2,
		High:      high,
		Low:       low,
		Close:     (high + low) / 2,
		Volume:    100,
	}
}

func TestFind_SingleSwingHigh(t *testing.T) {
	candles := []models.Candle{
		candleAt(0, 100, 95),
		candleAt(1, 102, 97),
		candleAt(2, 110, 99),
		candleAt(3, 103, 96),
		candleAt(4, 101, 94),
	}

	points := Find(candles, 2)
	if len(points) != 1 {
		t.Fatalf("expected 1 swing point, got %d: %+v", len(points), points)
	}
	if points[0].Kind != models.SwingHigh || points[0].Index != 2 {
		t.Fatalf("expected swing high at index 2, got %+v", points[0])
	}
}

func TestFind_RequiresConfirmationWindow(t *testing.T) {
	candles := []models.Candle{
		candleAt(0, 100, 95),
		candleAt(1, 110, 99),
		candleAt(2, 103, 96),
	}
	// only 1 bar on either side, L=2 leaves nothing in the valid range
	points := Find(candles, 2)
	if len(points) != 0 {
		t.Fatalf("expected no confirmed points with insufficient window, got %+v", points)
	}
}

// Feature: structure scanner, Property: appending future candles never
// changes a swing point already confirmed by the lookback window.
func TestProperty_SwingPointsAreStableUnderAppend(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("appending candles does not alter already-confirmed swing points", prop.ForAll(
		func(prices []float64, extra []float64) bool {
			if len(prices) < 10 {
				return true
			}
			base := make([]models.Candle, len(prices))
			for i, p := range prices {
				base[i] = candleAt(i, p+2, p-2)
			}

			l := 3
			before := Find(base, l)

			extended := append(append([]models.Candle{}, base...), toCandles(extra, len(base))...)
			after := Find(extended, l)

			// Every point confirmed in `before` must still appear identically in `after`.
			afterByIndex := make(map[int]models.SwingPoint, len(after))
			for _, p := range after {
				afterByIndex[p.Index] = p
			}
			for _, p := range before {
				ap, ok := afterByIndex[p.Index]
				if !ok || ap != p {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.Float64Range(50, 150)),
		gen.SliceOfN(10, gen.Float64Range(50, 150)),
	))

	properties.TestingRun(t)
}

func toCandles(prices []float64, offset int) []models.Candle {
	out := make([]models.Candle, len(prices))
	for i, p := range prices {
		out[i] = candleAt(offset+i, p+2, p-2)
	}
	return out
}

func TestAdaptiveLookback_ClampedRange(t *testing.T) {
	flat := make([]models.Candle, 20)
	for i := range flat {
		flat[i] = candleAt(i, 100.01, 99.99)
	}
	l := AdaptiveLookback(flat, DefaultBaseLookback)
	if l < minLookback || l > maxLookback {
		t.Fatalf("expected lookback within [%d,%d], got %d", minLookback, maxLookback, l)
	}
}

func TestAdaptiveLookback_ScalesWithVolatility(t *testing.T) {
	quiet := make([]models.Candle, 25)
	for i := range quiet {
		quiet[i] = candleAt(i, 100.02, 99.98)
	}
	lQuiet := AdaptiveLookback(quiet, DefaultBaseLookback)
	if lQuiet != 10 {
		t.Fatalf("expected low-volatility lookback of 10 (L0=20, f=0.5), got %d", lQuiet)
	}

	wild := make([]models.Candle, 25)
	for i := range wild {
		base := 100.0
		if i%2 == 0 {
			base = 108
		}
		wild[i] = candleAt(i, base+4, base-4)
	}
	lWild := AdaptiveLookback(wild, DefaultBaseLookback)
	if lWild < lQuiet {
		t.Fatalf("expected volatile series to produce a lookback >= quiet series, got %d vs %d", lWild, lQuiet)
	}
}
