package structure

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"smc-scanner/internal/models"
)

// Feature: structure state machine, Property: every emitted event clears
// its broken level by at least the configured threshold, and no two
// events fire within the lock window of each other.
func TestProperty_EmittedEventsClearThresholdAndRespectLock(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	cfg := defaultConfig()

	properties.Property("breaks clear their threshold and honor the lock window", prop.ForAll(
		func(closes []float64, swingPrice float64) bool {
			candles := make([]models.Candle, len(closes))
			for i, cl := range closes {
				candles[i] = models.Candle{
					Timestamp: time.Unix(int64(i)*300, 0),
					Open:      cl,
					High:      cl + 1,
					Low:       cl - 1,
					Close:     cl,
					Volume:    10,
				}
			}
			swingHigh := models.SwingPoint{Index: 2, Price: swingPrice, Kind: models.SwingHigh}
			swingLow := models.SwingPoint{Index: 2, Price: swingPrice, Kind: models.SwingLow}

			state := State{}
			lastEventIndex := -1
			for i := 3; i < len(candles); i++ {
				ev, newState := Step(candles, i, swingHigh, swingLow, true, true, state, cfg)
				state = newState
				if ev == nil {
					continue
				}

				threshold := cfg.BOSThresholdPct
				if ev.Kind == models.StructureCHOCH {
					threshold = cfg.CHOCHThresholdPct
				}
				breakPct := math.Abs(ev.BreakPrice-ev.BrokenLevel) / ev.BrokenLevel * 100
				if breakPct < threshold {
					return false
				}

				if lastEventIndex >= 0 && i-lastEventIndex < cfg.StructureLockBars {
					return false
				}
				lastEventIndex = i
			}
			return true
		},
		gen.SliceOfN(40, gen.Float64Range(80, 120)),
		gen.Float64Range(90, 110),
	))

	properties.TestingRun(t)
}
