// Package aggregator runs the per-timeframe analyzer across the fixed
// timeframe set for one symbol and assembles the cross-timeframe signal,
// generalizing the multi-timeframe analyzer's concurrent fan-out from a
// WaitGroup+mutex pattern to a bounded errgroup so cancellation propagates
// automatically to every in-flight timeframe.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"smc-scanner/internal/analyzer"
	"smc-scanner/internal/candlesource"
	appErrors "smc-scanner/internal/errors"
	"smc-scanner/internal/logging"
	"smc-scanner/internal/models"
)

// ProximityFarSentinel is the proximityPct assigned to a timeframe with no
// structure event to measure distance from.
const ProximityFarSentinel = 100.0

// Config holds the aggregation thresholds.
type Config struct {
	Analyzer       analyzer.Config
	MinMatches     int
	CandleLookback int
}

// Aggregate fetches and analyzes every fixed timeframe for symbol and
// assembles the cross-timeframe InstrumentSignal. Returns ok=false if
// fewer than Config.MinMatches timeframes produced a valid signal, per the
// "include only if matchingTimeframes >= minMatches" rule.
func Aggregate(ctx context.Context, source candlesource.CandleSource, symbol string, cfg Config, now time.Time) (models.InstrumentSignal, bool, error) {
	entries := make([]models.TimeframeEntry, len(models.Timeframes))

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range models.Timeframes {
		i, tf := i, tf
		g.Go(func() error {
			candles, err := source.FetchCandles(gctx, symbol, tf, cfg.CandleLookback, now)
			if err != nil {
				return err
			}
			candles, dropped, err := sanitize(symbol, candles)
			if err != nil {
				return err
			}
			if dropped > 0 {
				logger := logging.FromContext(gctx)
				logger.Warn().
					Str("symbol", symbol).
					Str("timeframe", string(tf)).
					Int("dropped", dropped).
					Msg("dropped candles with non-monotonic timestamps")
			}
			snapshot := analyzer.Analyze(symbol, tf, candles, cfg.Analyzer)
			entries[i] = models.TimeframeEntry{Timeframe: tf, Snapshot: snapshot}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.InstrumentSignal{}, false, err
	}

	quote, err := source.LatestQuote(ctx, symbol)
	if err != nil {
		return models.InstrumentSignal{}, false, err
	}

	for i := range entries {
		snap := &entries[i].Snapshot
		snap.ProximityPct = proximityPct(quote.LastPrice, snap.LastEvent)
		snap.HasValidSignal = snap.Structure != models.StructureNeutral && snap.LastEvent != nil && snap.Confidence > 50
	}

	matching := 0
	var confidenceSum, proximitySum float64
	for _, e := range entries {
		if e.Snapshot.HasValidSignal {
			matching++
			confidenceSum += e.Snapshot.Confidence
			proximitySum += e.Snapshot.ProximityPct
		}
	}

	if matching < cfg.MinMatches {
		return models.InstrumentSignal{}, false, nil
	}

	ranked := append([]models.TimeframeEntry{}, entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Snapshot.Confidence > ranked[j].Snapshot.Confidence
	})

	overall := models.StructureNeutral
	var latestEventDescr string
	for _, e := range ranked {
		if e.Snapshot.HasValidSignal {
			overall = e.Snapshot.Structure
			latestEventDescr = eventDescr(e.Timeframe, e.Snapshot.LastEvent)
			break
		}
	}

	var totalFVGs int
	for _, e := range entries {
		totalFVGs += len(e.Snapshot.AllFVGs)
	}

	meanConfidence := 0.0
	avgProximity := ProximityFarSentinel
	if matching > 0 {
		meanConfidence = confidenceSum / float64(matching)
		avgProximity = proximitySum / float64(matching)
	}

	return models.InstrumentSignal{
		Symbol:             symbol,
		GeneratedAt:        now,
		Timeframes:         entries,
		MatchingTimeframes: matching,
		OverallStructure:   overall,
		CurrentPrice:       quote.LastPrice,
		LatestEventDescr:   latestEventDescr,
		TotalFVGs:          totalFVGs,
		MeanConfidence:     meanConfidence,
		AvgProximityPct:    avgProximity,
	}, true, nil
}

// sanitize enforces the candle series contract before analysis: a candle
// whose timestamp is not strictly after its predecessor is dropped (the
// series keeps going on the remaining bars), while an inverted OHLC candle
// aborts the symbol's tick entirely with InvalidCandleError.
func sanitize(symbol string, candles []models.Candle) ([]models.Candle, int, error) {
	clean := make([]models.Candle, 0, len(candles))
	dropped := 0
	for _, c := range candles {
		if !c.Valid() {
			return nil, dropped, appErrors.NewInvalidCandleError(symbol,
				fmt.Sprintf("inverted OHLC at %s: o=%g h=%g l=%g c=%g", c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close))
		}
		if len(clean) > 0 && !c.Timestamp.After(clean[len(clean)-1].Timestamp) {
			dropped++
			continue
		}
		clean = append(clean, c)
	}
	return clean, dropped, nil
}

// eventDescr renders a short human-readable summary of the structure event
// driving the overall signal, for display in the batch aggregator's output.
func eventDescr(tf models.Timeframe, ev *models.StructureEvent) string {
	if ev == nil {
		return ""
	}
	return fmt.Sprintf("%s %s %s @ %.2f", tf, ev.Kind, ev.Direction, ev.BreakPrice)
}

func proximityPct(currentPrice float64, lastEvent *models.StructureEvent) float64 {
	if lastEvent == nil || currentPrice == 0 {
		return ProximityFarSentinel
	}
	return math.Abs(currentPrice-lastEvent.BreakPrice) / currentPrice * 100
}

// SortBatch orders a batch of instrument signals by matchingTimeframes
// descending, then meanConfidence descending.
func SortBatch(signals []models.InstrumentSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].MatchingTimeframes != signals[j].MatchingTimeframes {
			return signals[i].MatchingTimeframes > signals[j].MatchingTimeframes
		}
		return signals[i].MeanConfidence > signals[j].MeanConfidence
	})
}
