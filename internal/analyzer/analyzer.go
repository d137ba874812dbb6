// Package analyzer composes the swing detector, structure state machine,
// and FVG tracker into a single per-timeframe structure snapshot.
package analyzer

import (
	"time"

	"smc-scanner/internal/fvg"
	"smc-scanner/internal/models"
	"smc-scanner/internal/structure"
	"smc-scanner/internal/swing"
)

// Config bundles the thresholds the structure and FVG stages need.
type Config struct {
	Structure structure.Config
	FVG       fvg.Config
	// BaseLookback is L0, the un-adjusted swing confirmation window the
	// adaptive lookback scales from. Zero falls back to swing.DefaultBaseLookback.
	BaseLookback int
}

const minExtraCandles = 3

// Analyze runs swings -> structure -> FVGs over candles for one
// (symbol, timeframe) pair and returns the composed snapshot. It is a pure
// function of its inputs: no mutable state is kept across calls, so the
// same analyzer serves any number of concurrently scanned symbols.
func Analyze(symbol string, tf models.Timeframe, candles []models.Candle, cfg Config) models.StructureSnapshot {
	l0 := cfg.BaseLookback
	if l0 <= 0 {
		l0 = swing.DefaultBaseLookback
	}
	// The neutral-candle guard is sized off the base lookback L0, not the
	// adaptive window l: l shrinks in quiet markets, and gating on it would
	// let too short a candle series through before swings can be trusted.
	if len(candles) < l0+minExtraCandles {
		return neutralSnapshot(symbol, tf)
	}

	l := swing.AdaptiveLookback(candles, l0)
	points := swing.Find(candles, l)

	state := structure.State{}
	var eventIndices []int
	var lastEvent *models.StructureEvent

	for i := l; i < len(candles); i++ {
		lastHigh, hasHigh := mostRecentBefore(points, i, models.SwingHigh)
		lastLow, hasLow := mostRecentBefore(points, i, models.SwingLow)

		ev, newState := structure.Step(candles, i, lastHigh, lastLow, hasHigh, hasLow, state, cfg.Structure)
		state = newState
		if ev != nil {
			eventIndices = append(eventIndices, i)
			e := *ev
			lastEvent = &e
		}
	}

	gaps := fvg.Detect(candles, cfg.FVG, eventIndices)
	latest := candles[len(candles)-1].Timestamp
	gaps = fvg.Prune(gaps, latest, tf.Duration(), cfg.FVG)
	active := fvg.Active(gaps)

	return models.StructureSnapshot{
		Symbol:        symbol,
		Timeframe:     tf,
		GeneratedAt:   latest,
		Structure:     structure.CurrentStructure(state),
		TrendStrength: structure.TrendStrength(candles),
		LastEvent:     lastEvent,
		ActiveFVGs:    active,
		AllFVGs:       gaps,
		Confidence:    structure.Confidence(state),
	}
}

func neutralSnapshot(symbol string, tf models.Timeframe) models.StructureSnapshot {
	return models.StructureSnapshot{
		Symbol:      symbol,
		Timeframe:   tf,
		GeneratedAt: time.Time{},
		Structure:   models.StructureNeutral,
	}
}

func mostRecentBefore(points []models.SwingPoint, idx int, kind models.SwingKind) (models.SwingPoint, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Index < idx && points[i].Kind == kind {
			return points[i], true
		}
	}
	return models.SwingPoint{}, false
}
