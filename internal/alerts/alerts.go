// Package alerts diffs consecutive InstrumentSignal snapshots per symbol
// and emits typed notifications, the way the journal's decision-outcome
// updates turn a state transition into a recorded event rather than a
// live recomputation.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"smc-scanner/internal/models"
)

// Config holds the proximity thresholds and de-duplication window the
// generator's diff rules use.
type Config struct {
	ProximityNearPct float64
	ProximityFarPct  float64
	DedupeWindow     time.Duration
}

// DefaultDedupeWindow is the minimum spacing between two alerts of the
// same (symbol, type), per the one-minute de-duplication rule.
const DefaultDedupeWindow = time.Minute

// Generator maintains the previous InstrumentSignal per symbol and the
// last-emitted timestamp per (symbol, type), producing new alerts as
// fresher signals arrive. Safe for concurrent use: the scheduler's
// per-symbol workers all publish through the same generator.
type Generator struct {
	mu        sync.Mutex
	cfg       Config
	previous  map[string]models.InstrumentSignal
	lastFired map[string]time.Time
}

// New constructs an empty alert generator.
func New(cfg Config) *Generator {
	if cfg.DedupeWindow == 0 {
		cfg.DedupeWindow = DefaultDedupeWindow
	}
	return &Generator{
		cfg:       cfg,
		previous:  make(map[string]models.InstrumentSignal),
		lastFired: make(map[string]time.Time),
	}
}

// Diff compares signal against the previously observed signal for the
// same symbol, returns any alerts the transition produces, and records
// signal as the new baseline for the next call.
func (g *Generator) Diff(signal models.InstrumentSignal, now time.Time) []models.Alert {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, hasPrev := g.previous[signal.Symbol]
	g.previous[signal.Symbol] = signal

	if !hasPrev {
		return nil
	}

	var alerts []models.Alert
	if a, ok := g.bosEntry(prev, signal, now); ok {
		alerts = append(alerts, a)
	}
	if a, ok := g.bosBreak(prev, signal, now); ok {
		alerts = append(alerts, a)
	}
	if a, ok := g.trendChange(prev, signal, now); ok {
		alerts = append(alerts, a)
	}
	alerts = append(alerts, g.fvgMitigated(prev, signal, now)...)

	return alerts
}

func (g *Generator) bosEntry(prev, cur models.InstrumentSignal, now time.Time) (models.Alert, bool) {
	if !(prev.AvgProximityPct > g.cfg.ProximityFarPct && cur.AvgProximityPct <= g.cfg.ProximityNearPct) {
		return models.Alert{}, false
	}
	return g.emit(cur.Symbol, models.AlertBOSEntry, models.PriorityHigh,
		fmt.Sprintf("%s entered proximity zone (%.2f%% -> %.2f%%)", cur.Symbol, prev.AvgProximityPct, cur.AvgProximityPct),
		now)
}

func (g *Generator) bosBreak(prev, cur models.InstrumentSignal, now time.Time) (models.Alert, bool) {
	wentNeutral := prev.OverallStructure != models.StructureNeutral && cur.OverallStructure == models.StructureNeutral
	flipped := directionFlippedWithNewerEvent(prev, cur)
	if !wentNeutral && !flipped {
		return models.Alert{}, false
	}
	return g.emit(cur.Symbol, models.AlertBOSBreak, models.PriorityHigh,
		fmt.Sprintf("%s structure broke: %s -> %s", cur.Symbol, prev.OverallStructure, cur.OverallStructure),
		now)
}

func directionFlippedWithNewerEvent(prev, cur models.InstrumentSignal) bool {
	prevEvent := topTimeframeEvent(prev)
	curEvent := topTimeframeEvent(cur)
	if prevEvent == nil || curEvent == nil {
		return false
	}
	return curEvent.Timestamp.After(prevEvent.Timestamp) && curEvent.Direction != prevEvent.Direction
}

func topTimeframeEvent(signal models.InstrumentSignal) *models.StructureEvent {
	var best *models.StructureEvent
	bestConfidence := -1.0
	for _, entry := range signal.Timeframes {
		if entry.Snapshot.LastEvent == nil {
			continue
		}
		if entry.Snapshot.Confidence > bestConfidence {
			bestConfidence = entry.Snapshot.Confidence
			best = entry.Snapshot.LastEvent
		}
	}
	return best
}

func (g *Generator) trendChange(prev, cur models.InstrumentSignal, now time.Time) (models.Alert, bool) {
	if prev.OverallStructure == cur.OverallStructure {
		return models.Alert{}, false
	}
	if !anyTimeframeCHOCHSince(cur, prev.GeneratedAt) {
		return models.Alert{}, false
	}
	return g.emit(cur.Symbol, models.AlertTrendChange, models.PriorityMedium,
		fmt.Sprintf("%s trend changed: %s -> %s", cur.Symbol, prev.OverallStructure, cur.OverallStructure),
		now)
}

func anyTimeframeCHOCHSince(signal models.InstrumentSignal, since time.Time) bool {
	for _, entry := range signal.Timeframes {
		ev := entry.Snapshot.LastEvent
		if ev != nil && ev.Kind == models.StructureCHOCH && ev.Timestamp.After(since) {
			return true
		}
	}
	return false
}

// fvgMitigated fires only for a gap that was unmitigated in the previous
// signal and is mitigated in the current one. It diffs against AllFVGs
// (every gap the analyzer is still tracking per timeframe), not the
// capped-top-5 ActiveFVGs view: a gap pruned by age or crowded out of the
// active top-5 by newer, higher-quality gaps disappears from ActiveFVGs
// without ever being mitigated, and must not fire this alert.
func (g *Generator) fvgMitigated(prev, cur models.InstrumentSignal, now time.Time) []models.Alert {
	prevMitigated := make(map[string]bool)
	for _, entry := range prev.Timeframes {
		for _, gap := range entry.Snapshot.AllFVGs {
			prevMitigated[gap.ID] = gap.Mitigated
		}
	}

	var alerts []models.Alert
	for _, entry := range cur.Timeframes {
		for _, gap := range entry.Snapshot.AllFVGs {
			wasMitigated, tracked := prevMitigated[gap.ID]
			if !tracked || wasMitigated || !gap.Mitigated {
				continue
			}
			if a, ok := g.emit(cur.Symbol, models.AlertFVGMitigated, models.PriorityMedium,
				fmt.Sprintf("%s fair value gap %s mitigated", cur.Symbol, gap.ID), now); ok {
				alerts = append(alerts, a)
			}
		}
	}
	return alerts
}

// emit applies the one-minute de-duplication rule and, if the alert is
// allowed to fire, constructs it and records the firing time.
func (g *Generator) emit(symbol string, alertType models.AlertType, priority models.AlertPriority, message string, now time.Time) (models.Alert, bool) {
	key := symbol + "|" + string(alertType)
	if last, ok := g.lastFired[key]; ok && now.Sub(last) < g.cfg.DedupeWindow {
		return models.Alert{}, false
	}
	g.lastFired[key] = now

	return models.Alert{
		ID:        fmt.Sprintf("%s-%s-%d", symbol, alertType, now.UnixNano()),
		Symbol:    symbol,
		Type:      alertType,
		Priority:  priority,
		Message:   message,
		Timestamp: now,
	}, true
}
