// Package fvg detects and tracks three-candle fair value gaps: imbalances
// the structure analyzer expects price to eventually revisit.
package fvg

import (
	"fmt"
	"sort"
	"time"

	"smc-scanner/internal/models"
)

// Config holds the thresholds the tracker applies.
type Config struct {
	MinFVGSizePct float64
	PruneBars     int
}

// Detect scans candles for three-candle imbalances, rejecting gaps smaller
// than MinFVGSizePct. structureEventIndices lists the candle indices where
// a BOS/CHOCH fired on this timeframe, used to flag gaps created within
// three bars of a structure event.
func Detect(candles []models.Candle, cfg Config, structureEventIndices []int) []models.FairValueGap {
	var gaps []models.FairValueGap
	n := len(candles)

	for i := 2; i < n; i++ {
		if candles[i-1].Close == 0 {
			continue
		}

		if candles[i].Low > candles[i-2].High {
			sizePct := (candles[i].Low - candles[i-2].High) / candles[i-1].Close * 100
			if sizePct >= cfg.MinFVGSizePct {
				gaps = append(gaps, buildGap(candles, i, models.DirectionBullish, candles[i-2].High, candles[i].Low, sizePct, structureEventIndices))
			}
		}

		if candles[i].High < candles[i-2].Low {
			sizePct := (candles[i-2].Low - candles[i].High) / candles[i-1].Close * 100
			if sizePct >= cfg.MinFVGSizePct {
				gaps = append(gaps, buildGap(candles, i, models.DirectionBearish, candles[i].High, candles[i-2].Low, sizePct, structureEventIndices))
			}
		}
	}

	applyMitigation(candles, gaps)
	return gaps
}

// buildGap keys the gap's ID off its creation timestamp rather than its
// candle index: the analysis window slides between scans, so indices
// shift while timestamps identify the same gap across consecutive runs.
func buildGap(candles []models.Candle, i int, dir models.Direction, lower, upper, sizePct float64, structureEventIndices []int) models.FairValueGap {
	return models.FairValueGap{
		ID:            fmt.Sprintf("%s-%d", dir, candles[i].Timestamp.Unix()),
		Direction:     dir,
		UpperBound:    upper,
		LowerBound:    lower,
		SizePct:       sizePct,
		CreatedAt:     candles[i].Timestamp,
		NearStructure: nearStructure(i, structureEventIndices),
	}
}

func nearStructure(i int, structureEventIndices []int) bool {
	for _, idx := range structureEventIndices {
		d := idx - i
		if d < 0 {
			d = -d
		}
		if d <= 3 {
			return true
		}
	}
	return false
}

// applyMitigation marks gaps as filled once a later candle trades through
// the far edge of the gap: a low at or below LowerBound for a bullish gap,
// a high at or above UpperBound for a bearish one. Merely entering the gap
// does not mitigate it. Mitigation is sticky: once set, it is never cleared.
func applyMitigation(candles []models.Candle, gaps []models.FairValueGap) {
	for g := range gaps {
		gap := &gaps[g]
		startIdx := indexOf(candles, gap.CreatedAt) + 1
		for j := startIdx; j < len(candles); j++ {
			mitigated := false
			if gap.Direction == models.DirectionBullish && candles[j].Low <= gap.LowerBound {
				mitigated = true
			}
			if gap.Direction == models.DirectionBearish && candles[j].High >= gap.UpperBound {
				mitigated = true
			}
			if mitigated {
				gap.Mitigated = true
				gap.MitigatedAt = candles[j].Timestamp
				break
			}
		}
	}
}

func indexOf(candles []models.Candle, ts time.Time) int {
	for i, c := range candles {
		if c.Timestamp.Equal(ts) {
			return i
		}
	}
	return -1
}

// QualityScore scores a gap 0-100 from its size, structural proximity, and
// recency relative to the latest candle.
func QualityScore(gap models.FairValueGap, latest time.Time, barInterval time.Duration) float64 {
	var score float64

	switch {
	case gap.SizePct >= 1.0:
		score += 40
	case gap.SizePct >= 0.7:
		score += 30
	case gap.SizePct >= 0.5:
		score += 20
	case gap.SizePct >= 0.3:
		score += 10
	}

	if gap.NearStructure {
		score += 30
	}

	if barInterval > 0 {
		barsOld := latest.Sub(gap.CreatedAt) / barInterval
		switch {
		case barsOld <= 5:
			score += 30
		case barsOld <= 10:
			score += 20
		case barsOld <= 20:
			score += 10
		}
	}

	return score
}

// Prune drops FVGs older than cfg.PruneBars*barInterval or with a quality
// score below 20.
func Prune(gaps []models.FairValueGap, latest time.Time, barInterval time.Duration, cfg Config) []models.FairValueGap {
	horizon := time.Duration(cfg.PruneBars) * barInterval
	kept := make([]models.FairValueGap, 0, len(gaps))
	for _, g := range gaps {
		g.QualityScore = QualityScore(g, latest, barInterval)
		if barInterval > 0 && latest.Sub(g.CreatedAt) > horizon {
			continue
		}
		if g.QualityScore < 20 {
			continue
		}
		kept = append(kept, g)
	}
	return kept
}

// Active returns the newest <=5 unmitigated gaps, sorted by timestamp
// descending, the view consumers query.
func Active(gaps []models.FairValueGap) []models.FairValueGap {
	var unmitigated []models.FairValueGap
	for _, g := range gaps {
		if !g.Mitigated {
			unmitigated = append(unmitigated, g)
		}
	}
	sort.Slice(unmitigated, func(i, j int) bool {
		return unmitigated[i].CreatedAt.After(unmitigated[j].CreatedAt)
	})
	if len(unmitigated) > 5 {
		unmitigated = unmitigated[:5]
	}
	return unmitigated
}
