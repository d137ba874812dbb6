package aggregator

import (
	"context"
	"testing"
	"time"

	"smc-scanner/internal/analyzer"
	"smc-scanner/internal/candlesource"
	"smc-scanner/internal/errors"
	"smc-scanner/internal/fvg"
	"smc-scanner/internal/models"
	"smc-scanner/internal/structure"
)

func testConfig() Config {
	return Config{
		Analyzer: analyzer.Config{
			Structure: structure.Config{
				BOSThresholdPct:         0.3,
				CHOCHThresholdPct:       0.5,
				MinStructureDistancePct: 1.0,
				StructureLockBars:       5,
			},
			FVG: fvg.Config{MinFVGSizePct: 0.2, PruneBars: 50},
		},
		MinMatches:     0,
		CandleLookback: 80,
	}
}

func TestAggregate_CoversAllFixedTimeframes(t *testing.T) {
	src := candlesource.NewMock()
	signal, ok, err := Aggregate(context.Background(), src, "NIFTY50", testConfig(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected aggregate to succeed with MinMatches=0")
	}
	if len(signal.Timeframes) != len(models.Timeframes) {
		t.Fatalf("expected one entry per fixed timeframe, got %d", len(signal.Timeframes))
	}
}

func TestAggregate_PopulatesQuoteAndFVGFields(t *testing.T) {
	src := candlesource.NewMock()
	signal, ok, err := Aggregate(context.Background(), src, "NIFTY50", testConfig(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected aggregate to succeed with MinMatches=0")
	}
	if signal.CurrentPrice <= 0 {
		t.Fatalf("expected a positive current price, got %f", signal.CurrentPrice)
	}
	if signal.TotalFVGs < 0 {
		t.Fatalf("totalFVGs must not be negative, got %d", signal.TotalFVGs)
	}
	if signal.OverallStructure != models.StructureNeutral && signal.LatestEventDescr == "" {
		t.Fatal("expected a latest event description when the overall structure is non-neutral")
	}
}

func TestAggregate_ExcludesBelowMinMatches(t *testing.T) {
	src := candlesource.NewMock()
	cfg := testConfig()
	cfg.MinMatches = 99
	_, ok, err := Aggregate(context.Background(), src, "NIFTY50", cfg, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected exclusion when matchingTimeframes is below minMatches")
	}
}

// splitSource serves a breakout series on the lower timeframes — a lone
// swing high at index 25 later broken by closes clearing the BOS
// threshold — and a too-short flat series on the higher ones, so only the
// lower timeframes can produce a valid signal.
type splitSource struct{}

func (splitSource) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int, to time.Time) ([]models.Candle, error) {
	breakout := tf == models.Timeframe5Min || tf == models.Timeframe15Min || tf == models.Timeframe30Min
	n := 70
	if !breakout {
		n = 5 // below the neutral guard, forces a neutral snapshot
	}

	interval := tf.Duration()
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		o, h, l, c := 100.0, 100.65, 99.4, 100.02
		switch {
		case i == 25:
			h = 106 // the swing high later broken
		case i >= 46:
			o, h, l, c = 106.4, 107, 106.2, 106.5 // closes clear 106 by ~0.47%
		case i >= 40:
			o, h, l, c = 103.9, 104.5, 103.7, 104
		}
		candles[i] = models.Candle{
			Timestamp: to.Add(-time.Duration(n-1-i) * interval),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    100,
		}
	}
	return candles, nil
}

func (splitSource) LatestQuote(ctx context.Context, symbol string) (models.Quote, error) {
	return models.Quote{Symbol: symbol, LastPrice: 130, Timestamp: time.Now()}, nil
}

func (splitSource) IsReady() bool { return true }

func TestAggregate_OverallStructureComesFromTopConfidenceValidEntry(t *testing.T) {
	cfg := testConfig()
	cfg.MinMatches = 2

	signal, ok, err := Aggregate(context.Background(), splitSource{}, "X", cfg, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the instrument to qualify with trending lower timeframes")
	}
	if signal.MatchingTimeframes < 2 {
		t.Fatalf("expected at least 2 matching timeframes, got %d", signal.MatchingTimeframes)
	}

	var best *models.StructureSnapshot
	for i := range signal.Timeframes {
		snap := &signal.Timeframes[i].Snapshot
		if !snap.HasValidSignal {
			continue
		}
		if best == nil || snap.Confidence > best.Confidence {
			best = snap
		}
	}
	if best == nil {
		t.Fatal("expected at least one valid snapshot")
	}
	if signal.OverallStructure != best.Structure {
		t.Fatalf("expected overall structure %s from the top-confidence entry, got %s", best.Structure, signal.OverallStructure)
	}
}

func TestSanitize_RejectsInvertedOHLC(t *testing.T) {
	candles := []models.Candle{
		{Timestamp: time.Unix(0, 0), Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: time.Unix(300, 0), Open: 100, High: 99, Low: 101, Close: 100}, // high < low
	}
	_, _, err := sanitize("X", candles)
	var invalid *errors.InvalidCandleError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCandleError for inverted OHLC, got %v", err)
	}
}

func TestSanitize_DropsNonMonotonicTimestamps(t *testing.T) {
	candles := []models.Candle{
		{Timestamp: time.Unix(0, 0), Open: 100, High: 101, Low: 99, Close: 100},
		{Timestamp: time.Unix(0, 0), Open: 100, High: 101, Low: 99, Close: 100}, // duplicate ts
		{Timestamp: time.Unix(300, 0), Open: 100, High: 101, Low: 99, Close: 100},
	}
	clean, dropped, err := sanitize("X", candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 || len(clean) != 2 {
		t.Fatalf("expected 1 dropped and 2 kept, got %d dropped, %d kept", dropped, len(clean))
	}
}

// invalidSource serves one inverted-OHLC candle on every timeframe; the
// whole symbol tick must abort rather than analyze corrupted data.
type invalidSource struct{}

func (invalidSource) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int, to time.Time) ([]models.Candle, error) {
	return []models.Candle{
		{Timestamp: to, Open: 100, High: 99, Low: 101, Close: 100},
	}, nil
}

func (invalidSource) LatestQuote(ctx context.Context, symbol string) (models.Quote, error) {
	return models.Quote{Symbol: symbol, LastPrice: 100, Timestamp: time.Now()}, nil
}

func (invalidSource) IsReady() bool { return true }

func TestAggregate_AbortsTickOnInvalidCandle(t *testing.T) {
	_, ok, err := Aggregate(context.Background(), invalidSource{}, "X", testConfig(), time.Now())
	if err == nil {
		t.Fatal("expected an error for an inverted-OHLC candle")
	}
	if ok {
		t.Fatal("an aborted tick must not publish a signal")
	}
}

func TestSortBatch_OrdersByMatchesThenConfidence(t *testing.T) {
	signals := []models.InstrumentSignal{
		{Symbol: "A", MatchingTimeframes: 2, MeanConfidence: 90},
		{Symbol: "B", MatchingTimeframes: 3, MeanConfidence: 50},
		{Symbol: "C", MatchingTimeframes: 3, MeanConfidence: 80},
	}
	SortBatch(signals)

	if signals[0].Symbol != "C" || signals[1].Symbol != "B" || signals[2].Symbol != "A" {
		t.Fatalf("unexpected sort order: %+v", signals)
	}
}
