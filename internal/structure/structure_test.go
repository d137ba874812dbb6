package structure

import (
	"testing"
	"time"

	"smc-scanner/internal/models"
)

func c(offsetSec int, o, h, l, cl float64) models.Candle {
	return models.Candle{
		Timestamp: time.Unix(int64(offsetSec), 0),
		Open:      o, High: h, Low: l, Close: cl,
		Volume: 10,
	}
}

func defaultConfig() Config {
	return Config{
		BOSThresholdPct:         0.3,
		CHOCHThresholdPct:       0.5,
		MinStructureDistancePct: 1.0,
		StructureLockBars:       5,
	}
}

// Scenario 1 — bullish BOS emission.
func TestStep_BullishBOS(t *testing.T) {
	swingHigh := models.SwingPoint{Index: 10, Price: 100.00, Kind: models.SwingHigh, Timestamp: time.Unix(10*300, 0)}
	candles := make([]models.Candle, 23)
	for i := range candles {
		candles[i] = c(i*300, 90, 95, 88, 90)
	}
	candles[22] = c(22*300, 99, 101, 98, 100.50)

	state := State{}
	ev, _ := Step(candles, 22, swingHigh, models.SwingPoint{}, true, false, state, defaultConfig())

	if ev == nil {
		t.Fatal("expected bullish BOS event")
	}
	if ev.Kind != models.StructureBOS || ev.Direction != models.DirectionBullish {
		t.Fatalf("expected bullish BOS, got %+v", ev)
	}
	if ev.BrokenLevel != 100.00 || ev.BreakPrice != 100.50 {
		t.Fatalf("unexpected levels: %+v", ev)
	}
	if ev.Significance != models.SignificanceMinor {
		t.Fatalf("expected minor significance, got %s", ev.Significance)
	}
}

// Scenario 2 — a close inside the threshold band emits nothing.
func TestStep_SubThresholdCloseSuppressed(t *testing.T) {
	swingHigh := models.SwingPoint{Index: 10, Price: 100.00, Kind: models.SwingHigh, Timestamp: time.Unix(10*300, 0)}
	candles := make([]models.Candle, 23)
	for i := range candles {
		candles[i] = c(i*300, 90, 95, 88, 90)
	}
	candles[22] = c(22*300, 99, 101, 98, 100.20)

	ev, _ := Step(candles, 22, swingHigh, models.SwingPoint{}, true, false, State{}, defaultConfig())
	if ev != nil {
		t.Fatalf("expected a 0.2%% break to be suppressed below the 0.3%% threshold, got %+v", ev)
	}
}

// Scenario 3 — CHOCH after bullish BOS, then lock suppresses the next BOS.
func TestStep_CHOCHAfterBullishBOSThenLock(t *testing.T) {
	candles := make([]models.Candle, 40)
	for i := range candles {
		candles[i] = c(i*300, 95, 97, 93, 95)
	}
	candles[31] = c(31*300, 99, 100, 90, 95.00)
	candles[33] = c(33*300, 95, 101, 94, 100.60)

	state := State{HasBullishBOS: true, LastBullishBOSPrice: 100.50}
	swingLow := models.SwingPoint{Index: 20, Price: 100.00, Kind: models.SwingLow}

	ev, newState := Step(candles, 31, models.SwingPoint{}, swingLow, false, true, state, defaultConfig())
	if ev == nil || ev.Kind != models.StructureCHOCH || ev.Direction != models.DirectionBearish {
		t.Fatalf("expected bearish CHOCH, got %+v", ev)
	}
	if newState.LockUntil != 31+5 {
		t.Fatalf("expected lockUntil=36, got %d", newState.LockUntil)
	}

	swingHigh := models.SwingPoint{Index: 25, Price: 99.00}
	ev2, _ := Step(candles, 33, swingHigh, models.SwingPoint{}, true, false, newState, defaultConfig())
	if ev2 != nil {
		t.Fatalf("expected suppressed event while locked, got %+v", ev2)
	}
}

func TestSignificance(t *testing.T) {
	if Significance(100.5, 100) != models.SignificanceMinor {
		t.Fatal("expected minor for a 0.5% break")
	}
	if Significance(102, 100) != models.SignificanceMajor {
		t.Fatal("expected major for a 2% break")
	}
}

func TestConfidence_NoEvents(t *testing.T) {
	if Confidence(State{}) != 50 {
		t.Fatal("expected baseline confidence of 50 with no events")
	}
}

func TestTrendStrength_Bounds(t *testing.T) {
	candles := make([]models.Candle, 25)
	for i := range candles {
		candles[i] = c(i*300, 100, 105, 95, 104)
	}
	ts := TrendStrength(candles)
	if ts < 0 || ts > 100 {
		t.Fatalf("trend strength out of bounds: %f", ts)
	}
}
