package candlesource

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"smc-scanner/internal/models"
)

// Mock is a deterministic synthetic candle source for development and
// tests: it wraps a fixed per-symbol base price the way PaperBroker wraps a
// simulated price book, but derives every candle from a closed-form
// function of symbol and bar index rather than a mutable price map, so two
// calls for the same (symbol, timeframe, to) always return identical data.
type Mock struct {
	BasePrice float64
}

// NewMock creates a deterministic mock candle source.
func NewMock() *Mock {
	return &Mock{BasePrice: 1000}
}

func symbolSeed(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return float64(h.Sum32()%1000) / 1000
}

// FetchCandles synthesizes `lookback` candles ending at `to`, oldest first.
// Price follows a smooth oscillation plus a slow drift so the series has
// identifiable swing highs/lows and occasional structural breaks without
// randomness.
func (m *Mock) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int, to time.Time) ([]models.Candle, error) {
	seed := symbolSeed(symbol)
	base := m.BasePrice * (1 + seed)
	interval := tf.Duration()
	if interval == 0 {
		interval = time.Minute
	}

	candles := make([]models.Candle, lookback)
	for i := 0; i < lookback; i++ {
		idx := float64(i)
		ts := to.Add(-time.Duration(lookback-1-i) * interval)

		drift := idx * base * 0.0006
		wave := base * 0.01 * math.Sin((idx+seed*37)/6)
		microWave := base * 0.003 * math.Sin((idx+seed*11)/1.7)
		open := base + drift + wave + microWave
		closeP := base + drift + wave*1.05 + microWave*0.8
		high := math.Max(open, closeP) + base*0.0015*(1+math.Abs(math.Sin(idx/3)))
		low := math.Min(open, closeP) - base*0.0015*(1+math.Abs(math.Cos(idx/4)))

		candles[i] = models.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    int64(1000 + int64(idx*7)%500),
		}
	}
	return candles, nil
}

// LatestQuote returns the close of the most recent synthesized candle.
func (m *Mock) LatestQuote(ctx context.Context, symbol string) (models.Quote, error) {
	candles, err := m.FetchCandles(ctx, symbol, models.Timeframe5Min, 1, time.Now())
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Symbol: symbol, LastPrice: candles[0].Close, Timestamp: candles[0].Timestamp}, nil
}

// IsReady always reports true; the mock has no external dependency to fail.
func (m *Mock) IsReady() bool {
	return true
}
