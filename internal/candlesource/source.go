// Package candlesource provides the CandleSource abstraction the scan
// scheduler pulls OHLCV bars through, plus a live Kite Connect-backed
// implementation and a deterministic mock for development and tests.
package candlesource

import (
	"context"
	"time"

	"smc-scanner/internal/models"
)

// CandleSource fetches OHLCV history and best-effort last-traded price for
// a symbol/timeframe pair. Implementations must be safe for concurrent use
// across symbols; the scheduler fans calls out per symbol.
type CandleSource interface {
	// FetchCandles returns candles for symbol/timeframe ending at "to",
	// oldest first, with at least `lookback` bars when available.
	FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int, to time.Time) ([]models.Candle, error)

	// LatestQuote returns the most recent traded price for symbol.
	LatestQuote(ctx context.Context, symbol string) (models.Quote, error)

	// IsReady reports whether the source is authenticated/reachable.
	IsReady() bool
}
