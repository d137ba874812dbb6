// Package scheduler drives periodic re-analysis of the configured symbol
// watchlist, generalizing the stream hub's single-producer broadcast loop
// into a bounded-concurrency, per-symbol fan-out that runs on a fixed
// ticker instead of a live tick feed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smc-scanner/internal/aggregator"
	"smc-scanner/internal/candlesource"
	"smc-scanner/internal/logging"
	"smc-scanner/internal/models"
	"smc-scanner/internal/resilience"
	"smc-scanner/internal/store"
)

// Config holds the scheduler's timing and fan-out knobs.
type Config struct {
	ScanInterval         time.Duration
	MaxConcurrentSymbols int
	CandleFetchTimeout   time.Duration
	Aggregator           aggregator.Config
}

// Scheduler runs the periodic scan loop: one tick per ScanInterval, one
// independent unit per symbol, writing results to the Signal Store.
type Scheduler struct {
	cfg       Config
	source    candlesource.CandleSource
	store     *store.SignalStore
	symbols   []string
	breakers  *resilience.CircuitBreakerRegistry
	logger    zerolog.Logger
	tickCount atomic.Uint64
	onPublish func(models.InstrumentSignal)
	onTick    func(symbols int, duration time.Duration, errs int)

	tickMu   sync.RWMutex
	lastTick time.Time
}

// New constructs a Scheduler over the given candle source, signal store,
// and symbol watchlist.
func New(cfg Config, source candlesource.CandleSource, signalStore *store.SignalStore, symbols []string, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		store:    signalStore,
		symbols:  symbols,
		breakers: resilience.NewCircuitBreakerRegistry(resilience.DefaultCircuitBreakerConfig()),
		logger:   logger,
	}
}

// OnPublish registers a callback invoked, outside any internal lock,
// every time a fresh InstrumentSignal is written to the store — the hook
// the alert generator and subscription bus attach to.
func (s *Scheduler) OnPublish(fn func(models.InstrumentSignal)) {
	s.onPublish = fn
}

// OnTick registers a callback invoked after each completed scan cycle
// with the symbol count, wall-clock duration, and per-symbol failure
// count — the hook the metrics layer observes scan health through.
func (s *Scheduler) OnTick(fn func(symbols int, duration time.Duration, errs int)) {
	s.onTick = fn
}

// Run blocks, firing one scan tick immediately and then every ScanInterval,
// until ctx is cancelled. Ticks never overlap: each runs to completion under
// a soft deadline of ScanInterval minus one second, and a unit still running
// past that deadline terminates without publishing.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// RunOnce runs a single scan cycle immediately, independent of the
// ticker loop — the hook a manual "rescan" HTTP trigger or CLI command
// uses to bypass waiting for the next scheduled tick.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runTick(ctx)
}

// runTick runs one scan cycle across every watched symbol with bounded
// concurrency and a soft deadline of ScanInterval minus one second.
func (s *Scheduler) runTick(parent context.Context) {
	scanID := fmt.Sprintf("scan-%d", s.tickCount.Add(1))
	logger := logging.WithScanID(s.logger, scanID)

	deadline := s.cfg.ScanInterval - time.Second
	if deadline <= 0 {
		deadline = s.cfg.ScanInterval
	}
	ctx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()

	start := time.Now()
	s.tickMu.Lock()
	s.lastTick = start
	s.tickMu.Unlock()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentSymbols)

	var errCount atomic.Int64
	for _, symbol := range s.symbols {
		symbol := symbol
		g.Go(func() error {
			symbolCtx := logging.WithLogger(gctx, logging.WithSymbol(logger, symbol))
			if err := s.scanSymbol(symbolCtx, symbol, logger); err != nil {
				errCount.Add(1)
				symbolLogger := logging.WithSymbol(logger, symbol)
				symbolLogger.Warn().Err(err).Msg("symbol scan failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	logging.LogScan(logger, scanID, len(s.symbols), time.Since(start), int(errCount.Load()))
	if s.onTick != nil {
		s.onTick(len(s.symbols), time.Since(start), int(errCount.Load()))
	}
}

// LastScanTime returns the start time of the most recently run tick, or the
// zero time if no tick has run yet.
func (s *Scheduler) LastScanTime() time.Time {
	s.tickMu.RLock()
	defer s.tickMu.RUnlock()
	return s.lastTick
}

// NextScanIn returns the time remaining until the next scheduled tick,
// measured from the last tick's start plus ScanInterval. Returns zero once
// that time has passed.
func (s *Scheduler) NextScanIn() time.Duration {
	last := s.LastScanTime()
	if last.IsZero() {
		return s.cfg.ScanInterval
	}
	remaining := s.cfg.ScanInterval - time.Since(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CircuitBreakerHealth reports per-symbol circuit breaker statistics, one
// entry per symbol whose breaker has been created. The /stats endpoint does
// not include these statistics.
func (s *Scheduler) CircuitBreakerHealth() []resilience.CircuitBreakerStats {
	return s.breakers.AllStats()
}

// scanSymbol fetches every timeframe for symbol, runs the aggregator, and
// writes the result to the store. Transient failures are retried with
// exponential backoff bounded at the tick interval; a symbol's own
// circuit breaker isolates it from the rest of the watchlist.
func (s *Scheduler) scanSymbol(ctx context.Context, symbol string, logger zerolog.Logger) error {
	breaker := s.breakers.Get(symbol)
	retry := resilience.RetryWithBackoff{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      s.cfg.ScanInterval,
		BackoffFactor: 2.0,
		Jitter:        true,
	}

	now := time.Now()
	return retry.ExecuteWithCircuitBreaker(ctx, breaker, func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CandleFetchTimeout)
		defer cancel()

		sig, ok, aggErr := aggregator.Aggregate(fetchCtx, s.source, symbol, s.cfg.Aggregator, now)
		if aggErr != nil {
			return aggErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok {
			s.store.Put(symbol, sig)
			if s.onPublish != nil {
				s.onPublish(sig)
			}
		}
		return nil
	})
}
