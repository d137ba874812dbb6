// Package store holds the most recent InstrumentSignal per symbol, the way
// the trade journal's SQLiteStore holds the most recent row per key, but
// in memory with one RWMutex-guarded map instead of a database connection:
// reads here are hot-path (every HTTP request and rescan), never hit disk.
package store

import (
	"strings"
	"sync"
	"time"

	"smc-scanner/internal/models"
)

// SignalStore is a concurrent-safe map from symbol to the most recent
// InstrumentSignal. Writes are whole-record replaces under one store-wide
// lock, not a per-key guard; partial updates are not supported.
type SignalStore struct {
	mu         sync.RWMutex
	signals    map[string]models.InstrumentSignal
	staleAfter time.Duration
	alias      *AliasTable
}

// New creates an empty signal store. staleAfter is the age at which a
// record is marked stale on read. New applies no default; zero disables
// staleness marking.
func New(staleAfter time.Duration, alias *AliasTable) *SignalStore {
	return &SignalStore{
		signals:    make(map[string]models.InstrumentSignal),
		staleAfter: staleAfter,
		alias:      alias,
	}
}

// Put replaces the stored signal for symbol in full.
func (s *SignalStore) Put(symbol string, signal models.InstrumentSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[symbol] = signal
}

// Get returns a point-in-time copy of the signal for symbol, with Stale set
// if the record is older than staleAfter. Returns ok=false if never written.
func (s *SignalStore) Get(symbol string) (models.InstrumentSignal, bool) {
	s.mu.RLock()
	sig, ok := s.signals[symbol]
	s.mu.RUnlock()
	if !ok {
		return models.InstrumentSignal{}, false
	}
	sig.Stale = s.isStale(sig)
	return sig, true
}

func (s *SignalStore) isStale(sig models.InstrumentSignal) bool {
	return s.staleAfter > 0 && time.Since(sig.GeneratedAt) > s.staleAfter
}

// DirectionFamily narrows signals to the bullish or bearish half of the
// structure enum, grouping a BOS-driven bias with its CHOCH-driven
// counterpart. It is deliberately a coarser filter than Structure: a caller
// asking for "upper" signals doesn't care whether the bias arrived via
// continuation or reversal.
type DirectionFamily string

const (
	DirectionFamilyUpper DirectionFamily = "upper"
	DirectionFamilyLower DirectionFamily = "lower"
)

// Filter narrows the criteria a query applies against the stored signals.
// Zero values mean "no constraint" for that field.
type Filter struct {
	ProximityMaxPct float64
	HasProximity    bool
	Direction       DirectionFamily
	Structure       models.CurrentStructure
	MinMatches      int
	Query           string
}

// All returns point-in-time copies of every stored signal matching filter,
// sorted by symbol for stable output.
func (s *SignalStore) All(filter Filter) []models.InstrumentSignal {
	s.mu.RLock()
	out := make([]models.InstrumentSignal, 0, len(s.signals))
	for _, sig := range s.signals {
		out = append(out, sig)
	}
	s.mu.RUnlock()

	matches := make([]models.InstrumentSignal, 0, len(out))
	for _, sig := range out {
		sig.Stale = s.isStale(sig)
		if s.matches(sig, filter) {
			matches = append(matches, sig)
		}
	}
	sortBySymbol(matches)
	return matches
}

func (s *SignalStore) matches(sig models.InstrumentSignal, f Filter) bool {
	if f.HasProximity && sig.AvgProximityPct > f.ProximityMaxPct {
		return false
	}
	switch f.Direction {
	case DirectionFamilyUpper:
		if !sig.OverallStructure.IsBullishFamily() {
			return false
		}
	case DirectionFamilyLower:
		if !sig.OverallStructure.IsBearishFamily() {
			return false
		}
	}
	if f.Structure != "" && sig.OverallStructure != f.Structure {
		return false
	}
	if f.MinMatches > 0 && sig.MatchingTimeframes < f.MinMatches {
		return false
	}
	if f.Query != "" && !s.symbolMatches(sig.Symbol, f.Query) {
		return false
	}
	return true
}

// symbolMatches reports whether query matches symbol by case-insensitive
// substring, or by alias lookup (e.g. "bank nifty" -> BANKNIFTY) when an
// alias table is configured.
func (s *SignalStore) symbolMatches(symbol, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.Contains(strings.ToLower(symbol), q) {
		return true
	}
	if s.alias == nil {
		return false
	}
	resolved, ok := s.alias.Resolve(q)
	return ok && strings.EqualFold(resolved, symbol)
}

// Size returns the number of symbols currently tracked.
func (s *SignalStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals)
}

func sortBySymbol(signals []models.InstrumentSignal) {
	for i := 1; i < len(signals); i++ {
		for j := i; j > 0 && signals[j].Symbol < signals[j-1].Symbol; j-- {
			signals[j], signals[j-1] = signals[j-1], signals[j]
		}
	}
}
