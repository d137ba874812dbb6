package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"smc-scanner/internal/models"
	"smc-scanner/internal/store"
)

// maxSearchResults caps the number of signals returned by SearchSignals.
const maxSearchResults = 20

// Handler implements the scanner's read/control HTTP surface over a
// Deps bundle.
type Handler struct {
	deps Deps
}

// ListSignals returns every published InstrumentSignal, optionally
// narrowed by query params: direction, structure, symbol, proximity,
// minMatches.
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	writeJSON(w, http.StatusOK, h.deps.Store.All(filter))
}

// GetSignal returns the signal for one symbol by path parameter.
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	sig, ok := h.deps.Store.Get(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "symbol not found")
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// SearchSignals resolves a case-insensitive substring or alias query
// against tracked symbols (e.g. "bank nifty" -> BANKNIFTY).
func (h *Handler) SearchSignals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	results := h.deps.Store.All(store.Filter{Query: query})
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	writeJSON(w, http.StatusOK, results)
}

// statsResponse summarizes the store's current coverage.
type statsResponse struct {
	TrackedSymbols    int     `json:"tracked_symbols"`
	Subscribers       int     `json:"subscribers"`
	Total             int     `json:"total"`
	Upper             int     `json:"upper"`
	Lower             int     `json:"lower"`
	Favorites         int     `json:"favorites"`
	LastScanTime      string  `json:"lastScanTime,omitempty"`
	NextScanInSeconds float64 `json:"nextScanInSeconds"`
}

// Stats reports the store's coverage broken down by structural bias, the
// configured favorites still being tracked, and the scheduler's tick timing.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	all := h.deps.Store.All(store.Filter{})

	resp := statsResponse{
		TrackedSymbols: h.deps.Store.Size(),
		Total:          len(all),
	}
	for _, sig := range all {
		switch {
		case sig.OverallStructure.IsBullishFamily():
			resp.Upper++
		case sig.OverallStructure.IsBearishFamily():
			resp.Lower++
		}
	}

	favorites := make(map[string]bool, len(h.deps.Favorites))
	for _, f := range h.deps.Favorites {
		favorites[strings.ToUpper(f)] = true
	}
	for _, sig := range all {
		if favorites[strings.ToUpper(sig.Symbol)] {
			resp.Favorites++
		}
	}

	if h.deps.Bus != nil {
		resp.Subscribers = h.deps.Bus.SubscriberCount()
	}
	if h.deps.Scheduler != nil {
		if last := h.deps.Scheduler.LastScanTime(); !last.IsZero() {
			resp.LastScanTime = last.Format(time.RFC3339)
		}
		resp.NextScanInSeconds = h.deps.Scheduler.NextScanIn().Seconds()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Rescan triggers an out-of-band scan tick, bypassing the scheduler's
// own ticker, if a Rescan hook was configured.
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	if h.deps.Rescan == nil {
		writeError(w, http.StatusServiceUnavailable, "rescan not available")
		return
	}
	go h.deps.Rescan()
	w.WriteHeader(http.StatusAccepted)
}

// RecentAlerts returns the most recent alerts from the ring buffer,
// bounded by an optional ?limit= query param.
func (h *Handler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.deps.Bus.Recent(limit))
}

// MarkAlertRead marks an alert as read by ID.
func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.deps.Bus.MarkRead(id)
	w.WriteHeader(http.StatusNoContent)
}

func parseFilter(r *http.Request) store.Filter {
	q := r.URL.Query()
	filter := store.Filter{
		Direction: store.DirectionFamily(strings.ToLower(q.Get("direction"))),
		Structure: models.CurrentStructure(q.Get("structure")),
		Query:     q.Get("symbol"),
	}
	if raw := q.Get("proximity"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.HasProximity = true
			filter.ProximityMaxPct = v
		}
	}
	if raw := q.Get("minMatches"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.MinMatches = v
		}
	}
	return filter
}
