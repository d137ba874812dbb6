// Package httpapi exposes the Signal Store and Subscription Bus over
// HTTP and WebSocket, generalizing the chi-router wiring pattern of a
// REST-plus-streaming market surface to the scanner's read-only signal
// surface: the HTTP accept loop only ever reads the store, never the
// scheduler's in-flight state.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"smc-scanner/internal/bus"
	"smc-scanner/internal/metrics"
	"smc-scanner/internal/scheduler"
	"smc-scanner/internal/store"
)

// Deps bundles everything the router's handlers read from.
type Deps struct {
	Store     *store.SignalStore
	Bus       *bus.Bus
	Metrics   *metrics.Metrics
	Rescan    func()
	WSOrigin  string
	Scheduler *scheduler.Scheduler
	Favorites []string
}

// NewRouter builds the full HTTP surface: signal queries, stats, manual
// rescan, alert history, alert-read, and the live alert WebSocket.
func NewRouter(d Deps) http.Handler {
	h := &Handler{deps: d}
	ws := &WSHandler{bus: d.Bus, origin: d.WSOrigin}

	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/signals", h.ListSignals)
	r.Get("/signals/{symbol}", h.GetSignal)
	r.Get("/signals/search", h.SearchSignals)
	r.Get("/stats", h.Stats)
	r.Post("/rescan", h.Rescan)
	r.Get("/alerts", h.RecentAlerts)
	r.Post("/alerts/{id}/read", h.MarkAlertRead)
	r.Get("/alerts/stream", ws.ServeHTTP)

	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.Handler().ServeHTTP)
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
