package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"smc-scanner/internal/bus"
	"smc-scanner/internal/models"
)

// WSHandler upgrades a connection and streams live alerts to it until
// the client disconnects, mirroring a single-topic variant of a
// bus-backed WebSocket relay: one subscription per connection, filtered
// by query params, with reads drained purely to detect client close.
type WSHandler struct {
	bus    *bus.Bus
	origin string
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "" || origin == "*" {
		return true
	}
	reqOrigin := r.Header.Get("Origin")
	return strings.EqualFold(reqOrigin, origin)
}

func (h *WSHandler) upgraderFor() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, h.origin) },
	}
}

// ServeHTTP upgrades the request and streams alerts matching the
// symbol/type/priority query parameters until the client disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgraderFor()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	filter := wsFilterFromQuery(r)
	id, ch := h.bus.Subscribe(filter)
	defer h.bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case alert, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(alert); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func wsFilterFromQuery(r *http.Request) bus.Filter {
	q := r.URL.Query()
	return bus.Filter{
		Symbol:   q.Get("symbol"),
		Type:     models.AlertType(q.Get("type")),
		Priority: models.AlertPriority(q.Get("priority")),
	}
}
