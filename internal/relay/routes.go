// Route wiring for the relay's HTTP surface.
package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// NewRoutes returns the router serving the WebSocket endpoint and the health
// check.
func NewRoutes(hub *Hub, router *Router, cfg Config, log *slog.Logger) *mux.Router {
	m := mux.NewRouter()
	m.Handle("/ws", NewWSHandler(hub, router, cfg, log)).Methods(http.MethodGet)
	m.HandleFunc("/healthz", HealthHandler).Methods(http.MethodGet)
	return m
}
