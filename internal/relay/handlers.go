// HTTP handlers: the WebSocket upgrade endpoint and the health check.
package relay

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

type wsHandler struct {
	hub      *Hub
	router   *Router
	cfg      Config
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

// NewWSHandler builds the upgrade handler that turns HTTP requests into
// registered relay sessions.
func NewWSHandler(hub *Hub, router *Router, cfg Config, log *slog.Logger) http.Handler {
	checker := newOriginChecker(cfg.Origins(), log)
	return &wsHandler{
		hub:    hub,
		router: router,
		cfg:    cfg,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.check,
		},
		log: log,
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}
	client := NewClient(conn, h.hub, h.router, r.RemoteAddr, h.cfg, h.log)
	// Registration launches the pump goroutines.
	h.hub.Register(client)
}

// HealthHandler reports liveness in plain text.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relay is running\n")
}
