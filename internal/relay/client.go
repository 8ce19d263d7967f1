// Per-connection state and the read/write pumps that move envelopes between
// the socket and the rest of the relay.
package relay

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to the peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is the server-side record of one live connection: the socket handle
// (exclusively owned by the registry for the session's lifetime), the bound
// user, and the workspace subscription used to scope channel notifications.
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	router *Router
	addr   string
	log    *slog.Logger

	// Guarded by hub.mu.
	closed    bool
	userID    string
	userName  string
	workspace string

	limiter *rateLimiter
}

// NewClient wraps an upgraded connection. The send channel is the session's
// bounded outbound queue; overflow is treated as a delivery failure by the hub.
func NewClient(conn *websocket.Conn, hub *Hub, router *Router, addr string, cfg Config, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		id:      uuid.New(),
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		hub:     hub,
		router:  router,
		addr:    addr,
		log:     log,
		limiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
	}
}

func (c *Client) closeSocket() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("error closing connection", "session", c.id, "error", err)
	}
}

// isExpectedCloseError reports whether an error is routine connection-teardown
// noise rather than something worth surfacing.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("setting read deadline failed", "session", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) logReadEnd(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("frame exceeded read limit", "session", c.id, "addr", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "session", c.id, "addr", c.addr)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Info("connection closed", "session", c.id, "addr", c.addr)
	default:
		c.log.Warn("read error", "session", c.id, "addr", c.addr, "error", err)
	}
}

// readPump consumes inbound frames and hands each one to the router. Frames
// from one session are handled strictly in arrival order: router dispatch runs
// inline here, never in parallel. Unregistration is atomic with socket
// teardown so no later broadcast targets the dead handle.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeSocket()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadEnd(err)
			return
		}
		incr("frames.in", 1)

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded, discarding frame", "session", c.id, "addr", c.addr)
			incr("frames.throttled", 1)
			continue
		}

		for _, reply := range c.router.Handle(c.hub.ctx, c, raw) {
			c.hub.Reply(c, reply)
		}
	}
}

// writePump drains the session's outbound queue onto the socket and keeps the
// connection alive with pings. It is the sole writer for the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Registry closed the queue; say goodbye.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warn("write failed", "session", c.id, "error", err)
				}
				return
			}
			incr("frames.out", 1)
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
