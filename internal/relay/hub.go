// Session registration, subscription state, and envelope fan-out.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub is the session registry and broadcast engine. It tracks every live
// connection together with its user binding and workspace subscription, all
// guarded by one mutex. The lock scope never includes network I/O: fan-out
// enqueues into per-client buffered channels and a full buffer is handled as a
// delivery failure, never as a blocking write.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Client]bool

	log    *slog.Logger
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates an empty registry ready to accept sessions.
func NewHub(log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions: make(map[*Client]bool),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a session and starts its read/write pumps. The write pump is
// the only goroutine writing to the socket; the read pump handles frames
// strictly in arrival order.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	c.closed = false
	h.sessions[c] = true
	total := len(h.sessions)
	h.mu.Unlock()

	incr("sessions", 1)
	h.log.Info("session registered", "session", c.id, "addr", c.addr, "total", total)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Unregister removes a session and closes its send channel, atomically with
// respect to broadcasts: once the entry is gone no fan-out will target it.
// Unregistering a session that is not in the registry is an invariant
// violation and is logged loudly instead of crashing the relay.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.sessions[c]
	if ok {
		delete(h.sessions, c)
		c.closed = true
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		h.log.Error("unregister of unknown session, registry invariant violated", "session", c.id)
		return
	}
	// Closing after releasing the lock; safeSend tolerates the race via the
	// closed flag.
	close(c.send)
	decr("sessions", 1)
	h.log.Info("session unregistered", "session", c.id, "addr", c.addr, "total", total)
}

// SetSubscription records the workspace whose channel-level notifications this
// session should receive. It reflects the session's most recent channel-list
// request and is a best-effort cache, not a source of truth.
func (h *Hub) SetSubscription(c *Client, workspace string) {
	h.mu.Lock()
	c.workspace = workspace
	h.mu.Unlock()
}

// BindUser attaches a persisted user identity to the session.
func (h *Hub) BindUser(c *Client, userID, name string) {
	h.mu.Lock()
	c.userID = userID
	c.userName = name
	h.mu.Unlock()
}

// UserID returns the user identifier bound to the session, if any.
func (h *Hub) UserID(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.userID
}

// Snapshot returns the currently live sessions. Iterating the snapshot is safe
// against concurrent unregistration; sends to since-closed sessions are
// dropped by safeSend.
func (h *Hub) Snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sessions := make([]*Client, 0, len(h.sessions))
	for c := range h.sessions {
		sessions = append(sessions, c)
	}
	return sessions
}

// safeSend enqueues payload for one session. It reports false when the
// session is gone or its outbound buffer is full.
func (h *Hub) safeSend(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.sessions[c] || c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// BroadcastAll delivers payload to every live session except exclude (may be
// nil). A failure to one recipient never aborts delivery to the rest; failed
// session ids are returned for the caller to log, and the offending
// connections are closed so cleanup happens on their own close path.
func (h *Hub) BroadcastAll(payload []byte, exclude *Client) []uuid.UUID {
	return h.fanOut(payload, func(c *Client) bool { return c != exclude })
}

// BroadcastScoped delivers payload only to sessions whose current subscription
// equals workspace.
func (h *Hub) BroadcastScoped(payload []byte, workspace string) []uuid.UUID {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.sessions))
	for c := range h.sessions {
		if c.workspace == workspace {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	return h.deliver(payload, targets)
}

func (h *Hub) fanOut(payload []byte, include func(*Client) bool) []uuid.UUID {
	var targets []*Client
	for _, c := range h.Snapshot() {
		if include(c) {
			targets = append(targets, c)
		}
	}
	return h.deliver(payload, targets)
}

func (h *Hub) deliver(payload []byte, targets []*Client) []uuid.UUID {
	var failed []uuid.UUID
	for _, c := range targets {
		if h.safeSend(c, payload) {
			incr("broadcast.sent", 1)
			continue
		}
		failed = append(failed, c.id)
		incr("broadcast.drops", 1)
		h.log.Warn("delivery failed, disconnecting slow session", "session", c.id, "addr", c.addr)
		// Overflowing receivers are disconnected rather than skipped forever;
		// the close unblocks the pumps and removal happens in readPump's
		// defer, never inside the fan-out.
		c.closeSocket()
	}
	return failed
}

// Reply enqueues a payload for the originating session itself.
func (h *Hub) Reply(c *Client, payload []byte) {
	if payload == nil {
		return
	}
	if !h.safeSend(c, payload) {
		h.log.Warn("reply dropped", "session", c.id)
		incr("broadcast.drops", 1)
	}
}

// Shutdown closes every live socket and waits for all pump goroutines to
// finish, or gives up after timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("draining session registry")
	h.cancel()

	for _, c := range h.Snapshot() {
		c.closeSocket()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("session registry drained")
		return nil
	case <-time.After(timeout):
		h.log.Warn("session registry drain timed out")
		return context.DeadlineExceeded
	}
}
