package relay

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// addSession inserts a pump-less session directly so hub behavior can be
// exercised without real sockets.
func addSession(h *Hub, buffer int) *Client {
	c := &Client{
		id:      uuid.New(),
		send:    make(chan []byte, buffer),
		hub:     h,
		log:     slog.Default(),
		limiter: newRateLimiter(100, time.Second),
	}
	h.mu.Lock()
	h.sessions[c] = true
	h.mu.Unlock()
	return c
}

func drain(c *Client) [][]byte {
	var got [][]byte
	for {
		select {
		case payload := <-c.send:
			got = append(got, payload)
		default:
			return got
		}
	}
}

func TestBroadcastAllExcludesSender(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	sender := addSession(h, 8)
	other1 := addSession(h, 8)
	other2 := addSession(h, 8)

	failed := h.BroadcastAll([]byte("hello"), sender)
	req.Empty(failed)

	req.Empty(drain(sender))
	req.Len(drain(other1), 1)
	req.Len(drain(other2), 1)
}

func TestBroadcastScopedTargetsSubscribersOnly(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	inScope := addSession(h, 8)
	otherScope := addSession(h, 8)
	unsubscribed := addSession(h, 8)

	h.SetSubscription(inScope, "acme")
	h.SetSubscription(otherScope, "globex")

	failed := h.BroadcastScoped([]byte("update"), "acme")
	req.Empty(failed)

	req.Len(drain(inScope), 1)
	req.Empty(drain(otherScope))
	req.Empty(drain(unsubscribed))
}

func TestBroadcastIsolatesFailedRecipients(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	full := addSession(h, 1)
	healthy := addSession(h, 8)

	// Fill the slow session's outbound queue.
	full.send <- []byte("stuck")

	failed := h.BroadcastAll([]byte("payload"), nil)
	req.Equal([]uuid.UUID{full.id}, failed)

	// The healthy session still got its delivery.
	req.Len(drain(healthy), 1)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	gone := addSession(h, 8)
	alive := addSession(h, 8)

	h.Unregister(gone)
	h.BroadcastAll([]byte("late"), nil)

	req.Len(drain(alive), 1)
	req.Len(h.Snapshot(), 1, "snapshot should only hold live sessions")
}

func TestDoubleUnregisterDoesNotPanic(t *testing.T) {
	h := NewHub(slog.Default())
	c := addSession(h, 8)

	h.Unregister(c)
	require.NotPanics(t, func() { h.Unregister(c) })
}

func TestSnapshotToleratesConcurrentUnregister(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	clients := make([]*Client, 0, 10)
	for i := 0; i < 10; i++ {
		clients = append(clients, addSession(h, 1))
	}

	snapshot := h.Snapshot()
	for _, c := range clients {
		h.Unregister(c)
	}
	// Sends to since-unregistered sessions are dropped, not panics.
	for _, c := range snapshot {
		req.False(h.safeSend(c, []byte("x")))
	}
}

func TestBindUserAndSubscription(t *testing.T) {
	req := require.New(t)
	h := NewHub(slog.Default())
	c := addSession(h, 8)

	h.BindUser(c, "user-1", "alice")
	h.SetSubscription(c, "acme")

	req.Equal("user-1", h.UserID(c))

	h.SetSubscription(c, "globex")
	h.BroadcastScoped([]byte("update"), "acme")
	req.Empty(drain(c), "subscription should reflect the most recent request")
}

func TestReplyDropsWhenQueueFull(t *testing.T) {
	h := NewHub(slog.Default())
	c := addSession(h, 1)
	c.send <- []byte("stuck")

	require.NotPanics(t, func() { h.Reply(c, []byte("reply")) })
}
