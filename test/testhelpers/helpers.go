// Package testhelpers provides shared utilities for the relay's integration
// tests: spinning up a fully wired relay over httptest and talking to it over
// real WebSocket connections.
package testhelpers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hivechat/relay/internal/relay"
	"github.com/hivechat/relay/internal/store"
)

// TestOrigin is the origin every test connection presents; relay instances
// started by StartRelay allow it.
const TestOrigin = "http://relay.test"

// Relay is one fully wired relay instance backed by a throwaway store.
type Relay struct {
	Server *httptest.Server
	Hub    *relay.Hub
	Store  store.Gateway
	Config relay.Config
}

// StartRelay boots a relay on an httptest server with storage under a temp
// directory. Everything is torn down via t.Cleanup.
func StartRelay(t *testing.T) *Relay {
	t.Helper()
	log := slog.Default()

	gw, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	cfg := relay.DefaultConfig()
	cfg.AllowedOrigins = TestOrigin

	hub := relay.NewHub(log)
	dir := relay.NewDirectory(gw, log)
	router := relay.NewRouter(gw, dir, hub, log)

	server := httptest.NewServer(relay.NewRoutes(hub, router, cfg, log))
	t.Cleanup(server.Close)
	t.Cleanup(func() { _ = hub.Shutdown(2 * time.Second) })

	return &Relay{Server: server, Hub: hub, Store: gw, Config: cfg}
}

// WSURL rewrites the test server's http URL to the ws scheme and appends the
// upgrade path.
func (r *Relay) WSURL() string {
	return "ws" + strings.TrimPrefix(r.Server.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the relay with the allowed origin.
// The connection is closed via t.Cleanup.
func (r *Relay) Dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, err := DialOrigin(r.WSURL(), TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialOrigin opens a WebSocket connection presenting the given origin header.
func DialOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendFrame writes one JSON frame.
func SendFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
}

// ReceiveFrame reads one JSON frame, failing the test if none arrives within
// the deadline.
func ReceiveFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// ExpectSilence asserts that no frame arrives within the window.
func ExpectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got one")
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "read should time out, got: %v", err)
}

// MakeRequest performs an HTTP request against the relay with a short timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// CloseWebSocket performs a graceful close handshake.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
