package relay

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginChecker(t *testing.T) {
	log := slog.Default()

	t.Run("allows listed origins case-insensitively", func(t *testing.T) {
		oc := newOriginChecker([]string{"http://Localhost:8081"}, log)
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "http://localhost:8081")
		require.True(t, oc.check(r))
	})

	t.Run("blocks unlisted origins", func(t *testing.T) {
		oc := newOriginChecker([]string{"http://localhost:8081"}, log)
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "http://evil.example")
		require.False(t, oc.check(r))
	})

	t.Run("blocks requests without an origin header", func(t *testing.T) {
		oc := newOriginChecker([]string{"*"}, log)
		r := httptest.NewRequest("GET", "/ws", nil)
		require.False(t, oc.check(r))
	})

	t.Run("wildcard allows any well-formed origin", func(t *testing.T) {
		oc := newOriginChecker([]string{"*"}, log)
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "https://anything.example")
		require.True(t, oc.check(r))
	})

	t.Run("malformed configured origins are skipped", func(t *testing.T) {
		oc := newOriginChecker([]string{"not a url", ""}, log)
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Origin", "http://localhost:8081")
		require.False(t, oc.check(r))
	})
}
