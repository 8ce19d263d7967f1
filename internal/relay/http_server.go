// HTTP server lifecycle helpers with production-leaning defaults.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer configures the HTTP server fronting the relay.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer begins listening and blocks until the server exits.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer stops accepting new connections and waits up to timeout for
// in-flight requests to drain.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown error", "error", err)
		return err
	}
	log.Info("http server shutdown completed")
	return nil
}
