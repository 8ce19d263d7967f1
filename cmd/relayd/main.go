package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hivechat/relay/internal/relay"
	"github.com/hivechat/relay/internal/store"
)

// Exit codes surfaced to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayd terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the process together and owns its lifecycle, so deferred cleanup
// (database close, session drain) executes before the exit code is returned.
func run() (int, error) {
	// A .env file is optional; the environment always wins.
	_ = godotenv.Load()

	cfg, err := relay.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	gw, err := store.Open(cfg.DataDir, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("closing document store failed", "error", err)
		}
	}()

	hub := relay.NewHub(logger)
	directory := relay.NewDirectory(gw, logger)
	router := relay.NewRouter(gw, directory, hub, logger)

	server := relay.CreateServer(cfg.ListenAddr, relay.NewRoutes(hub, router, cfg, logger))

	relay.StartMetricsReport(cfg.MetricsInterval, os.Stderr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.StartServer(server, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	}

	if err := relay.ShutdownServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("session drain incomplete", "error", err)
	}
	relay.WriteMetricsOnce(os.Stderr)

	return exitOK, nil
}
