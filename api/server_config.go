package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the API and metrics listeners of a governance node.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr is the Prometheus listener. Empty keeps metrics in-process only.
	MetricsAddr string

	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long /drain waits, with /readyz failing, before
	// reporting the drain as complete.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests on Shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewHTTPServerConfig returns the defaults governance-node runs with.
// Ballot relays and settlements are single ledger operations, so the write
// timeout stays short.
func NewHTTPServerConfig(listenAddr string, log *slog.Logger) *HTTPServerConfig {
	return &HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      log,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}
