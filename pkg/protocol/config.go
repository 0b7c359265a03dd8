package protocol

import (
	"log/slog"

	"github.com/firefly-protocol/firefly-go/pkg/log"
)

// ConnectionConfig configures a Connection. Zero fields take defaults.
type ConnectionConfig struct {
	// RemoteAddr describes the peer for traces and logs.
	RemoteAddr string

	// Logger receives protocol trace events (optional).
	Logger log.Logger

	// Slog receives operational logs. Defaults to slog.Default().
	Slog *slog.Logger

	// Metrics receives counters (optional).
	Metrics Metrics
}

// DefaultConnectionConfig returns a config with tracing and metrics off.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Logger:  log.NoopLogger{},
		Slog:    slog.Default(),
		Metrics: NoopMetrics{},
	}
}

func (c *ConnectionConfig) applyDefaults() {
	c.Logger = log.OrNoop(c.Logger)
	if c.Slog == nil {
		c.Slog = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
}
