package transport

import (
	"log/slog"
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/protocol"
)

// Port defaults.
const (
	DefaultListenAddr      = ":0"
	DefaultMaxRetries      = 10
	DefaultMaxDatagramSize = 1472
)

// PortConfig configures a UDP Port.
type PortConfig struct {
	// ListenAddr is the local UDP address, e.g. ":7400".
	ListenAddr string

	// ResendTimeout is the delay before the first retransmission.
	ResendTimeout time.Duration

	// ResendBackoff shapes later retransmission delays. Its Initial is
	// replaced by ResendTimeout.
	ResendBackoff BackoffConfig

	// MaxRetries bounds retransmissions of one datagram before the
	// connection is closed. Negative means retry forever.
	MaxRetries int

	// MaxDatagramSize bounds reads and writes.
	MaxDatagramSize int

	// Logger receives protocol trace events (optional).
	Logger log.Logger

	// Slog receives operational logs. Defaults to slog.Default().
	Slog *slog.Logger

	// Metrics receives protocol and datagram counters (optional).
	Metrics Metrics

	// OnRelease is called on the consumer after a connection has closed
	// and the port has forgotten its peer (optional).
	OnRelease func(conn *protocol.Connection)
}

// DefaultPortConfig returns the default configuration.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		ListenAddr:      DefaultListenAddr,
		ResendTimeout:   DefaultResendTimeout,
		ResendBackoff:   BackoffConfig{Max: DefaultMaxResendWait, Multiplier: BackoffMultiplier, Jitter: JitterFactor},
		MaxRetries:      DefaultMaxRetries,
		MaxDatagramSize: DefaultMaxDatagramSize,
		Logger:          log.NoopLogger{},
		Slog:            slog.Default(),
		Metrics:         NoopMetrics{},
	}
}

func (c *PortConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.ResendTimeout <= 0 {
		c.ResendTimeout = DefaultResendTimeout
	}
	c.ResendBackoff.Initial = c.ResendTimeout
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = DefaultMaxDatagramSize
	}
	c.Logger = log.OrNoop(c.Logger)
	if c.Slog == nil {
		c.Slog = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
}

// Metrics extends protocol.Metrics with datagram counters.
type Metrics interface {
	protocol.Metrics
	DatagramSent(size int)
	DatagramReceived(size int)
	Resent()
	ResendExhausted()
}

// NoopMetrics discards all counters.
type NoopMetrics struct {
	protocol.NoopMetrics
}

func (NoopMetrics) DatagramSent(int)     {}
func (NoopMetrics) DatagramReceived(int) {}
func (NoopMetrics) Resent()              {}
func (NoopMetrics) ResendExhausted()     {}

var _ Metrics = NoopMetrics{}
