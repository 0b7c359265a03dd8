package transport

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults for resend delays.
const (
	DefaultResendTimeout = 200 * time.Millisecond
	DefaultMaxResendWait = 5 * time.Second
	BackoffMultiplier    = 2.0
	JitterFactor         = 0.1
)

// BackoffConfig configures resend delays.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Backoff computes exponential delays with jitter for retransmissions.
// It is safe for concurrent use.
type Backoff struct {
	cfg BackoffConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a Backoff. Invalid fields take defaults; a multiplier
// of 1 or less would never grow and is replaced too.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultResendTimeout
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxResendWait
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Base returns the delay before retransmission number attempt+1, without
// jitter: Initial * Multiplier^attempt, capped at Max.
func (b *Backoff) Base(attempt int) time.Duration {
	if attempt <= 0 {
		return b.cfg.Initial
	}
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if d >= float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Delay returns Base(attempt) plus up to Jitter of it.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base(attempt)
	if b.cfg.Jitter == 0 {
		return d
	}
	b.mu.Lock()
	f := b.rng.Float64()
	b.mu.Unlock()
	return d + time.Duration(float64(d)*b.cfg.Jitter*f)
}
