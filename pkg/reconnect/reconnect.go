package reconnect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/transport"
)

// Manager errors.
var (
	ErrClosed           = errors.New("reconnect manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// Defaults for DefaultConfig.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25

	DefaultConnectTimeout = 10 * time.Second
)

// State is the link state seen by a Manager.
type State uint8

const (
	// StateDisconnected indicates no link and no pending attempt.
	StateDisconnected State = iota

	// StateConnecting indicates a Connect call is running.
	StateConnecting

	// StateConnected indicates an established link.
	StateConnected

	// StateReconnecting indicates the background loop is retrying.
	StateReconnecting

	// StateClosed indicates the Manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the link. It returns nil once the link is usable.
type ConnectFunc func(ctx context.Context) error

// Config configures a Manager.
type Config struct {
	// Backoff spaces reconnection attempts.
	Backoff transport.BackoffConfig

	// ConnectTimeout bounds one background attempt.
	ConnectTimeout time.Duration

	// Logger receives attempt logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default reconnection policy.
func DefaultConfig() Config {
	return Config{
		Backoff: transport.BackoffConfig{
			Initial:    InitialBackoff,
			Max:        MaxBackoff,
			Multiplier: BackoffMultiplier,
			Jitter:     JitterFactor,
		},
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Manager re-runs a ConnectFunc with backoff whenever the link is lost.
type Manager struct {
	mu sync.RWMutex

	state    State
	attempts int

	backoff *transport.Backoff
	cfg     Config
	connect ConnectFunc

	autoReconnect bool

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	reconnectCh chan struct{}

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a Manager for connect. Zero config fields take the
// DefaultConfig values.
func NewManager(connect ConnectFunc, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		backoff:       transport.NewBackoff(cfg.Backoff),
		cfg:           cfg,
		connect:       connect,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the link is established.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Attempts returns the number of failed attempts since the last success.
func (m *Manager) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// SetAutoReconnect enables or disables reconnection after a loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback invoked before each background attempt.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// Start runs the background loop and schedules a first attempt, so a peer
// that is down at startup is retried like a lost one.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.loop()

	if m.transition(StateDisconnected, StateReconnecting) {
		m.trigger()
	}
}

// Connect makes one attempt in the caller's goroutine.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.notify(old, StateConnecting)

	if err := m.connect(ctx); err != nil {
		m.transition(StateConnecting, StateDisconnected)
		return err
	}
	m.connected(StateConnecting)
	return nil
}

// NotifyConnectionLost reports that the link went away. With auto
// reconnect enabled the background loop starts retrying.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	m.state = next
	m.mu.Unlock()
	m.notify(StateConnected, next)

	if next == StateReconnecting {
		m.trigger()
	}
}

// Close stops the background loop and waits for it.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.mu.Unlock()
	m.notify(old, StateClosed)

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) trigger() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.reconnect()
		}
	}
}

// reconnect retries until connected or closed. The first attempt of a
// round runs without delay.
func (m *Manager) reconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		m.mu.RLock()
		attempt := m.attempts
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()

		var delay time.Duration
		if attempt > 0 {
			delay = m.backoff.Delay(attempt - 1)
		}
		if onReconnecting != nil {
			onReconnecting(attempt+1, delay)
		}
		if delay > 0 {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
		err := m.connect(ctx)
		cancel()

		if err == nil {
			m.connected(StateReconnecting)
			return
		}

		m.mu.Lock()
		m.attempts++
		attempt = m.attempts
		m.mu.Unlock()
		m.cfg.Logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

// connected moves from "from" to StateConnected unless the state changed
// in between, e.g. by Close.
func (m *Manager) connected(from State) {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return
	}
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()
	m.notify(from, StateConnected)
}

func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.mu.Unlock()
	m.notify(from, to)
	return true
}

func (m *Manager) notify(oldState, newState State) {
	m.mu.RLock()
	fn := m.onStateChange
	m.mu.RUnlock()
	if fn != nil {
		fn(oldState, newState)
	}
}
