package reconnect

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firefly-protocol/firefly-go/pkg/transport"
)

func fastConfig() Config {
	return Config{
		Backoff: transport.BackoffConfig{
			Initial:    20 * time.Millisecond,
			Max:        80 * time.Millisecond,
			Multiplier: 2.0,
		},
		ConnectTimeout: time.Second,
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() = %v, want %v", m.State(), want)
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "DISCONNECTED",
		StateConnecting:   "CONNECTING",
		StateConnected:    "CONNECTED",
		StateReconnecting: "RECONNECTING",
		StateClosed:       "CLOSED",
		State(99):         "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Backoff.Initial != InitialBackoff || cfg.Backoff.Max != MaxBackoff {
		t.Errorf("unexpected backoff: %+v", cfg.Backoff)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
}

func TestConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		m := NewManager(func(context.Context) error { return nil }, fastConfig())
		defer m.Close()

		if err := m.Connect(context.Background()); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if !m.IsConnected() {
			t.Error("expected connected")
		}
		if err := m.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
		}
	})

	t.Run("Failure", func(t *testing.T) {
		boom := errors.New("unreachable")
		m := NewManager(func(context.Context) error { return boom }, fastConfig())
		defer m.Close()

		if err := m.Connect(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Connect() error = %v", err)
		}
		if m.State() != StateDisconnected {
			t.Errorf("State() = %v, want DISCONNECTED", m.State())
		}
	})

	t.Run("AfterClose", func(t *testing.T) {
		m := NewManager(func(context.Context) error { return nil }, fastConfig())
		m.Close()
		if err := m.Connect(context.Background()); !errors.Is(err, ErrClosed) {
			t.Errorf("Connect() error = %v, want ErrClosed", err)
		}
		// Close is idempotent
		m.Close()
	})
}

func TestStartConnectsInBackground(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(context.Context) error {
		calls.Add(1)
		return nil
	}, fastConfig())
	m.Start()
	defer m.Close()

	waitState(t, m, StateConnected)
	if calls.Load() != 1 {
		t.Errorf("connect called %d times, want 1", calls.Load())
	}
}

func TestReconnectAfterLoss(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(context.Context) error {
		calls.Add(1)
		return nil
	}, fastConfig())
	m.Start()
	defer m.Close()

	waitState(t, m, StateConnected)
	m.NotifyConnectionLost()
	waitState(t, m, StateConnected)

	if calls.Load() != 2 {
		t.Errorf("connect called %d times, want 2", calls.Load())
	}
}

func TestReconnectBacksOff(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time

	m := NewManager(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		times = append(times, time.Now())
		if len(times) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, fastConfig())

	var delays []time.Duration
	m.OnReconnecting(func(_ int, delay time.Duration) {
		mu.Lock()
		delays = append(delays, delay)
		mu.Unlock()
	})
	m.Start()
	defer m.Close()

	waitState(t, m, StateConnected)

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 3 {
		t.Fatalf("attempts = %d, want 3", len(times))
	}
	want := []time.Duration{0, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, d := range want {
		if delays[i] != d {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], d)
		}
	}
	if gap := times[2].Sub(times[1]); gap < 40*time.Millisecond {
		t.Errorf("third attempt after %v, want >= 40ms", gap)
	}
	if m.Attempts() != 0 {
		t.Errorf("Attempts() = %d after success, want 0", m.Attempts())
	}
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(context.Context) error {
		calls.Add(1)
		return nil
	}, fastConfig())
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.SetAutoReconnect(false)
	m.NotifyConnectionLost()

	if m.State() != StateDisconnected {
		t.Errorf("State() = %v, want DISCONNECTED", m.State())
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("connect called %d times, want 1", calls.Load())
	}
}

func TestCloseStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	}, fastConfig())

	var transitions []State
	var mu sync.Mutex
	m.OnStateChange(func(_, newState State) {
		mu.Lock()
		transitions = append(transitions, newState)
		mu.Unlock()
	})
	m.Start()

	time.Sleep(50 * time.Millisecond)
	m.Close()
	after := calls.Load()
	time.Sleep(100 * time.Millisecond)

	if calls.Load() != after {
		t.Errorf("connect called after Close")
	}
	if m.State() != StateClosed {
		t.Errorf("State() = %v, want CLOSED", m.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[0] != StateReconnecting || transitions[len(transitions)-1] != StateClosed {
		t.Errorf("transitions = %v", transitions)
	}
}
