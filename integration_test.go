package firefly_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/metrics"
	"github.com/firefly-protocol/firefly-go/pkg/protocol"
	"github.com/firefly-protocol/firefly-go/pkg/transport"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

const waitFor = 5 * time.Second

type sample struct {
	ch      protocol.ChannelID
	payload string
}

// peerNode is a port with its own queue, trace file and metrics registry.
type peerNode struct {
	name     string
	q        *eventqueue.Queue[protocol.Event]
	port     *transport.Port
	registry *prometheus.Registry
	trace    string
	traceLog *log.FileLogger

	opened chan *protocol.Channel
	closed chan protocol.ChannelID
	data   chan sample

	mu   sync.Mutex
	errs []error
}

func (n *peerNode) handler() protocol.Handler {
	return protocol.HandlerFuncs{
		Opened: func(ch *protocol.Channel) { n.opened <- ch },
		Closed: func(ch *protocol.Channel) { n.closed <- ch.LocalID() },
		Data: func(ch *protocol.Channel, payload []byte) {
			n.data <- sample{ch.LocalID(), string(payload)}
		},
	}
}

func startPeer(t *testing.T, name string, accept bool) *peerNode {
	t.Helper()
	n := &peerNode{
		name:     name,
		registry: prometheus.NewRegistry(),
		trace:    filepath.Join(t.TempDir(), name+".flog"),
		opened:   make(chan *protocol.Channel, 32),
		closed:   make(chan protocol.ChannelID, 32),
		data:     make(chan sample, 256),
	}

	collector := metrics.New(metrics.WithRegistry(n.registry), metrics.WithSubsystem(name))
	n.q = eventqueue.New[protocol.Event](protocol.Dispatch,
		eventqueue.WithObserver(collector),
		eventqueue.WithErrorHandler(func(_ any, err error) {
			n.mu.Lock()
			n.errs = append(n.errs, err)
			n.mu.Unlock()
		}),
	)

	fl, err := log.NewFileLogger(n.trace)
	require.NoError(t, err)
	n.traceLog = fl

	cfg := transport.DefaultPortConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Logger = fl
	cfg.Metrics = collector

	var onRecv transport.ConnRecvFunc
	if accept {
		onRecv = func(p *transport.Port, addr *net.UDPAddr) *protocol.Connection {
			conn, err := p.Accept(addr, n.handler())
			if err != nil {
				return nil
			}
			return conn
		}
	}
	n.port, err = transport.NewPort(n.q, cfg, onRecv)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go n.q.Run(ctx)
	require.NoError(t, n.port.Start(ctx))

	t.Cleanup(func() {
		_ = n.port.Close()
		select {
		case <-n.port.Done():
		case <-time.After(waitFor):
			t.Errorf("%s: port did not shut down", name)
		}
		cancel()
		_ = fl.Close()
	})
	return n
}

func (n *peerNode) Errors() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.errs...)
}

// counter sums every series of a counter family.
func (n *peerNode) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := n.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func (n *peerNode) readTrace(t *testing.T, filter log.Filter) []log.Event {
	t.Helper()
	require.NoError(t, n.traceLog.Flush())
	r, err := log.NewFilteredReader(n.trace, filter)
	require.NoError(t, err)
	defer r.Close()
	events, err := r.ReadAll()
	require.NoError(t, err)
	return events
}

func waitChannel(t *testing.T, c chan *protocol.Channel) *protocol.Channel {
	t.Helper()
	select {
	case ch := <-c:
		return ch
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for channel")
		return nil
	}
}

func waitClosed(t *testing.T, c chan protocol.ChannelID) protocol.ChannelID {
	t.Helper()
	select {
	case id := <-c:
		return id
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for channel close")
		return 0
	}
}

func collect(t *testing.T, c chan sample, n int) []sample {
	t.Helper()
	got := make([]sample, 0, n)
	for len(got) < n {
		select {
		case s := <-c:
			got = append(got, s)
		case <-time.After(waitFor):
			t.Fatalf("received %d of %d samples", len(got), n)
		}
	}
	return got
}

// TestE2E_MultiplexedChannels opens several channels over one connection
// and checks that important samples arrive once and in order per channel.
func TestE2E_MultiplexedChannels(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := startPeer(t, "client", false)
	server := startPeer(t, "server", true)

	conn, err := client.port.Open(server.port.LocalAddr().String(), client.handler())
	require.NoError(t, err)

	const numChannels = 3
	for i := 0; i < numChannels; i++ {
		_, err := conn.OpenChannel()
		require.NoError(t, err)
	}

	local := make(map[protocol.ChannelID]*protocol.Channel)
	for i := 0; i < numChannels; i++ {
		ch := waitChannel(t, client.opened)
		local[ch.LocalID()] = ch
		waitChannel(t, server.opened)
	}
	require.Len(t, local, numChannels)

	const perChannel = 20
	for i := 0; i < perChannel; i++ {
		for _, ch := range local {
			require.NoError(t, ch.SendImportant([]byte(fmt.Sprintf("%d", i))))
		}
	}

	got := collect(t, server.data, numChannels*perChannel)
	byChannel := make(map[protocol.ChannelID][]string)
	for _, s := range got {
		byChannel[s.ch] = append(byChannel[s.ch], s.payload)
	}
	require.Len(t, byChannel, numChannels)
	for id, payloads := range byChannel {
		require.Len(t, payloads, perChannel, "channel %d", id)
		for i, p := range payloads {
			assert.Equal(t, fmt.Sprintf("%d", i), p, "channel %d sample %d", id, i)
		}
	}

	assert.Eventually(t, func() bool { return client.port.PendingResends() == 0 }, waitFor, 10*time.Millisecond)
	assert.Empty(t, client.Errors())
	assert.Empty(t, server.Errors())

	assert.Equal(t, float64(numChannels), client.counter(t, "firefly_client_channels_opened_total"))
	assert.Equal(t, float64(numChannels), server.counter(t, "firefly_server_channels_opened_total"))
	assert.Equal(t, float64(numChannels*perChannel), client.counter(t, "firefly_client_important_acked_total"))
	// request and ack per channel, plus every sample at least once
	assert.GreaterOrEqual(t, server.counter(t, "firefly_server_datagrams_received_total"), float64(numChannels*(perChannel+2)))
}

// TestE2E_BidirectionalAndClose exchanges data both ways and closes the
// channel from the opening side.
func TestE2E_BidirectionalAndClose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := startPeer(t, "client", false)
	server := startPeer(t, "server", true)

	conn, err := client.port.Open(server.port.LocalAddr().String(), client.handler())
	require.NoError(t, err)
	_, err = conn.OpenChannel()
	require.NoError(t, err)

	chClient := waitChannel(t, client.opened)
	chServer := waitChannel(t, server.opened)

	require.NoError(t, chClient.SendImportant([]byte("request")))
	assert.Equal(t, "request", collect(t, server.data, 1)[0].payload)

	require.NoError(t, chServer.SendImportant([]byte("response")))
	require.NoError(t, chServer.Send([]byte("hint")))
	replies := collect(t, client.data, 2)
	payloads := []string{replies[0].payload, replies[1].payload}
	assert.ElementsMatch(t, []string{"response", "hint"}, payloads)

	require.NoError(t, chClient.Close())
	assert.Equal(t, chClient.LocalID(), waitClosed(t, client.closed))
	assert.Equal(t, chServer.LocalID(), waitClosed(t, server.closed))

	// the server has forgotten the channel; a late send is reported
	require.NoError(t, chServer.Send([]byte("late")))
	assert.Eventually(t, func() bool {
		for _, err := range server.Errors() {
			if errors.Is(err, protocol.ErrUnknownChannel) {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return client.counter(t, "firefly_client_channels_closed_total") == 1 &&
			server.counter(t, "firefly_server_channels_closed_total") == 1
	}, waitFor, 10*time.Millisecond)
}

// TestE2E_Trace checks that the port writes a readable protocol trace.
func TestE2E_Trace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client := startPeer(t, "client", false)
	server := startPeer(t, "server", true)

	conn, err := client.port.Open(server.port.LocalAddr().String(), client.handler())
	require.NoError(t, err)
	_, err = conn.OpenChannel()
	require.NoError(t, err)

	ch := waitChannel(t, client.opened)
	waitChannel(t, server.opened)
	require.NoError(t, ch.SendImportant([]byte("traced")))
	collect(t, server.data, 1)
	assert.Eventually(t, func() bool { return client.port.PendingResends() == 0 }, waitFor, 10*time.Millisecond)

	wireLayer := log.LayerWire
	out := log.DirectionOut
	sent := client.readTrace(t, log.Filter{Layer: &wireLayer, Direction: &out})

	var types []wire.RecordType
	for _, ev := range sent {
		require.NotNil(t, ev.Record)
		assert.Equal(t, conn.ID(), ev.ConnectionID)
		types = append(types, ev.Record.Type)
	}
	assert.Contains(t, types, wire.RecordTypeChannelRequest)
	assert.Contains(t, types, wire.RecordTypeChannelAck)
	assert.Contains(t, types, wire.RecordTypeDataSample)

	important := wire.RecordTypeDataSample
	received := server.readTrace(t, log.Filter{Layer: &wireLayer, RecordType: &important})
	require.NotEmpty(t, received)
	assert.True(t, received[0].Record.Important)
	assert.Equal(t, 6, received[0].Record.PayloadSize)

	state := log.CategoryState
	assert.NotEmpty(t, server.readTrace(t, log.Filter{Category: &state}), "expected state changes in trace")
}
