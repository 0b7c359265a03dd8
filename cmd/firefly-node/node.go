package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/firefly-protocol/firefly-go/pkg/config"
	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/protocol"
	"github.com/firefly-protocol/firefly-go/pkg/reconnect"
	"github.com/firefly-protocol/firefly-go/pkg/transport"
)

var (
	errNoSuchChannel   = errors.New("no such channel")
	errChannelRejected = errors.New("channel rejected by peer")
)

// nodeOptions carries the collaborators main wires into a node.
type nodeOptions struct {
	Logger   *slog.Logger
	Trace    log.Logger
	Metrics  transport.Metrics
	Observer eventqueue.Observer
	Out      io.Writer
}

// node is a ping/pong peer: it accepts every channel, prints received
// payloads and answers "ping ..." with "pong ...".
type node struct {
	cfg    config.NodeConfig
	id     string
	logger *slog.Logger
	q      *eventqueue.Queue[protocol.Event]
	port   *transport.Port

	outMu sync.Mutex
	out   io.Writer

	// waiters are signalled when the first outbound channel of a
	// connection opens.
	waitMu  sync.Mutex
	waiters map[*protocol.Connection]chan error

	// supervisors keep configured peers connected, keyed by the resolved
	// remote address.
	supMu       sync.Mutex
	supervisors map[string]*reconnect.Manager
}

func newNode(cfg config.NodeConfig, opts nodeOptions) (*node, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	n := &node{
		cfg:         cfg,
		id:          cfg.NodeID,
		logger:      opts.Logger,
		out:         opts.Out,
		waiters:     make(map[*protocol.Connection]chan error),
		supervisors: make(map[string]*reconnect.Manager),
	}
	if n.id == "" {
		n.id = uuid.NewString()
	}

	qopts := []eventqueue.Option{
		eventqueue.WithCapacity(cfg.QueueCapacity),
		eventqueue.WithErrorHandler(func(event any, err error) {
			n.logger.Debug("event failed", "event", fmt.Sprintf("%T", event), "error", err)
		}),
	}
	if opts.Observer != nil {
		qopts = append(qopts, eventqueue.WithObserver(opts.Observer))
	}
	n.q = eventqueue.New[protocol.Event](protocol.Dispatch, qopts...)

	pc := cfg.PortConfig()
	pc.Logger = opts.Trace
	pc.Slog = opts.Logger
	pc.Metrics = opts.Metrics
	pc.OnRelease = n.released

	port, err := transport.NewPort(n.q, pc, n.accept)
	if err != nil {
		return nil, err
	}
	n.port = port
	return n, nil
}

// start runs the event queue consumer and the port goroutines.
func (n *node) start(ctx context.Context) error {
	go func() {
		if err := n.q.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("event queue stopped", "error", err)
		}
	}()
	return n.port.Start(ctx)
}

// shutdown closes every connection and waits for the port to stop.
func (n *node) shutdown(ctx context.Context) error {
	defer n.q.Close()

	n.supMu.Lock()
	sups := n.supervisors
	n.supervisors = make(map[string]*reconnect.Manager)
	n.supMu.Unlock()
	for _, m := range sups {
		m.Close()
	}

	if err := n.port.Close(); err != nil {
		return err
	}
	select {
	case <-n.port.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *node) accept(p *transport.Port, addr *net.UDPAddr) *protocol.Connection {
	if !n.cfg.Accept {
		n.logger.Info("refusing peer", "remote", addr.String())
		return nil
	}
	conn, err := p.Accept(addr, n)
	if err != nil {
		n.logger.Warn("accept failed", "remote", addr.String(), "error", err)
		return nil
	}
	n.logger.Info("peer connected", "remote", addr.String(), "conn_id", conn.ID())
	return conn
}

// connect opens a connection to addr and one channel on it.
func (n *node) connect(addr string) (protocol.ChannelID, error) {
	conn, err := n.port.Open(addr, n)
	if err != nil {
		return protocol.ChannelIDNotSet, err
	}
	return conn.OpenChannel()
}

// connectAndWait opens a connection to addr and one channel on it, and
// waits until the peer has accepted the channel. On timeout the
// connection is closed.
func (n *node) connectAndWait(ctx context.Context, addr string) error {
	conn, err := n.port.Open(addr, n)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	n.waitMu.Lock()
	n.waiters[conn] = result
	n.waitMu.Unlock()
	defer func() {
		n.waitMu.Lock()
		delete(n.waiters, conn)
		n.waitMu.Unlock()
	}()

	_, err = conn.OpenChannel(protocol.WithRejectedFunc(func(c *protocol.Connection) {
		n.OnChannelRejected(c)
		n.signal(c, errChannelRejected)
	}))
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}

func (n *node) signal(conn *protocol.Connection, err error) {
	n.waitMu.Lock()
	ch, ok := n.waiters[conn]
	n.waitMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// supervise keeps a connection to addr, reconnecting with backoff after
// the port releases it.
func (n *node) supervise(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", addr, err)
	}
	key := raddr.String()

	n.supMu.Lock()
	if _, ok := n.supervisors[key]; ok {
		n.supMu.Unlock()
		return nil
	}
	rc := reconnect.DefaultConfig()
	rc.Logger = n.logger.With("peer", key)
	m := reconnect.NewManager(func(ctx context.Context) error {
		return n.connectAndWait(ctx, key)
	}, rc)
	m.OnStateChange(func(oldState, newState reconnect.State) {
		n.logger.Info("peer link", "peer", key, "from", oldState, "to", newState)
	})
	n.supervisors[key] = m
	n.supMu.Unlock()

	m.Start()
	return nil
}

// released runs on the consumer once the port has forgotten a peer.
func (n *node) released(conn *protocol.Connection) {
	n.signal(conn, protocol.ErrConnectionClosing)

	n.supMu.Lock()
	m, ok := n.supervisors[conn.RemoteAddr()]
	n.supMu.Unlock()
	if ok {
		m.NotifyConnectionLost()
	}
}

// do runs fn on the queue consumer and waits for its result.
func (n *node) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	task := protocol.TransportTask{
		Name: "shell command",
		Prio: eventqueue.PriorityMedium,
		Run: func() error {
			err := fn()
			done <- err
			return err
		},
	}
	if err := n.q.Add(task, task.Prio); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// channelInfo is a consumer-side snapshot of one channel.
type channelInfo struct {
	Remote    string
	ConnID    string
	LocalID   protocol.ChannelID
	RemoteID  protocol.ChannelID
	State     protocol.ChannelState
	Direction protocol.Direction
	Seqno     int32
	Pending   int
}

// channels returns every channel ordered by remote address and local id.
// It must run on the consumer.
func (n *node) channels() []*protocol.Channel {
	var out []*protocol.Channel
	for _, c := range n.port.Connections() {
		out = append(out, c.Channels()...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := a.Connection().RemoteAddr(), b.Connection().RemoteAddr(); ra != rb {
			return ra < rb
		}
		return a.LocalID() < b.LocalID()
	})
	return out
}

// snapshot lists channels from any goroutine.
func (n *node) snapshot(ctx context.Context) ([]channelInfo, error) {
	var infos []channelInfo
	err := n.do(ctx, func() error {
		for _, ch := range n.channels() {
			infos = append(infos, channelInfo{
				Remote:    ch.Connection().RemoteAddr(),
				ConnID:    ch.Connection().ID(),
				LocalID:   ch.LocalID(),
				RemoteID:  ch.RemoteID(),
				State:     ch.State(),
				Direction: ch.Direction(),
				Seqno:     ch.CurrentSeqno(),
				Pending:   ch.PendingImportant(),
			})
		}
		return nil
	})
	return infos, err
}

// withChannel runs fn on the consumer for the channel at index (1-based,
// as printed by list).
func (n *node) withChannel(ctx context.Context, index int, fn func(*protocol.Channel) error) error {
	return n.do(ctx, func() error {
		chans := n.channels()
		if index < 1 || index > len(chans) {
			return fmt.Errorf("%w: %d", errNoSuchChannel, index)
		}
		return fn(chans[index-1])
	})
}

func (n *node) printf(format string, args ...any) {
	n.outMu.Lock()
	defer n.outMu.Unlock()
	fmt.Fprintf(n.out, format, args...)
}

func (n *node) OnChannelOpened(ch *protocol.Channel) {
	n.logger.Info("channel open",
		"remote", ch.Connection().RemoteAddr(), "chan", ch.LocalID(), "direction", ch.Direction())
	if ch.Direction() == protocol.Outbound {
		n.signal(ch.Connection(), nil)
	}
}

func (n *node) OnChannelClosed(ch *protocol.Channel) {
	n.logger.Info("channel closed", "remote", ch.Connection().RemoteAddr(), "chan", ch.LocalID())
}

func (n *node) OnChannelRecv(ch *protocol.Channel) bool {
	return true
}

func (n *node) OnChannelRejected(conn *protocol.Connection) {
	n.logger.Warn("channel rejected", "remote", conn.RemoteAddr())
}

func (n *node) OnChannelData(ch *protocol.Channel, payload []byte) {
	n.printf("[%s#%d] %s\n", ch.Connection().RemoteAddr(), ch.LocalID(), payload)

	if rest, ok := bytes.CutPrefix(payload, []byte("ping")); ok {
		reply := append([]byte("pong"), rest...)
		if err := ch.Send(reply); err != nil {
			n.logger.Warn("pong failed", "error", err)
		}
	}
}

var _ protocol.Handler = (*node)(nil)
