package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/firefly-protocol/firefly-go/pkg/eventqueue"
	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/protocol"
)

// Port errors.
var (
	ErrPortClosed       = errors.New("port closed")
	ErrAlreadyStarted   = errors.New("port already started")
	ErrUnknownPeer      = errors.New("no connection for peer")
	ErrDatagramTooLarge = errors.New("datagram too large")
)

// ConnRecvFunc is called on the consumer goroutine for a datagram from an
// address without a connection. It returns the connection to deliver the
// datagram to, usually from Port.Accept, or nil to drop it.
type ConnRecvFunc func(p *Port, addr *net.UDPAddr) *protocol.Connection

// peer is the transport state stored in a connection's context.
type peer struct {
	addr   *net.UDPAddr
	key    netip.AddrPort
	conn   *protocol.Connection
	tracer log.Tracer
}

// Port is a UDP link-layer port. It implements protocol.Transport for the
// connections it creates.
type Port struct {
	cfg        PortConfig
	sink       protocol.EventSink
	onConnRecv ConnRecvFunc
	sock       *net.UDPConn
	resend     *ResendQueue
	backoff    *Backoff
	logger     *slog.Logger
	tracer     log.Tracer

	mu     sync.Mutex
	peers  map[netip.AddrPort]*peer
	cancel context.CancelFunc

	started  atomic.Bool
	closing  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewPort binds the UDP socket. Goroutines start with Start.
func NewPort(sink protocol.EventSink, cfg PortConfig, onConnRecv ConnRecvFunc) (*Port, error) {
	cfg.applyDefaults()

	laddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", cfg.ListenAddr, err)
	}
	sock, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	p := &Port{
		cfg:        cfg,
		sink:       sink,
		onConnRecv: onConnRecv,
		sock:       sock,
		resend:     NewResendQueue(),
		backoff:    NewBackoff(cfg.ResendBackoff),
		logger:     cfg.Slog.With("port", sock.LocalAddr().String()),
		peers:      make(map[netip.AddrPort]*peer),
		done:       make(chan struct{}),
	}
	p.tracer = log.Tracer{Logger: cfg.Logger, RemoteAddr: sock.LocalAddr().String()}
	p.tracer.State(log.StateEntityPort, 0, "", "OPEN", "")
	return p, nil
}

// LocalAddr returns the bound socket address.
func (p *Port) LocalAddr() *net.UDPAddr {
	return p.sock.LocalAddr().(*net.UDPAddr)
}

// Start launches the reader and resend goroutines. They stop when ctx is
// done or the port is closed.
func (p *Port) Start(ctx context.Context) error {
	if p.closing.Load() {
		return ErrPortClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(2)
	go p.readLoop(ctx)
	go p.resendLoop(ctx)
	return nil
}

// Open returns the connection to addr, creating it if needed.
func (p *Port) Open(addr string, handler protocol.Handler) (*protocol.Connection, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	return p.Accept(raddr, handler)
}

// Accept registers a connection for addr. An existing connection for the
// same address is returned unchanged.
func (p *Port) Accept(addr *net.UDPAddr, handler protocol.Handler) (*protocol.Connection, error) {
	if p.closing.Load() {
		return nil, ErrPortClosed
	}
	key := addrKey(addr)

	p.mu.Lock()
	defer p.mu.Unlock()

	if pr, ok := p.peers[key]; ok {
		return pr.conn, nil
	}

	conn := protocol.NewConnection(p.sink, p, handler, protocol.ConnectionConfig{
		RemoteAddr: addr.String(),
		Logger:     p.cfg.Logger,
		Slog:       p.cfg.Slog,
		Metrics:    p.cfg.Metrics,
	})
	pr := &peer{
		addr: addr,
		key:  key,
		conn: conn,
		tracer: log.Tracer{
			Logger:       p.cfg.Logger,
			ConnectionID: conn.ID(),
			RemoteAddr:   addr.String(),
		},
	}
	conn.SetContext(pr)
	p.peers[key] = pr
	p.logger.Debug("peer added", "remote", addr.String(), "conn_id", conn.ID())
	return conn, nil
}

// Lookup returns the connection for addr, or nil.
func (p *Port) Lookup(addr *net.UDPAddr) *protocol.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.peers[addrKey(addr)]; ok {
		return pr.conn
	}
	return nil
}

// Connections returns the registered connections.
func (p *Port) Connections() []*protocol.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*protocol.Connection, 0, len(p.peers))
	for _, pr := range p.peers {
		out = append(out, pr.conn)
	}
	return out
}

// PendingResends returns the number of unacknowledged important datagrams.
func (p *Port) PendingResends() int {
	return p.resend.Len()
}

// Write implements protocol.Transport.
func (p *Port) Write(conn *protocol.Connection, data []byte, important bool) (protocol.Ticket, error) {
	pr := peerOf(conn)
	if pr == nil {
		return 0, ErrUnknownPeer
	}
	if len(data) > p.cfg.MaxDatagramSize {
		return 0, fmt.Errorf("%w: %d > %d", ErrDatagramTooLarge, len(data), p.cfg.MaxDatagramSize)
	}
	if _, err := p.sock.WriteToUDP(data, pr.addr); err != nil {
		return 0, err
	}
	pr.tracer.Frame(log.DirectionOut, data, false)
	p.cfg.Metrics.DatagramSent(len(data))

	if !important {
		return 0, nil
	}
	return p.resend.Add(conn, data, p.backoff.Delay(0)), nil
}

// Ack implements protocol.Transport.
func (p *Port) Ack(_ *protocol.Connection, ticket protocol.Ticket) {
	p.resend.Remove(ticket)
}

// Release implements protocol.Transport. It forgets the peer.
func (p *Port) Release(conn *protocol.Connection) {
	p.resend.RemoveConn(conn)
	pr := peerOf(conn)
	if pr == nil {
		return
	}
	p.mu.Lock()
	if cur, ok := p.peers[pr.key]; ok && cur.conn == conn {
		delete(p.peers, pr.key)
	}
	p.mu.Unlock()
	p.logger.Debug("peer released", "remote", pr.addr.String(), "conn_id", conn.ID())
	if p.cfg.OnRelease != nil {
		p.cfg.OnRelease(conn)
	}
}

// Close closes every connection, then stops the goroutines and the
// socket. It returns immediately; Done is closed when teardown finishes.
func (p *Port) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	p.tracer.State(log.StateEntityPort, 0, "OPEN", "CLOSING", "")
	if err := p.postTeardown(); err != nil {
		p.stop()
		return err
	}
	return nil
}

// Done is closed once the port has shut down.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

func (p *Port) postTeardown() error {
	task := protocol.TransportTask{Name: "port teardown", Prio: eventqueue.PriorityLow, Run: p.teardown}
	return p.sink.Add(task, task.Prio)
}

// teardown runs on the consumer and re-posts itself until every
// connection has released.
func (p *Port) teardown() error {
	conns := p.Connections()
	if len(conns) == 0 {
		p.stop()
		return nil
	}
	for _, c := range conns {
		if err := c.Close(); err != nil {
			p.logger.Warn("close connection", "conn_id", c.ID(), "error", err)
		}
	}
	if err := p.postTeardown(); err != nil {
		p.stop()
		return err
	}
	return nil
}

func (p *Port) stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.sock.Close()
		p.wg.Wait()

		p.tracer.State(log.StateEntityPort, 0, "CLOSING", "CLOSED", "")
		p.logger.Debug("port closed")
		close(p.done)
	})
}

func (p *Port) readLoop(ctx context.Context) {
	defer p.wg.Done()

	buf := make([]byte, p.cfg.MaxDatagramSize)
	for {
		n, addr, err := p.sock.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			p.logger.Warn("read failed", "error", err)
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		task := protocol.TransportTask{
			Name: "udp read",
			Prio: eventqueue.PriorityHigh,
			Run:  func() error { return p.dispatch(addr, data) },
		}
		if err := p.sink.Add(task, task.Prio); err != nil {
			p.logger.Warn("dropping datagram", "remote", addr.String(), "error", err)
		}
	}
}

// dispatch hands one datagram to its connection on the consumer.
func (p *Port) dispatch(addr *net.UDPAddr, data []byte) error {
	conn := p.Lookup(addr)
	if conn == nil {
		if p.closing.Load() {
			return nil
		}
		if p.onConnRecv == nil {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
		}
		if conn = p.onConnRecv(p, addr); conn == nil {
			p.logger.Debug("peer refused", "remote", addr.String())
			return nil
		}
	}

	if pr := peerOf(conn); pr != nil {
		pr.tracer.Frame(log.DirectionIn, data, false)
	}
	p.cfg.Metrics.DatagramReceived(len(data))

	// Decode failures are reported by the connection itself.
	if err := conn.DataReceived(data); err != nil {
		p.logger.Debug("datagram not processed", "remote", addr.String(), "error", err)
	}
	return nil
}

func (p *Port) resendLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		r, ok := p.resend.Wait(ctx)
		if !ok {
			return
		}

		if p.cfg.MaxRetries >= 0 && r.Attempts >= p.cfg.MaxRetries {
			p.resend.Remove(r.Ticket)
			p.cfg.Metrics.ResendExhausted()
			p.logger.Warn("peer not acknowledging, closing connection",
				"conn_id", r.Conn.ID(), "remote", r.Conn.RemoteAddr(), "attempts", r.Attempts)
			if err := r.Conn.Close(); err != nil {
				p.logger.Warn("close connection", "conn_id", r.Conn.ID(), "error", err)
			}
			continue
		}

		pr := peerOf(r.Conn)
		if pr == nil {
			p.resend.Remove(r.Ticket)
			continue
		}
		if _, err := p.sock.WriteToUDP(r.Data, pr.addr); err != nil {
			p.logger.Warn("resend failed", "remote", pr.addr.String(), "error", err)
		} else {
			pr.tracer.Frame(log.DirectionOut, r.Data, true)
			p.cfg.Metrics.Resent()
		}
		p.resend.Readd(r.Ticket, p.backoff.Delay(r.Attempts+1))
	}
}

func peerOf(conn *protocol.Connection) *peer {
	if conn == nil {
		return nil
	}
	pr, _ := conn.Context().(*peer)
	return pr
}

func addrKey(a *net.UDPAddr) netip.AddrPort {
	ap := a.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

var _ protocol.Transport = (*Port)(nil)
