package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/firefly-protocol/firefly-go/pkg/log"
	"github.com/firefly-protocol/firefly-go/pkg/wire"
)

// Connection is one peer relationship carrying many channels.
//
// The connection owns its channels. Channel state is only touched by
// Dispatch on the consumer goroutine; producers post events instead.
type Connection struct {
	id        string
	sink      EventSink
	transport Transport
	handler   Handler
	cfg       ConnectionConfig
	tracer    log.Tracer
	logger    *slog.Logger

	state  atomic.Int32
	nextID atomic.Int32

	// closePosted is set while a ConnectionClose is queued.
	closePosted atomic.Bool

	// consumer goroutine only
	channels map[ChannelID]*Channel

	// readMu serializes DataReceived so each call decodes one record.
	readMu  sync.Mutex
	decoder *wire.Decoder

	ctxMu   sync.RWMutex
	userCtx any
}

// NewConnection creates an OPEN connection and posts ConnectionOpen.
func NewConnection(sink EventSink, transport Transport, handler Handler, cfg ConnectionConfig) *Connection {
	cfg.applyDefaults()
	if handler == nil {
		handler = HandlerFuncs{}
	}

	c := &Connection{
		id:        uuid.New().String(),
		sink:      sink,
		transport: transport,
		handler:   handler,
		cfg:       cfg,
		channels:  make(map[ChannelID]*Channel),
	}
	c.tracer = log.Tracer{
		Logger:       cfg.Logger,
		ConnectionID: c.id,
		RemoteAddr:   cfg.RemoteAddr,
	}
	c.logger = cfg.Slog.With("conn_id", shortID(c.id))
	if cfg.RemoteAddr != "" {
		c.logger = c.logger.With("remote", cfg.RemoteAddr)
	}
	c.decoder = wire.NewDecoder(c.reportDecode)
	c.registerHandlers()

	c.post(ConnectionOpen{Conn: c})
	return c
}

// ID returns the connection's UUID.
func (c *Connection) ID() string { return c.id }

// State returns the lifecycle state. Safe from any goroutine.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// RemoteAddr returns the configured peer description.
func (c *Connection) RemoteAddr() string { return c.cfg.RemoteAddr }

// Context returns the value stored with SetContext.
func (c *Connection) Context() any {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.userCtx
}

// SetContext attaches an arbitrary value, typically transport state.
func (c *Connection) SetContext(v any) {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	c.userCtx = v
}

// ChannelOption configures a channel opened with OpenChannel.
type ChannelOption func(*ChannelOpenEvent)

// WithRejectedFunc replaces Handler.OnChannelRejected for this channel.
func WithRejectedFunc(fn func(*Connection)) ChannelOption {
	return func(ev *ChannelOpenEvent) {
		ev.OnRejected = fn
	}
}

// OpenChannel starts the handshake for a new outbound channel and returns
// its local id. The channel exists once the posted event has executed.
func (c *Connection) OpenChannel(opts ...ChannelOption) (ChannelID, error) {
	if err := c.requireOpen(); err != nil {
		return ChannelIDNotSet, err
	}
	id, err := c.allocID()
	if err != nil {
		return ChannelIDNotSet, err
	}

	ev := ChannelOpenEvent{Conn: c, ID: id}
	for _, opt := range opts {
		opt(&ev)
	}
	if err := c.sink.Add(ev, ev.Priority()); err != nil {
		return ChannelIDNotSet, fmt.Errorf("open channel %d: %w", id, err)
	}
	return id, nil
}

// Close requests an orderly shutdown. Every channel is closed, then the
// transport is released and the connection becomes CLOSED. Close is
// idempotent; calling it again while CLOSING re-queues a close that could
// not be posted.
func (c *Connection) Close() error {
	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.traceState(StateOpen, StateClosing, "close requested")
		return c.postClose(false)
	}
	if c.State() == StateClosing {
		return c.postClose(false)
	}
	return nil
}

// postClose queues ConnectionClose unless one is already pending.
func (c *Connection) postClose(retry bool) error {
	if !c.closePosted.CompareAndSwap(false, true) {
		return nil
	}
	ev := ConnectionClose{Conn: c, Retry: retry}
	if err := c.sink.Add(ev, ev.Priority()); err != nil {
		c.closePosted.Store(false)
		return fmt.Errorf("post connection close: %w", err)
	}
	return nil
}

// DataReceived decodes exactly one record from data and posts the
// matching event. It may be called from any goroutine, but only while the
// connection is OPEN.
func (c *Connection) DataReceived(data []byte) error {
	if err := c.requireOpen(); err != nil {
		return err
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.decoder.DecodeOne(data)
}

// Channel returns the channel with the given local id, or nil.
// Call it only from the queue consumer, e.g. inside a Handler callback.
func (c *Connection) Channel(id ChannelID) *Channel {
	return c.channels[id]
}

// Channels returns the live channels ordered by local id.
// Consumer goroutine only.
func (c *Connection) Channels() []*Channel {
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].localID < out[j].localID })
	return out
}

// NumChannels returns the number of live channels.
// Consumer goroutine only.
func (c *Connection) NumChannels() int {
	return len(c.channels)
}

func (c *Connection) requireOpen() error {
	switch c.State() {
	case StateOpen:
		return nil
	case StateClosing:
		return ErrConnectionClosing
	default:
		return ErrConnectionNotOpen
	}
}

func (c *Connection) allocID() (ChannelID, error) {
	id := c.nextID.Add(1) - 1
	if id < 0 {
		return ChannelIDNotSet, ErrChannelIDsExhausted
	}
	return ChannelID(id), nil
}

// post enqueues an event, reporting a failure.
func (c *Connection) post(ev Event) {
	if err := c.sink.Add(ev, ev.Priority()); err != nil {
		c.report(fmt.Sprintf("post %T", ev), err)
	}
}

// send encodes a record, traces it and hands it to the transport.
func (c *Connection) send(chanID ChannelID, r wire.Record, important bool) (Ticket, error) {
	data, err := wire.Encode(r)
	if err != nil {
		return 0, err
	}
	ticket, err := c.transport.Write(c, data, important)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", r.RecordType(), err)
	}
	c.tracer.Record(log.DirectionOut, int32(chanID), r, uint32(ticket))
	return ticket, nil
}

func (c *Connection) executeOpen() {
	c.tracer.State(log.StateEntityConnection, 0, "", StateOpen.String(), "")
	c.logger.Debug("connection open")
}

// executeClose instructs every channel to close and re-posts itself until
// the channel set is empty. A failed post leaves the channel unmarked so
// the next round retries it.
func (c *Connection) executeClose() error {
	c.closePosted.Store(false)
	if len(c.channels) == 0 {
		c.finishClose()
		return nil
	}

	var errs []error
	for _, ch := range c.Channels() {
		if ch.closeQueued || ch.state == ChannelClosing || ch.state == ChannelClosed {
			continue
		}
		ev := ChannelCloseEvent{Conn: c, ID: ch.localID}
		if err := c.sink.Add(ev, ev.Priority()); err != nil {
			errs = append(errs, fmt.Errorf("close channel %d: %w", ch.localID, err))
			continue
		}
		ch.closeQueued = true
	}
	if err := c.postClose(true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// finishClose releases the transport once the last channel is gone.
func (c *Connection) finishClose() {
	if c.State() != StateClosing || len(c.channels) != 0 {
		return
	}
	c.transport.Release(c)
	c.state.Store(int32(StateClosed))
	c.traceState(StateClosing, StateClosed, "")
	c.logger.Debug("connection closed")
}

// resumeClose keeps a closing connection draining when its ConnectionClose
// could not be re-posted.
func (c *Connection) resumeClose() {
	if c.State() != StateClosing || c.closePosted.Load() {
		return
	}
	if len(c.channels) == 0 {
		c.finishClose()
		return
	}
	if err := c.postClose(true); err != nil {
		c.report("resume close", err)
	}
}

func (c *Connection) addChannel(ch *Channel) error {
	if _, ok := c.channels[ch.localID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateChannel, ch.localID)
	}
	c.channels[ch.localID] = ch
	return nil
}

func (c *Connection) removeChannel(ch *Channel) {
	delete(c.channels, ch.localID)
}

// lookup returns the channel for an incoming record's destination id.
func (c *Connection) lookup(id int32) (*Channel, error) {
	ch, ok := c.channels[ChannelID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return ch, nil
}

func (c *Connection) traceState(from, to ConnectionState, reason string) {
	c.tracer.State(log.StateEntityConnection, 0, from.String(), to.String(), reason)
}

// report records a protocol error. Errors are never sent to the peer.
func (c *Connection) report(context string, err error) {
	c.tracer.Error(log.LayerProtocol, context, err, nil)
	c.cfg.Metrics.ProtocolError(errorKind(err))
	if errors.Is(err, ErrConnectionClosing) || errors.Is(err, ErrConnectionNotOpen) {
		c.logger.Debug("protocol error", "context", context, "error", err)
		return
	}
	c.logger.Warn("protocol error", "context", context, "error", err)
}

func (c *Connection) reportDecode(code wire.ErrorCode, err error) {
	ic := int(code)
	c.tracer.Error(log.LayerWire, "decode", err, &ic)
	c.cfg.Metrics.ProtocolError("decode")
	c.logger.Warn("dropping record", "code", code.String(), "error", err)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
