package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/relaymq/relay-go/pkg/log"
	"github.com/relaymq/relay-go/pkg/transport"
	"github.com/relaymq/relay-go/pkg/wire"
)

// Daemon defaults.
const (
	// DefaultQueueSize is the capacity of the action queue.
	DefaultQueueSize = 10

	// MinReadBuffer is the smallest read buffer, regardless of what the
	// broker declared.
	MinReadBuffer = 1024

	// DefaultMaxReadBuffer caps the read buffer derived from the broker's
	// maximum message length.
	DefaultMaxReadBuffer = 1 << 20

	// DefaultMaxConsecutiveReadErrors is how many read errors in a row the
	// reader tolerates before treating the connection as gone.
	DefaultMaxConsecutiveReadErrors = 8

	// TeardownWriteTimeout bounds the final UnSub write.
	TeardownWriteTimeout = 2 * time.Second
)

// Reply reasons for turn requests the mode does not allow.
const (
	ReasonPushUnsupported = "Client not support push"
	ReasonPullUnsupported = "Client not support pull"
)

// State is the daemon lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateClosing
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Daemon.
type Config struct {
	// Mode is the negotiated delivery mode.
	Mode Mode

	// KeepAlive configures the ping schedule.
	KeepAlive transport.KeepAliveConfig

	// QueueSize is the action queue capacity (default: 10).
	QueueSize int

	// MaxMessageLength is shared with the client handle. The read buffer
	// is sized from it on every read. Nil means MinReadBuffer.
	MaxMessageLength *atomic.Uint32

	// MaxReadBuffer caps the read buffer (default: 1 MB).
	MaxReadBuffer int

	// MaxConsecutiveReadErrors ends the session after this many failed
	// reads in a row (default: 8).
	MaxConsecutiveReadErrors int

	// Decoder carries bytes buffered during the handshake. Nil starts a
	// fresh decoder.
	Decoder *wire.Decoder

	// Pending holds frames decoded during the handshake after Info. They
	// are dispatched before anything else.
	Pending []wire.Frame

	// ConnectionID identifies the session in logs.
	ConnectionID string

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// Stats are counters maintained by the daemon.
type Stats struct {
	FramesIn    uint64
	FramesOut   uint64
	Delivered   uint64
	Dropped     uint64
	PingsSent   uint64
	MissedPongs int
}

type readResult struct {
	data []byte
	err  error
}

// Daemon owns a transport after the handshake and runs the session loop.
type Daemon struct {
	transport transport.Transport
	writer    *transport.FrameWriter
	decoder   *wire.Decoder
	pending   []wire.Frame
	mode      Mode
	keepAlive *transport.KeepAlive
	timer     *time.Timer
	routes    *routingTable
	actions   chan Action

	// submitMu orders enqueues against the final drain; stopped is set
	// under the write lock before it.
	submitMu sync.RWMutex
	stopped  bool

	maxLen        *atomic.Uint32
	maxReadBuffer int
	maxReadErrors int

	connID string
	logger *slog.Logger
	plog   log.Logger

	state   atomic.Int32
	started atomic.Bool

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	err      error

	framesIn   atomic.Uint64
	framesOut  atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	pingsSent  atomic.Uint64
	missedSeen atomic.Int32
}

// New creates a daemon for an established, handshaken transport.
func New(t transport.Transport, cfg Config) *Daemon {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxReadBuffer <= 0 {
		cfg.MaxReadBuffer = DefaultMaxReadBuffer
	}
	if cfg.MaxReadBuffer < MinReadBuffer {
		cfg.MaxReadBuffer = MinReadBuffer
	}
	if cfg.MaxConsecutiveReadErrors <= 0 {
		cfg.MaxConsecutiveReadErrors = DefaultMaxConsecutiveReadErrors
	}
	if cfg.MaxMessageLength == nil {
		cfg.MaxMessageLength = new(atomic.Uint32)
	}
	if cfg.Decoder == nil {
		cfg.Decoder = wire.NewDecoder(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Daemon{
		transport:     t,
		writer:        transport.NewFrameWriter(t),
		decoder:       cfg.Decoder,
		pending:       cfg.Pending,
		mode:          cfg.Mode,
		keepAlive:     transport.NewKeepAlive(cfg.KeepAlive),
		routes:        newRoutingTable(),
		actions:       make(chan Action, cfg.QueueSize),
		maxLen:        cfg.MaxMessageLength,
		maxReadBuffer: cfg.MaxReadBuffer,
		maxReadErrors: cfg.MaxConsecutiveReadErrors,
		connID:        cfg.ConnectionID,
		logger:        cfg.Logger.With("conn_id", cfg.ConnectionID),
		plog:          log.OrNoop(cfg.ProtocolLogger),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if cfg.ProtocolLogger != nil {
		d.writer.SetLogger(cfg.ProtocolLogger, cfg.ConnectionID)
	}
	return d
}

// Start runs the loop in a new goroutine. Calling Start more than once
// has no effect.
func (d *Daemon) Start() {
	if d.started.CompareAndSwap(false, true) {
		go d.run()
	}
}

// Run runs the loop on the calling goroutine until the session ends.
// It returns the exit reason, the same value later reported by Err.
func (d *Daemon) Run() error {
	if !d.started.CompareAndSwap(false, true) {
		<-d.done
		return d.err
	}
	d.run()
	return d.err
}

func (d *Daemon) run() {
	d.setState(StateActive, "")
	defer d.shutdown()

	reads := make(chan readResult)
	go d.readLoop(reads)

	d.timer = time.NewTimer(d.keepAlive.Current())
	defer d.timer.Stop()

	for i := range d.pending {
		d.handleFrame(&d.pending[i])
	}
	d.pending = nil

	for {
		select {
		case r := <-reads:
			if r.err != nil {
				d.err = r.err
				return
			}
			d.handleData(r.data)

		case a := <-d.actions:
			d.handleAction(a)

		case <-d.quit:
			d.drainActions()
			d.err = ErrClientClosed
			return

		case <-d.timer.C:
			d.sendPing()
		}
	}
}

// Submit enqueues an action. It blocks while the queue is full and fails
// with ErrClosed once the daemon is stopping.
func (d *Daemon) Submit(ctx context.Context, a Action) error {
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()
	if d.stopped {
		return ErrClosed
	}
	select {
	case <-d.quit:
		return ErrClosed
	case <-d.done:
		return ErrClosed
	default:
	}

	select {
	case d.actions <- a:
		return nil
	case <-d.quit:
		return ErrClosed
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close asks the loop to apply the actions already queued and stop, then
// waits for teardown to finish. Safe to call more than once and from
// several goroutines. The daemon must have been started.
func (d *Daemon) Close() error {
	d.signalQuit()
	<-d.done
	return nil
}

// Done is closed once teardown has finished.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Err returns why the loop stopped, or nil while it is running.
func (d *Daemon) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// State returns the lifecycle state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// Mode returns the negotiated delivery mode.
func (d *Daemon) Mode() Mode {
	return d.mode
}

// ConnectionID returns the session identifier used in logs.
func (d *Daemon) ConnectionID() string {
	return d.connID
}

// Topics returns the currently routed topics, sorted.
func (d *Daemon) Topics() []string {
	return d.routes.topics()
}

// Stats returns a snapshot of the daemon counters.
func (d *Daemon) Stats() Stats {
	return Stats{
		FramesIn:    d.framesIn.Load(),
		FramesOut:   d.framesOut.Load(),
		Delivered:   d.delivered.Load(),
		Dropped:     d.dropped.Load(),
		PingsSent:   d.pingsSent.Load(),
		MissedPongs: int(d.missedSeen.Load()),
	}
}

func (d *Daemon) signalQuit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

func (d *Daemon) setState(s State, reason string) {
	old := State(d.state.Swap(int32(s)))
	if old == s {
		return
	}
	d.plog.Log(log.StateEventFor(d.connID, log.StateEntitySession, old.String(), s.String(), reason))
}

// readBufferSize derives the buffer size from the broker's limit.
func (d *Daemon) readBufferSize() int {
	n := int(d.maxLen.Load())
	if n < MinReadBuffer {
		return MinReadBuffer
	}
	if n > d.maxReadBuffer {
		return d.maxReadBuffer
	}
	return n
}

// readLoop is the only reader of the transport. It never touches daemon
// state besides the atomic max length.
func (d *Daemon) readLoop(out chan<- readResult) {
	send := func(r readResult) bool {
		select {
		case out <- r:
			return true
		case <-d.done:
			return false
		}
	}

	var buf []byte
	failures := 0
	for {
		if size := d.readBufferSize(); len(buf) != size {
			buf = make([]byte, size)
		}

		n, err := d.transport.Read(buf)
		if n > 0 {
			failures = 0
			if !send(readResult{data: bytes.Clone(buf[:n])}) {
				return
			}
		}

		switch {
		case err == nil && n == 0:
			send(readResult{err: ErrPeerClosed})
			return
		case err == nil:
		case transport.IsClosed(err):
			send(readResult{err: fmt.Errorf("%w: %w", ErrPeerClosed, err)})
			return
		case transport.IsTimeout(err):
		default:
			failures++
			d.logger.Warn("read failed", "err", err, "consecutive", failures)
			d.plog.Log(log.ErrorEventFor(d.connID, log.LayerTransport, err, "read"))
			if failures >= d.maxReadErrors {
				send(readResult{err: fmt.Errorf("read failed %d times: %w", failures, err)})
				return
			}
		}
	}
}

func (d *Daemon) handleData(data []byte) {
	skipped := d.decoder.Skipped()
	frames, err := d.decoder.Feed(data)
	if n := d.decoder.Skipped() - skipped; n > 0 {
		d.logger.Debug("ignored frames of unknown kind", "count", n)
	}
	for i := range frames {
		d.handleFrame(&frames[i])
	}
	if err != nil {
		d.logger.Warn("discarding undecodable input", "err", err)
		d.plog.Log(log.ErrorEventFor(d.connID, log.LayerWire, err, "decode"))
	}
}

func (d *Daemon) handleFrame(f *wire.Frame) {
	d.framesIn.Add(1)
	d.plog.Log(log.FrameEventFor(d.connID, log.DirectionIn, f))

	switch f.Kind {
	case wire.KindPing:
	case wire.KindPong:
		d.missedSeen.Store(0)
		d.timer.Reset(d.keepAlive.Reset())
	case wire.KindTurnPush:
		d.replyTurn(d.mode.CanPush(), ReasonPushUnsupported)
	case wire.KindTurnPull:
		d.replyTurn(d.mode.CanPull(), ReasonPullUnsupported)
	case wire.KindMsg:
		d.route(f)
	default:
		d.logger.Debug("ignoring frame", "kind", f.Kind)
	}
}

func (d *Daemon) replyTurn(allowed bool, reason string) {
	reply := wire.NewOk()
	if !allowed {
		reply = wire.NewErr(reason)
	}
	if err := d.write(reply); err != nil {
		d.logger.Warn("turn reply failed", "err", err)
	}
}

func (d *Daemon) route(f *wire.Frame) {
	if !utf8.Valid(f.Topic) {
		d.logger.Warn("dropping message", "err", ErrInvalidTopic)
		d.plog.Log(log.ErrorEventFor(d.connID, log.LayerSession, ErrInvalidTopic, "route"))
		return
	}
	topic := string(f.Topic)

	sink, ok := d.routes.get(topic)
	if !ok {
		d.logger.Debug("no route for message", "topic", topic)
		return
	}

	payload := f.Payload
	if payload == nil {
		payload = []byte{}
	}
	if err := sink.Deliver(payload); err != nil {
		d.routes.remove(topic)
		sink.Close()
		d.dropped.Add(1)
		d.logger.Info("route dropped", "topic", topic, "err", err)
		d.plog.Log(log.StateEventFor(d.connID, log.StateEntitySubscription, "ROUTED", "DROPPED", topic+": "+err.Error()))
		return
	}
	d.delivered.Add(1)
}

func (d *Daemon) handleAction(a Action) {
	switch a.Kind {
	case ActionSubscribe:
		if a.Sink == nil {
			a.complete(fmt.Errorf("subscribe %q: no sink", a.Topic))
			return
		}
		if err := d.write(wire.NewSub(a.Topic)); err != nil {
			a.Sink.Close()
			a.complete(err)
			return
		}
		if old := d.routes.insert(a.Topic, a.Sink); old != nil && old != a.Sink {
			old.Close()
		}
		d.plog.Log(log.StateEventFor(d.connID, log.StateEntitySubscription, "", "ROUTED", a.Topic))
		a.complete(nil)

	case ActionPublish:
		a.complete(d.write(wire.NewPub(a.Topic, a.Payload)))

	default:
		a.complete(fmt.Errorf("unknown action %d", a.Kind))
	}
}

// drainActions applies every action already queued.
func (d *Daemon) drainActions() {
	for {
		select {
		case a := <-d.actions:
			d.handleAction(a)
		default:
			return
		}
	}
}

func (d *Daemon) sendPing() {
	if err := d.write(wire.NewPing()); err != nil {
		d.logger.Warn("ping failed", "err", err)
	} else {
		d.pingsSent.Add(1)
	}
	next := d.keepAlive.Fired()
	d.missedSeen.Store(int32(d.keepAlive.Missed()))
	d.timer.Reset(next)
	d.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerSession,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgPing, Interval: next},
	})
	d.logger.Debug("keepalive", "next", next, "missed", d.keepAlive.Missed())
}

func (d *Daemon) write(f *wire.Frame) error {
	if err := d.writer.WriteFrame(f); err != nil {
		return err
	}
	d.framesOut.Add(1)
	return nil
}

// shutdown runs on every exit path of the loop.
func (d *Daemon) shutdown() {
	d.signalQuit()
	reason := ""
	if d.err != nil {
		reason = d.err.Error()
	}
	d.setState(StateClosing, reason)

	if wd, ok := d.transport.(transport.WriteDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(TeardownWriteTimeout))
	}
	topics := d.routes.topics()
	if err := d.write(wire.NewUnSub(topics)); err != nil {
		d.logger.Debug("unsubscribe on teardown failed", "err", err)
	}
	d.routes.closeAll()

	if err := d.transport.Close(); err != nil && !transport.IsClosed(err) {
		d.logger.Debug("close transport", "err", err)
	}

	// Actions that slipped in after the loop stopped. Blocked Submit calls
	// have seen quit, so the lock is free once they return.
	d.submitMu.Lock()
	d.stopped = true
	d.submitMu.Unlock()
drain:
	for {
		select {
		case a := <-d.actions:
			if a.Sink != nil {
				a.Sink.Close()
			}
			a.complete(ErrClosed)
		default:
			break drain
		}
	}

	d.setState(StateClosed, reason)
	d.logger.Info("session closed", "reason", reason, "topics", len(topics))
	close(d.done)
}
