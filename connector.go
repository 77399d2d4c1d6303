// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/hive/markup"
	"github.com/creachadair/taskgroup"
)

// ConnState is the lifecycle state of a Connector.
type ConnState int

const (
	ConnIdle       ConnState = iota // not yet connected
	ConnConnecting                  // dial or accept in progress
	ConnOpen                        // connected; sends are permitted
	ConnClosed                      // closed; terminal
)

var connStateNames = [...]string{
	ConnIdle: "idle", ConnConnecting: "connecting", ConnOpen: "open", ConnClosed: "closed",
}

func (s ConnState) String() string {
	if s >= 0 && int(s) < len(connStateNames) {
		return connStateNames[s]
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// An InvokeLogger logs an invoke exchanged with the remote peer.
type InvokeLogger func(InvokeInfo)

// An InvokeInfo combines an invoke and a flag indicating whether it was sent
// or received.
type InvokeInfo struct {
	*Invoke      // the invoke being logged
	Sent    bool // whether the invoke was sent (true) or received (false)
}

func (v InvokeInfo) String() string {
	dir := "recv"
	if v.Sent {
		dir = "send"
	}
	return dir + " " + v.Invoke.String()
}

// A Connector owns one transport connection. It writes outbound invokes in
// their canonical text form, and reassembles inbound invokes from the byte
// stream, forwarding each to the ReplyData method of its parent in the order
// received.
//
// A Connector is connected once, by Connect, Listen, or Attach, and runs
// until Close is called, the remote peer closes the connection, or the peer
// sends a malformed message. Use Wait to wait for it to exit and report its
// status. A closed Connector cannot be reused.
type Connector struct {
	parent Protocol
	opts   options

	out struct {
		// Must hold the lock to write to or set conn.
		sync.Mutex
		conn net.Conn
	}
	tasks *taskgroup.Group

	μ sync.Mutex

	state       ConnState
	addr        string
	err         error // the error that terminated the receiver
	cancel      context.CancelFunc
	stopConnect context.CancelFunc // set while connecting
	dispatching bool               // a handler is running on the receiver
	ilog        InvokeLogger
	onOpen      func()
	onClose     func(error)
	watch       func(ConnState) // owner state hook

	done     chan struct{} // closed when state becomes ConnClosed
	doneOnce sync.Once
}

// NewConnector constructs an idle connector that delivers inbound invokes to
// parent. Options other than the logger, dialer, listener, and message size
// limit are ignored.
func NewConnector(parent Protocol, opts ...Option) *Connector {
	return &Connector{parent: parent, opts: newOptions(opts), done: make(chan struct{})}
}

// State reports the current state of c.
func (c *Connector) State() ConnState {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.state
}

// Addr reports the remote address of c, or "" if it has never connected.
func (c *Connector) Addr() string {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.addr
}

// Done returns a channel that is closed when c becomes closed.
func (c *Connector) Done() <-chan struct{} { return c.done }

// Metrics returns the metrics map shared by all connectors. It is safe for
// the caller to add additional metrics to the map while connectors are
// active.
func (c *Connector) Metrics() *expvar.Map { return rootMetrics.emap }

// LogInvokes registers a callback invoked for each invoke exchanged with the
// remote peer. It is called synchronously, before writing a sent invoke and
// before dispatching a received one. Passing nil disables logging.
func (c *Connector) LogInvokes(log InvokeLogger) *Connector {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.ilog = log
	return c
}

// OnOpen registers a callback invoked when c becomes open. The callback runs
// before the receiver starts, so it must not wait for c to close. Passing
// nil removes the callback.
func (c *Connector) OnOpen(f func()) *Connector {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.onOpen = f
	return c
}

// OnClose registers a callback invoked when an open connector terminates,
// with the same error that Wait would report. Passing nil removes the
// callback.
func (c *Connector) OnClose(f func(error)) *Connector {
	c.μ.Lock()
	defer c.μ.Unlock()
	c.onClose = f
	return c
}

// setStateLocked updates the state of c, and returns a function to notify
// the owner of the change. The caller must hold c.μ, and must call the
// function after releasing it.
func (c *Connector) setStateLocked(s ConnState) func() {
	old, watch := c.state, c.watch
	c.state = s
	return func() {
		if s == ConnClosed {
			c.doneOnce.Do(func() { close(c.done) })
		}
		if watch != nil && old != s {
			watch(s)
		}
	}
}

// setState updates the state of c and notifies its owner.
func (c *Connector) setState(s ConnState) {
	c.μ.Lock()
	notify := c.setStateLocked(s)
	c.μ.Unlock()
	notify()
}

// endConnect releases the context of a connect in progress. The caller must
// hold c.μ.
func (c *Connector) endConnect() {
	if c.stopConnect != nil {
		c.stopConnect()
		c.stopConnect = nil
	}
}

// begin moves c from idle to connecting, recording the address. It returns
// a context derived from ctx that ends if c is closed before the connection
// is established.
func (c *Connector) begin(ctx context.Context, addr string) (context.Context, error) {
	c.μ.Lock()
	if c.state == ConnClosed {
		defer c.μ.Unlock()
		return nil, &ConnectionError{Addr: c.addr, State: c.state, Err: ErrConnectionClosed}
	} else if c.state != ConnIdle {
		defer c.μ.Unlock()
		return nil, &ConnectionError{Addr: c.addr, State: c.state, Err: errors.New("connector is already in use")}
	}
	c.addr = addr
	ctx, c.stopConnect = context.WithCancel(ctx)
	notify := c.setStateLocked(ConnConnecting)
	c.μ.Unlock()
	notify()
	return ctx, nil
}

// abort reports a failure to connect and returns c to idle, unless it was
// closed in the meantime.
func (c *Connector) abort(addr string, err error) error {
	rootMetrics.connectsFailed.Add(1)
	c.opts.log.Warn().Str("addr", addr).Err(err).Msg("connect failed")
	c.μ.Lock()
	c.endConnect()
	notify := func() {}
	if c.state != ConnClosed {
		notify = c.setStateLocked(ConnIdle)
	}
	c.μ.Unlock()
	notify()
	return &ConnectionError{Addr: addr, State: ConnConnecting, Err: err}
}

// Connect dials the peer at the given address and starts the receiver. It
// blocks until the connection is established or fails. On failure, c
// returns to idle and may be connected again. Closing c while Connect is
// pending aborts the dial. Errors have concrete type *ConnectionError.
func (c *Connector) Connect(ctx context.Context, ip string, port int) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	ctx, err := c.begin(ctx, addr)
	if err != nil {
		return err
	}
	c.opts.log.Debug().Str("addr", addr).Msg("connecting")
	conn, err := c.opts.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return c.abort(addr, err)
	}
	return c.start(conn)
}

// Listen listens on the given address, accepts the first inbound connection,
// closes the listener, and starts the receiver. It blocks until a peer
// connects, ctx ends, or c is closed. On failure, c returns to idle. Errors
// have concrete type *ConnectionError.
func (c *Connector) Listen(ctx context.Context, ip string, port int) error {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	ctx, err := c.begin(ctx, addr)
	if err != nil {
		return err
	}
	lst, err := c.opts.lfac.Listen(ctx, "tcp", addr)
	if err != nil {
		return c.abort(addr, err)
	}
	c.opts.log.Debug().Str("addr", lst.Addr().String()).Msg("listening")
	conn, err := acceptOne(ctx, lst)
	if err != nil {
		return c.abort(addr, err)
	}
	return c.start(conn)
}

func acceptOne(ctx context.Context, lst net.Listener) (net.Conn, error) {
	defer lst.Close()
	stop := context.AfterFunc(ctx, func() { lst.Close() })
	defer stop()
	conn, err := lst.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return conn, err
}

// Attach starts the receiver on conn, which must already be connected to
// the remote peer. The connector takes ownership of conn.
func (c *Connector) Attach(conn net.Conn) error {
	if _, err := c.begin(context.Background(), remoteAddr(conn)); err != nil {
		conn.Close()
		return err
	}
	return c.start(conn)
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// start makes c open on conn and starts its receiver. The receiver does not
// read until the owner has been told that c is open.
func (c *Connector) start(conn net.Conn) error {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, connectorContextKey{}, c)
	g := taskgroup.New(nil)
	ready := make(chan struct{})

	c.μ.Lock()
	c.endConnect()
	if c.state == ConnClosed {
		// Closed while connecting.
		c.μ.Unlock()
		cancel()
		conn.Close()
		return &ConnectionError{Addr: remoteAddr(conn), State: ConnClosed, Err: ErrConnectionClosed}
	}
	if a := remoteAddr(conn); a != "" {
		c.addr = a
	}
	c.tasks = g
	c.cancel = cancel
	c.err = nil
	c.out.Lock()
	c.out.conn = conn
	c.out.Unlock()
	notify := c.setStateLocked(ConnOpen)
	onOpen := c.onOpen
	g.Go(func() error {
		<-ready
		c.fail(c.receive(ctx, conn))
		return nil
	})
	c.μ.Unlock()

	rootMetrics.connects.Add(1)
	rootMetrics.connOpen.Add(1)
	notify()
	c.opts.log.Debug().Str("addr", c.Addr()).Msg("connection open")
	if onOpen != nil {
		onOpen()
	}
	close(ready)
	return nil
}

// receive reads from conn until it fails, dispatching each complete invoke
// in the order received. Any partial message left when the read fails is
// discarded.
func (c *Connector) receive(ctx context.Context, conn net.Conn) error {
	var buf []byte
	var split markup.Splitter
	chunk := make([]byte, 4096)
	for {
		nr, err := conn.Read(chunk)
		if nr > 0 {
			rootMetrics.bytesRecv.Add(int64(nr))
			buf = append(buf, chunk[:nr]...)

			// Parse only once a message may be complete.
			if split.Write(chunk[:nr]) {
				used, derr := c.drain(ctx, buf)
				if derr != nil {
					return derr
				}
				buf = append(buf[:0], buf[used:]...)
				split.Reset()
				split.Write(buf)
			}
			if limit := c.opts.maxSize; limit > 0 && len(buf) > limit {
				rootMetrics.protocolErrors.Add(1)
				return fmt.Errorf("%w: more than %d bytes", ErrMessageTooLarge, limit)
			}
		}
		if err != nil {
			return err
		}
	}
}

// drain dispatches every complete message at the front of buf, and reports
// the number of bytes consumed. It stops early if a handler closes c. Any
// other error it reports is protocol fatal.
func (c *Connector) drain(ctx context.Context, buf []byte) (int, error) {
	var pos int
	for {
		if c.State() == ConnClosed {
			return pos, net.ErrClosed
		}
		n, used, err := markup.ParsePrefix(buf[pos:])
		if markup.Incomplete(err) {
			return pos, nil
		} else if err != nil {
			rootMetrics.protocolErrors.Add(1)
			return pos, fmt.Errorf("invalid message: %w", err)
		}
		pos += used

		iv, err := DecodeInvoke(n)
		if err != nil {
			// The stream is intact, so skip the message and carry on.
			rootMetrics.protocolErrors.Add(1)
			c.opts.log.Error().Err(err).Str("addr", c.Addr()).Msg("discarding undecodable message")
			continue
		}
		c.dispatch(ctx, iv)
	}
}

func (c *Connector) dispatch(ctx context.Context, iv *Invoke) {
	rootMetrics.invokeRecv.Add(1)
	c.μ.Lock()
	ilog := c.ilog
	c.dispatching = true
	c.μ.Unlock()
	defer func() {
		c.μ.Lock()
		c.dispatching = false
		c.μ.Unlock()
	}()
	if ilog != nil {
		ilog(InvokeInfo{Invoke: iv, Sent: false})
	}
	if err := c.ReplyData(ctx, iv); err != nil {
		c.opts.log.Warn().Err(err).Str("listener", iv.Listener()).Msg("handler failed")
	}
}

// ReplyData forwards iv unchanged to the parent of c.
func (c *Connector) ReplyData(ctx context.Context, iv *Invoke) error {
	if c.parent == nil {
		return nil
	}
	return c.parent.ReplyData(ctx, iv)
}

// SendData writes iv to the remote peer in its canonical string form. It
// returns once the data are handed to the transport, and does not wait for
// the peer to process them. If ctx has a deadline, it bounds the write.
//
// SendData reports a *ConnectionError wrapping ErrConnectionClosed if c is
// not open, and the error from [Invoke.Check] if iv cannot be encoded. A
// failed write is fatal to the connection.
func (c *Connector) SendData(ctx context.Context, iv *Invoke) error {
	c.μ.Lock()
	state, addr, ilog := c.state, c.addr, c.ilog
	c.μ.Unlock()
	if state != ConnOpen {
		return &ConnectionError{Addr: addr, State: state, Err: ErrConnectionClosed}
	} else if err := iv.Check(); err != nil {
		return err
	}
	data := iv.String()
	if ilog != nil {
		ilog(InvokeInfo{Invoke: iv, Sent: true})
	}

	c.out.Lock()
	defer c.out.Unlock()
	conn := c.out.conn
	if conn == nil {
		return &ConnectionError{Addr: addr, State: ConnClosed, Err: ErrConnectionClosed}
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if _, err := io.WriteString(conn, data); err != nil {
		conn.Close() // the stream may hold a partial message
		return &ConnectionError{Addr: addr, State: state, Err: err}
	}
	rootMetrics.invokeSent.Add(1)
	return nil
}

// Close closes the connection and blocks until the receiver has exited. It
// returns the same status as Wait. Closing an idle connector makes it
// unusable, and closing a connector that is still connecting aborts the
// connect.
//
// If Close is called while a handler is running on the receiver, as when a
// handler closes its own connection, c is closed at once but Close does not
// wait for the receiver to exit, and returns nil. Use Wait to wait for it.
func (c *Connector) Close() error {
	c.μ.Lock()
	g, inHandler := c.tasks, c.dispatching
	var notify func()
	if g == nil {
		c.endConnect()
		notify = c.setStateLocked(ConnClosed)
	}
	c.μ.Unlock()

	if g == nil {
		notify()
		return nil
	}
	c.closeOut()
	if inHandler {
		c.setState(ConnClosed)
		return nil
	}
	return c.Wait()
}

// Wait blocks until the receiver of c has exited and reports the error that
// caused it to stop. If c was never opened, or stopped because the
// connection closed, Wait returns nil.
func (c *Connector) Wait() error {
	c.μ.Lock()
	g := c.tasks
	c.μ.Unlock()
	if g == nil {
		return nil
	}
	g.Wait()

	c.μ.Lock()
	defer c.μ.Unlock()
	if treatErrorAsSuccess(c.err) {
		return nil
	}
	return c.err
}

// fail records the terminal status of c and runs its close callbacks.
func (c *Connector) fail(err error) {
	c.closeOut()

	c.μ.Lock()
	c.err = err
	c.cancel()
	onClose := c.onClose
	addr := c.addr
	notify := c.setStateLocked(ConnClosed)
	c.μ.Unlock()

	rootMetrics.connOpen.Add(-1)
	notify()
	if treatErrorAsSuccess(err) {
		err = nil
		c.opts.log.Debug().Str("addr", addr).Msg("connection closed")
	} else {
		c.opts.log.Error().Str("addr", addr).Err(err).Msg("connection failed")
	}
	if onClose != nil {
		onClose(err)
	}
}

func (c *Connector) closeOut() {
	c.out.Lock()
	defer c.out.Unlock()
	if c.out.conn != nil {
		c.out.conn.Close()
		c.out.conn = nil
	}
}

func treatErrorAsSuccess(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

type connectorContextKey struct{}

// ContextConnector returns the Connector that received the invoke being
// handled, or nil if none is defined.
func ContextConnector(ctx context.Context) *Connector {
	if v := ctx.Value(connectorContextKey{}); v != nil {
		return v.(*Connector)
	}
	return nil
}
