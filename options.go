// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// A Dialer opens outbound transport connections. A *net.Dialer satisfies
// this interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// A ListenerFactory opens listeners for inbound transport connections. A
// *net.ListenConfig satisfies this interface.
type ListenerFactory interface {
	Listen(ctx context.Context, network, address string) (net.Listener, error)
}

// Mode selects how a System establishes its connection when started.
type Mode int

const (
	ModeDial   Mode = iota // connect to the remote address (default)
	ModeAccept             // listen on the address and accept one peer
)

var modeNames = [...]string{ModeDial: "dial", ModeAccept: "accept"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the name of a Mode. The empty string denotes ModeDial.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "dial":
		return ModeDial, nil
	case "accept":
		return ModeAccept, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// An Option configures a System, SystemArray, or Connector.
type Option func(*options)

type options struct {
	log     zerolog.Logger
	dialer  Dialer
	lfac    ListenerFactory
	clock   func() time.Time
	mode    Mode
	history bool
	maxSize int
}

// DefaultMaxMessageSize is the default limit on the size of one inbound
// message, in bytes.
const DefaultMaxMessageSize = 16 << 20

func newOptions(opts []Option) options {
	o := options{
		log:     zerolog.Nop(),
		dialer:  new(net.Dialer),
		lfac:    new(net.ListenConfig),
		clock:   time.Now,
		maxSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for diagnostics. By default nothing is
// logged.
func WithLogger(log zerolog.Logger) Option { return func(o *options) { o.log = log } }

// WithDialer sets the dialer used to open outbound connections. The default
// is a zero *net.Dialer.
func WithDialer(d Dialer) Option { return func(o *options) { o.dialer = d } }

// WithListener sets the factory used to listen for inbound connections. The
// default is a zero *net.ListenConfig.
func WithListener(f ListenerFactory) Option { return func(o *options) { o.lfac = f } }

// WithClock sets the function used to read the current time for invoke
// histories. The default is time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// WithMode sets the connection mode of a System. The default is ModeDial.
func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithHistory enables invoke history reporting on a System. When enabled, an
// inbound invoke carrying a parameter named [HistoryParam] is timed, and a
// "reportInvokeHistory" invoke is sent back to the peer once it has been
// handled.
func WithHistory() Option { return func(o *options) { o.history = true } }

// WithMaxMessageSize sets the largest inbound message a connector accepts,
// in bytes. A peer that sends a larger message is disconnected. If n <= 0
// there is no limit. The default is [DefaultMaxMessageSize].
func WithMaxMessageSize(n int) Option { return func(o *options) { o.maxSize = n } }
