// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
)

// SystemState is the lifecycle state of a System.
type SystemState int

const (
	SystemCreated      SystemState = iota // not yet started
	SystemConnecting                      // start in progress
	SystemConnected                       // open; sends are permitted
	SystemDisconnected                    // closed or failed; terminal
)

var systemStateNames = [...]string{
	SystemCreated:      "created",
	SystemConnecting:   "connecting",
	SystemConnected:    "connected",
	SystemDisconnected: "disconnected",
}

func (s SystemState) String() string {
	if s >= 0 && int(s) < len(systemStateNames) {
		return systemStateNames[s]
	}
	return fmt.Sprintf("SystemState(%d)", int(s))
}

// A System represents one remote peer: its name and address, the Connector
// carrying traffic to and from it, and an ordered collection of roles.
//
// Inbound invokes are routed first to the handlers registered on the system
// itself by [System.Handle], and then to its roles in insertion order. The
// first handler found receives the invoke; an invoke that matches nothing
// is dropped.
//
// Roles must be added before the system is started. The role collection is
// an embedded [entity.Array], so its methods (Len, At, Has, All) apply.
type System struct {
	entity.Array[*Role]

	name string
	ip   string
	port int
	opts options
	conn *Connector
	mux  Mux

	μ     sync.Mutex
	state SystemState
}

// NewSystem constructs an unstarted system for the peer at ip:port.
func NewSystem(name, ip string, port int, opts ...Option) *System {
	s := &System{name: name, ip: ip, port: port, opts: newOptions(opts)}
	s.Array = s.newRoles()
	s.conn = NewConnector(s, opts...)
	s.conn.watch = s.connState
	return s
}

func (s *System) newRoles() entity.Array[*Role] {
	return entity.NewArray("system", "role", entity.Constructor(func() *Role { return newRole(s, "") }))
}

// Name reports the name of s, which is unique within its system array.
func (s *System) Name() string { return s.name }

// IP reports the configured host address of s.
func (s *System) IP() string { return s.ip }

// Port reports the configured port of s.
func (s *System) Port() int { return s.port }

// Addr reports the configured address of s as host:port.
func (s *System) Addr() string { return net.JoinHostPort(s.ip, strconv.Itoa(s.port)) }

// Mode reports the connection mode of s.
func (s *System) Mode() Mode { return s.opts.mode }

// Connector returns the connector owned by s.
func (s *System) Connector() *Connector { return s.conn }

// State reports the current state of s.
func (s *System) State() SystemState {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.state
}

// setState moves s forward to state; s never leaves SystemDisconnected.
func (s *System) setState(state SystemState) {
	s.μ.Lock()
	old := s.state
	if old == SystemDisconnected || old == state {
		s.μ.Unlock()
		return
	}
	s.state = state
	s.μ.Unlock()
	s.opts.log.Debug().Str("system", s.name).Stringer("from", old).Stringer("to", state).Msg("state change")
}

func (s *System) connState(cs ConnState) {
	switch cs {
	case ConnConnecting:
		s.setState(SystemConnecting)
	case ConnOpen:
		s.setState(SystemConnected)
	case ConnClosed:
		s.setState(SystemDisconnected)
	}
}

// AddRole adds a new role with the given name to s, declaring the listeners
// it originates, and returns the role. It panics if s already has a role of
// that name.
func (s *System) AddRole(name string, sends ...string) *Role {
	if s.Has(name) {
		panic(fmt.Sprintf("system %q already has a role %q", s.name, name))
	}
	r := newRole(s, name).AddSendListener(sends...)
	s.Push(r)
	return r
}

// Role returns the role of s with the given name, if any.
func (s *System) Role(name string) (*Role, bool) { return s.Get(name) }

// Handle registers h as a system-level handler for listener. System-level
// handlers are consulted before any role. Passing a nil handler removes any
// handler for listener. Handle returns s to permit chaining.
func (s *System) Handle(listener string, h Handler) *System { s.mux.Handle(listener, h); return s }

// Lookup implements the [Target] interface for the system-level handlers.
func (s *System) Lookup(listener string) (Handler, bool) { return s.mux.Lookup(listener) }

// Start connects s to its peer: in ModeDial it dials the peer address, and
// in ModeAccept it listens on that address for the peer to connect. It
// blocks until the connection is open or has failed. A system that fails to
// start is disconnected; retry policy belongs to the caller.
func (s *System) Start(ctx context.Context) error {
	s.μ.Lock()
	if s.state != SystemCreated {
		state := s.state
		s.μ.Unlock()
		return fmt.Errorf("system %q: cannot start in state %v", s.name, state)
	}
	s.μ.Unlock()
	s.opts.log.Info().Str("system", s.name).Str("addr", s.Addr()).Stringer("mode", s.opts.mode).Msg("starting")

	var err error
	if s.opts.mode == ModeAccept {
		err = s.conn.Listen(ctx, s.ip, s.port)
	} else {
		err = s.conn.Connect(ctx, s.ip, s.port)
	}
	if err != nil {
		s.setState(SystemDisconnected)
		s.conn.Close()
		return fmt.Errorf("system %q: %w", s.name, err)
	}
	return nil
}

// Attach starts s on conn, which must already be connected to the peer.
// The system takes ownership of conn.
func (s *System) Attach(conn net.Conn) error {
	if err := s.conn.Attach(conn); err != nil {
		s.setState(SystemDisconnected)
		return fmt.Errorf("system %q: %w", s.name, err)
	}
	return nil
}

// SendData sends iv to the peer of s. Invokes sent by one system are
// delivered in call order. SendData reports a *ConnectionError if s is not
// connected.
func (s *System) SendData(ctx context.Context, iv *Invoke) error {
	return s.conn.SendData(ctx, iv)
}

// ReplyData routes iv, which has arrived from the peer, to the first
// matching handler of s. An invoke no handler accepts is dropped without
// error. Otherwise ReplyData reports the error from the handler.
func (s *System) ReplyData(ctx context.Context, iv *Invoke) error {
	ctx = context.WithValue(ctx, systemContextKey{}, s)
	if s.opts.history {
		if p, ok := iv.Param(HistoryParam); ok {
			return s.replyWithHistory(ctx, iv, p)
		}
	}
	return s.route(ctx, iv)
}

func (s *System) route(ctx context.Context, iv *Invoke) error {
	if err := iv.Apply(ctx, &s.mux); !isNotFound(err) {
		return err
	}
	for _, r := range s.All() {
		err := iv.Apply(context.WithValue(ctx, roleContextKey{}, r), r)
		if isNotFound(err) {
			continue
		}
		return err
	}
	rootMetrics.invokeUnrouted.Add(1)
	s.opts.log.Debug().Str("system", s.name).Str("listener", iv.Listener()).Msg("no handler for invoke")
	return nil
}

// replyWithHistory times the handling of iv and reports it back to the peer.
func (s *System) replyWithHistory(ctx context.Context, iv *Invoke, uid *Parameter) error {
	iv = iv.Clone()
	iv.Erase(HistoryParam)
	h := NewHistory(historyUID(uid), iv, s.opts.clock())
	err := s.route(ctx, iv)
	h.Notify(s.opts.clock())
	if serr := s.SendData(ctx, h.ToInvoke()); serr != nil {
		s.opts.log.Warn().Err(serr).Str("system", s.name).Str("uid", h.UID).Msg("report history failed")
	}
	return err
}

// Close closes the connection of s and waits for it to exit. After Close,
// s is disconnected.
func (s *System) Close() error {
	err := s.conn.Close()
	s.setState(SystemDisconnected)
	return err
}

// Done returns a channel that is closed when the connection of s closes.
func (s *System) Done() <-chan struct{} { return s.conn.Done() }

// Wait blocks until the connection of s has exited, and reports the error
// that caused it to stop, as [Connector.Wait].
func (s *System) Wait() error { return s.conn.Wait() }

// Key implements part of the [entity.Entity] interface. It returns the name
// of s.
func (s *System) Key() string { return s.name }

// Construct implements part of the [entity.Entity] interface, replacing the
// identity, address, and roles of s. It must not be called once s has been
// started.
func (s *System) Construct(n *markup.Node) error {
	r := entity.Read(n)
	name := r.Require("name")
	ip := r.String("ip", "")
	port := r.Uint("port", 16, 0)
	mode := r.String("mode", "")
	if err := r.Err(); err != nil {
		return err
	}
	m, err := ParseMode(mode)
	if err != nil {
		return &entity.ValidationError{Tag: n.Tag(), Key: "mode", Value: mode, Err: err}
	}

	roles := s.newRoles()
	if err := roles.Construct(n); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, role := range roles.All() {
		if seen[role.name] {
			return &entity.ValidationError{
				Tag: role.Tag(), Key: "name", Value: role.name,
				Err: errors.New("duplicate role name"),
			}
		}
		seen[role.name] = true
	}
	s.name, s.ip, s.port, s.opts.mode = name, ip, int(port), m
	s.Array = roles
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (s *System) ToXML() *markup.Node {
	n := s.Array.ToXML().
		SetProperty("name", s.name).
		SetProperty("ip", s.ip).
		SetProperty("port", strconv.Itoa(s.port))
	if s.opts.mode != ModeDial {
		n.SetProperty("mode", s.opts.mode.String())
	}
	return n
}
