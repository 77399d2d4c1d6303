// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package channel provides in-memory transports for hive connectors.
//
// A [Loopback] is a private network of named addresses. It satisfies both
// the [hive.Dialer] and [hive.ListenerFactory] interfaces, so systems can be
// connected to each other without touching the host network:
//
//	lb := channel.NewLoopback()
//	srv := hive.NewSystem("srv", "worker", 9000, hive.WithMode(hive.ModeAccept), hive.WithListener(lb))
//	cli := hive.NewSystem("cli", "worker", 9000, hive.WithDialer(lb))
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrRefused is reported when dialing an address nobody is listening on.
var ErrRefused = errors.New("connection refused")

// firstPort is the first port assigned to listeners that request port 0.
const firstPort = 49152

// A Loopback is an in-memory network. Connections between its endpoints are
// synchronous pipes as returned by [net.Pipe]. A zero Loopback is ready for
// use, and it is safe for concurrent use.
type Loopback struct {
	μ     sync.Mutex
	lst   map[string]*listener
	nextp int // next port for listeners
	nextd int // next dialer ID
}

// NewLoopback constructs a new empty loopback network.
func NewLoopback() *Loopback { return new(Loopback) }

// Listen implements the [hive.ListenerFactory] interface. If the port of
// address is 0, a free port is chosen. It reports an error if another
// listener holds the address.
func (lb *Loopback) Listen(_ context.Context, network, address string) (net.Listener, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	lb.μ.Lock()
	defer lb.μ.Unlock()
	if port == "0" {
		if lb.nextp == 0 {
			lb.nextp = firstPort
		}
		for {
			port = strconv.Itoa(lb.nextp)
			lb.nextp++
			if _, ok := lb.lst[net.JoinHostPort(host, port)]; !ok {
				break
			}
		}
		address = net.JoinHostPort(host, port)
	}
	if _, ok := lb.lst[address]; ok {
		return nil, &net.OpError{Op: "listen", Net: network, Addr: Addr(address), Err: errors.New("address already in use")}
	}
	if lb.lst == nil {
		lb.lst = make(map[string]*listener)
	}
	l := &listener{
		lb:    lb,
		addr:  Addr(address),
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	lb.lst[address] = l
	return l, nil
}

// DialContext implements the [hive.Dialer] interface. It blocks until a
// listener on address accepts the connection, or ctx ends.
func (lb *Loopback) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	lb.μ.Lock()
	l, ok := lb.lst[address]
	lb.μ.Unlock()
	if !ok {
		return nil, &net.OpError{Op: "dial", Net: network, Addr: Addr(address), Err: ErrRefused}
	}

	lb.μ.Lock()
	lb.nextd++
	local := Addr("dialer:" + strconv.Itoa(lb.nextd))
	lb.μ.Unlock()

	a, b := net.Pipe()
	select {
	case l.conns <- conn{Conn: b, local: l.addr, remote: local}:
		return conn{Conn: a, local: local, remote: l.addr}, nil
	case <-l.done:
		a.Close()
		b.Close()
		return nil, &net.OpError{Op: "dial", Net: network, Addr: l.addr, Err: ErrRefused}
	case <-ctx.Done():
		a.Close()
		b.Close()
		return nil, fmt.Errorf("dial %s: %w", address, ctx.Err())
	}
}

type listener struct {
	lb    *Loopback
	addr  Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

// Accept implements a method of the [net.Listener] interface.
func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close implements a method of the [net.Listener] interface.
func (l *listener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.lb.μ.Lock()
		defer l.lb.μ.Unlock()
		delete(l.lb.lst, string(l.addr))
	})
	return nil
}

// Addr implements a method of the [net.Listener] interface.
func (l *listener) Addr() net.Addr { return l.addr }

// conn is a pipe endpoint that reports loopback addresses.
type conn struct {
	net.Conn
	local, remote net.Addr
}

func (c conn) LocalAddr() net.Addr  { return c.local }
func (c conn) RemoteAddr() net.Addr { return c.remote }

// Addr is the address of a loopback endpoint.
type Addr string

// Network implements a method of the [net.Addr] interface.
func (Addr) Network() string { return "loopback" }

func (a Addr) String() string { return string(a) }

// Pipe returns a connected pair of in-memory connections, with the given
// addresses as their local ends.
func Pipe(addrA, addrB string) (A, B net.Conn) {
	a, b := net.Pipe()
	A = conn{Conn: a, local: Addr(addrA), remote: Addr(addrB)}
	B = conn{Conn: b, local: Addr(addrB), remote: Addr(addrA)}
	return
}
