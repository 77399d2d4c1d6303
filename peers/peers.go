// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for managing and testing systems.
package peers

import (
	"context"
	"errors"
	"net"

	"github.com/creachadair/hive"
	"github.com/creachadair/hive/channel"
	"github.com/creachadair/taskgroup"
)

// Local is a pair of in-memory connected systems, suitable for testing.
// Each system represents the other as its peer.
type Local struct {
	A *hive.System
	B *hive.System
}

// Stop shuts down both systems and blocks until both have exited.
func (p *Local) Stop() error {
	return errors.Join(p.A.Close(), p.B.Close())
}

// NewLocal creates a pair of connected systems named "A" and "B" that
// communicate over an in-memory pipe. The options apply to both systems.
func NewLocal(opts ...hive.Option) *Local {
	a2b, b2a := channel.Pipe("A", "B")
	loc := &Local{
		A: hive.NewSystem("A", "", 0, opts...),
		B: hive.NewSystem("B", "", 0, opts...),
	}
	// Attach cannot fail on a fresh system.
	loc.A.Attach(a2b)
	loc.B.Attach(b2a)
	return loc
}

// An Accepter accepts inbound connections from peers.
type Accepter interface {
	Accept(context.Context) (net.Conn, error)
}

// Loop accepts connections from acc, and for each one creates a system with
// newSystem, attaches it to the connection, and adds it to arr. A system is
// removed from arr when its connection closes. Loop continues until acc
// closes or ctx ends.
//
// If newSystem returns nil, or a system whose name is already in use, the
// connection is closed. When ctx terminates, all running systems are closed.
// When acc closes, the loop waits for running systems to exit before
// returning.
func Loop(ctx context.Context, acc Accepter, arr *hive.SystemArray, newSystem func(net.Conn) *hive.System) error {
	g := taskgroup.New(nil)
	for {
		conn, err := acc.Accept(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				err = nil
			}
			g.Wait()
			return err
		}

		sys := newSystem(conn)
		if sys == nil {
			conn.Close()
			continue
		} else if err := arr.Add(sys); err != nil {
			conn.Close()
			continue
		}
		if err := sys.Attach(conn); err != nil {
			arr.Remove(sys.Name())
			continue
		}

		g.Go(func() error {
			sctx, cancel := context.WithCancel(ctx)
			defer cancel()
			defer arr.Remove(sys.Name())

			go func() { <-sctx.Done(); sys.Close() }()
			return sys.Wait()
		})
	}
}

// NetAccepter adapts a net.Listener to the Accepter interface.
func NetAccepter(lst net.Listener) Accepter {
	return netAccepter{Listener: lst}
}

type netAccepter struct {
	net.Listener
}

func (n netAccepter) Accept(ctx context.Context) (net.Conn, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to clean
	// up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.Listener.Close()
		case <-ok:
			// release the waiter
		}
		return nil
	})
	return n.Listener.Accept()
}
