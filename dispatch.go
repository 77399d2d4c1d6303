// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// A Handler processes the arguments of one inbound [Invoke]. The arguments
// are the decoded parameter values of the invoke, in order.
//
// A handler can obtain the invoke from its context argument using the
// [ContextInvoke] helper, and the system and role it was routed through with
// [ContextSystem] and [ContextRole].
//
// A handler that reports an error wrapping [ErrMethodNotFound] is treated as
// if it were not registered, and routing continues to the next candidate.
type Handler func(ctx context.Context, args []any) error

// A Target resolves listener names to handlers.
type Target interface {
	// Lookup reports the handler for the specified listener, if any.
	Lookup(listener string) (Handler, bool)
}

// Protocol is the capability pair shared by every component that carries
// invokes: systems, roles, system arrays, and connectors.
type Protocol interface {
	// SendData delivers iv toward the remote peer.
	SendData(ctx context.Context, iv *Invoke) error

	// ReplyData handles iv, which has arrived from the remote peer.
	ReplyData(ctx context.Context, iv *Invoke) error
}

// A Mux is a dispatch table mapping listener names to handlers.
// A zero Mux is ready for use and is safe for concurrent use.
type Mux struct {
	μ sync.Mutex
	h map[string]Handler
}

// Handle registers h as the handler for listener. Passing a nil handler
// removes any handler for listener. It panics if listener == "".
func (m *Mux) Handle(listener string, h Handler) {
	if listener == "" {
		panic("empty listener name")
	}
	m.μ.Lock()
	defer m.μ.Unlock()
	if h == nil {
		delete(m.h, listener)
		return
	}
	if m.h == nil {
		m.h = make(map[string]Handler)
	}
	m.h[listener] = h
}

// Lookup implements the [Target] interface.
func (m *Mux) Lookup(listener string) (Handler, bool) {
	m.μ.Lock()
	defer m.μ.Unlock()
	h, ok := m.h[listener]
	return h, ok
}

// Listeners returns the names of all registered listeners in sorted order.
func (m *Mux) Listeners() []string {
	m.μ.Lock()
	defer m.μ.Unlock()
	return slices.Sorted(maps.Keys(m.h))
}

type (
	invokeContextKey struct{}
	systemContextKey struct{}
	roleContextKey   struct{}
)

// ContextInvoke returns the Invoke being dispatched to a handler, or nil if
// ctx has no associated invoke.
func ContextInvoke(ctx context.Context) *Invoke {
	if v := ctx.Value(invokeContextKey{}); v != nil {
		return v.(*Invoke)
	}
	return nil
}

// ContextSystem returns the System that received the invoke being handled,
// or nil if none is defined.
func ContextSystem(ctx context.Context) *System {
	if v := ctx.Value(systemContextKey{}); v != nil {
		return v.(*System)
	}
	return nil
}

// ContextRole returns the Role whose handler is being called, or nil if the
// handler was not reached through a role.
func ContextRole(ctx context.Context) *Role {
	if v := ctx.Value(roleContextKey{}); v != nil {
		return v.(*Role)
	}
	return nil
}
