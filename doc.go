// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package hive implements a framework for driving networks of remote peer
// processes by exchanging named invocations over text documents.
//
// A coordinator process describes each peer it talks to as a [System], which
// owns a single [Connector] carrying traffic to and from that peer. Each
// system holds an ordered collection of named [Role] values, and a
// [SystemArray] gathers systems into a topology whose roles can be addressed
// by name alone.
//
// # Invokes
//
// The only message exchanged between peers is the [Invoke]: a listener
// (method) name and an ordered list of typed parameters. On the wire each
// invoke is one document in the format of the markup package:
//
//	<invoke listener="add"><parameter type="number">2</parameter><parameter type="number">3</parameter></invoke>
//
// Messages carry no length prefix; the receiver buffers input until a
// complete element has arrived. To construct an invoke:
//
//	iv := hive.NewInvoke("add", 2, 3)
//
// # Handlers
//
// A [Handler] receives the decoded arguments of an invoke. Handlers are
// registered by listener name on a role, or on the system itself:
//
//	sys := hive.NewSystem("worker", "10.0.0.5", 37000)
//	sys.AddRole("calculator").Handle("add", func(ctx context.Context, args []any) error {
//	   sum := args[0].(float64) + args[1].(float64)
//	   return hive.ContextSystem(ctx).SendData(ctx, hive.NewInvoke("sum", sum))
//	})
//
// The handler package provides adapters from functions with typed
// parameters. An inbound invoke is offered to the system-level handlers
// first, then to each role in the order the roles were added; the first
// handler found receives it, and an invoke nobody handles is dropped.
//
// # Sending
//
// Systems, roles, system arrays, and connectors share the [Protocol] pair:
// SendData sends an invoke toward the remote peer, and ReplyData handles an
// invoke that arrived from it. A role sends through the system that owns it,
// so a caller holding only a role need not know which peer it names:
//
//	if r, ok := topology.Role("calculator"); ok {
//	   err := r.SendData(ctx, hive.NewInvoke("add", 2, 3))
//	   // ...
//	}
//
// Sending is fire-and-forget: SendData returns once the invoke has been
// written, without waiting for the peer to handle it. Invokes sent by one
// system arrive in the order they were sent.
//
// # Lifecycle
//
// Call [System.Start] to connect a system, either by dialing its address or,
// with [WithMode](ModeAccept), by listening for the peer. A system moves
// from created to connecting to connected, and becomes disconnected when its
// connection closes or fails. A disconnected system does not reconnect.
//
// # Metrics
//
// Connectors maintain a collection of metrics shared by all connectors in
// the process. Use the [Connector.Metrics] method to obtain an [expvar.Map]
// containing them:
//
//   - invokes_sent: counter of invokes written
//   - invokes_received: counter of invokes decoded from the peer
//   - invokes_unrouted: counter of received invokes no handler accepted
//   - bytes_received: counter of bytes read from peers
//   - connects: counter of connections opened
//   - connects_failed: counter of failed dial or accept attempts
//   - protocol_errors: counter of malformed or undecodable messages
//   - connectors_open: gauge of connections currently open
package hive
