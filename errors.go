// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is reported when sending on a connector that is not
	// open. It is always wrapped in a *ConnectionError.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMethodNotFound is matched by errors reporting that no handler exists
	// for a listener.
	ErrMethodNotFound = errors.New("method not found")

	// ErrMessageTooLarge is reported when a peer sends a message larger than
	// the limit set by [WithMaxMessageSize].
	ErrMessageTooLarge = errors.New("message too large")
)

// ConnectionError is the concrete type of transport errors reported by a
// Connector and the systems that own them.
type ConnectionError struct {
	Addr  string    // the remote address, host:port
	State ConnState // the connector state when the error occurred
	Err   error     // the underlying error
}

// Error satisfies the error interface.
func (c *ConnectionError) Error() string {
	addr := c.Addr
	if addr == "" {
		addr = "(unset)"
	}
	return fmt.Sprintf("connection %s [%s]: %v", addr, c.State, c.Err)
}

// Unwrap reports the underlying error of c.
func (c *ConnectionError) Unwrap() error { return c.Err }

// MethodNotFoundError is reported by [Invoke.Apply] when the target has no
// handler for the listener of the invoke.
type MethodNotFoundError struct {
	Listener string
}

// Error satisfies the error interface.
func (m *MethodNotFoundError) Error() string {
	return fmt.Sprintf("method not found: %q", m.Listener)
}

// Is reports whether target is [ErrMethodNotFound].
func (m *MethodNotFoundError) Is(target error) bool { return target == ErrMethodNotFound }
