// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

// Package stream provides helpers for streaming calls, where a single invoke
// yields a stream of replies from the peer.
//
// The caller sends an invoke whose first parameter, named [ReplyParam],
// carries a fresh random listener name. The peer sends each value of the
// stream as an invoke of that listener, whose first parameter, named
// [StatusParam], says whether it carries a value ("item"), ends the stream
// ("done"), or reports failure ("error"). A caller that stops early sends
// [CancelMethod] with the reply listener as its argument.
package stream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/creachadair/hive"
)

const (
	// ReplyParam names the parameter carrying the reply listener.
	ReplyParam = "stream_reply"

	// StatusParam names the parameter carrying the status of a reply.
	StatusParam = "stream_status"

	// CancelMethod is the listener that stops a running stream.
	CancelMethod = "streamCancel"
)

const (
	statusItem  = "item"
	statusDone  = "done"
	statusError = "error"
)

// A random 24-byte value names the reply listener. It is not guessable by
// other peers sharing the connection, and collisions are negligible.
const capabilityLen = 24

func mkCapability() string {
	var buf [capabilityLen]byte
	rand.Read(buf[:])
	return "stream." + hex.EncodeToString(buf[:])
}

// RemoteError reports a failure of the stream on the peer.
type RemoteError struct {
	Listener string
	Message  string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("stream %q: %s", e.Listener, e.Message) }

type reply struct {
	vals []any
	err  error
	done bool
}

func decodeReply(listener string, iv *hive.Invoke) (reply, error) {
	if iv == nil || iv.Len() == 0 || iv.At(0).Name != StatusParam {
		return reply{}, errors.New("missing stream status")
	}
	args := iv.Arguments()
	switch args[0] {
	case statusItem:
		return reply{vals: args[1:]}, nil
	case statusDone:
		return reply{done: true}, nil
	case statusError:
		msg := "unknown error"
		if len(args) > 1 {
			msg = fmt.Sprint(args[1])
		}
		return reply{err: &RemoteError{Listener: listener, Message: msg}}, nil
	}
	return reply{}, fmt.Errorf("invalid stream status %v", args[0])
}

// Call sends an invoke of listener with the given arguments to the peer of
// sys, and yields the stream of replies. The stream ends at the discretion
// of the peer, when ctx ends, or when the connection closes.
//
// The returned iterator yields zero or more (vals, nil) values. If the
// stream ends unsuccessfully, the iterator ends with a final (nil, err).
// Failures reported by the peer have concrete type *RemoteError.
func Call(ctx context.Context, sys *hive.System, listener string, args ...any) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		capability := mkCapability()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Replies arrive on the receiver goroutine of sys, but an iterator
		// can only yield from its own goroutine.
		replies := make(chan reply)
		sys.Handle(capability, func(hctx context.Context, _ []any) error {
			r, err := decodeReply(listener, hive.ContextInvoke(hctx))
			if err != nil {
				r = reply{err: err}
			}
			select {
			case replies <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-hctx.Done():
				return hctx.Err()
			}
		})
		defer sys.Handle(capability, nil)

		req := hive.NewInvoke(listener, append([]any{hive.NewParameter(ReplyParam, capability)}, args...)...)
		if err := sys.SendData(ctx, req); err != nil {
			yield(nil, err)
			return
		}
		stop := func() {
			// Best effort: the peer may already have finished.
			sys.SendData(context.Background(), hive.NewInvoke(CancelMethod, capability))
		}

		for {
			select {
			case r := <-replies:
				if r.err != nil {
					yield(nil, r.err)
					return
				} else if r.done {
					return
				}
				if !yield(r.vals, nil) {
					stop()
					return
				}
			case <-sys.Done():
				yield(nil, fmt.Errorf("stream %q: %w", listener, hive.ErrConnectionClosed))
				return
			case <-ctx.Done():
				stop()
				yield(nil, ctx.Err())
				return
			}
		}
	}
}

// HandlerFunc produces a stream of replies for the arguments of a streaming
// call. Each element yielded is the argument list of one reply. The
// iterator is expected to yield a non-nil error only as its final element.
type HandlerFunc func(ctx context.Context, args []any) iter.Seq2[[]any, error]

// running holds the cancel functions of active streams, by reply listener.
var running sync.Map

// Handle registers fn as a streaming handler for listener on sys, and
// registers the [CancelMethod] handler that lets callers stop it. The
// resulting handler must be invoked with [Call].
//
// Each stream runs in its own goroutine, so that the connection continues
// to deliver invokes (including cancellations) while it runs. The stream
// context ends when the caller cancels or the connection closes.
func Handle(sys *hive.System, listener string, fn HandlerFunc) *hive.System {
	sys.Handle(CancelMethod, cancelStream)
	return sys.Handle(listener, func(ctx context.Context, args []any) error {
		iv := hive.ContextInvoke(ctx)
		if iv == nil || iv.Len() == 0 || iv.At(0).Name != ReplyParam {
			return fmt.Errorf("stream %q: missing %s parameter", listener, ReplyParam)
		}
		capability, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("stream %q: invalid %s parameter", listener, ReplyParam)
		}
		peer := hive.ContextSystem(ctx)

		sctx, cancel := context.WithCancel(ctx)
		running.Store(capability, cancel)
		go func() {
			defer running.Delete(capability)
			defer cancel()
			defer func() {
				if x := recover(); x != nil {
					sendStatus(sctx, peer, capability, statusError, fmt.Sprintf("stream %q panicked (recovered): %v", listener, x))
				}
			}()
			serve(sctx, peer, capability, fn(sctx, args[1:]))
		}()
		return nil
	})
}

func cancelStream(_ context.Context, args []any) error {
	if len(args) == 1 {
		if capability, ok := args[0].(string); ok {
			if cancel, ok := running.Load(capability); ok {
				cancel.(context.CancelFunc)()
			}
		}
	}
	return nil
}

// sendStatus sends one stream message with the given status to the caller.
func sendStatus(ctx context.Context, peer *hive.System, capability, status string, args ...any) error {
	return peer.SendData(ctx, hive.NewInvoke(capability,
		append([]any{hive.NewParameter(StatusParam, status)}, args...)...))
}

func serve(ctx context.Context, peer *hive.System, capability string, vals iter.Seq2[[]any, error]) {
	send := func(status string, args ...any) error { return sendStatus(ctx, peer, capability, status, args...) }
	for vs, err := range vals {
		if err != nil {
			send(statusError, err.Error())
			return
		}
		// The iterator may ignore cancellation, so check here too.
		if ctx.Err() != nil {
			return
		}
		if err := send(statusItem, vs...); err != nil {
			return
		}
	}
	if ctx.Err() == nil {
		send(statusDone)
	}
}
