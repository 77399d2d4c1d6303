// Copyright (C) 2022 Michael J. Fromberger. All Rights Reserved.

package channel_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/creachadair/hive/channel"
	"github.com/creachadair/taskgroup"
)

func TestLoopback(t *testing.T) {
	lb := channel.NewLoopback()
	ctx := t.Context()

	lst, err := lb.Listen(ctx, "tcp", "worker:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := lst.Addr().String()
	if addr != "worker:49152" {
		t.Errorf("Listen address: got %q, want worker:49152", addr)
	}
	if _, err := lb.Listen(ctx, "tcp", addr); err == nil {
		t.Error("Listen on a bound address did not report an error")
	}

	g := taskgroup.New(nil)
	g.Go(func() error {
		c, err := lst.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			return nil
		}
		defer c.Close()
		if got := c.LocalAddr().String(); got != addr {
			t.Errorf("Server local address: got %q, want %q", got, addr)
		}
		buf := make([]byte, 5)
		if _, err := io.ReadFull(c, buf); err != nil {
			t.Errorf("Read: %v", err)
		}
		if _, err := c.Write(buf); err != nil {
			t.Errorf("Write: %v", err)
		}
		return nil
	})

	c, err := lb.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if got := c.RemoteAddr().String(); got != addr {
		t.Errorf("Client remote address: got %q, want %q", got, addr)
	}
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Errorf("Write: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Errorf("Read: %v", err)
	} else if string(buf) != "hello" {
		t.Errorf("Echo: got %q, want hello", buf)
	}
	g.Wait()
	c.Close()

	if err := lst.Close(); err != nil {
		t.Errorf("Close listener: %v", err)
	}
	if c, err := lst.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept after close: got %v, %v; want %v", c, err, net.ErrClosed)
	}
	if c, err := lb.DialContext(ctx, "tcp", addr); !errors.Is(err, channel.ErrRefused) {
		t.Errorf("Dial after close: got %v, %v; want %v", c, err, channel.ErrRefused)
	}
}

func TestDialTimeout(t *testing.T) {
	lb := channel.NewLoopback()
	lst, err := lb.Listen(t.Context(), "tcp", "idle:9000")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lst.Close()

	// Nobody accepts, so the dial must give up when its context ends.
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if c, err := lb.DialContext(ctx, "tcp", "idle:9000"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dial: got %v, %v; want %v", c, err, context.DeadlineExceeded)
	}
}

func TestPipe(t *testing.T) {
	a, b := channel.Pipe("left", "right")
	defer a.Close()
	defer b.Close()

	if got := a.RemoteAddr().String(); got != "right" {
		t.Errorf("A remote: got %q, want right", got)
	}
	if got := b.RemoteAddr().String(); got != "left" {
		t.Errorf("B remote: got %q, want left", got)
	}
	go a.Write([]byte("x"))
	buf := make([]byte, 1)
	if _, err := io.ReadFull(b, buf); err != nil || buf[0] != 'x' {
		t.Errorf("Read: got %q, %v", buf, err)
	}
}
