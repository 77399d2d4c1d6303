// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive_test

import (
	"context"
	"errors"
	"expvar"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/hive"
	"github.com/creachadair/hive/channel"
	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
	"github.com/creachadair/hive/peers"
	"github.com/creachadair/mds/mtest"
	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

func TestInvokeWire(t *testing.T) {
	iv := hive.NewInvoke("add", 2, 3)

	const want = `<invoke listener="add"><parameter type="number">2</parameter><parameter type="number">3</parameter></invoke>`
	if got := iv.String(); got != want {
		t.Errorf("String:\n got %s\nwant %s", got, want)
	}

	dec, err := hive.ParseInvoke(want)
	if err != nil {
		t.Fatalf("ParseInvoke: %v", err)
	}
	if got := dec.Listener(); got != "add" {
		t.Errorf("Listener: got %q, want add", got)
	}
	if diff := cmp.Diff([]any{2.0, 3.0}, dec.Arguments()); diff != "" {
		t.Errorf("Arguments (-want, +got):\n%s", diff)
	}
}

func TestParameters(t *testing.T) {
	frag := markup.New("point").SetProperty("x", "1").SetProperty("y", "2")
	iv := hive.NewInvoke("mixed",
		-1.25,
		true,
		"a <b> & \"c\"\n",
		frag,
		hive.NewParameter("label", "named"),
		uint16(7),
	)
	text := iv.String()
	t.Logf("Encoded: %s", text)

	dec, err := hive.ParseInvoke(text)
	if err != nil {
		t.Fatalf("ParseInvoke: %v", err)
	}
	args := dec.Arguments()
	if len(args) != 6 {
		t.Fatalf("Arguments: got %d, want 6", len(args))
	}
	if diff := cmp.Diff([]any{-1.25, true, "a <b> & \"c\"\n"}, args[:3]); diff != "" {
		t.Errorf("Scalar arguments (-want, +got):\n%s", diff)
	}
	if n, ok := args[3].(*markup.Node); !ok || n.String() != frag.String() {
		t.Errorf("Fragment: got %v, want %v", args[3], frag)
	}
	if args[4] != "named" || args[5] != 7.0 {
		t.Errorf("Trailing arguments: got %v", args[4:])
	}

	p, ok := dec.Param("label")
	if !ok || p.Type != hive.TypeString || p.Value != "named" {
		t.Errorf("Param label: got %+v, %v", p, ok)
	}
	if _, ok := dec.Param("nonesuch"); ok {
		t.Error("Param nonesuch: unexpectedly found")
	}
	if got := dec.String(); got != text {
		t.Errorf("Re-encoded:\n got %s\nwant %s", got, text)
	}

	// Clones do not share fragments.
	cp := dec.Clone()
	cp.At(3).Value.(*markup.Node).SetProperty("x", "99")
	if dec.String() != text {
		t.Error("Modifying a clone changed the original")
	}

	mtest.MustPanic(t, func() { hive.NewParameter("bad", []int{1}) })
}

func TestParameterErrors(t *testing.T) {
	tests := []string{
		`<invoke listener="x"><parameter type="number">two</parameter></invoke>`,
		`<invoke listener="x"><parameter type="boolean">yes</parameter></invoke>`,
		`<invoke listener="x"><parameter type="complex">1i</parameter></invoke>`,
		`<invoke listener="x"><parameter type="XML"></parameter></invoke>`,
		`<invoke listener="x"><parameter type="XML"><a/><b/></parameter></invoke>`,
		`<invoke listener="x"><parameter type="string"><a/></parameter></invoke>`,
	}
	for _, text := range tests {
		_, err := hive.ParseInvoke(text)
		var verr *entity.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ParseInvoke %s: got %v, want *ValidationError", text, err)
		}
	}

	var serr *entity.SchemaError
	if _, err := hive.ParseInvoke(`<invoke listener="x"><param/></invoke>`); !errors.As(err, &serr) {
		t.Errorf("Wrong child: got %v, want *SchemaError", err)
	}
	var verr *entity.ValidationError
	if _, err := hive.ParseInvoke(`<invoke/>`); !errors.As(err, &verr) {
		t.Errorf("Missing listener: got %v, want *ValidationError", err)
	}
}

func TestParameterValues(t *testing.T) {
	// Go numeric kinds are written as numbers whatever their width.
	iv := hive.NewInvoke("add",
		&hive.Parameter{Type: hive.TypeNumber, Value: 2},
		&hive.Parameter{Type: hive.TypeNumber, Value: uint8(3)},
		&hive.Parameter{Value: true},
	)
	const want = `<invoke listener="add"><parameter type="number">2</parameter>` +
		`<parameter type="number">3</parameter><parameter type="boolean">true</parameter></invoke>`
	if err := iv.Check(); err != nil {
		t.Errorf("Check: unexpected error: %v", err)
	}
	if got := iv.String(); got != want {
		t.Errorf("String:\n got %s\nwant %s", got, want)
	}
	dec, err := hive.ParseInvoke(want)
	if err != nil {
		t.Fatalf("ParseInvoke: %v", err)
	}
	if diff := cmp.Diff([]any{2.0, 3.0, true}, dec.Arguments()); diff != "" {
		t.Errorf("Arguments (-want, +got):\n%s", diff)
	}

	// Values that do not fit their declared type are reported.
	for _, p := range []*hive.Parameter{
		{Type: hive.TypeString, Value: 2},
		{Type: hive.TypeBoolean, Value: "true"},
		{Type: hive.TypeNumber, Value: []int{1}},
		{Type: hive.TypeXML},
	} {
		var verr *entity.ValidationError
		if err := p.Check(); !errors.As(err, &verr) {
			t.Errorf("Check %+v: got %v, want *ValidationError", p, err)
		}
	}
}

func TestSendUnencodable(t *testing.T) {
	defer leaktest.Check(t)()
	loc := peers.NewLocal()
	defer loc.Stop()

	got := make(chan []any, 1)
	loc.B.Handle("add", func(_ context.Context, args []any) error { got <- args; return nil })

	ctx := t.Context()
	bad := hive.NewInvoke("add", &hive.Parameter{Type: hive.TypeNumber, Value: "two"})
	var verr *entity.ValidationError
	if err := loc.A.SendData(ctx, bad); !errors.As(err, &verr) {
		t.Errorf("SendData: got %v, want *ValidationError", err)
	}

	// The connection is unaffected and nothing was written.
	if err := loc.A.SendData(ctx, hive.NewInvoke("add", 1)); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if diff := cmp.Diff([]any{1.0}, <-got); diff != "" {
		t.Errorf("Arguments (-want, +got):\n%s", diff)
	}
}

func TestApply(t *testing.T) {
	var m hive.Mux
	var got []any
	m.Handle("foo", func(ctx context.Context, args []any) error {
		if iv := hive.ContextInvoke(ctx); iv == nil || iv.Listener() != "foo" {
			t.Errorf("ContextInvoke: got %v", iv)
		}
		got = args
		return nil
	})
	m.Handle("boom", func(context.Context, []any) error { panic("kaboom") })

	ctx := context.Background()
	if err := hive.NewInvoke("foo", "a", 1, false).Apply(ctx, &m); err != nil {
		t.Errorf("Apply foo: unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"a", 1.0, false}, got); diff != "" {
		t.Errorf("Arguments (-want, +got):\n%s", diff)
	}

	got = nil
	err := hive.NewInvoke("bar", "a").Apply(ctx, &m)
	var merr *hive.MethodNotFoundError
	if !errors.As(err, &merr) || merr.Listener != "bar" {
		t.Errorf("Apply bar: got %v, want *MethodNotFoundError", err)
	}
	if !errors.Is(err, hive.ErrMethodNotFound) {
		t.Errorf("Apply bar: %v is not ErrMethodNotFound", err)
	}
	if got != nil {
		t.Errorf("Apply bar called a handler with %v", got)
	}

	if err := hive.NewInvoke("boom").Apply(ctx, &m); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Apply boom: got %v, want recovered panic", err)
	}

	if diff := cmp.Diff([]string{"boom", "foo"}, m.Listeners()); diff != "" {
		t.Errorf("Listeners (-want, +got):\n%s", diff)
	}
	m.Handle("boom", nil)
	if _, ok := m.Lookup("boom"); ok {
		t.Error("Handler for boom was not removed")
	}
	mtest.MustPanic(t, func() { m.Handle("", nil) })
}

func TestRoleResolution(t *testing.T) {
	arr := hive.NewSystemArray("topology")
	s1 := hive.NewSystem("first", "10.0.0.1", 9001)
	s2 := hive.NewSystem("second", "10.0.0.2", 9002)
	r1 := s1.AddRole("alpha")
	s2.AddRole("alpha")
	r2 := s2.AddRole("beta", "result")

	for _, s := range []*hive.System{s1, s2} {
		if err := arr.Add(s); err != nil {
			t.Fatalf("Add %q: %v", s.Name(), err)
		}
	}
	if err := arr.Add(hive.NewSystem("first", "", 0)); err == nil {
		t.Error("Add duplicate system: got nil error")
	}

	if r, ok := arr.Role("alpha"); !ok || r != r1 || r.System() != s1 {
		t.Errorf("Role alpha: got %v, %v; want the role of the first system", r, ok)
	}
	if r, ok := arr.Role("beta"); !ok || r != r2 {
		t.Errorf("Role beta: got %v, %v", r, ok)
	}
	if arr.HasRole("missing") {
		t.Error("HasRole missing: got true")
	}
	if !r2.HasSendListener("result") || r2.HasSendListener("other") {
		t.Error("HasSendListener: wrong answer")
	}
	mtest.MustPanic(t, func() { s1.AddRole("alpha") })

	// Send listener names must survive the comma-separated property.
	for _, bad := range []string{"", "a,b", " padded"} {
		mtest.MustPanic(t, func() { r2.AddSendListener(bad) })
		if hive.CheckSendListener(bad) == nil {
			t.Errorf("CheckSendListener %q: got nil error", bad)
		}
	}
	r2.AddSendListener("sum.total", "x-y")
	rt := hive.NewSystem("copy", "", 0).AddRole("beta")
	if err := rt.Construct(r2.ToXML()); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if diff := cmp.Diff(r2.SendListeners(), rt.SendListeners()); diff != "" {
		t.Errorf("Send listeners (-want, +got):\n%s", diff)
	}

	// Removing the first system exposes the role of the second.
	arr.Remove("first")
	if r, ok := arr.Role("alpha"); !ok || r.System() != s2 {
		t.Errorf("Role alpha after remove: got %v, %v", r, ok)
	}
}

func TestTopologyDocument(t *testing.T) {
	const doc = `<systemArray name="cluster">
	<system name="master" ip="10.0.0.1" port="37000">
		<role name="scheduler" sendListeners="assign,cancel"/>
	</system>
	<system name="worker" ip="10.0.0.2" port="37001" mode="accept">
		<role name="solver"/>
		<role name="reporter" sendListeners="progress"/>
	</system>
</systemArray>`
	n, err := markup.Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	arr := hive.NewSystemArray("")
	if err := arr.Construct(n); err != nil {
		t.Fatalf("Construct: %v", err)
	}
	if got := arr.Name(); got != "cluster" {
		t.Errorf("Name: got %q, want cluster", got)
	}

	type sysInfo struct {
		Name, Addr string
		Mode       hive.Mode
		Roles      []string
	}
	var got []sysInfo
	for _, s := range arr.Systems() {
		si := sysInfo{Name: s.Name(), Addr: s.Addr(), Mode: s.Mode()}
		for _, r := range s.All() {
			si.Roles = append(si.Roles, r.Name())
		}
		got = append(got, si)
	}
	want := []sysInfo{
		{"master", "10.0.0.1:37000", hive.ModeDial, []string{"scheduler"}},
		{"worker", "10.0.0.2:37001", hive.ModeAccept, []string{"solver", "reporter"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Systems (-want, +got):\n%s", diff)
	}
	if r, ok := arr.Role("scheduler"); !ok || !r.HasSendListener("cancel") {
		t.Errorf("Role scheduler: got %v, %v", r, ok)
	}

	// Round trip through the canonical form.
	text := arr.ToXML().String()
	n2, err := markup.Parse(text)
	if err != nil {
		t.Fatalf("Parse re-encoded: %v", err)
	}
	arr2 := hive.NewSystemArray("")
	if err := arr2.Construct(n2); err != nil {
		t.Fatalf("Construct re-encoded: %v", err)
	}
	if got := arr2.ToXML().String(); got != text {
		t.Errorf("Round trip:\n got %s\nwant %s", got, text)
	}

	var verr *entity.ValidationError
	dupSys := `<systemArray><system name="a" port="1"/><system name="a" port="2"/></systemArray>`
	if err := arr2.Construct(mustParse(t, dupSys)); !errors.As(err, &verr) {
		t.Errorf("Duplicate system: got %v, want *ValidationError", err)
	}
	dupRole := `<systemArray><system name="a" port="1"><role name="r"/><role name="r"/></system></systemArray>`
	if err := arr2.Construct(mustParse(t, dupRole)); !errors.As(err, &verr) {
		t.Errorf("Duplicate role: got %v, want *ValidationError", err)
	}
	badPort := `<systemArray><system name="a" port="70000"/></systemArray>`
	if err := arr2.Construct(mustParse(t, badPort)); !errors.As(err, &verr) {
		t.Errorf("Bad port: got %v, want *ValidationError", err)
	}
	if arr2.Len() != 2 {
		t.Errorf("Failed Construct changed the array: %d systems", arr2.Len())
	}
}

func mustParse(t *testing.T, text string) *markup.Node {
	t.Helper()
	n, err := markup.Parse(text)
	if err != nil {
		t.Fatalf("Parse %q: %v", text, err)
	}
	return n
}

func TestSendBeforeOpen(t *testing.T) {
	sys := hive.NewSystem("idle", "10.1.2.3", 5000)
	err := sys.SendData(context.Background(), hive.NewInvoke("x"))
	var cerr *hive.ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("SendData: got %v, want *ConnectionError", err)
	}
	if !errors.Is(err, hive.ErrConnectionClosed) {
		t.Errorf("SendData: %v is not ErrConnectionClosed", err)
	}
	if cerr.State != hive.ConnIdle {
		t.Errorf("Error state: got %v, want %v", cerr.State, hive.ConnIdle)
	}
	if sys.State() != hive.SystemCreated {
		t.Errorf("State: got %v, want %v", sys.State(), hive.SystemCreated)
	}
}

// rawPeer attaches a new system to one end of a pipe, and returns the system
// and the other end. The caller must close the system.
func rawPeer(t *testing.T, opts ...hive.Option) (*hive.System, net.Conn) {
	t.Helper()
	local, remote := channel.Pipe("local", "remote")
	sys := hive.NewSystem("remote", "", 0, opts...)
	if err := sys.Attach(local); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return sys, remote
}

func TestSendWire(t *testing.T) {
	defer leaktest.Check(t)()
	sys, remote := rawPeer(t)
	defer sys.Close()

	iv := hive.NewInvoke("add", 2, 3)
	want := iv.String()
	g := taskgroup.Go(func() error {
		return sys.SendData(context.Background(), iv)
	})
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(remote, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if got := string(buf); got != want {
		t.Errorf("Wire bytes:\n got %s\nwant %s", got, want)
	}

	remote.Close()
	if err := sys.Wait(); err != nil {
		t.Errorf("Wait: unexpected error: %v", err)
	}
	if sys.State() != hive.SystemDisconnected {
		t.Errorf("State: got %v, want %v", sys.State(), hive.SystemDisconnected)
	}
	var cerr *hive.ConnectionError
	if err := sys.SendData(context.Background(), iv); !errors.As(err, &cerr) || cerr.State != hive.ConnClosed {
		t.Errorf("SendData after close: got %v, want closed *ConnectionError", err)
	}
}

func TestFraming(t *testing.T) {
	defer leaktest.Check(t)()
	sys, remote := rawPeer(t)
	defer sys.Close()

	var μ sync.Mutex
	var got []string
	done := make(chan struct{})
	sys.AddRole("log").Handle("note", func(_ context.Context, args []any) error {
		μ.Lock()
		defer μ.Unlock()
		got = append(got, args[0].(string))
		if len(got) == 4 {
			close(done)
		}
		return nil
	})

	msgs := []string{
		hive.NewInvoke("note", "one").String(),
		hive.NewInvoke("note", "two").String(),
		hive.NewInvoke("note", "three <&>").String(),
		hive.NewInvoke("note", "four").String(),
	}
	stream := msgs[0] + "\n" + msgs[1] + msgs[2] + "  \n" + msgs[3]

	// Deliver the stream in uneven pieces, splitting messages and tags.
	for _, size := range []int{5, 40, 1, 77, 200, 3} {
		if len(stream) == 0 {
			break
		}
		size = min(size, len(stream))
		if _, err := io.WriteString(remote, stream[:size]); err != nil {
			t.Fatalf("Write: %v", err)
		}
		stream = stream[size:]
	}
	if _, err := io.WriteString(remote, stream); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for messages")
	}
	if diff := cmp.Diff([]string{"one", "two", "three <&>", "four"}, got); diff != "" {
		t.Errorf("Messages (-want, +got):\n%s", diff)
	}
}

func TestMalformedStream(t *testing.T) {
	defer leaktest.Check(t)()
	sys, remote := rawPeer(t)
	defer sys.Close()

	var closed error
	closedc := make(chan struct{})
	sys.Connector().OnClose(func(err error) { closed = err; close(closedc) })

	// An undecodable but well-formed message is skipped.
	called := make(chan struct{})
	sys.Handle("ok", func(context.Context, []any) error { close(called); return nil })
	io.WriteString(remote, `<notAnInvoke/>`+hive.NewInvoke("ok").String())
	<-called

	// A malformed message is fatal.
	io.WriteString(remote, `<invoke listener="x"></parameter>`)
	<-closedc
	err := sys.Wait()
	var perr *markup.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("Wait: got %v, want *ParseError", err)
	}
	if !errors.As(closed, &perr) {
		t.Errorf("OnClose: got %v, want *ParseError", closed)
	}
	if sys.State() != hive.SystemDisconnected {
		t.Errorf("State: got %v, want %v", sys.State(), hive.SystemDisconnected)
	}
}

func TestMessageSize(t *testing.T) {
	defer leaktest.Check(t)()

	t.Run("Large", func(t *testing.T) {
		sys, remote := rawPeer(t)
		defer sys.Close()

		got := make(chan string, 1)
		sys.Handle("blob", func(_ context.Context, args []any) error { got <- args[0].(string); return nil })

		want := strings.Repeat("abcdefgh", 1<<17)
		if _, err := io.WriteString(remote, hive.NewInvoke("blob", want).String()); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if s := <-got; s != want {
			t.Errorf("Blob: got %d bytes, want %d", len(s), len(want))
		}
	})

	t.Run("Limit", func(t *testing.T) {
		sys, remote := rawPeer(t, hive.WithMaxMessageSize(64))
		defer sys.Close()

		// The message never closes, so only the limit stops it.
		go io.WriteString(remote, `<invoke listener="x"><parameter type="string">`+strings.Repeat("z", 200))
		err := sys.Wait()
		if !errors.Is(err, hive.ErrMessageTooLarge) {
			t.Errorf("Wait: got %v, want %v", err, hive.ErrMessageTooLarge)
		}
		if sys.State() != hive.SystemDisconnected {
			t.Errorf("State: got %v, want %v", sys.State(), hive.SystemDisconnected)
		}
		remote.Close()
	})
}

func TestCloseFromHandler(t *testing.T) {
	defer leaktest.Check(t)()
	loc := peers.NewLocal()
	defer loc.Stop()

	closed := make(chan error, 1)
	loc.B.Handle("shutdown", func(ctx context.Context, _ []any) error {
		closed <- hive.ContextSystem(ctx).Close()
		return nil
	})
	if err := loc.A.SendData(t.Context(), hive.NewInvoke("shutdown")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close: unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close called by a handler did not return")
	}
	if got := loc.B.State(); got != hive.SystemDisconnected {
		t.Errorf("State: got %v, want %v", got, hive.SystemDisconnected)
	}
	if err := loc.B.Wait(); err != nil {
		t.Errorf("Wait: unexpected error: %v", err)
	}

	// The peer sees the connection end.
	if err := loc.A.Wait(); err != nil {
		t.Errorf("Peer wait: unexpected error: %v", err)
	}
	if got := loc.A.State(); got != hive.SystemDisconnected {
		t.Errorf("Peer state: got %v, want %v", got, hive.SystemDisconnected)
	}
}

func TestCloseWhileListening(t *testing.T) {
	defer leaktest.Check(t)()
	lb := channel.NewLoopback()
	ready := make(chan struct{})
	srv := hive.NewSystem("server", "worker", 9000,
		hive.WithMode(hive.ModeAccept),
		hive.WithListener(readyListener{ListenerFactory: lb, ready: ready}),
	)

	started := make(chan error, 1)
	go func() { started <- srv.Start(t.Context()) }()
	<-ready
	if err := srv.Close(); err != nil {
		t.Errorf("Close: unexpected error: %v", err)
	}
	select {
	case err := <-started:
		if err == nil {
			t.Error("Start: got nil error after Close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Close")
	}
	if got := srv.State(); got != hive.SystemDisconnected {
		t.Errorf("State: got %v, want %v", got, hive.SystemDisconnected)
	}
}

func TestCloseRacesAttach(t *testing.T) {
	defer leaktest.Check(t)()
	for range 200 {
		local, remote := channel.Pipe("local", "remote")
		sys := hive.NewSystem("racer", "", 0)
		g := taskgroup.Go(func() error { sys.Attach(local); return nil })
		sys.Close()
		g.Wait()

		// Whichever came first, the system ends closed.
		select {
		case <-sys.Done():
		default:
			t.Fatal("Done is not closed after Close")
		}
		if got := sys.Connector().State(); got != hive.ConnClosed {
			t.Fatalf("State: got %v, want %v", got, hive.ConnClosed)
		}
		sys.Close()
		remote.Close()
	}
}

func TestRouting(t *testing.T) {
	defer leaktest.Check(t)()
	loc := peers.NewLocal()
	defer func() {
		if err := loc.Stop(); err != nil {
			t.Errorf("Stopping systems: %v", err)
		}
		m := loc.A.Connector().Metrics()
		t.Logf("Metrics at exit: %v", m)
		if v := m.Get("connectors_open").(*expvar.Int).Value(); v != 0 {
			t.Errorf("Metric connectors_open = %d, want 0", v)
		}
	}()

	type hit struct{ Where, Listener string }
	hits := make(chan hit, 10)
	record := func(where string) hive.Handler {
		return func(ctx context.Context, args []any) error {
			if hive.ContextSystem(ctx) != loc.B {
				t.Errorf("ContextSystem: got %v, want %v", hive.ContextSystem(ctx), loc.B)
			}
			if r := hive.ContextRole(ctx); r != nil && r.Name() != where {
				t.Errorf("ContextRole: got %q, want %q", r.Name(), where)
			}
			hits <- hit{where, hive.ContextInvoke(ctx).Listener()}
			return nil
		}
	}

	loc.B.Handle("sys", record("system"))
	loc.B.Handle("shared", record("system"))
	loc.B.AddRole("first").
		Handle("shared", record("first")).
		Handle("one", record("first")).
		Handle("pass", func(context.Context, []any) error { return hive.ErrMethodNotFound })
	loc.B.AddRole("second").
		Handle("one", record("second")).
		Handle("two", record("second")).
		Handle("pass", record("second"))
	loc.B.Handle("done", func(context.Context, []any) error { close(hits); return nil })

	unrouted := loc.B.Connector().Metrics().Get("invokes_unrouted").(*expvar.Int).Value()

	ctx := t.Context()
	for _, name := range []string{"sys", "shared", "one", "two", "pass", "nonesuch", "done"} {
		if err := loc.A.SendData(ctx, hive.NewInvoke(name)); err != nil {
			t.Fatalf("SendData %q: %v", name, err)
		}
	}
	var got []hit
	for h := range hits {
		got = append(got, h)
	}
	want := []hit{
		{"system", "sys"},
		{"system", "shared"},
		{"first", "one"},
		{"second", "two"},
		{"second", "pass"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Routing (-want, +got):\n%s", diff)
	}
	if v := loc.B.Connector().Metrics().Get("invokes_unrouted").(*expvar.Int).Value(); v != unrouted+1 {
		t.Errorf("Metric invokes_unrouted = %d, want %d", v, unrouted+1)
	}
}

func TestRoleProxy(t *testing.T) {
	defer leaktest.Check(t)()
	loc := peers.NewLocal()
	defer loc.Stop()

	// A handler on B replies through the role that received the invoke,
	// without naming the system.
	loc.B.AddRole("calculator").Handle("add", func(ctx context.Context, args []any) error {
		sum := args[0].(float64) + args[1].(float64)
		return hive.ContextRole(ctx).SendData(ctx, hive.NewInvoke("sum", sum))
	})
	got := make(chan float64, 1)
	peerRole := loc.A.AddRole("calculator", "add").Handle("sum", func(_ context.Context, args []any) error {
		got <- args[0].(float64)
		return nil
	})

	var log []string
	var μ sync.Mutex
	loc.A.Connector().LogInvokes(func(v hive.InvokeInfo) {
		μ.Lock()
		defer μ.Unlock()
		log = append(log, v.String())
	})

	if err := peerRole.SendData(t.Context(), hive.NewInvoke("add", 2, 3)); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if sum := <-got; sum != 5 {
		t.Errorf("Sum: got %v, want 5", sum)
	}

	μ.Lock()
	defer μ.Unlock()
	want := []string{
		`send <invoke listener="add"><parameter type="number">2</parameter><parameter type="number">3</parameter></invoke>`,
		`recv <invoke listener="sum"><parameter type="number">5</parameter></invoke>`,
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Errorf("Invoke log (-want, +got):\n%s", diff)
	}
}

// readyListener signals when its listener has been opened.
type readyListener struct {
	hive.ListenerFactory
	ready chan struct{}
}

func (r readyListener) Listen(ctx context.Context, network, addr string) (net.Listener, error) {
	lst, err := r.ListenerFactory.Listen(ctx, network, addr)
	close(r.ready)
	return lst, err
}

func TestStart(t *testing.T) {
	defer leaktest.Check(t)()
	lb := channel.NewLoopback()
	ready := make(chan struct{})

	srv := hive.NewSystem("server", "worker", 9000,
		hive.WithMode(hive.ModeAccept),
		hive.WithListener(readyListener{ListenerFactory: lb, ready: ready}),
	)
	cli := hive.NewSystem("client", "worker", 9000, hive.WithDialer(lb))
	bad := hive.NewSystem("nobody", "worker", 9999, hive.WithDialer(lb))

	got := make(chan string, 1)
	srv.AddRole("greeter").Handle("hello", func(_ context.Context, args []any) error {
		got <- args[0].(string)
		return nil
	})

	ctx := t.Context()
	g := taskgroup.Go(func() error { return srv.Start(ctx) })
	<-ready

	arr := hive.NewSystemArray("clients")
	arr.Add(cli)
	arr.Add(bad)
	err := arr.Start(ctx)
	if err == nil {
		t.Fatal("Start: got nil error, want failure of one system")
	}
	var cerr *hive.ConnectionError
	if !errors.As(err, &cerr) || cerr.Addr != "worker:9999" {
		t.Errorf("Start: got %v, want *ConnectionError for worker:9999", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Server start: %v", err)
	}

	if cli.State() != hive.SystemConnected || bad.State() != hive.SystemDisconnected {
		t.Errorf("States: cli=%v bad=%v", cli.State(), bad.State())
	}
	if srv.State() != hive.SystemConnected {
		t.Errorf("Server state: got %v", srv.State())
	}

	// Only connected systems receive broadcasts.
	if err := arr.SendData(ctx, hive.NewInvoke("hello", "world")); err != nil {
		t.Errorf("Broadcast: %v", err)
	}
	if s := <-got; s != "world" {
		t.Errorf("Greeting: got %q, want world", s)
	}

	if err := cli.Start(ctx); err == nil {
		t.Error("Restarting a connected system: got nil error")
	}
	if err := arr.Close(); err != nil {
		t.Errorf("Close array: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Errorf("Server wait: %v", err)
	}
	if srv.State() != hive.SystemDisconnected {
		t.Errorf("Server state after peer close: got %v", srv.State())
	}
}

func TestHistory(t *testing.T) {
	defer leaktest.Check(t)()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	var tick time.Duration
	clock := func() time.Time { tick += 250 * time.Millisecond; return base.Add(tick) }

	loc := peers.NewLocal(hive.WithHistory(), hive.WithClock(clock))
	defer loc.Stop()

	seen := make(chan []any, 1)
	loc.B.AddRole("worker").Handle("work", func(_ context.Context, args []any) error {
		seen <- args
		return nil
	})
	reports := make(chan *hive.History, 1)
	loc.A.Handle(hive.ReportHistory, func(_ context.Context, args []any) error {
		h := new(hive.History)
		if err := h.Construct(args[0].(*markup.Node)); err != nil {
			t.Errorf("Construct history: %v", err)
		}
		reports <- h
		return nil
	})

	iv := hive.NewInvoke("work", hive.NewParameter(hive.HistoryParam, "42"), 5)
	if err := loc.A.SendData(t.Context(), iv); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if diff := cmp.Diff([]any{5.0}, <-seen); diff != "" {
		t.Errorf("Handler arguments (-want, +got):\n%s", diff)
	}
	h := <-reports
	want := &hive.History{
		UID:      "42",
		Listener: "work",
		Start:    base.Add(250 * time.Millisecond),
		End:      base.Add(500 * time.Millisecond),
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("History (-want, +got):\n%s", diff)
	}
	if got := h.Elapsed(); got != 250*time.Millisecond {
		t.Errorf("Elapsed: got %v, want 250ms", got)
	}
}
