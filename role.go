// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
	"github.com/creachadair/mds/mapset"
)

// A Role is a named bundle of handlers belonging to one System. A role
// routes its traffic through the system that owns it, so a caller holding
// only a role can reach the remote peer without naming the system.
//
// Roles are created by [System.AddRole] or when a system is constructed from
// its document, and never outlive their system.
type Role struct {
	sys   *System // owner; not nil
	name  string
	sends mapset.Set[string]
	mux   Mux
}

func newRole(sys *System, name string) *Role {
	return &Role{sys: sys, name: name, sends: mapset.New[string]()}
}

// Name reports the name of r, which is unique within its system.
func (r *Role) Name() string { return r.name }

// System returns the system that owns r.
func (r *Role) System() *System { return r.sys }

// Tag implements part of the [entity.Entity] interface.
func (r *Role) Tag() string { return "role" }

// Key implements part of the [entity.Entity] interface. It returns the name
// of r.
func (r *Role) Key() string { return r.name }

// Construct implements part of the [entity.Entity] interface. Handlers
// registered on r are not affected.
func (r *Role) Construct(n *markup.Node) error {
	if n.Tag() != r.Tag() {
		return &entity.SchemaError{Want: r.Tag(), Got: n.Tag()}
	}
	rd := entity.Read(n)
	name := rd.Require("name")
	sends := rd.String("sendListeners", "")
	if err := rd.Err(); err != nil {
		return err
	}
	r.name = name
	r.sends = mapset.New[string]()
	for _, s := range strings.Split(sends, ",") {
		if s = strings.TrimSpace(s); s != "" {
			r.sends.Add(s)
		}
	}
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (r *Role) ToXML() *markup.Node {
	n := markup.New(r.Tag()).SetProperty("name", r.name)
	if len(r.sends) != 0 {
		n.SetProperty("sendListeners", strings.Join(r.SendListeners(), ","))
	}
	return n
}

// AddSendListener declares that r originates invokes of the named
// listeners. It returns r to permit chaining. AddSendListener panics if a
// name is not accepted by [CheckSendListener].
func (r *Role) AddSendListener(names ...string) *Role {
	for _, name := range names {
		if err := CheckSendListener(name); err != nil {
			panic(err.Error())
		}
	}
	r.sends.Add(names...)
	return r
}

// CheckSendListener reports an error if name cannot be declared as a send
// listener. The names are written as one comma-separated property, so a
// name must be non-empty, contain no comma, and have no surrounding space.
func CheckSendListener(name string) error {
	switch {
	case name == "":
		return errors.New("empty send listener name")
	case strings.Contains(name, ","):
		return fmt.Errorf("send listener %q contains a comma", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("send listener %q has surrounding space", name)
	}
	return nil
}

// HasSendListener reports whether r declares that it originates invokes of
// the named listener.
func (r *Role) HasSendListener(name string) bool { return r.sends.Has(name) }

// SendListeners returns the listener names r originates, in sorted order.
func (r *Role) SendListeners() []string { return slices.Sorted(maps.Keys(r.sends)) }

// Handle registers h as the handler for listener on r. Passing a nil handler
// removes any handler for listener. It is safe to call this while the system
// is running. Handle returns r to permit chaining.
func (r *Role) Handle(listener string, h Handler) *Role { r.mux.Handle(listener, h); return r }

// Lookup implements the [Target] interface.
func (r *Role) Lookup(listener string) (Handler, bool) { return r.mux.Lookup(listener) }

// Listeners returns the names of the listeners r handles, in sorted order.
func (r *Role) Listeners() []string { return r.mux.Listeners() }

// SendData sends iv to the remote peer through the system that owns r.
func (r *Role) SendData(ctx context.Context, iv *Invoke) error { return r.sys.SendData(ctx, iv) }

// ReplyData routes iv through the system that owns r, as if it had arrived
// from the remote peer.
func (r *Role) ReplyData(ctx context.Context, iv *Invoke) error { return r.sys.ReplyData(ctx, iv) }
