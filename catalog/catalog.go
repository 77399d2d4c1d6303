// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package catalog describes the listeners of a role, so that peers can
// discover what a role handles and what it sends.
//
// # Usage
//
// Build a catalog from a role:
//
//	cat := catalog.Of(role)
//
// A catalog is an entity, and its document form lists one entry per
// listener:
//
//	<catalog role="calculator"><listener name="add" kind="handle"/><listener name="sum" kind="send"/></catalog>
//
// To let a peer ask for the catalogs of the roles of a system, use Serve:
//
//	catalog.Serve(sys)
//
// The peer sends an invoke of [Method], optionally naming one role, and
// receives one [ReplyMethod] invoke per matching role, whose only argument
// is the catalog document. Use [Decode] to recover the catalog:
//
//	sys.Handle(catalog.ReplyMethod, func(ctx context.Context, args []any) error {
//	   cat, err := catalog.Decode(args)
//	   ...
//	})
package catalog

import (
	"context"
	"fmt"

	"github.com/creachadair/hive"
	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
)

const (
	// Method is the listener that requests catalogs.
	Method = "catalog"

	// ReplyMethod is the listener that carries a catalog in reply.
	ReplyMethod = "catalogReply"
)

// Kind says whether a role handles or sends a listener.
type Kind string

const (
	Handles Kind = "handle" // the role has a handler for the listener
	Sends   Kind = "send"   // the role originates invokes of the listener
)

// An Entry is one listener of a catalog.
type Entry struct {
	Name string
	Kind Kind
}

// Tag implements part of the [entity.Entity] interface.
func (e *Entry) Tag() string { return "listener" }

// Key implements part of the [entity.Entity] interface.
func (e *Entry) Key() string { return string(e.Kind) + ":" + e.Name }

// Construct implements part of the [entity.Entity] interface.
func (e *Entry) Construct(n *markup.Node) error {
	r := entity.Read(n)
	name := r.Require("name")
	kind := Kind(r.String("kind", string(Handles)))
	if err := r.Err(); err != nil {
		return err
	}
	if kind != Handles && kind != Sends {
		return &entity.ValidationError{Tag: n.Tag(), Key: "kind", Value: string(kind), Err: fmt.Errorf("unknown kind")}
	}
	e.Name, e.Kind = name, kind
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (e *Entry) ToXML() *markup.Node {
	return markup.New(e.Tag()).SetProperty("name", e.Name).SetProperty("kind", string(e.Kind))
}

// A Catalog lists the listeners of one role.
type Catalog struct {
	entity.Array[*Entry]
	role string
}

// New constructs an empty catalog for the named role.
func New(role string) *Catalog {
	return &Catalog{
		Array: entity.NewArray("catalog", "listener", entity.Constructor(func() *Entry { return new(Entry) })),
		role:  role,
	}
}

// Of constructs a catalog of the listeners r handles followed by those it
// sends, each in sorted order.
func Of(r *hive.Role) *Catalog {
	c := New(r.Name())
	for _, name := range r.Listeners() {
		c.Push(&Entry{Name: name, Kind: Handles})
	}
	for _, name := range r.SendListeners() {
		c.Push(&Entry{Name: name, Kind: Sends})
	}
	return c
}

// Decode constructs a catalog from the arguments of a [ReplyMethod] invoke.
func Decode(args []any) (*Catalog, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("catalog: got %d arguments, want 1", len(args))
	}
	n, ok := args[0].(*markup.Node)
	if !ok {
		return nil, fmt.Errorf("catalog: argument is %T, not a document", args[0])
	}
	c := New("")
	if err := c.Construct(n); err != nil {
		return nil, err
	}
	return c, nil
}

// Role reports the name of the role described by c.
func (c *Catalog) Role() string { return c.role }

// Key implements part of the [entity.Entity] interface. It returns the role
// name.
func (c *Catalog) Key() string { return c.role }

// Handles reports whether c lists name as a handled listener.
func (c *Catalog) Handles(name string) bool { return c.Has(string(Handles) + ":" + name) }

// Sends reports whether c lists name as a sent listener.
func (c *Catalog) Sends(name string) bool { return c.Has(string(Sends) + ":" + name) }

// Construct implements part of the [entity.Entity] interface.
func (c *Catalog) Construct(n *markup.Node) error {
	r := entity.Read(n)
	role := r.Require("role")
	if err := r.Err(); err != nil {
		return err
	}
	if err := c.Array.Construct(n); err != nil {
		return err
	}
	c.role = role
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (c *Catalog) ToXML() *markup.Node {
	return c.Array.ToXML().SetProperty("role", c.role)
}

// Serve registers a system-level [Method] handler on sys. The handler
// replies to the peer with the catalog of the role named by its first
// argument, or of every role of sys if it has no arguments. Asking for a
// role sys does not have is an error. Serve returns sys to permit chaining.
func Serve(sys *hive.System) *hive.System {
	return sys.Handle(Method, func(ctx context.Context, args []any) error {
		var roles []*hive.Role
		switch len(args) {
		case 0:
			roles = sys.Items()
		case 1:
			name, ok := args[0].(string)
			if !ok {
				return fmt.Errorf("catalog: role name is %T, not string", args[0])
			}
			r, ok := sys.Role(name)
			if !ok {
				return fmt.Errorf("catalog: no role %q", name)
			}
			roles = append(roles, r)
		default:
			return fmt.Errorf("catalog: got %d arguments, want at most 1", len(args))
		}
		for _, r := range roles {
			if err := sys.SendData(ctx, hive.NewInvoke(ReplyMethod, Of(r))); err != nil {
				return err
			}
		}
		return nil
	})
}
