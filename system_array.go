// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
	"github.com/creachadair/taskgroup"
)

// A SystemArray is a named collection of systems, keyed by system name. It
// addresses the roles of all its systems as a single flat namespace: a role
// name resolves to the first system, in insertion order, that has a role of
// that name.
//
// The methods of a SystemArray are safe for concurrent use.
type SystemArray struct {
	name string
	opts []Option
	mux  Mux

	μ       sync.Mutex
	systems entity.Array[*System]
}

// NewSystemArray constructs an empty system array. Systems created when the
// array is constructed from a document receive opts.
func NewSystemArray(name string, opts ...Option) *SystemArray {
	return &SystemArray{name: name, opts: opts, systems: newSystems(opts)}
}

func newSystems(opts []Option) entity.Array[*System] {
	return entity.NewArray("systemArray", "system", entity.Constructor(func() *System {
		return NewSystem("", "", 0, opts...)
	}))
}

// Name reports the name of a.
func (a *SystemArray) Name() string { return a.name }

// Add adds sys to the end of a. It reports an error if a already has a
// system with the same name.
func (a *SystemArray) Add(sys *System) error {
	a.μ.Lock()
	defer a.μ.Unlock()
	if a.systems.Has(sys.Name()) {
		return fmt.Errorf("duplicate system name %q", sys.Name())
	}
	a.systems.Push(sys)
	return nil
}

// Remove removes the system with the given name from a, and reports whether
// it was present. The system is not closed.
func (a *SystemArray) Remove(name string) bool {
	a.μ.Lock()
	defer a.μ.Unlock()
	return a.systems.Erase(name)
}

// System returns the system of a with the given name, if any.
func (a *SystemArray) System(name string) (*System, bool) {
	a.μ.Lock()
	defer a.μ.Unlock()
	return a.systems.Get(name)
}

// Systems returns the systems of a in insertion order.
func (a *SystemArray) Systems() []*System {
	a.μ.Lock()
	defer a.μ.Unlock()
	return a.systems.Items()
}

// Len reports the number of systems in a.
func (a *SystemArray) Len() int {
	a.μ.Lock()
	defer a.μ.Unlock()
	return a.systems.Len()
}

// HasRole reports whether any system of a has a role with the given name.
func (a *SystemArray) HasRole(name string) bool {
	_, ok := a.Role(name)
	return ok
}

// Role returns the role with the given name from the first system of a, in
// insertion order, that has one. The second result is false if no system has
// such a role.
func (a *SystemArray) Role(name string) (*Role, bool) {
	for _, sys := range a.Systems() {
		if r, ok := sys.Role(name); ok {
			return r, true
		}
	}
	return nil, false
}

// Start starts every system of a concurrently and waits for them all to
// finish starting. Failures are independent: a system that fails does not
// affect the others, and the states of the systems report the outcome. The
// error, if any, joins the errors of the systems that failed, in order.
func (a *SystemArray) Start(ctx context.Context) error {
	systems := a.Systems()
	errs := make([]error, len(systems))
	g := taskgroup.New(nil)
	for i, sys := range systems {
		g.Go(func() error {
			errs[i] = sys.Start(ctx)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// SendData sends iv to every connected system of a. The error, if any, joins
// the errors of the sends that failed.
func (a *SystemArray) SendData(ctx context.Context, iv *Invoke) error {
	var errs []error
	for _, sys := range a.Systems() {
		if sys.State() != SystemConnected {
			continue
		}
		errs = append(errs, sys.SendData(ctx, iv))
	}
	return errors.Join(errs...)
}

// ReplyData applies iv to the handlers registered on a by Handle. An invoke
// with no matching handler is ignored.
func (a *SystemArray) ReplyData(ctx context.Context, iv *Invoke) error {
	if err := iv.Apply(ctx, &a.mux); !isNotFound(err) {
		return err
	}
	return nil
}

// Handle registers h as the handler for listener on a. Passing a nil handler
// removes any handler for listener. Handle returns a to permit chaining.
func (a *SystemArray) Handle(listener string, h Handler) *SystemArray {
	a.mux.Handle(listener, h)
	return a
}

// Lookup implements the [Target] interface.
func (a *SystemArray) Lookup(listener string) (Handler, bool) { return a.mux.Lookup(listener) }

// Close closes every system of a. The error, if any, joins the errors
// reported by the systems.
func (a *SystemArray) Close() error {
	var errs []error
	for _, sys := range a.Systems() {
		errs = append(errs, sys.Close())
	}
	return errors.Join(errs...)
}

// Tag implements part of the [entity.Entity] interface.
func (a *SystemArray) Tag() string { return "systemArray" }

// Key implements part of the [entity.Entity] interface. It returns the name
// of a.
func (a *SystemArray) Key() string { return a.name }

// Construct implements part of the [entity.Entity] interface, replacing the
// name and systems of a. The systems are created unstarted.
func (a *SystemArray) Construct(n *markup.Node) error {
	name := entity.Read(n).String("name", "")
	systems := newSystems(a.opts)
	if err := systems.Construct(n); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, sys := range systems.All() {
		if seen[sys.name] {
			return &entity.ValidationError{
				Tag: sys.Tag(), Key: "name", Value: sys.name,
				Err: errors.New("duplicate system name"),
			}
		}
		seen[sys.name] = true
	}

	a.μ.Lock()
	defer a.μ.Unlock()
	a.name = name
	a.systems = systems
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (a *SystemArray) ToXML() *markup.Node {
	a.μ.Lock()
	defer a.μ.Unlock()
	n := a.systems.ToXML()
	if a.name != "" {
		n.SetProperty("name", a.name)
	}
	return n
}

// String renders a as an indented document.
func (a *SystemArray) String() string { return a.ToXML().Indent(0) }
