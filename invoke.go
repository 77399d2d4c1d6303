// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
)

// An Invoke is one remote call: a listener name and an ordered sequence of
// parameters. Its wire form is
//
//	<invoke listener="add"><parameter type="number">2</parameter>...</invoke>
//
// The parameters are held in an [entity.Array] keyed by parameter name, so
// the methods of the array (Len, At, Push, Erase, All) apply directly.
type Invoke struct {
	entity.Array[*Parameter]
	listener string
}

func newInvoke(listener string) *Invoke {
	return &Invoke{
		Array:    entity.NewArray("invoke", "parameter", entity.Constructor(func() *Parameter { return new(Parameter) })),
		listener: listener,
	}
}

// NewInvoke constructs an invoke of listener with the given arguments. Each
// argument that is a *Parameter is used as given; any other value is wrapped
// in an unnamed parameter by [NewParameter].
func NewInvoke(listener string, args ...any) *Invoke {
	iv := newInvoke(listener)
	for _, arg := range args {
		p, ok := arg.(*Parameter)
		if !ok {
			p = NewParameter("", arg)
		}
		iv.Push(p)
	}
	return iv
}

// DecodeInvoke constructs an invoke from its document node.
func DecodeInvoke(n *markup.Node) (*Invoke, error) {
	iv := newInvoke("")
	if err := iv.Construct(n); err != nil {
		return nil, err
	}
	return iv, nil
}

// ParseInvoke parses text as a single invoke document.
func ParseInvoke(text string) (*Invoke, error) {
	n, err := markup.Parse(text)
	if err != nil {
		return nil, err
	}
	return DecodeInvoke(n)
}

// Listener reports the name of the method invoked by iv.
func (iv *Invoke) Listener() string { return iv.listener }

// Key implements part of the [entity.Entity] interface. It returns the
// listener name.
func (iv *Invoke) Key() string { return iv.listener }

// Construct implements part of the [entity.Entity] interface.
func (iv *Invoke) Construct(n *markup.Node) error {
	r := entity.Read(n)
	listener := r.Require("listener")
	if err := r.Err(); err != nil {
		return err
	}
	if err := iv.Array.Construct(n); err != nil {
		return err
	}
	iv.listener = listener
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (iv *Invoke) ToXML() *markup.Node {
	return iv.Array.ToXML().SetProperty("listener", iv.listener)
}

// String renders iv in its canonical wire form.
func (iv *Invoke) String() string { return iv.ToXML().String() }

// Arguments returns the values of the parameters of iv, in order.
func (iv *Invoke) Arguments() []any {
	out := make([]any, 0, iv.Len())
	for _, p := range iv.All() {
		out = append(out, p.Value)
	}
	return out
}

// Param returns the first parameter of iv with the given name, if any.
func (iv *Invoke) Param(name string) (*Parameter, bool) { return iv.Get(name) }

// Check reports an error if any parameter of iv cannot be encoded as its
// declared type.
func (iv *Invoke) Check() error {
	for i, p := range iv.All() {
		if err := p.Check(); err != nil {
			return fmt.Errorf("%s: parameter %d: %w", iv.listener, i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of iv.
func (iv *Invoke) Clone() *Invoke {
	cp := newInvoke(iv.listener)
	for _, p := range iv.All() {
		cp.Push(p.Clone())
	}
	return cp
}

// Apply resolves the listener of iv against t and calls the resulting
// handler with the arguments of iv.
//
// If t has no handler for the listener, Apply reports a *MethodNotFoundError
// without calling anything. Otherwise it returns the error from the handler.
// A panic in the handler is recovered and reported as an error.
func (iv *Invoke) Apply(ctx context.Context, t Target) (err error) {
	h, ok := t.Lookup(iv.listener)
	if !ok {
		return &MethodNotFoundError{Listener: iv.listener}
	}
	defer func() {
		if x := recover(); x != nil && err == nil {
			err = fmt.Errorf("handler %q panicked (recovered): %v", iv.listener, x)
		}
	}()
	return h(context.WithValue(ctx, invokeContextKey{}, iv), iv.Arguments())
}

func isNotFound(err error) bool { return errors.Is(err, ErrMethodNotFound) }
