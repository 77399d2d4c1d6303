// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
	"github.com/creachadair/mds/value"
)

// ParamType is the declared type tag of a Parameter.
type ParamType string

// Parameter types understood by this package.
const (
	TypeNumber  ParamType = "number"  // float64, written as decimal text
	TypeBoolean ParamType = "boolean" // bool, written as "true" or "false"
	TypeString  ParamType = "string"  // string, written as is
	TypeXML     ParamType = "XML"     // *markup.Node, written as a child element
)

// A Parameter is one argument of an [Invoke].
//
// The concrete type of Value is determined by Type: float64 for TypeNumber,
// bool for TypeBoolean, string for TypeString, and *markup.Node for TypeXML.
type Parameter struct {
	Name  string // optional
	Type  ParamType
	Value any
}

// NewParameter constructs a parameter with the given name and value, choosing
// its type from the Go type of v. Integer and floating-point values become
// numbers; bool and string values map directly. A *markup.Node, or any value
// implementing [entity.Entity], becomes an XML fragment.
//
// NewParameter panics if v has any other type.
func NewParameter(name string, v any) *Parameter {
	ptype, pv, ok := paramValue(v)
	if !ok {
		panic(fmt.Sprintf("unsupported parameter type %T", v))
	}
	if n, ok := v.(*markup.Node); ok {
		pv = n.Clone()
	}
	return &Parameter{Name: name, Type: ptype, Value: pv}
}

// paramValue reports the parameter type of v and its canonical value.
func paramValue(v any) (ParamType, any, bool) {
	switch t := v.(type) {
	case int:
		return TypeNumber, float64(t), true
	case int8:
		return TypeNumber, float64(t), true
	case int16:
		return TypeNumber, float64(t), true
	case int32:
		return TypeNumber, float64(t), true
	case int64:
		return TypeNumber, float64(t), true
	case uint:
		return TypeNumber, float64(t), true
	case uint8:
		return TypeNumber, float64(t), true
	case uint16:
		return TypeNumber, float64(t), true
	case uint32:
		return TypeNumber, float64(t), true
	case uint64:
		return TypeNumber, float64(t), true
	case float32:
		return TypeNumber, float64(t), true
	case float64:
		return TypeNumber, t, true
	case bool:
		return TypeBoolean, t, true
	case string:
		return TypeString, t, true
	case *markup.Node:
		if t == nil {
			return "", nil, false
		}
		return TypeXML, t, true
	case entity.Entity:
		return TypeXML, t.ToXML(), true
	}
	return "", nil, false
}

// Check reports an error if the value of p cannot be encoded as its declared
// type. Any Go integer or floating-point value is accepted for TypeNumber,
// and an empty Type is inferred from the value as by [NewParameter].
func (p *Parameter) Check() error {
	_, _, err := p.resolve()
	return err
}

// resolve reports the type and canonical value p is written with.
func (p *Parameter) resolve() (ParamType, any, error) {
	ptype, v, ok := paramValue(p.Value)
	if !ok {
		return p.Type, nil, &entity.ValidationError{
			Tag: p.Tag(), Key: "value", Value: fmt.Sprintf("%T", p.Value),
			Err: errors.New("unsupported parameter value"),
		}
	}
	if p.Type != "" && p.Type != ptype {
		return p.Type, nil, &entity.ValidationError{
			Tag: p.Tag(), Key: "value", Value: fmt.Sprintf("%T", p.Value),
			Err: fmt.Errorf("value does not match type %q", p.Type),
		}
	}
	return ptype, v, nil
}

// Tag implements part of the [entity.Entity] interface.
func (p *Parameter) Tag() string { return "parameter" }

// Key implements part of the [entity.Entity] interface. It returns p.Name.
func (p *Parameter) Key() string { return p.Name }

// Construct implements part of the [entity.Entity] interface. The value is
// decoded from the text or, for TypeXML, the single child of n.
func (p *Parameter) Construct(n *markup.Node) error {
	r := entity.Read(n)
	name := r.String("name", "")
	ptype := ParamType(r.String("type", string(TypeString)))
	if err := r.Err(); err != nil {
		return err
	}
	bad := func(val string, err error) error {
		return &entity.ValidationError{Tag: n.Tag(), Key: "type", Value: val, Err: err}
	}

	var v any
	text := n.Value()
	switch ptype {
	case TypeNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return bad(text, errors.New("invalid number"))
		}
		v = f
	case TypeBoolean:
		switch text {
		case "true":
			v = true
		case "false":
			v = false
		default:
			return bad(text, errors.New("invalid boolean"))
		}
	case TypeString:
		v = text
	case TypeXML:
		if n.NumChildren() != 1 {
			return bad(string(ptype), fmt.Errorf("want 1 child element, got %d", n.NumChildren()))
		}
		for c := range n.All() {
			v = c.Clone()
		}
	default:
		return bad(string(ptype), errors.New("unknown parameter type"))
	}
	if ptype != TypeXML && n.NumChildren() != 0 {
		return bad(string(ptype), errors.New("unexpected child elements"))
	}
	p.Name, p.Type, p.Value = name, ptype, v
	return nil
}

// ToXML implements part of the [entity.Entity] interface. A value that does
// not match the declared type is omitted; see [Parameter.Check].
func (p *Parameter) ToXML() *markup.Node {
	n := markup.New(p.Tag())
	if p.Name != "" {
		n.SetProperty("name", p.Name)
	}
	ptype, v, _ := p.resolve()
	n.SetProperty("type", string(ptype))
	switch t := v.(type) {
	case float64:
		n.SetValue(strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		n.SetValue(value.Cond(t, "true", "false"))
	case string:
		n.SetValue(t)
	case *markup.Node:
		n.Push(t.Clone())
	}
	return n
}

// Clone returns a deep copy of p.
func (p *Parameter) Clone() *Parameter {
	cp := *p
	if n, ok := p.Value.(*markup.Node); ok {
		cp.Value = n.Clone()
	}
	return &cp
}

// String renders p in its canonical wire form.
func (p *Parameter) String() string { return p.ToXML().String() }
