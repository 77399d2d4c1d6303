// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package entity defines the round-trip contract between typed values and
// document nodes.
//
// An [Entity] stores its own scalar fields as properties of a single node
// whose tag is the type's fixed discriminator:
//
//	<member id="jhnam" name="Jeongho Nam" age="26"/>
//
// An [Array] is an ordered homogeneous collection of entities stored as the
// children of one node. Types that need a collection embed an Array and
// supply a [Factory] to build each element from its child node:
//
//	type MemberList struct {
//	   entity.Array[*Member]
//	   owner string
//	}
//
//	func NewMemberList() *MemberList {
//	   return &MemberList{Array: entity.NewArray("memberList", "member", entity.Constructor(NewMember))}
//	}
//
// Reconstruction replaces, and never merges with, any prior contents.
package entity

import (
	"errors"
	"fmt"

	"github.com/creachadair/hive/markup"
)

// An Entity is a value that can be written to and rebuilt from a single
// document node.
//
// Construct must read only the properties of the node itself, never its
// children, applying defaults for missing optional properties. A property
// that is present but cannot be decoded must be reported as a
// *ValidationError, and the receiver must then be left unchanged.
//
// ToXML must return a fresh node whose tag equals Tag, carrying each scalar
// field as a property.
type Entity interface {
	// Tag reports the tag of nodes representing this type.
	Tag() string

	// Key reports a string that identifies the entity among its siblings.
	Key() string

	// Construct replaces the contents of the receiver from n.
	Construct(n *markup.Node) error

	// ToXML returns a new node representing the receiver.
	ToXML() *markup.Node
}

// A Factory fully constructs one element of an [Array] from a child node.
type Factory[T any] func(*markup.Node) (T, error)

// Constructor returns a Factory that allocates a fresh value with newT and
// calls its Construct method on the node.
func Constructor[T Entity](newT func() T) Factory[T] {
	return func(n *markup.Node) (T, error) {
		v := newT()
		if err := v.Construct(n); err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	}
}

// Variants is a registered factory that chooses among constructors for the
// elements of an Array based on the value of a discriminator property.
// The zero value is not ready for use; call [NewVariants].
type Variants[T Entity] struct {
	attr  string
	def   func() T
	cases map[string]func() T
}

// NewVariants constructs an empty set of variants keyed by the named
// property. If def != nil it is used for nodes without the property.
func NewVariants[T Entity](attr string, def func() T) *Variants[T] {
	return &Variants[T]{attr: attr, def: def, cases: make(map[string]func() T)}
}

// Register adds a constructor for nodes whose discriminator equals name, and
// returns v to permit chaining. It panics if name is already registered.
func (v *Variants[T]) Register(name string, newT func() T) *Variants[T] {
	if _, ok := v.cases[name]; ok {
		panic(fmt.Sprintf("variant %q already registered", name))
	}
	v.cases[name] = newT
	return v
}

// New constructs a value from n using the constructor selected by the
// discriminator property of n.
func (v *Variants[T]) New(n *markup.Node) (T, error) {
	var zero T
	newT := v.def
	if key, ok := n.LookupProperty(v.attr); ok {
		newT, ok = v.cases[key]
		if !ok {
			return zero, &ValidationError{
				Tag: n.Tag(), Key: v.attr, Value: key,
				Err: errors.New("unknown variant"),
			}
		}
	}
	if newT == nil {
		return zero, &ValidationError{
			Tag: n.Tag(), Key: v.attr,
			Err: errors.New("missing discriminator"),
		}
	}
	return Constructor(newT)(n)
}

// Factory returns v.New as a Factory.
func (v *Variants[T]) Factory() Factory[T] { return v.New }
