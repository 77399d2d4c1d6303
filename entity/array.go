// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package entity

import (
	"fmt"
	"iter"
	"slices"

	"github.com/creachadair/hive/markup"
)

// Array is an ordered sequence of entities of type T that is written as the
// children of a single node. Array implements [Entity] with an empty key, so
// types embedding it should supply their own Key method, and extend
// Construct and ToXML to cover their own properties.
//
// Use [NewArray] to construct an Array.
type Array[T Entity] struct {
	tag      string
	childTag string
	newChild Factory[T]
	items    []T
}

// NewArray constructs an empty Array whose node tag is tag and whose
// children have tag childTag. The newChild factory is called once per child
// node during Construct.
func NewArray[T Entity](tag, childTag string, newChild Factory[T]) Array[T] {
	return Array[T]{tag: tag, childTag: childTag, newChild: newChild}
}

// Tag implements part of the [Entity] interface.
func (a *Array[T]) Tag() string { return a.tag }

// ChildTag reports the tag of the child nodes of a.
func (a *Array[T]) ChildTag() string { return a.childTag }

// Key implements part of the [Entity] interface. It returns "".
func (a *Array[T]) Key() string { return "" }

// Construct replaces the elements of a with values built from the children
// of n, in document order. It reports a *SchemaError if n or any of its
// children has an unexpected tag. If any child cannot be constructed, the
// contents of a are not modified.
func (a *Array[T]) Construct(n *markup.Node) error {
	if n.Tag() != a.tag {
		return &SchemaError{Want: a.tag, Got: n.Tag()}
	}
	for _, tag := range n.ChildTags() {
		if tag != a.childTag {
			return &SchemaError{Parent: a.tag, Want: a.childTag, Got: tag}
		}
	}
	kids := n.Children(a.childTag)
	items := make([]T, 0, len(kids))
	for i, c := range kids {
		v, err := a.newChild(c)
		if err != nil {
			return fmt.Errorf("<%s> child %d: %w", a.tag, i+1, err)
		}
		items = append(items, v)
	}
	a.items = items
	return nil
}

// ToXML implements part of the [Entity] interface. The result has one child
// per element, in order.
func (a *Array[T]) ToXML() *markup.Node {
	n := markup.New(a.tag)
	for _, v := range a.items {
		n.Push(v.ToXML())
	}
	return n
}

// Len reports the number of elements in a.
func (a *Array[T]) Len() int { return len(a.items) }

// At returns the element at offset i of a. It panics if i is out of range.
func (a *Array[T]) At(i int) T { return a.items[i] }

// Get returns the first element of a whose key equals key, and reports
// whether one was found.
func (a *Array[T]) Get(key string) (T, bool) {
	if i := a.index(key); i >= 0 {
		return a.items[i], true
	}
	var zero T
	return zero, false
}

// Has reports whether a contains an element whose key equals key.
func (a *Array[T]) Has(key string) bool { return a.index(key) >= 0 }

func (a *Array[T]) index(key string) int {
	return slices.IndexFunc(a.items, func(v T) bool { return v.Key() == key })
}

// Push appends items to the end of a.
func (a *Array[T]) Push(items ...T) { a.items = append(a.items, items...) }

// Erase removes the first element of a whose key equals key, and reports
// whether one was found.
func (a *Array[T]) Erase(key string) bool {
	i := a.index(key)
	if i < 0 {
		return false
	}
	a.items = slices.Delete(a.items, i, i+1)
	return true
}

// Clear removes all the elements of a.
func (a *Array[T]) Clear() { a.items = nil }

// Items returns a copy of the elements of a in order.
func (a *Array[T]) Items() []T { return slices.Clone(a.items) }

// All iterates over the elements of a in order.
func (a *Array[T]) All() iter.Seq2[int, T] { return slices.All(a.items) }
