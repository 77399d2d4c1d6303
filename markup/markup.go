// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package markup implements the small hierarchical document format used to
// carry entities and invoke messages between peers.
//
// A document is a tree of [Node] values. Each node has a tag, an ordered set
// of string properties (attributes), an optional scalar value, and children
// grouped by tag in order of first arrival:
//
//	<member id="jhnam" age="26"/>
//	<invoke listener="add"><parameter type="number">2</parameter></invoke>
//
// The format is deliberately narrower than XML: there are no namespaces and
// only a handful of character entities. Text beside child elements is not
// kept in place; it is joined into the value of the parent, trimmed of
// surrounding whitespace. Values and properties use different escaping
// rules; see [EncodeValue] and [EncodeProperty].
package markup

import (
	"iter"
	"slices"
)

// A Node is a single element of a document tree. The zero value is an empty
// node with no tag; use [New] to construct a node with a tag.
//
// A Node is not safe for concurrent use. Callers sharing a node among
// goroutines must synchronize access or work on a [Node.Clone].
type Node struct {
	tag   string
	value string

	keys  []string          // property keys in insertion order
	props map[string]string // key → property value

	order []string            // child tags in order of first arrival
	kids  map[string]NodeList // tag → children with that tag
}

// New constructs an empty node with the given tag.
func New(tag string) *Node { return &Node{tag: tag} }

// Tag reports the tag of n.
func (n *Node) Tag() string { return n.tag }

// SetTag replaces the tag of n. It does not regroup n inside any parent that
// already contains it.
func (n *Node) SetTag(tag string) { n.tag = tag }

// Value reports the scalar value of n, or "" if it has none.
func (n *Node) Value() string { return n.value }

// SetValue sets the scalar value of n, and returns n to permit chaining.
func (n *Node) SetValue(v string) *Node { n.value = v; return n }

// HasValue reports whether n has a non-empty scalar value.
func (n *Node) HasValue() bool { return n.value != "" }

// HasProperty reports whether n has a property with the given key.
func (n *Node) HasProperty(key string) bool {
	_, ok := n.props[key]
	return ok
}

// Property returns the value of the named property, or "" if it is not set.
func (n *Node) Property(key string) string { return n.props[key] }

// LookupProperty returns the value of the named property and reports whether
// it was set.
func (n *Node) LookupProperty(key string) (string, bool) {
	v, ok := n.props[key]
	return v, ok
}

// SetProperty sets the named property to value, and returns n to permit
// chaining. A new key is added after all existing keys; replacing the value
// of an existing key does not change its position.
func (n *Node) SetProperty(key, value string) *Node {
	if n.props == nil {
		n.props = make(map[string]string)
	}
	if _, ok := n.props[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.props[key] = value
	return n
}

// EraseProperty removes the named property from n. It reports a *RangeError
// if the property is not set.
func (n *Node) EraseProperty(key string) error {
	if _, ok := n.props[key]; !ok {
		return &RangeError{Tag: n.tag, Key: key}
	}
	delete(n.props, key)
	n.keys = slices.DeleteFunc(n.keys, func(k string) bool { return k == key })
	return nil
}

// PropertyKeys returns a copy of the property keys of n in order.
func (n *Node) PropertyKeys() []string { return slices.Clone(n.keys) }

// NumProperties reports the number of properties set on n.
func (n *Node) NumProperties() int { return len(n.keys) }

// Properties iterates over the properties of n in order.
func (n *Node) Properties() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range n.keys {
			if !yield(k, n.props[k]) {
				return
			}
		}
	}
}

// AddAllProperties copies every property of o into n, in the order they
// occur in o.
func (n *Node) AddAllProperties(o *Node) {
	for k, v := range o.Properties() {
		n.SetProperty(k, v)
	}
}

// ClearProperties removes all the properties of n.
func (n *Node) ClearProperties() { n.keys = nil; n.props = nil }

// Push appends the given nodes as children of n, and returns n to permit
// chaining. Children are grouped by tag; within each group the order of
// arrival is preserved. Nil nodes are ignored.
func (n *Node) Push(nodes ...*Node) *Node {
	for _, c := range nodes {
		if c == nil {
			continue
		}
		if n.kids == nil {
			n.kids = make(map[string]NodeList)
		}
		if _, ok := n.kids[c.tag]; !ok {
			n.order = append(n.order, c.tag)
		}
		n.kids[c.tag] = append(n.kids[c.tag], c)
	}
	return n
}

// Children returns the children of n having the given tag, in order.
// The caller must not modify the returned slice.
func (n *Node) Children(tag string) NodeList { return n.kids[tag] }

// HasChildren reports whether n has any children with the given tag.
func (n *Node) HasChildren(tag string) bool { return len(n.kids[tag]) != 0 }

// ChildTags returns the distinct tags of the children of n, in order of
// first arrival.
func (n *Node) ChildTags() []string { return slices.Clone(n.order) }

// NumChildren reports the total number of children of n.
func (n *Node) NumChildren() int {
	var sum int
	for _, ns := range n.kids {
		sum += len(ns)
	}
	return sum
}

// All iterates over all the children of n, group by group.
func (n *Node) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, tag := range n.order {
			for _, c := range n.kids[tag] {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// EraseChildren removes all the children of n having the given tag, and
// reports whether any were removed.
func (n *Node) EraseChildren(tag string) bool {
	if _, ok := n.kids[tag]; !ok {
		return false
	}
	delete(n.kids, tag)
	n.order = slices.DeleteFunc(n.order, func(t string) bool { return t == tag })
	return true
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	out := &Node{tag: n.tag, value: n.value}
	out.AddAllProperties(n)
	for c := range n.All() {
		out.Push(c.Clone())
	}
	return out
}

// A NodeList is an ordered sequence of sibling nodes sharing a tag.
type NodeList []*Node

// Tag reports the tag shared by the nodes of ns, or "" if ns is empty.
func (ns NodeList) Tag() string {
	if len(ns) == 0 {
		return ""
	}
	return ns[0].tag
}
