// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package entity

import "fmt"

// SchemaError is reported when a node has a tag other than the one an entity
// expects.
type SchemaError struct {
	Parent string // tag of the enclosing array, if the node is a child
	Want   string // the expected tag
	Got    string // the tag found
}

// Error satisfies the error interface.
func (e *SchemaError) Error() string {
	if e.Parent != "" {
		return fmt.Sprintf("entity: <%s> child has tag <%s>, want <%s>", e.Parent, e.Got, e.Want)
	}
	return fmt.Sprintf("entity: node has tag <%s>, want <%s>", e.Got, e.Want)
}

// ValidationError is reported when a property value cannot be decoded into
// the field it represents.
type ValidationError struct {
	Tag   string // tag of the node
	Key   string // property key
	Value string // the offending value
	Err   error  // what went wrong
}

// Error satisfies the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("entity: <%s> property %s=%q: %v", e.Tag, e.Key, e.Value, e.Err)
}

// Unwrap reports the underlying error of e.
func (e *ValidationError) Unwrap() error { return e.Err }
