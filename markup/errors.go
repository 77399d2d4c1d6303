// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package markup

import (
	"errors"
	"fmt"
	"io"
)

// ParseError is the concrete type of errors reported when document text is
// malformed or incomplete.
type ParseError struct {
	Offset int    // byte offset in the input where the problem was found
	Msg    string // description of the problem
	Err    error  // underlying error, or nil
}

// Error satisfies the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("markup: offset %d: %s", e.Offset, e.Msg)
}

// Unwrap reports the underlying error of e, if any.
func (e *ParseError) Unwrap() error { return e.Err }

// Incomplete reports whether err indicates that parsing stopped because the
// input ended before a complete element was read. Additional input may
// allow parsing to succeed.
func Incomplete(err error) bool { return errors.Is(err, io.ErrUnexpectedEOF) }

// RangeError is reported when an operation requires a property that is not
// present on a node.
type RangeError struct {
	Tag string // the tag of the node
	Key string // the missing key
}

// Error satisfies the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("markup: <%s> has no property %q", e.Tag, e.Key)
}
