// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package entity

import (
	"errors"
	"strconv"
	"time"

	"github.com/creachadair/hive/markup"
)

// A Reader decodes the properties of a node into typed values. The first
// failure is recorded and reported by [Reader.Err]; after a failure, each
// method returns its default.
//
//	r := entity.Read(n)
//	m.id = r.String("id", "")
//	m.age = r.Int("age", 0)
//	if err := r.Err(); err != nil {
//	   return err
//	}
type Reader struct {
	n   *markup.Node
	err error
}

// Read returns a Reader for the properties of n.
func Read(n *markup.Node) *Reader { return &Reader{n: n} }

// Err reports the first error encountered by r, or nil. Errors have concrete
// type *ValidationError.
func (r *Reader) Err() error { return r.err }

func (r *Reader) lookup(key string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	return r.n.LookupProperty(key)
}

func (r *Reader) fail(key, val string, err error) {
	var nerr *strconv.NumError
	if errors.As(err, &nerr) {
		err = nerr.Err
	}
	r.err = &ValidationError{Tag: r.n.Tag(), Key: key, Value: val, Err: err}
}

// Require returns the value of the named property, recording an error if
// it is not present.
func (r *Reader) Require(key string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.n.LookupProperty(key)
	if !ok {
		r.fail(key, "", errors.New("required property is missing"))
	}
	return v
}

// String returns the value of the named property, or def if it is not set.
func (r *Reader) String(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

// Int returns the named property parsed as a decimal integer, or def.
func (r *Reader) Int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	z, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return z
}

// Uint returns the named property parsed as an unsigned integer of the
// given bit size, or def.
func (r *Reader) Uint(key string, bits int, def uint64) uint64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	z, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return z
}

// Float returns the named property parsed as a floating-point number, or def.
func (r *Reader) Float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	z, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return z
}

// Bool returns the named property parsed as "true" or "false", or def.
func (r *Reader) Bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	r.fail(key, v, errors.New("invalid boolean"))
	return def
}

// Time returns the named property parsed as an RFC 3339 timestamp, or def.
func (r *Reader) Time(key string, def time.Time) time.Time {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	z, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		r.fail(key, v, errors.New("invalid timestamp"))
		return def
	}
	return z
}
