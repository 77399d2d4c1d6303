// Copyright (C) 2023 Michael J. Fromberger. All Rights Reserved.

// Package handler provides adapters to the hive.Handler type for functions
// with typed parameters.
//
// Each argument of an invoke is converted to the corresponding parameter
// type as follows:
//
//   - A value already of the parameter type is used as is.
//   - A number is converted to any integer or floating-point type, if it
//     is exactly representable.
//   - A string is decoded by a parameter type whose pointer implements
//     encoding.TextUnmarshaler.
//   - A document fragment is constructed into a parameter type that is a
//     pointer to an [entity.Entity] implementation.
//
// Any other argument reports an *ArgError, as does a mismatch in the number
// of arguments.
package handler

import (
	"context"
	"encoding"
	"fmt"
	"math"
	"reflect"

	"github.com/creachadair/hive"
	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
)

// ArgError is the concrete type of errors reported for arguments that do not
// match the parameters of a handler.
type ArgError struct {
	Listener string
	Index    int    // offset of the argument, or -1 for a count mismatch
	Want     string // the parameter type, or count
	Got      string // the argument type, or count
	Err      error  // set if conversion failed
}

// Error satisfies the error interface.
func (e *ArgError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: got %s arguments, want %s", e.Listener, e.Got, e.Want)
	} else if e.Err != nil {
		return fmt.Sprintf("%s: argument %d: %v", e.Listener, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: argument %d is %s, want %s", e.Listener, e.Index, e.Got, e.Want)
}

// Unwrap reports the underlying error of e, if any.
func (e *ArgError) Unwrap() error { return e.Err }

func listener(ctx context.Context) string {
	if iv := hive.ContextInvoke(ctx); iv != nil {
		return iv.Listener()
	}
	return "(unknown)"
}

func checkCount(ctx context.Context, args []any, n int) error {
	if len(args) != n {
		return &ArgError{Listener: listener(ctx), Index: -1, Want: fmt.Sprint(n), Got: fmt.Sprint(len(args))}
	}
	return nil
}

// Args0 adapts a function f that accepts no arguments to a hive.Handler.
func Args0(f func(context.Context) error) hive.Handler {
	return func(ctx context.Context, args []any) error {
		if err := checkCount(ctx, args, 0); err != nil {
			return err
		}
		return f(ctx)
	}
}

// Args1 adapts a function f that accepts one argument of type A to a
// hive.Handler.
func Args1[A any](f func(context.Context, A) error) hive.Handler {
	return func(ctx context.Context, args []any) error {
		if err := checkCount(ctx, args, 1); err != nil {
			return err
		}
		a, err := Convert[A](args[0])
		if err != nil {
			return argError(ctx, 0, err)
		}
		return f(ctx, a)
	}
}

// Args2 adapts a function f that accepts arguments of types A and B to a
// hive.Handler.
func Args2[A, B any](f func(context.Context, A, B) error) hive.Handler {
	return func(ctx context.Context, args []any) error {
		if err := checkCount(ctx, args, 2); err != nil {
			return err
		}
		a, err := Convert[A](args[0])
		if err != nil {
			return argError(ctx, 0, err)
		}
		b, err := Convert[B](args[1])
		if err != nil {
			return argError(ctx, 1, err)
		}
		return f(ctx, a, b)
	}
}

// Args3 adapts a function f that accepts arguments of types A, B, and C to
// a hive.Handler.
func Args3[A, B, C any](f func(context.Context, A, B, C) error) hive.Handler {
	return func(ctx context.Context, args []any) error {
		if err := checkCount(ctx, args, 3); err != nil {
			return err
		}
		a, err := Convert[A](args[0])
		if err != nil {
			return argError(ctx, 0, err)
		}
		b, err := Convert[B](args[1])
		if err != nil {
			return argError(ctx, 1, err)
		}
		c, err := Convert[C](args[2])
		if err != nil {
			return argError(ctx, 2, err)
		}
		return f(ctx, a, b, c)
	}
}

// Variadic adapts a function f that accepts any number of arguments of type
// A to a hive.Handler.
func Variadic[A any](f func(context.Context, []A) error) hive.Handler {
	return func(ctx context.Context, args []any) error {
		vs := make([]A, len(args))
		for i, arg := range args {
			v, err := Convert[A](arg)
			if err != nil {
				return argError(ctx, i, err)
			}
			vs[i] = v
		}
		return f(ctx, vs)
	}
}

func argError(ctx context.Context, i int, err error) error {
	if ae, ok := err.(*ArgError); ok {
		ae.Listener, ae.Index = listener(ctx), i
		return ae
	}
	return &ArgError{Listener: listener(ctx), Index: i, Err: err}
}

// Convert converts an invoke argument to type T, following the rules
// described in the package documentation.
func Convert[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out T
	mismatch := &ArgError{Want: reflect.TypeFor[T]().String(), Got: fmt.Sprintf("%T", v)}

	switch t := v.(type) {
	case float64:
		rv := reflect.ValueOf(&out).Elem()
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if t != math.Trunc(t) || rv.OverflowInt(int64(t)) || math.Abs(t) > 1<<53 {
				return out, fmt.Errorf("number %v does not fit %s", t, mismatch.Want)
			}
			rv.SetInt(int64(t))
			return out, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if t != math.Trunc(t) || t < 0 || rv.OverflowUint(uint64(t)) || t > 1<<53 {
				return out, fmt.Errorf("number %v does not fit %s", t, mismatch.Want)
			}
			rv.SetUint(uint64(t))
			return out, nil
		case reflect.Float32, reflect.Float64:
			rv.SetFloat(t)
			return out, nil
		}

	case string:
		if u, ok := any(&out).(encoding.TextUnmarshaler); ok {
			return out, u.UnmarshalText([]byte(t))
		}

	case *markup.Node:
		if typ := reflect.TypeFor[T](); typ.Kind() == reflect.Pointer {
			if e, ok := reflect.New(typ.Elem()).Interface().(entity.Entity); ok {
				if err := e.Construct(t); err != nil {
					return out, err
				}
				return e.(T), nil
			}
		}
	}
	return out, mismatch
}
