package valueclass

import (
	"github.com/cockroachdb/errors"
)

// Mode is the lowering decision for a value type.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// TypeContext answers the type questions the selector needs.
type TypeContext[T any] interface {
	IsNullable(t T) bool
	// IsMultiFieldValueClass reports whether t is a non-nullable value type that is itself
	// represented by several fields.
	IsMultiFieldValueClass(t T) bool
}

// LoweringMode picks the representation for fields. It panics when fields is empty.
func LoweringMode[T any](ctx TypeContext[T], fields []Field[T]) Mode {
	switch {
	case len(fields) > 1:
		return ModeMulti
	case len(fields) == 0:
		panic(errors.WithStack(ErrNoFields))
	}

	typ := fields[0].Type
	switch {
	case ctx.IsNullable(typ):
		return ModeSingle
	case !ctx.IsMultiFieldValueClass(typ):
		return ModeSingle
	default:
		// A value nested in a value would hide the inner field list behind one opaque field.
		return ModeMulti
	}
}

// Select builds the representation chosen by LoweringMode.
func Select[T any](ctx TypeContext[T], fields []Field[T]) Representation[T] {
	switch LoweringMode(ctx, fields) {
	case ModeSingle:
		return NewSingle(fields[0].Name, fields[0].Type)
	default:
		return NewMulti(fields)
	}
}
