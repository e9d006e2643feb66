// Package valueclass decides how value types are represented after lowering:
// as their single underlying field, or as a flat list of fields.
package valueclass

import (
	"github.com/cockroachdb/errors"
)

// ErrNoFields is raised (as a panic) when a representation would have no fields.
var ErrNoFields = errors.New("a value-holding construct requires at least one field")

// Field is one underlying property of a value type.
type Field[T any] struct {
	Name string
	Type T
}

// Representation is sealed over *Single and *Multi.
type Representation[T any] interface {
	Fields() []Field[T]
	Contains(name string) bool
	FieldType(name string) (T, bool)
	Mode() Mode

	sealed()
}

// Single stores the value as its one underlying field.
type Single[T any] struct {
	field Field[T]
}

// NewSingle returns a single-field representation.
func NewSingle[T any](name string, typ T) *Single[T] {
	return &Single[T]{field: Field[T]{Name: name, Type: typ}}
}

func (s *Single[T]) Name() string { return s.field.Name }
func (s *Single[T]) Type() T      { return s.field.Type }
func (s *Single[T]) Mode() Mode   { return ModeSingle }
func (s *Single[T]) sealed()      {}

func (s *Single[T]) Fields() []Field[T] {
	return []Field[T]{s.field}
}

func (s *Single[T]) Contains(name string) bool {
	return s.field.Name == name
}

func (s *Single[T]) FieldType(name string) (T, bool) {
	if s.field.Name != name {
		var zero T
		return zero, false
	}
	return s.field.Type, true
}

// Multi stores the value as an ordered list of uniquely named fields.
type Multi[T any] struct {
	fields []Field[T]
	index  map[string]int
}

// NewMulti returns a multi-field representation preserving field order.
// It panics if fields is empty or contains a duplicate name.
func NewMulti[T any](fields []Field[T]) *Multi[T] {
	if len(fields) == 0 {
		panic(errors.WithStack(ErrNoFields))
	}
	m := &Multi[T]{
		fields: make([]Field[T], len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := m.index[f.Name]; dup {
			panic(errors.AssertionFailedf("duplicate value field %q", f.Name))
		}
		m.index[f.Name] = i
		m.fields[i] = f
	}
	return m
}

func (m *Multi[T]) Mode() Mode { return ModeMulti }
func (m *Multi[T]) Len() int   { return len(m.fields) }
func (m *Multi[T]) sealed()    {}

func (m *Multi[T]) Fields() []Field[T] {
	out := make([]Field[T], len(m.fields))
	copy(out, m.fields)
	return out
}

func (m *Multi[T]) Contains(name string) bool {
	_, ok := m.index[name]
	return ok
}

func (m *Multi[T]) FieldType(name string) (T, bool) {
	i, ok := m.index[name]
	if !ok {
		var zero T
		return zero, false
	}
	return m.fields[i].Type, true
}

// Map transforms every field type. The variant and the field order never change,
// even when the new types would select a different representation.
func Map[T, U any](r Representation[T], transform func(T) U) Representation[U] {
	switch r := r.(type) {
	case *Single[T]:
		return NewSingle(r.field.Name, transform(r.field.Type))
	case *Multi[T]:
		mapped := make([]Field[U], len(r.fields))
		for i, f := range r.fields {
			mapped[i] = Field[U]{Name: f.Name, Type: transform(f.Type)}
		}
		return NewMulti(mapped)
	default:
		panic(errors.AssertionFailedf("unknown representation %T", r))
	}
}
