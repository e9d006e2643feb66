package valueclass

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeType is a string type name; a trailing "?" marks it nullable.
type fakeType string

type fakeContext struct {
	multiField map[fakeType]bool
}

func (c fakeContext) IsNullable(t fakeType) bool {
	return strings.HasSuffix(string(t), "?")
}

func (c fakeContext) IsMultiFieldValueClass(t fakeType) bool {
	return c.multiField[t]
}

func fields(pairs ...string) []Field[fakeType] {
	var out []Field[fakeType]
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Field[fakeType]{Name: pairs[i], Type: fakeType(pairs[i+1])})
	}
	return out
}

func recoverPanic(fn func()) (out any) {
	defer func() { out = recover() }()
	fn()
	return nil
}

func TestSelect(t *testing.T) {
	ctx := fakeContext{multiField: map[fakeType]bool{"Point": true}}

	t.Run("Several fields keep their order", func(t *testing.T) {
		in := fields("x", "Int", "y", "Int", "label", "String?")
		r := Select[fakeType](ctx, in)
		m, ok := r.(*Multi[fakeType])
		require.True(t, ok)
		if diff := cmp.Diff(in, m.Fields()); diff != "" {
			t.Fatalf("fields mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 3, m.Len())
	})

	t.Run("Nullable single field", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("p", "Point?"))
		s, ok := r.(*Single[fakeType])
		require.True(t, ok)
		assert.Equal(t, "p", s.Name())
		assert.Equal(t, fakeType("Point?"), s.Type())
	})

	t.Run("Plain single field", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("n", "Int"))
		assert.Equal(t, ModeSingle, r.Mode())
	})

	t.Run("Single field of a multi-field value type", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("p", "Point"))
		m, ok := r.(*Multi[fakeType])
		require.True(t, ok)
		assert.Equal(t, fields("p", "Point"), m.Fields())
	})

	t.Run("No fields is fatal", func(t *testing.T) {
		p := recoverPanic(func() { Select[fakeType](ctx, nil) })
		require.NotNil(t, p, "Select must not return a degenerate representation")
		err, ok := p.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrNoFields))

		assert.Panics(t, func() { LoweringMode[fakeType](ctx, []Field[fakeType]{}) })
		assert.Panics(t, func() { NewMulti[fakeType](nil) })
	})
}

func TestMulti_DuplicateNames(t *testing.T) {
	assert.Panics(t, func() { NewMulti(fields("x", "Int", "x", "Long")) })
}

func TestRepresentation_Lookup(t *testing.T) {
	m := NewMulti(fields("x", "Int", "y", "Long"))
	assert.True(t, m.Contains("y"))
	assert.False(t, m.Contains("z"))
	typ, ok := m.FieldType("y")
	assert.True(t, ok)
	assert.Equal(t, fakeType("Long"), typ)
	_, ok = m.FieldType("z")
	assert.False(t, ok)

	s := NewSingle("value", fakeType("String"))
	assert.True(t, s.Contains("value"))
	assert.False(t, s.Contains("x"))
	_, ok = s.FieldType("x")
	assert.False(t, ok)

	// Callers cannot mutate the stored field list.
	got := m.Fields()
	got[0].Name = "changed"
	assert.Equal(t, "x", m.Fields()[0].Name)
}

func TestMap_PreservesShape(t *testing.T) {
	ctx := fakeContext{multiField: map[fakeType]bool{"Point": true}}
	toLength := func(t fakeType) int { return len(t) }

	t.Run("Single stays single", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("n", "Int"))
		mapped := Map(r, toLength)
		s, ok := mapped.(*Single[int])
		require.True(t, ok)
		assert.Equal(t, "n", s.Name())
		assert.Equal(t, 3, s.Type())
	})

	t.Run("Multi stays multi", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("a", "Int", "b", "String?"))
		mapped := Map(r, toLength)
		m, ok := mapped.(*Multi[int])
		require.True(t, ok)
		assert.Equal(t, []Field[int]{{Name: "a", Type: 3}, {Name: "b", Type: 7}}, m.Fields())
	})

	t.Run("Substitution does not re-run selection", func(t *testing.T) {
		r := Select[fakeType](ctx, fields("n", "Int"))
		// Point would have forced a multi-field representation if selected fresh.
		mapped := Map(r, func(fakeType) fakeType { return "Point" })
		assert.Equal(t, ModeSingle, mapped.Mode())
		assert.Equal(t, ModeMulti, Select[fakeType](ctx, mapped.Fields()).Mode())
	})
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "single", ModeSingle.String())
	assert.Equal(t, "multi", ModeMulti.String())
	assert.Equal(t, "unknown", Mode(9).String())
}
