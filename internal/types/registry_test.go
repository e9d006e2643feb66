package types

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semq/internal/valueclass"
)

func testRegistry() *Registry {
	r := NewRegistry("shapes")
	r.AddDecl(&Decl{Name: "Shape", Kind: DeclInterface})
	r.AddDecl(&Decl{Name: "Base", Kind: DeclStruct, Fields: []Field{{Name: "ID", Type: "int"}}})
	r.AddDecl(&Decl{Name: "Circle", Kind: DeclStruct, Fields: []Field{
		{Name: "Base", Type: "Base", Embedded: true},
		{Name: "Radius", Type: "float64"},
	}})
	r.AddDecl(&Decl{Name: "Handler", Kind: DeclNamed, Underlying: "func(string) error"})

	r.AddDecl(&Decl{Name: "Meters", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "v", Type: "float64"}}})
	r.AddDecl(&Decl{Name: "Point", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "x", Type: "int"}, {Name: "y", Type: "int"}}})
	r.AddDecl(&Decl{Name: "Position", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "p", Type: "Point"}}})
	r.AddDecl(&Decl{Name: "MaybePosition", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "p", Type: "*Point"}}})
	r.AddDecl(&Decl{Name: "Distance", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "m", Type: "Meters"}}})
	r.AddDecl(&Decl{Name: "Empty", Kind: DeclStruct, Value: true})

	r.AddFunc(&FuncDecl{Name: "Describe", Receiver: "Base", Results: []string{"string"}, Signature: "func (b *Base) Describe() string"})
	r.AddFunc(&FuncDecl{Name: "Area", Receiver: "Circle", Results: []string{"float64"}, Signature: "func (c *Circle) Area() float64"})
	r.AddFunc(&FuncDecl{Name: "NewCircle", Results: []string{"*Circle"}, Signature: "func NewCircle() *Circle"})
	r.AddGlobal("Default", "*Circle")
	return r
}

func TestParse(t *testing.T) {
	reg := testRegistry()
	cases := []struct {
		text     string
		want     string
		nullable bool
	}{
		{"int", "int", false},
		{"*Circle", "*Circle", true},
		{"[]string", "[]string", true},
		{"map[string][]int", "map[string][]int", true},
		{"func(int) string", "func(int) string", true},
		{"any", "any", true},
		{"error", "error", true},
		{"Shape", "Shape", true},
		{"Circle", "Circle", false},
		{"Handler", "Handler", true},
		{"chan int", "chan int", true},
		{"<-chan int", "<-chan int", true},
		{"[4]byte", "[4]byte", false},
		{"fmt.Stringer", "fmt.Stringer", false},
	}
	for _, tc := range cases {
		typ := Parse(tc.text, reg)
		require.NotNil(t, typ, tc.text)
		assert.Equal(t, tc.want, typ.String(), tc.text)
		assert.Equal(t, tc.nullable, typ.IsNullable(), tc.text)
	}

	assert.Nil(t, Parse("  ", reg))

	fn, ok := Parse("func(int) string", reg).(*Func)
	require.True(t, ok)
	assert.Equal(t, "string", fn.Result.String())
	fn, ok = Parse("func() (int, error)", reg).(*Func)
	require.True(t, ok)
	assert.Nil(t, fn.Result)
}

func TestWithNullability(t *testing.T) {
	reg := testRegistry()

	p := Parse("*Circle", reg)
	nn := p.WithNullability(false)
	assert.False(t, nn.IsNullable())
	assert.Equal(t, "*Circle!", nn.String())
	assert.True(t, p.IsNullable(), "original is unchanged")
	assert.Same(t, nn, nn.WithNullability(false))

	s := Parse("Shape", reg).WithNullability(false)
	assert.Equal(t, "Shape!", s.String())

	c := Parse("Circle", reg)
	assert.Same(t, c, c.WithNullability(false))
	assert.Equal(t, "int", Int.WithNullability(true).String())
}

func TestRegistry_Member(t *testing.T) {
	reg := testRegistry()
	circle := Parse("*Circle", reg)

	m, ok := reg.Member(circle, "Radius")
	require.True(t, ok)
	assert.Equal(t, "float64", m.Type.String())
	assert.Nil(t, m.Via)

	m, ok = reg.Member(circle, "Area")
	require.True(t, ok)
	assert.NotNil(t, m.Method)
	assert.Equal(t, "float64", m.Type.String())

	m, ok = reg.Member(circle, "Describe")
	require.True(t, ok, "promoted through the embedded Base")
	require.NotNil(t, m.Via)
	assert.Equal(t, "Base", m.Via.Name)
	assert.Equal(t, "string", m.Type.String())

	_, ok = reg.Member(circle, "Missing")
	assert.False(t, ok)
	_, ok = reg.Member(Int, "Radius")
	assert.False(t, ok)

	g, ok := reg.Global("Default")
	require.True(t, ok)
	assert.Equal(t, "*Circle", g.String())
	assert.Equal(t, "*Circle", reg.ResultType(reg.Func("NewCircle")).String())
}

func TestRegistry_Representation(t *testing.T) {
	reg := testRegistry()

	rep, err := reg.Representation("Meters")
	require.NoError(t, err)
	assert.Equal(t, valueclass.ModeSingle, rep.Mode())

	rep, err = reg.Representation("Point")
	require.NoError(t, err)
	assert.Equal(t, valueclass.ModeMulti, rep.Mode())

	t.Run("Single field holding a multi-field value type", func(t *testing.T) {
		rep, err := reg.Representation("Position")
		require.NoError(t, err)
		assert.Equal(t, valueclass.ModeMulti, rep.Mode())
		assert.True(t, rep.Contains("p"))
	})

	t.Run("Nullable field stays single", func(t *testing.T) {
		rep, err := reg.Representation("MaybePosition")
		require.NoError(t, err)
		assert.Equal(t, valueclass.ModeSingle, rep.Mode())
	})

	t.Run("Single field holding a single-field value type", func(t *testing.T) {
		rep, err := reg.Representation("Distance")
		require.NoError(t, err)
		assert.Equal(t, valueclass.ModeSingle, rep.Mode())
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := reg.Representation("Empty")
		assert.True(t, errors.Is(err, ErrEmptyValueType))
		_, err = reg.Representation("Circle")
		assert.True(t, errors.Is(err, ErrNotValueType))
		_, err = reg.Representation("Nope")
		assert.True(t, errors.Is(err, ErrNotValueType))
	})

	again, err := reg.Representation("Point")
	require.NoError(t, err)
	assert.Same(t, rep, again)

	assert.Len(t, reg.ValueDecls(), 6)
}

func TestRegistry_RecursiveValueTypes(t *testing.T) {
	reg := NewRegistry("loops")
	reg.AddDecl(&Decl{Name: "Loop", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "next", Type: "Loop"}}})
	reg.AddDecl(&Decl{Name: "A", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "b", Type: "B"}}})
	reg.AddDecl(&Decl{Name: "B", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "a", Type: "A"}}})
	reg.AddDecl(&Decl{Name: "Pair", Kind: DeclStruct, Value: true, Fields: []Field{
		{Name: "self", Type: "Pair"},
		{Name: "n", Type: "int"},
	}})
	reg.AddDecl(&Decl{Name: "Node", Kind: DeclStruct, Value: true, Fields: []Field{{Name: "next", Type: "*Node"}}})

	for _, name := range []string{"Loop", "A", "B", "Pair"} {
		_, err := reg.Representation(name)
		assert.True(t, errors.Is(err, ErrRecursiveValueType), "%s: %v", name, err)
	}

	rep, err := reg.Representation("Node")
	require.NoError(t, err, "a pointer field breaks the cycle")
	assert.Equal(t, valueclass.ModeSingle, rep.Mode())
}
