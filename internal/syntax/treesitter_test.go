package syntax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `package shapes

func Area(c *Circle, n int) float64 {
	if c != nil && n > 0 {
		return c.Radius() * 2
	}
	x := c.Base.ID
	return -x
}
`

func parseSample(t *testing.T) *File {
	t.Helper()
	f, err := Parse(context.Background(), "shapes.go", []byte(sample))
	require.NoError(t, err)
	return f
}

func TestParse(t *testing.T) {
	f := parseSample(t)
	assert.Equal(t, "shapes", f.Package)
	assert.Equal(t, KindFile, f.Root.Kind)

	fns := f.Functions()
	require.Len(t, fns, 1)
	fn := fns[0]
	assert.Equal(t, "Area", fn.Child(RoleName).Text)

	params := fn.Child(RoleParameters)
	require.NotNil(t, params)
	require.Len(t, params.Children(), 2)
	assert.Equal(t, "c", params.Children()[0].Child(RoleName).Text)
	assert.Equal(t, "*Circle", TypeText(params.Children()[0].Child(RoleType)))
	assert.Equal(t, "float64", TypeText(fn.Child(RoleResult)))
}

func TestParse_NormalizesCalls(t *testing.T) {
	f := parseSample(t)

	// c.Radius() on line 5
	expr := f.ExpressionAt(5, 12)
	require.NotNil(t, expr)
	assert.Equal(t, KindNameReference, expr.Kind)
	assert.Equal(t, "Radius", expr.Text)

	call := expr.Parent()
	require.NotNil(t, call)
	assert.Equal(t, KindCall, call.Kind)
	assert.Equal(t, RoleSelector, call.Role)
	assert.Equal(t, "Radius()", call.Text)

	q := call.Parent()
	require.NotNil(t, q)
	assert.Equal(t, KindDotQualified, q.Kind)
	assert.Equal(t, "c", q.Receiver().Text)
	assert.Equal(t, "c.Radius()", q.Text)
}

func TestParse_Selectors(t *testing.T) {
	f := parseSample(t)

	// c.Base.ID on line 7
	id := f.ExpressionAt(7, 14)
	require.NotNil(t, id)
	assert.Equal(t, "ID", id.Text)
	outer := id.Parent()
	assert.Equal(t, KindDotQualified, outer.Kind)
	assert.Equal(t, "c.Base", outer.Receiver().Text)
	assert.Equal(t, KindDotQualified, outer.Receiver().Kind)
}

func TestParse_Operators(t *testing.T) {
	f := parseSample(t)

	cond := f.ExpressionAt(4, 14)
	require.NotNil(t, cond)
	assert.Equal(t, KindOperationReference, cond.Kind)
	assert.Equal(t, "&&", cond.Text)
	bin := cond.Parent()
	assert.Equal(t, KindBinary, bin.Kind)
	assert.Equal(t, "c != nil", bin.Child(RoleLeft).Text)

	neg := f.ExpressionAt(8, 9)
	require.NotNil(t, neg)
	assert.Equal(t, KindOperationReference, neg.Kind)
	assert.Equal(t, KindPrefix, neg.Parent().Kind)
	assert.Equal(t, "x", neg.Parent().Child(RoleOperand).Text)
}

func TestFile_NameReferences(t *testing.T) {
	f := parseSample(t)
	var names []string
	for _, n := range f.NameReferences() {
		names = append(names, n.Text)
	}
	assert.Equal(t, []string{"c", "n", "c", "Radius", "x", "c", "Base", "ID", "x"}, names)
}

func TestSpan_Contains(t *testing.T) {
	s := Span{Start: Position{Line: 2, Column: 5}, End: Position{Line: 3, Column: 2}}
	assert.True(t, s.Contains(Position{Line: 2, Column: 5}))
	assert.True(t, s.Contains(Position{Line: 3, Column: 1}))
	assert.False(t, s.Contains(Position{Line: 3, Column: 2}))
	assert.False(t, s.Contains(Position{Line: 2, Column: 4}))
	assert.False(t, s.Contains(Position{Line: 1, Column: 9}))
}
