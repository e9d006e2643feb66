package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semq/internal/names"
	"semq/internal/oracle"
)

// loadAnnotated strips the markup of testdata/name into a fresh package directory.
func loadAnnotated(t *testing.T, name string) (Unit, *oracle.Document, string) {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	doc, err := oracle.Parse(string(raw))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(doc.Text), 0o644))
	return Unit{Dir: dir, Files: []string{path}}, doc, string(raw)
}

func diagnosticsOf(r *Report) []oracle.Diagnostic {
	var out []oracle.Diagnostic
	for _, s := range r.SmartCasts {
		out = append(out, oracle.Diagnostic{Names: []string{s.Code()}, Start: s.Start, End: s.End})
	}
	for _, ir := range r.ImplicitReceivers {
		out = append(out, oracle.Diagnostic{
			Names: []string{CodeImplicitReceiver},
			Args:  []string{ir.Kind, ir.Type},
			Start: ir.Start,
			End:   ir.End,
		})
	}
	return out
}

func TestAnalyzer_SmartCasts(t *testing.T) {
	unit, doc, raw := loadAnnotated(t, "shapes.go")

	report, err := NewAnalyzer().Analyze(context.Background(), unit)
	require.NoError(t, err)
	assert.Equal(t, "shapes", report.Package)
	assert.Empty(t, report.Diagnostics)

	got := oracle.Render(doc.Text, diagnosticsOf(report))
	if diff := cmp.Diff(raw, got); diff != "" {
		t.Errorf("smart casts mismatch (-want +got):\n%s", diff)
	}

	t.Run("Types", func(t *testing.T) {
		for _, s := range report.SmartCasts {
			switch s.Expression {
			case "c", "Default":
				assert.Equal(t, "*Circle!", s.Type, "%s at %d:%d", s.Expression, s.Line, s.Column)
			case "s":
				assert.Equal(t, "*Circle", s.Type)
			case "OnChange":
				assert.Equal(t, "func(int) string!", s.Type)
			}
		}
	})

	t.Run("Stages", func(t *testing.T) {
		require.Len(t, report.Stages, 4)
		var passes []string
		for _, s := range report.Stages {
			assert.NoError(t, s.Err)
			passes = append(passes, s.Pass)
		}
		assert.Equal(t, []string{"declarations", "representations", "names", "smartcasts"}, passes)
		assert.Equal(t, report.Stages[3].Stats.Attempted,
			report.Stages[3].Stats.Skipped+len(report.SmartCasts)+len(report.ImplicitReceivers))
	})
}

func TestAnalyzer_Representations(t *testing.T) {
	unit, _, _ := loadAnnotated(t, "money.go")

	a := NewAnalyzer(WithNames(names.New(true)))
	report, err := a.Analyze(context.Background(), unit)
	require.NoError(t, err)

	want := []Representation{
		{Type: "Cents", Mode: "single", Fields: []FieldLayout{{Name: "Amount", Type: "int64"}}},
		{Type: "Range", Mode: "multi", Fields: []FieldLayout{{Name: "Lo", Type: "int"}, {Name: "Hi", Type: "int"}}},
		{Type: "Wrapper", Mode: "multi", Fields: []FieldLayout{{Name: "R", Type: "Range"}}},
		{Type: "Optional", Mode: "single", Fields: []FieldLayout{{Name: "P", Type: "*Range"}}},
	}
	if diff := cmp.Diff(want, report.Representations); diff != "" {
		t.Errorf("representations mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, report.Diagnostics, 1)
	d := report.Diagnostics[0]
	assert.Equal(t, CodeEmptyValueType, d.Code)
	assert.Equal(t, unit.Files[0], d.File)
	assert.Contains(t, d.Message, "Empty")
	assert.Equal(t, 24, d.Line)

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, []Name{
			{Signature: "money.Sum(Cents,Cents)Cents", Name: "a"},
			{Signature: "money.Range.Len()int", Name: "b"},
		}, report.Names)

		again, err := a.Analyze(context.Background(), unit)
		require.NoError(t, err)
		assert.Empty(t, again.Names, "signatures are allocated once per analyzer")
		assert.Equal(t, 2, a.Names().Len())
	})
}

func TestAnalyzer_RecursiveValueTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loops.go")
	src := `package loops

//semq:value
type Loop struct {
	Next Loop
}

//semq:value
type Link struct {
	Next *Link
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	report, err := NewAnalyzer().Analyze(context.Background(), Unit{Dir: dir, Files: []string{path}})
	require.NoError(t, err)
	require.Len(t, report.Diagnostics, 1)
	d := report.Diagnostics[0]
	assert.Equal(t, CodeRecursiveValue, d.Code)
	assert.Equal(t, path, d.File)
	assert.Equal(t, 4, d.Line)
	assert.Contains(t, d.Message, "Loop")

	require.Len(t, report.Representations, 1)
	assert.Equal(t, "Link", report.Representations[0].Type)
	assert.Equal(t, "single", report.Representations[0].Mode)
}

func TestAnalyzer_SyntaxErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.go")
	bad := filepath.Join(dir, "bad.go")
	require.NoError(t, os.WriteFile(good, []byte("package p\n\nfunc ok() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("package p\n\nfunc broken( {\n"), 0o644))

	report, err := NewAnalyzer().Analyze(context.Background(), Unit{Dir: dir, Files: []string{bad, good}})
	require.NoError(t, err)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, CodeParseError, report.Diagnostics[0].Code)
	assert.Equal(t, bad, report.Diagnostics[0].File)
	assert.Equal(t, "p", report.Package)
}

func TestAnalyzer_MissingFile(t *testing.T) {
	dir := t.TempDir()
	report, err := NewAnalyzer().Analyze(context.Background(), Unit{Dir: dir, Files: []string{filepath.Join(dir, "nope.go")}})
	require.Error(t, err)
	require.NotNil(t, report)
	require.Len(t, report.Stages, 1)
	assert.Equal(t, "declarations", report.Stages[0].Pass)
}

func TestAnalyzer_Cancelled(t *testing.T) {
	unit, _, _ := loadAnnotated(t, "shapes.go")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalyzer().Analyze(ctx, unit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// position returns the 1-based line and byte column of the k-th occurrence of needle plus offset.
func position(t *testing.T, text, needle string, k, offset int) (int, int) {
	t.Helper()
	at := -1
	for i := 0; i <= k; i++ {
		next := strings.Index(text[at+1:], needle)
		require.GreaterOrEqual(t, next, 0, "occurrence %d of %q", i, needle)
		at += next + 1
	}
	at += offset
	line := strings.Count(text[:at], "\n") + 1
	col := at - strings.LastIndex(text[:at], "\n")
	return line, col
}

func TestAnalyzer_QueryAt(t *testing.T) {
	unit, doc, _ := loadAnnotated(t, "shapes.go")
	a := NewAnalyzer()
	ctx := context.Background()

	t.Run("Smart cast", func(t *testing.T) {
		line, col := position(t, doc.Text, "return c.Radius", 0, len("return "))
		q, err := a.QueryAt(ctx, unit, unit.Files[0], line, col)
		require.NoError(t, err)
		assert.Equal(t, "c", q.Expression)
		require.NotNil(t, q.SmartCast)
		assert.Equal(t, "*Circle!", q.SmartCast.Type)
		assert.True(t, q.SmartCast.Stable)
	})

	t.Run("Implicit receiver", func(t *testing.T) {
		line, col := position(t, doc.Text, "c.Describe()", 0, len("c."))
		q, err := a.QueryAt(ctx, unit, unit.Files[0], line, col)
		require.NoError(t, err)
		assert.Nil(t, q.SmartCast)
		require.Len(t, q.Receivers, 1)
		assert.Equal(t, "DISPATCH", q.Receivers[0].Kind)
		assert.Equal(t, "Base", q.Receivers[0].Type)
	})

	t.Run("No cast", func(t *testing.T) {
		line, col := position(t, doc.Text, "if c != nil", 0, len("if "))
		q, err := a.QueryAt(ctx, unit, unit.Files[0], line, col)
		require.NoError(t, err)
		assert.Nil(t, q.SmartCast)
		assert.Empty(t, q.Receivers)
	})

	t.Run("Outside any expression", func(t *testing.T) {
		_, err := a.QueryAt(ctx, unit, unit.Files[0], 1, 1)
		assert.True(t, errors.Is(err, ErrNoExpression))
	})

	t.Run("Foreign file", func(t *testing.T) {
		_, err := a.QueryAt(ctx, unit, filepath.Join(unit.Dir, "other.go"), 1, 1)
		assert.Error(t, err)
	})
}
