package oracle

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annotated = `// FILE: guard.go
// LANGUAGE: +SmartCasts
// WITH_STDLIB

func f(c *Circle) {
	if c != nil {
		use(<!SMARTCAST!>c<!>)
		<!UNSTABLE_SMARTCAST, DEBUG_INFO("field", "OnChange")!>c.<!SMARTCAST!>OnChange<!><!>(1)
	}
}

// EXPECTATIONS JVM_IR JS_IR
// guard.go:6 f
// guard.go:7 f

// EXPECTATIONS NATIVE
// guard.go:8 f
`

func TestParse(t *testing.T) {
	doc, err := Parse(annotated)
	require.NoError(t, err)

	assert.NotContains(t, doc.Text, "<!")
	require.Len(t, doc.Diagnostics, 3)

	t.Run("Ranges", func(t *testing.T) {
		for _, d := range doc.Diagnostics {
			assert.LessOrEqual(t, d.Start, d.End)
		}
		first := doc.Diagnostics[0]
		assert.Equal(t, []string{"SMARTCAST"}, first.Names)
		assert.Equal(t, "c", doc.Text[first.Start:first.End])

		outer := doc.Diagnostics[1]
		assert.Equal(t, []string{"UNSTABLE_SMARTCAST", "DEBUG_INFO"}, outer.Names)
		assert.Equal(t, []string{"field", "OnChange"}, outer.Args)
		assert.Equal(t, "c.OnChange", doc.Text[outer.Start:outer.End])
		assert.True(t, outer.Has("DEBUG_INFO"))
		assert.False(t, outer.Has("SMARTCAST"))

		inner := doc.Diagnostics[2]
		assert.Equal(t, "OnChange", doc.Text[inner.Start:inner.End])
	})

	t.Run("Directives", func(t *testing.T) {
		v, ok := doc.Directive("FILE")
		require.True(t, ok)
		assert.Equal(t, "guard.go", v)

		v, ok = doc.Directive("WITH_STDLIB")
		require.True(t, ok)
		assert.Empty(t, v)

		_, ok = doc.Directive("IGNORE_BACKEND")
		assert.False(t, ok)

		assert.Equal(t, 2, doc.Directives[1].Line)
	})

	t.Run("Steps", func(t *testing.T) {
		want := []Step{{File: "guard.go", Line: 6, Function: "f"}, {File: "guard.go", Line: 7, Function: "f"}}
		if diff := cmp.Diff(want, doc.Steps("JVM_IR")); diff != "" {
			t.Errorf("JVM_IR steps (-want +got):\n%s", diff)
		}
		assert.Equal(t, want, doc.Steps("JS_IR"))
		assert.Equal(t, []Step{{File: "guard.go", Line: 8, Function: "f"}}, doc.Steps("NATIVE"))
		assert.Empty(t, doc.Steps("WASM"))
		assert.Equal(t, []string{"JS_IR", "JVM_IR", "NATIVE"}, doc.Backends())
	})
}

func TestParse_Malformed(t *testing.T) {
	for name, text := range map[string]string{
		"unclosed":       "<!SMARTCAST!>c",
		"unmatched":      "c<!>",
		"unterminated":   "<!SMARTCAST c<!>",
		"bad name":       "<!SMART CAST!>c<!>",
		"bad arguments":  `<!A("x"!>c<!>`,
		"empty tag body": "<!!>c<!>",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestRender(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		doc, err := Parse(annotated)
		require.NoError(t, err)
		assert.Equal(t, annotated, doc.Render())
	})

	t.Run("Outer tags first", func(t *testing.T) {
		got := Render("abc", []Diagnostic{
			{Names: []string{"INNER"}, Start: 0, End: 1},
			{Names: []string{"OUTER"}, Start: 0, End: 3},
		})
		assert.Equal(t, "<!OUTER!><!INNER!>a<!>bc<!>", got)
	})

	t.Run("Empty range", func(t *testing.T) {
		got := Render("ab", []Diagnostic{{Names: []string{"X"}, Start: 1, End: 1}})
		assert.Equal(t, "a<!X!><!>b", got)
	})

	t.Run("End of text", func(t *testing.T) {
		got := Render("ab", []Diagnostic{{Names: []string{"X"}, Start: 1, End: 2}})
		assert.Equal(t, "a<!X!>b<!>", got)
	})
}
