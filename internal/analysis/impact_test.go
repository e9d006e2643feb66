package analysis

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"semq/internal/git"
)

func TestAnalyzeImpact(t *testing.T) {
	a := Unit{Dir: filepath.FromSlash("/src/a"), Files: []string{filepath.FromSlash("/src/a/x.go"), filepath.FromSlash("/src/a/y.go")}}
	b := Unit{Dir: filepath.FromSlash("/src/b"), Files: []string{filepath.FromSlash("/src/b/z.go")}}
	c := Unit{Dir: filepath.FromSlash("/src/c"), Files: []string{filepath.FromSlash("/src/c/w.go")}}

	changes := []git.ChangedFile{
		{Path: filepath.FromSlash("/src/a/y.go"), ChangedLines: []int{3}},
		{Path: filepath.FromSlash("/src/c/gone.go"), Deleted: true},
		{Path: filepath.FromSlash("/src/b/README.md"), ChangedLines: []int{1}},
	}

	report := AnalyzeImpact([]Unit{a, b, c}, changes)
	assert.Equal(t, []Unit{a, c}, report.Affected)
	assert.Equal(t, []Unit{b}, report.Unchanged)

	report = AnalyzeImpact([]Unit{a}, nil)
	assert.Empty(t, report.Affected)
}
