// Package oracle reads and writes annotated test sources.
//
// Expected diagnostics are written inline as <!NAME!>text<!>, optionally with several names and
// arguments: <!NAME1, NAME2("a", "b")!>text<!>. Markup nests. Directive lines of the form
// "// KEY" or "// KEY: value" configure a test, and "// EXPECTATIONS B1 B2" opens a block of
// "// file:line function" stepping expectations for the listed backends.
package oracle

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	openPrefix = "<!"
	openSuffix = "!>"
	closeTag   = "<!>"
)

// ErrMalformed is wrapped by every markup parse error.
var ErrMalformed = errors.New("malformed diagnostic markup")

// Diagnostic is one expected diagnostic over the byte range [Start, End) of the clean text.
type Diagnostic struct {
	Names []string
	Args  []string
	Start int
	End   int
}

// Has reports whether d carries name.
func (d Diagnostic) Has(name string) bool {
	for _, n := range d.Names {
		if n == name {
			return true
		}
	}
	return false
}

func (d Diagnostic) tag() string {
	var b strings.Builder
	b.WriteString(openPrefix)
	b.WriteString(strings.Join(d.Names, ", "))
	if len(d.Args) > 0 {
		quoted := make([]string, len(d.Args))
		for i, a := range d.Args {
			quoted[i] = `"` + a + `"`
		}
		b.WriteString("(" + strings.Join(quoted, ", ") + ")")
	}
	b.WriteString(openSuffix)
	return b.String()
}

// Directive is a "// KEY: value" line. Line is 1-based.
type Directive struct {
	Key   string
	Value string
	Line  int
}

// Step is one stepping expectation.
type Step struct {
	File     string
	Line     int
	Function string
}

// Document is a parsed annotated source.
type Document struct {
	// Text is the source with all diagnostic markup removed.
	Text        string
	Diagnostics []Diagnostic
	Directives  []Directive

	steps map[string][]Step
}

var (
	directiveRe = regexp.MustCompile(`^//\s*([A-Z][A-Z0-9_]*)(?::\s*(.*))?$`)
	stepRe      = regexp.MustCompile(`^//\s*(\S+):(\d+)\s+(\S+)$`)
	nameRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// Parse strips diagnostic markup from text and collects directives and stepping expectations.
// Diagnostics are ordered by where their opening tag appears.
func Parse(text string) (*Document, error) {
	clean, diags, err := strip(text)
	if err != nil {
		return nil, err
	}
	doc := &Document{Text: clean, Diagnostics: diags, steps: make(map[string][]Step)}
	doc.scanLines()
	return doc, nil
}

func strip(text string) (string, []Diagnostic, error) {
	var (
		out   strings.Builder
		diags []Diagnostic
		open  []int // indexes into diags
	)
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], closeTag):
			if len(open) == 0 {
				return "", nil, errors.Wrapf(ErrMalformed, "unmatched %s at offset %d", closeTag, i)
			}
			diags[open[len(open)-1]].End = out.Len()
			open = open[:len(open)-1]
			i += len(closeTag)
		case strings.HasPrefix(text[i:], openPrefix):
			end := strings.Index(text[i+len(openPrefix):], openSuffix)
			if end < 0 {
				return "", nil, errors.Wrapf(ErrMalformed, "unterminated tag at offset %d", i)
			}
			body := text[i+len(openPrefix) : i+len(openPrefix)+end]
			d, err := parseTag(body)
			if err != nil {
				return "", nil, errors.Wrapf(err, "tag at offset %d", i)
			}
			d.Start = out.Len()
			open = append(open, len(diags))
			diags = append(diags, d)
			i += len(openPrefix) + end + len(openSuffix)
		default:
			out.WriteByte(text[i])
			i++
		}
	}
	if len(open) > 0 {
		d := diags[open[len(open)-1]]
		return "", nil, errors.Wrapf(ErrMalformed, "unclosed %s", strings.Join(d.Names, ", "))
	}
	return out.String(), diags, nil
}

func parseTag(body string) (Diagnostic, error) {
	var d Diagnostic
	if i := strings.IndexByte(body, '('); i >= 0 {
		if !strings.HasSuffix(body, ")") {
			return d, errors.Wrapf(ErrMalformed, "unterminated arguments in %q", body)
		}
		d.Args = splitArgs(body[i+1 : len(body)-1])
		body = body[:i]
	}
	for _, name := range strings.Split(body, ",") {
		name = strings.TrimSpace(name)
		if !nameRe.MatchString(name) {
			return d, errors.Wrapf(ErrMalformed, "bad diagnostic name %q", name)
		}
		d.Names = append(d.Names, name)
	}
	return d, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		args  []string
		cur   strings.Builder
		inStr bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inStr = !inStr
		case c == ',' && !inStr:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(args, strings.TrimSpace(cur.String()))
}

func (d *Document) scanLines() {
	var backends []string
	for i, line := range strings.Split(d.Text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "//") {
			backends = nil
			continue
		}
		if rest, ok := strings.CutPrefix(line, "// EXPECTATIONS"); ok {
			backends = strings.Fields(rest)
			continue
		}
		if m := stepRe.FindStringSubmatch(line); m != nil && backends != nil {
			n, _ := strconv.Atoi(m[2])
			for _, b := range backends {
				d.steps[b] = append(d.steps[b], Step{File: m[1], Line: n, Function: m[3]})
			}
			continue
		}
		if m := directiveRe.FindStringSubmatch(line); m != nil {
			d.Directives = append(d.Directives, Directive{Key: m[1], Value: strings.TrimSpace(m[2]), Line: i + 1})
		}
	}
}

// Directive returns the value of the first directive named key.
func (d *Document) Directive(key string) (string, bool) {
	for _, dir := range d.Directives {
		if dir.Key == key {
			return dir.Value, true
		}
	}
	return "", false
}

// Steps returns the stepping expectations listed for backend, in order.
func (d *Document) Steps(backend string) []Step {
	return d.steps[backend]
}

// Backends returns the backends that have stepping expectations, sorted.
func (d *Document) Backends() []string {
	out := make([]string, 0, len(d.steps))
	for b := range d.steps {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Render inserts markup for diags into clean. Diagnostics sharing a start are opened outermost
// first. Rendering a parsed document reproduces its source when the tags were written with
// ", " between names and quoted arguments.
func Render(clean string, diags []Diagnostic) string {
	order := make([]int, len(diags))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := diags[order[a]], diags[order[b]]
		if da.Start != db.Start {
			return da.Start < db.Start
		}
		return da.End > db.End
	})

	var (
		out   strings.Builder
		stack []Diagnostic
		next  int
	)
	closeUntil := func(pos int) {
		for len(stack) > 0 && stack[len(stack)-1].End <= pos {
			out.WriteString(closeTag)
			stack = stack[:len(stack)-1]
		}
	}
	for pos := 0; pos <= len(clean); pos++ {
		closeUntil(pos)
		for next < len(order) && diags[order[next]].Start == pos {
			d := diags[order[next]]
			out.WriteString(d.tag())
			stack = append(stack, d)
			next++
			if d.End <= pos {
				closeUntil(pos)
			}
		}
		if pos < len(clean) {
			out.WriteByte(clean[pos])
		}
	}
	closeUntil(len(clean) + 1)
	return out.String()
}

// Render re-applies the document's diagnostics to its clean text.
func (d *Document) Render() string {
	return Render(d.Text, d.Diagnostics)
}
