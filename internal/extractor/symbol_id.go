package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Signature returns the canonical signature of a function or method unit:
// package, receiver type, name and parameter and result types with whitespace normalised.
// Parameter names do not take part, so renaming a parameter keeps the signature.
// Non-function units yield "".
func Signature(unit *CodeUnit) string {
	if unit == nil {
		return ""
	}
	d, ok := functionDetails(unit)
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(orDefault(unit.Package, "_"))
	b.WriteByte('.')
	if d.ReceiverType != "" {
		b.WriteString(d.ReceiverType)
		b.WriteByte('.')
	}
	b.WriteString(strings.TrimSpace(unit.Name))
	b.WriteByte('(')
	for i, p := range d.Parameters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(canonicalize(p.Type))
	}
	b.WriteByte(')')
	switch len(d.Returns) {
	case 0:
	case 1:
		b.WriteString(canonicalize(d.Returns[0].Type))
	default:
		b.WriteByte('(')
		for i, r := range d.Returns {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalize(r.Type))
		}
		b.WriteByte(')')
	}
	return b.String()
}

// BuildStableSymbolID creates a deterministic symbol ID.
// The ID is derived from identity fields and a hash of the canonical signature.
func BuildStableSymbolID(unit *CodeUnit) string {
	if unit == nil {
		return ""
	}

	lang := orDefault(unit.Language, "unknown")
	pkg := orDefault(unit.Package, "_")
	kind := orDefault(unit.UnitType, "symbol")
	name := orDefault(unit.Name, "_")

	signature := Signature(unit)
	if signature == "" {
		signature = canonicalize(unit.Content)
	}

	sum := sha256.Sum256([]byte(strings.Join([]string{lang, pkg, kind, name, signature}, "|")))
	return fmt.Sprintf("%s/%s:%s:%s:%s", lang, pkg, kind, name, hex.EncodeToString(sum[:8]))
}

func functionDetails(unit *CodeUnit) (GoFunctionDetails, bool) {
	switch d := unit.Details.(type) {
	case GoFunctionDetails:
		return d, true
	case *GoFunctionDetails:
		if d != nil {
			return *d, true
		}
	}
	return GoFunctionDetails{}, false
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
