package analysis

import (
	"sort"

	"semq/internal/smartcast"
	"semq/internal/syntax"
)

// Diagnostic codes.
const (
	CodeSmartcast         = "SMARTCAST"
	CodeUnstableSmartcast = "UNSTABLE_SMARTCAST"
	CodeImplicitReceiver  = "IMPLICIT_RECEIVER_SMARTCAST"
	CodeEmptyValueType    = "EMPTY_VALUE_TYPE"
	CodeRecursiveValue    = "RECURSIVE_VALUE_TYPE"
	CodeParseError        = "PARSE_ERROR"
)

// Location is a source range. Offsets are bytes into the file.
type Location struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

func locationOf(file string, n *syntax.Node) Location {
	return Location{
		File:      file,
		Line:      n.Span.Start.Line,
		Column:    n.Span.Start.Column,
		EndLine:   n.Span.End.Line,
		EndColumn: n.Span.End.Column,
		Start:     n.Span.StartByte,
		End:       n.Span.EndByte,
	}
}

// SmartCast is a narrowed expression.
type SmartCast struct {
	Location
	Expression string `json:"expression"`
	Type       string `json:"type"`
	Stable     bool   `json:"stable"`
}

// Code is the diagnostic code reported for the cast.
func (s SmartCast) Code() string {
	if s.Stable {
		return CodeSmartcast
	}
	return CodeUnstableSmartcast
}

// ImplicitReceiverCast is a narrowed implicit receiver of a member access.
type ImplicitReceiverCast struct {
	Location
	Expression string `json:"expression"`
	Kind       string `json:"kind"`
	Type       string `json:"type"`
}

func newImplicitReceiverCast(file string, n *syntax.Node, r smartcast.ImplicitReceiver) ImplicitReceiverCast {
	return ImplicitReceiverCast{Location: locationOf(file, n), Expression: n.Text, Kind: r.Kind.String(), Type: r.Type.String()}
}

// FieldLayout is one field of a value type representation.
type FieldLayout struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Representation is the selected lowering of a value type.
type Representation struct {
	Type   string        `json:"type"`
	Mode   string        `json:"mode"`
	Fields []FieldLayout `json:"fields"`
}

// Name is a short name allocated for a function signature.
type Name struct {
	Signature string `json:"signature"`
	Name      string `json:"name"`
}

// Diagnostic is a finding that is not a smart cast.
type Diagnostic struct {
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Report is the analysis result of one package.
type Report struct {
	Package           string                 `json:"package"`
	Dir               string                 `json:"dir"`
	SmartCasts        []SmartCast            `json:"smart_casts"`
	ImplicitReceivers []ImplicitReceiverCast `json:"implicit_receivers"`
	Representations   []Representation       `json:"representations"`
	Names             []Name                 `json:"names"`
	Diagnostics       []Diagnostic           `json:"diagnostics"`
	Stages            []StageResult          `json:"-"`
}

// Sort orders every list by source position so reports compare deterministically.
// Representations and names keep declaration and allocation order.
func (r *Report) Sort() {
	sort.SliceStable(r.SmartCasts, func(i, j int) bool {
		return r.SmartCasts[i].Location.before(r.SmartCasts[j].Location)
	})
	sort.SliceStable(r.ImplicitReceivers, func(i, j int) bool {
		return r.ImplicitReceivers[i].Location.before(r.ImplicitReceivers[j].Location)
	})
	sort.SliceStable(r.Diagnostics, func(i, j int) bool {
		a, b := r.Diagnostics[i], r.Diagnostics[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
}

func (l Location) before(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Start != o.Start {
		return l.Start < o.Start
	}
	return l.End < o.End
}

// SmartCastsIn returns the smart casts reported for file.
func (r *Report) SmartCastsIn(file string) []SmartCast {
	var out []SmartCast
	for _, s := range r.SmartCasts {
		if s.File == file {
			out = append(out, s)
		}
	}
	return out
}
