// Package types models resolved types of the analysed Go dialect.
//
// Types are immutable. Kinds that admit nil (pointers, slices, maps, channels, functions and
// interfaces) are nullable as written; flow analysis may produce their non-nil form, which
// prints with a trailing "!".
package types

import "strings"

// Type is an opaque resolved type.
type Type interface {
	String() string
	IsNullable() bool
	// WithNullability returns the same type with the requested nullability.
	// Types that can never be nil ignore the request.
	WithNullability(nullable bool) Type
}

func mark(s string, nonNil bool) string {
	if nonNil {
		return s + "!"
	}
	return s
}

// Basic is a predeclared non-nilable type such as int or string.
type Basic struct {
	Name string
}

func (b *Basic) String() string            { return b.Name }
func (b *Basic) IsNullable() bool          { return false }
func (b *Basic) WithNullability(bool) Type { return b }

// Named refers to a declared type. Decl is nil for types declared outside the registry.
type Named struct {
	Name   string
	Decl   *Decl
	NonNil bool
}

func (n *Named) nilable() bool {
	return n.Decl != nil && n.Decl.Nilable()
}

func (n *Named) String() string {
	return mark(n.Name, n.NonNil && n.nilable())
}

func (n *Named) IsNullable() bool {
	return n.nilable() && !n.NonNil
}

func (n *Named) WithNullability(nullable bool) Type {
	if !n.nilable() || nullable == !n.NonNil {
		return n
	}
	return &Named{Name: n.Name, Decl: n.Decl, NonNil: !nullable}
}

type Pointer struct {
	Elem   Type
	NonNil bool
}

func (p *Pointer) String() string   { return mark("*"+typeString(p.Elem), p.NonNil) }
func (p *Pointer) IsNullable() bool { return !p.NonNil }

func (p *Pointer) WithNullability(nullable bool) Type {
	if nullable == !p.NonNil {
		return p
	}
	return &Pointer{Elem: p.Elem, NonNil: !nullable}
}

type Slice struct {
	Elem   Type
	NonNil bool
}

func (s *Slice) String() string   { return mark("[]"+typeString(s.Elem), s.NonNil) }
func (s *Slice) IsNullable() bool { return !s.NonNil }

func (s *Slice) WithNullability(nullable bool) Type {
	if nullable == !s.NonNil {
		return s
	}
	return &Slice{Elem: s.Elem, NonNil: !nullable}
}

type Map struct {
	Key, Value Type
	NonNil     bool
}

func (m *Map) String() string {
	return mark("map["+typeString(m.Key)+"]"+typeString(m.Value), m.NonNil)
}

func (m *Map) IsNullable() bool { return !m.NonNil }

func (m *Map) WithNullability(nullable bool) Type {
	if nullable == !m.NonNil {
		return m
	}
	return &Map{Key: m.Key, Value: m.Value, NonNil: !nullable}
}

type Chan struct {
	Dir    string // "chan", "<-chan" or "chan<-"
	Elem   Type
	NonNil bool
}

func (c *Chan) String() string   { return mark(c.Dir+" "+typeString(c.Elem), c.NonNil) }
func (c *Chan) IsNullable() bool { return !c.NonNil }

func (c *Chan) WithNullability(nullable bool) Type {
	if nullable == !c.NonNil {
		return c
	}
	return &Chan{Dir: c.Dir, Elem: c.Elem, NonNil: !nullable}
}

// Func is a function type kept as its written signature.
type Func struct {
	Signature string
	Result    Type // nil when the function returns nothing or several values
	NonNil    bool
}

func (f *Func) String() string   { return mark(f.Signature, f.NonNil) }
func (f *Func) IsNullable() bool { return !f.NonNil }

func (f *Func) WithNullability(nullable bool) Type {
	if nullable == !f.NonNil {
		return f
	}
	return &Func{Signature: f.Signature, Result: f.Result, NonNil: !nullable}
}

// Interface is an unnamed interface type, including any and error.
type Interface struct {
	Name   string
	NonNil bool
}

func (i *Interface) String() string   { return mark(i.Name, i.NonNil) }
func (i *Interface) IsNullable() bool { return !i.NonNil }

func (i *Interface) WithNullability(nullable bool) Type {
	if nullable == !i.NonNil {
		return i
	}
	return &Interface{Name: i.Name, NonNil: !nullable}
}

func typeString(t Type) string {
	if t == nil {
		return "?"
	}
	return t.String()
}

// Deref strips one pointer level.
func Deref(t Type) Type {
	if p, ok := t.(*Pointer); ok {
		return p.Elem
	}
	return t
}

// NamedOf returns the declared type behind t, looking through one pointer.
func NamedOf(t Type) (*Named, bool) {
	n, ok := Deref(t).(*Named)
	return n, ok
}

var basicNames = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true, "uintptr": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// Well-known types used by the builder.
var (
	Bool       Type = &Basic{Name: "bool"}
	String     Type = &Basic{Name: "string"}
	Int        Type = &Basic{Name: "int"}
	Float64    Type = &Basic{Name: "float64"}
	Rune       Type = &Basic{Name: "rune"}
	Complex    Type = &Basic{Name: "complex128"}
	Any        Type = &Interface{Name: "any"}
	Error      Type = &Interface{Name: "error"}
	UntypedNil Type = &Basic{Name: "untyped nil"}
)

// nilableText reports whether a type written as s admits nil, without resolving names.
func nilableText(s string) bool {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"*", "[]", "map[", "chan", "<-chan", "func", "interface"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return s == "any" || s == "error"
}
