package types

import (
	"strings"

	"github.com/cockroachdb/errors"

	"semq/internal/valueclass"
)

var (
	// ErrNotValueType is returned when a representation is requested for an ordinary type.
	ErrNotValueType = errors.New("not a value type")
	// ErrEmptyValueType is returned for value types without fields.
	ErrEmptyValueType = errors.New("value type has no fields")
	// ErrRecursiveValueType is returned for value types that contain themselves by value.
	ErrRecursiveValueType = errors.New("value type contains itself")
)

type DeclKind int

const (
	DeclStruct DeclKind = iota
	DeclInterface
	DeclNamed
)

// Decl is a package-level type declaration.
type Decl struct {
	Name       string
	Kind       DeclKind
	Underlying string // written underlying type for DeclNamed
	Fields     []Field
	Value      bool // carries the value-type directive
	Line       int
}

// Nilable reports whether values of the declared type may be nil.
func (d *Decl) Nilable() bool {
	switch d.Kind {
	case DeclInterface:
		return true
	case DeclNamed:
		return nilableText(d.Underlying)
	default:
		return false
	}
}

// Field is a struct field as written.
type Field struct {
	Name     string
	Type     string
	Embedded bool
}

type Param struct {
	Name string
	Type string
}

// FuncDecl is a declared function or method.
type FuncDecl struct {
	Name      string
	Receiver  string // receiver base type name, empty for functions
	Params    []Param
	Results   []string
	Signature string
}

// Registry holds the declarations of one package.
// It is built once per unit and only read afterwards; it is not safe for concurrent mutation.
type Registry struct {
	Package string

	decls   map[string]*Decl
	order   []string
	funcs   map[string]*FuncDecl
	methods map[string]map[string]*FuncDecl
	globals map[string]string

	reps       map[string]valueclass.Representation[Type]
	inProgress map[string]bool
}

func NewRegistry(pkg string) *Registry {
	return &Registry{
		Package:    pkg,
		decls:      make(map[string]*Decl),
		funcs:      make(map[string]*FuncDecl),
		methods:    make(map[string]map[string]*FuncDecl),
		globals:    make(map[string]string),
		reps:       make(map[string]valueclass.Representation[Type]),
		inProgress: make(map[string]bool),
	}
}

func (r *Registry) AddDecl(d *Decl) {
	if d == nil || d.Name == "" {
		return
	}
	if _, ok := r.decls[d.Name]; !ok {
		r.order = append(r.order, d.Name)
	}
	r.decls[d.Name] = d
	delete(r.reps, d.Name)
}

func (r *Registry) AddFunc(f *FuncDecl) {
	if f == nil || f.Name == "" {
		return
	}
	if f.Receiver == "" {
		r.funcs[f.Name] = f
		return
	}
	m, ok := r.methods[f.Receiver]
	if !ok {
		m = make(map[string]*FuncDecl)
		r.methods[f.Receiver] = m
	}
	m[f.Name] = f
}

// AddGlobal records a package-level variable and its written type.
func (r *Registry) AddGlobal(name, typ string) {
	r.globals[name] = typ
}

func (r *Registry) Decl(name string) *Decl {
	return r.decls[name]
}

// Decls returns declarations in the order they were added.
func (r *Registry) Decls() []*Decl {
	out := make([]*Decl, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.decls[name])
	}
	return out
}

func (r *Registry) Func(name string) *FuncDecl {
	return r.funcs[name]
}

func (r *Registry) Method(typeName, name string) *FuncDecl {
	return r.methods[typeName][name]
}

func (r *Registry) Global(name string) (Type, bool) {
	typ, ok := r.globals[name]
	if !ok {
		return nil, false
	}
	return Parse(typ, r), true
}

// Type parses a written type against this registry.
func (r *Registry) Type(text string) Type {
	return Parse(text, r)
}

// FuncType returns the type of a declared function value.
func (r *Registry) FuncType(f *FuncDecl) *Func {
	return &Func{Signature: f.Signature, Result: r.ResultType(f), NonNil: true}
}

// ResultType returns the single result of f, or nil when f has zero or several results.
func (r *Registry) ResultType(f *FuncDecl) Type {
	if f == nil || len(f.Results) != 1 {
		return nil
	}
	return Parse(f.Results[0], r)
}

// Member is a field or method found on a type.
type Member struct {
	Name   string
	Type   Type      // field type, or the method's single result
	Method *FuncDecl // nil for fields
	// Via is the embedded field the member was promoted through, if any.
	Via *Field
}

// Member looks up a field or method on recv, looking through one pointer and one level of
// embedding.
func (r *Registry) Member(recv Type, name string) (Member, bool) {
	named, ok := NamedOf(recv)
	if !ok {
		return Member{}, false
	}
	if m, ok := r.directMember(named.Name, name); ok {
		return m, true
	}
	decl := r.Decl(baseName(named.Name))
	if decl == nil {
		return Member{}, false
	}
	for i := range decl.Fields {
		f := &decl.Fields[i]
		if !f.Embedded {
			continue
		}
		if m, ok := r.directMember(baseName(f.Type), name); ok {
			m.Via = f
			return m, true
		}
	}
	return Member{}, false
}

func (r *Registry) directMember(typeName, name string) (Member, bool) {
	typeName = baseName(typeName)
	if decl := r.Decl(typeName); decl != nil {
		for _, f := range decl.Fields {
			if f.Name == name {
				return Member{Name: name, Type: Parse(f.Type, r)}, true
			}
		}
	}
	if fn := r.Method(typeName, name); fn != nil {
		return Member{Name: name, Type: r.ResultType(fn), Method: fn}, true
	}
	return Member{}, false
}

// baseName strips pointers, package qualifiers are kept.
func baseName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "*")
	if i := strings.IndexByte(s, '['); i > 0 {
		s = s[:i]
	}
	return s
}

// IsNullable implements valueclass.TypeContext.
func (r *Registry) IsNullable(t Type) bool {
	return t != nil && t.IsNullable()
}

// IsMultiFieldValueClass implements valueclass.TypeContext.
func (r *Registry) IsMultiFieldValueClass(t Type) bool {
	named, ok := t.(*Named)
	if !ok || named.IsNullable() {
		return false
	}
	rep, err := r.Representation(baseName(named.Name))
	if err != nil {
		return false
	}
	return rep.Mode() == valueclass.ModeMulti
}

// Representation selects and caches the representation of the value type name.
func (r *Registry) Representation(name string) (valueclass.Representation[Type], error) {
	if rep, ok := r.reps[name]; ok {
		return rep, nil
	}
	decl := r.Decl(name)
	if decl == nil || !decl.Value || decl.Kind != DeclStruct {
		return nil, errors.Wrapf(ErrNotValueType, "%s", name)
	}
	if len(decl.Fields) == 0 {
		return nil, errors.Wrapf(ErrEmptyValueType, "%s", name)
	}
	if r.inProgress[name] || r.containsItself(name) {
		return nil, errors.Wrapf(ErrRecursiveValueType, "%s", name)
	}
	r.inProgress[name] = true
	defer delete(r.inProgress, name)

	fields := make([]valueclass.Field[Type], len(decl.Fields))
	for i, f := range decl.Fields {
		fields[i] = valueclass.Field[Type]{Name: f.Name, Type: Parse(f.Type, r)}
	}
	rep := valueclass.Select[Type](r, fields)
	r.reps[name] = rep
	return rep, nil
}

// containsItself reports whether the struct name reaches itself through fields held by value.
func (r *Registry) containsItself(name string) bool {
	seen := map[string]bool{name: true}
	var visit func(string) bool
	visit = func(n string) bool {
		decl := r.Decl(n)
		if decl == nil || decl.Kind != DeclStruct {
			return false
		}
		for _, f := range decl.Fields {
			named, ok := Parse(f.Type, r).(*Named)
			if !ok || named.IsNullable() {
				continue
			}
			next := baseName(named.Name)
			if next == name {
				return true
			}
			if !seen[next] {
				seen[next] = true
				if visit(next) {
					return true
				}
			}
		}
		return false
	}
	return visit(name)
}

// ValueDecls returns the value-type declarations in declaration order.
func (r *Registry) ValueDecls() []*Decl {
	var out []*Decl
	for _, d := range r.Decls() {
		if d.Value {
			out = append(out, d)
		}
	}
	return out
}
