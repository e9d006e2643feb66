package builder

import (
	"strings"

	"semq/internal/semantic"
	"semq/internal/syntax"
	"semq/internal/types"
)

// facts maps an access path ("x" or "x.f") to the type flow analysis narrowed it to.
type facts map[string]types.Type

func (f facts) clone() facts {
	out := make(facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// with returns a copy of f extended by more.
func (f facts) with(more facts) facts {
	out := f.clone()
	for k, v := range more {
		out[k] = v
	}
	return out
}

// kill drops path and every path reached through it.
func (f facts) kill(path string) {
	if path == "" {
		return
	}
	for k := range f {
		if k == path || strings.HasPrefix(k, path+".") {
			delete(f, k)
		}
	}
}

// intersect keeps the facts that hold on both paths.
func intersect(a, b facts) facts {
	out := make(facts)
	for k, v := range a {
		if w, ok := b[k]; ok && v.String() == w.String() {
			out[k] = v
		}
	}
	return out
}

type variable struct {
	name    string
	typ     types.Type
	global  bool
	closure *syntax.Node // innermost function literal the variable is declared in
}

type scope struct {
	parent *scope
	vars   map[string]*variable
	// shadowed holds the facts of enclosing variables hidden by declarations in this scope.
	shadowed facts
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, vars: make(map[string]*variable)}
}

func (s *scope) lookup(name string) *variable {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v
		}
	}
	return nil
}

// state is the flow state at one program point. Nested states share the facts map of their
// parent; branches own a copy.
type state struct {
	scope   *scope
	facts   facts
	closure *syntax.Node
}

func (st *state) nested() *state {
	return &state{scope: newScope(st.scope), facts: st.facts, closure: st.closure}
}

func (st *state) branch(extra facts) *state {
	return &state{scope: st.scope, facts: st.facts.with(extra), closure: st.closure}
}

// replace overwrites the facts in place so that nested states observe the merge.
func (st *state) replace(f facts) {
	clear(st.facts)
	for k, v := range f {
		st.facts[k] = v
	}
}

// leave drops the facts about variables declared in the state's own scope and brings back the
// facts of the variables they shadowed.
func (st *state) leave() {
	for name := range st.scope.vars {
		st.facts.kill(name)
	}
	for path, t := range st.scope.shadowed {
		st.facts[path] = t
	}
}

func (st *state) declare(name string, typ types.Type) *variable {
	if name == "" || name == "_" {
		return nil
	}
	if _, own := st.scope.vars[name]; !own {
		st.shadow(name)
	}
	v := &variable{name: name, typ: typ, closure: st.closure}
	st.scope.vars[name] = v
	st.facts.kill(name)
	return v
}

// shadow saves the facts reached through name before a declaration hides it.
func (st *state) shadow(name string) {
	for path, t := range st.facts {
		if path != name && !strings.HasPrefix(path, name+".") {
			continue
		}
		if st.scope.shadowed == nil {
			st.scope.shadowed = make(facts)
		}
		st.scope.shadowed[path] = t
	}
}

// syntacticPath returns the access path spelled by n, without resolving it.
func syntacticPath(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case syntax.KindNameReference:
		if n.Text == "_" {
			return ""
		}
		return n.Text
	case syntax.KindDotQualified:
		sel := n.Selector()
		if sel == nil || sel.Kind != syntax.KindNameReference {
			return ""
		}
		if p := syntacticPath(n.Receiver()); p != "" {
			return p + "." + sel.Text
		}
	case syntax.KindParenthesized:
		if c := n.Children(); len(c) == 1 {
			return syntacticPath(c[0])
		}
	}
	return ""
}

func rootName(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

// pathOf resolves the access path of n and the variable it starts at.
func (f *funcBuilder) pathOf(n *syntax.Node, st *state) (string, *variable) {
	return f.resolvePath(syntacticPath(n), st)
}

func (f *funcBuilder) resolvePath(path string, st *state) (string, *variable) {
	if path == "" {
		return "", nil
	}
	v := f.lookup(rootName(path), st)
	if v == nil {
		return "", nil
	}
	return path, v
}

// stable reports whether a narrowing of path observed at the node at may be relied on.
func (f *funcBuilder) stable(path string, root *variable, at *syntax.Node) bool {
	if root == nil || root.global || strings.Contains(path, ".") {
		return false
	}
	if f.closureAssigned[root.name] {
		return false
	}
	if innermostClosure(at) != root.closure && f.reassigned[root.name] {
		return false
	}
	return true
}

func innermostClosure(n *syntax.Node) *syntax.Node {
	return n.Ancestor(syntax.KindFuncLiteral)
}

// conditionFacts derives what holds when cond evaluates to true and to false. The nodes of cond
// must already be built.
func (f *funcBuilder) conditionFacts(cond *syntax.Node, st *state) (whenTrue, whenFalse facts) {
	if cond == nil {
		return nil, nil
	}
	switch cond.Kind {
	case syntax.KindParenthesized:
		if c := cond.Children(); len(c) == 1 {
			return f.conditionFacts(c[0], st)
		}
	case syntax.KindPrefix:
		if op := cond.Operation(); op != nil && op.Text == "!" {
			t, ff := f.conditionFacts(cond.Child(syntax.RoleOperand), st)
			return ff, t
		}
	case syntax.KindBinary:
		op := cond.Operation()
		if op == nil {
			return nil, nil
		}
		left, right := cond.Child(syntax.RoleLeft), cond.Child(syntax.RoleRight)
		switch op.Text {
		case "&&":
			tl, fl := f.conditionFacts(left, st)
			tr, fr := f.conditionFacts(right, st)
			return tl.with(tr), intersect(fl, fr)
		case "||":
			tl, fl := f.conditionFacts(left, st)
			tr, fr := f.conditionFacts(right, st)
			return intersect(tl, tr), fl.with(fr)
		case "==", "!=":
			path, typ := f.nilCheck(left, right, st)
			if path == "" {
				return nil, nil
			}
			nonNil := facts{path: typ.WithNullability(false)}
			if op.Text == "!=" {
				return nonNil, nil
			}
			return nil, nonNil
		}
	}
	return nil, nil
}

// nilCheck recognizes `p == nil` and `nil == p` on a path with a nilable declared type.
func (f *funcBuilder) nilCheck(left, right *syntax.Node, st *state) (string, types.Type) {
	other := left
	switch {
	case right != nil && right.Kind == syntax.KindNil:
	case left != nil && left.Kind == syntax.KindNil:
		other = right
	default:
		return "", nil
	}
	path, _ := f.pathOf(other, st)
	if path == "" {
		return "", nil
	}
	declared := semantic.TypeOf(semantic.Unwrap(f.table[other]))
	if declared == nil || !declared.IsNullable() {
		return "", nil
	}
	return path, declared
}

// killAssigned drops the facts of every path assigned somewhere under n.
func killAssigned(n *syntax.Node, st *state) {
	for _, path := range assignedPaths(n) {
		st.facts.kill(path)
	}
}

func assignedPaths(n *syntax.Node) []string {
	var out []string
	n.Walk(func(c *syntax.Node) bool {
		switch c.Kind {
		case syntax.KindAssign:
			for _, l := range listItems(c.Child(syntax.RoleLeft)) {
				out = append(out, syntacticPath(l))
			}
		case syntax.KindIncDec:
			out = append(out, syntacticPath(c.Child(syntax.RoleOperand)))
		}
		return true
	})
	return out
}

// listItems flattens an expression list.
func listItems(n *syntax.Node) []*syntax.Node {
	if n == nil {
		return nil
	}
	if n.Kind == syntax.KindExpressionList {
		return n.Children()
	}
	return []*syntax.Node{n}
}

// scanAssignments records which variables a function reassigns, and which it reassigns from
// inside a closure that does not declare them.
func (f *funcBuilder) scanAssignments(fn *syntax.Node) {
	fn.Walk(func(c *syntax.Node) bool {
		var targets []*syntax.Node
		switch c.Kind {
		case syntax.KindAssign:
			targets = listItems(c.Child(syntax.RoleLeft))
		case syntax.KindIncDec:
			targets = []*syntax.Node{c.Child(syntax.RoleOperand)}
		default:
			return true
		}
		for _, t := range targets {
			if t == nil || t.Kind != syntax.KindNameReference {
				continue
			}
			f.reassigned[t.Text] = true
			if lit := innermostClosure(t); lit != nil && !declaresName(lit, t.Text) {
				f.closureAssigned[t.Text] = true
			}
		}
		return true
	})
}

// declaresName reports whether the function literal lit declares name itself.
func declaresName(lit *syntax.Node, name string) bool {
	found := false
	lit.Walk(func(c *syntax.Node) bool {
		if found {
			return false
		}
		if c != lit && c.Kind == syntax.KindFuncLiteral {
			return false
		}
		switch c.Kind {
		case syntax.KindDeclName:
			found = c.Text == name
		case syntax.KindShortVarDecl:
			for _, l := range listItems(c.Child(syntax.RoleLeft)) {
				if l.Text == name {
					found = true
				}
			}
		}
		return true
	})
	return found
}
