// Package builder builds the semantic form of parsed Go source, recording flow-sensitive
// narrowings as smart-cast wrappers.
//
// Narrowings come from nil comparisons in conditions (combined with &&, || and !), from early
// returns, from assignments of non-nil values to declared variables, and from type switches on an
// access path that do not bind a new name. Assignments kill what they overwrite, and loops drop
// every fact about a path assigned anywhere in their body before analysing it.
package builder

import (
	"strings"

	"go.uber.org/zap"

	"semq/internal/semantic"
	"semq/internal/syntax"
	"semq/internal/types"
)

// Builder resolves the syntax nodes of one file. Top-level declarations are built on first use.
// It is not safe for concurrent use.
type Builder struct {
	reg  *types.Registry
	file *syntax.File
	log  *zap.Logger

	table   map[*syntax.Node]semantic.Expression
	built   map[*syntax.Node]bool
	globals map[string]*variable
}

func New(reg *types.Registry, file *syntax.File, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = types.NewRegistry(file.Package)
	}
	return &Builder{
		reg:     reg,
		file:    file,
		log:     log,
		table:   make(map[*syntax.Node]semantic.Expression),
		built:   make(map[*syntax.Node]bool),
		globals: make(map[string]*variable),
	}
}

// Resolve implements session.Resolver.
func (b *Builder) Resolve(n *syntax.Node) semantic.Expression {
	if n == nil {
		return nil
	}
	if decl := topLevel(n); decl != nil {
		b.BuildDecl(decl)
	}
	return b.table[n]
}

// BuildAll builds every top-level declaration of the file.
func (b *Builder) BuildAll() {
	for _, decl := range b.file.Root.Children() {
		b.BuildDecl(decl)
	}
}

// BuildDecl builds one top-level declaration. Repeated calls are no-ops.
func (b *Builder) BuildDecl(decl *syntax.Node) {
	if b.built[decl] {
		return
	}
	b.built[decl] = true

	f := &funcBuilder{
		b:               b,
		table:           b.table,
		multi:           make(map[*syntax.Node][]types.Type),
		reassigned:      make(map[string]bool),
		closureAssigned: make(map[string]bool),
	}
	f.scanAssignments(decl)
	st := &state{scope: newScope(nil), facts: make(facts)}

	before := len(b.table)
	switch decl.Kind {
	case syntax.KindFunction, syntax.KindMethod:
		f.params(decl.Child(syntax.RoleReceiver), st)
		f.params(decl.Child(syntax.RoleParameters), st)
		f.params(decl.Child(syntax.RoleResult), st)
		f.stmt(decl.Child(syntax.RoleBody), st)
	default:
		f.stmt(decl, st)
	}
	if decl.Kind == syntax.KindFunction || decl.Kind == syntax.KindMethod {
		b.log.Debug("built function",
			zap.String("file", b.file.Path),
			zap.String("func", declName(decl)),
			zap.Int("nodes", len(b.table)-before))
	}
}

func declName(decl *syntax.Node) string {
	if n := decl.Child(syntax.RoleName); n != nil {
		return n.Text
	}
	return ""
}

// topLevel returns the declaration directly under the file that contains n.
func topLevel(n *syntax.Node) *syntax.Node {
	for p := n; p != nil; p = p.Parent() {
		if parent := p.Parent(); parent != nil && parent.Kind == syntax.KindFile {
			return p
		}
	}
	return nil
}

// funcBuilder carries the per-declaration analysis state.
type funcBuilder struct {
	b     *Builder
	table map[*syntax.Node]semantic.Expression
	// multi holds the result types of calls returning several values.
	multi map[*syntax.Node][]types.Type

	reassigned      map[string]bool
	closureAssigned map[string]bool
}

func (f *funcBuilder) reg() *types.Registry { return f.b.reg }

func (f *funcBuilder) lookup(name string, st *state) *variable {
	if v := st.scope.lookup(name); v != nil {
		return v
	}
	if v, ok := f.b.globals[name]; ok {
		return v
	}
	typ, ok := f.reg().Global(name)
	if !ok {
		return nil
	}
	v := &variable{name: name, typ: typ, global: true}
	f.b.globals[name] = v
	return v
}

func (f *funcBuilder) params(list *syntax.Node, st *state) {
	if list == nil || list.Kind != syntax.KindParameters {
		return
	}
	for _, p := range list.Children() {
		typ := f.reg().Type(syntax.TypeText(p.Child(syntax.RoleType)))
		for _, name := range p.ChildrenWith(syntax.RoleName) {
			st.declare(name.Text, typ)
		}
	}
}

// stmt builds one statement and reports whether control cannot fall through it.
func (f *funcBuilder) stmt(n *syntax.Node, st *state) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case syntax.KindBlock:
		return f.block(n, st)
	case syntax.KindIf:
		return f.ifStmt(n, st)
	case syntax.KindFor:
		f.forStmt(n, st)
	case syntax.KindTypeSwitch:
		f.typeSwitch(n, st)
	case syntax.KindShortVarDecl:
		f.shortVarDecl(n, st)
	case syntax.KindAssign:
		f.assign(n, st)
	case syntax.KindIncDec:
		operand := n.Child(syntax.RoleOperand)
		f.expr(operand, st)
		st.facts.kill(syntacticPath(operand))
	case syntax.KindVarSpec:
		f.varSpec(n, st)
	case syntax.KindReturn:
		for _, c := range n.Children() {
			f.exprList(c, st)
		}
		return true
	case syntax.KindBranch:
		return true
	case syntax.KindExprStmt:
		for _, c := range n.Children() {
			f.expr(c, st)
			if isPanic(c) {
				return true
			}
		}
	case syntax.KindFunction, syntax.KindMethod, syntax.KindType, syntax.KindDeclName:
	default:
		if n.Kind.IsExpression() {
			f.expr(n, st)
			return false
		}
		f.compound(n, st)
	}
	return false
}

func isPanic(n *syntax.Node) bool {
	if n.Kind != syntax.KindCall {
		return false
	}
	callee := n.Callee()
	return callee != nil && callee.Kind == syntax.KindNameReference && callee.Text == "panic"
}

func (f *funcBuilder) block(n *syntax.Node, st *state) bool {
	inner := st.nested()
	terminated := false
	for _, c := range n.Children() {
		if f.stmt(c, inner) {
			terminated = true
		}
	}
	inner.leave()
	return terminated
}

// compound builds a statement the builder has no dedicated rule for. Declaration groups share
// the enclosing scope; anything else runs in its own scope on a branch whose assignments are
// killed afterwards.
func (f *funcBuilder) compound(n *syntax.Node, st *state) {
	switch n.Grammar {
	case "var_declaration", "var_spec_list", "const_declaration", "source_file":
		for _, c := range n.Children() {
			f.stmt(c, st)
		}
		return
	case "const_spec":
		f.constSpec(n, st)
		return
	}
	inner := st.branch(nil).nested()
	for _, c := range n.Children() {
		f.stmt(c, inner)
	}
	killAssigned(n, st)
}

func (f *funcBuilder) ifStmt(n *syntax.Node, st *state) bool {
	inner := st.nested()
	f.stmt(n.Child(syntax.RoleInitializer), inner)

	cond := n.Child(syntax.RoleCondition)
	f.expr(cond, inner)
	whenTrue, whenFalse := f.conditionFacts(cond, inner)

	thenState := inner.branch(whenTrue)
	thenDone := f.stmt(n.Child(syntax.RoleConsequence), thenState)
	elseState := inner.branch(whenFalse)
	elseDone := f.stmt(n.Child(syntax.RoleAlternative), elseState)

	switch {
	case thenDone && elseDone:
	case thenDone:
		inner.replace(elseState.facts)
	case elseDone:
		inner.replace(thenState.facts)
	default:
		inner.replace(intersect(thenState.facts, elseState.facts))
	}
	inner.leave()
	return thenDone && elseDone
}

func (f *funcBuilder) forStmt(n *syntax.Node, st *state) {
	inner := st.nested()
	killAssigned(n, inner)

	var whenTrue facts
	var update *syntax.Node
	for _, c := range n.Children() {
		if c.Role == syntax.RoleBody {
			continue
		}
		switch c.Grammar {
		case "for_clause":
			f.stmt(c.Child(syntax.RoleInitializer), inner)
			// Facts the loop body invalidates were killed up front, so the condition
			// holds at every iteration.
			cond := c.Child(syntax.RoleCondition)
			f.expr(cond, inner)
			whenTrue, _ = f.conditionFacts(cond, inner)
			update = c.Child(syntax.RoleUpdate)
		case "range_clause":
			f.rangeClause(c, inner)
		default:
			if c.Kind.IsExpression() {
				f.expr(c, inner)
				whenTrue, _ = f.conditionFacts(c, inner)
			}
		}
	}
	body := inner.branch(whenTrue)
	f.stmt(n.Child(syntax.RoleBody), body)
	f.stmt(update, body)
	inner.leave()
}

func (f *funcBuilder) rangeClause(c *syntax.Node, st *state) {
	right := c.Child(syntax.RoleRight)
	f.expr(right, st)
	left := c.Child(syntax.RoleLeft)
	if left == nil {
		return
	}
	var key, value types.Type
	switch t := semantic.TypeOf(f.table[right]).(type) {
	case *types.Slice:
		key, value = types.Int, t.Elem
	case *types.Map:
		key, value = t.Key, t.Value
	case *types.Chan:
		key = t.Elem
	case *types.Basic:
		if t.Name == "string" {
			key, value = types.Int, types.Rune
		} else {
			key = t
		}
	}
	names := listItems(left)
	declaring := strings.Contains(c.Text[:max(0, right.Span.StartByte-c.Span.StartByte)], ":=")
	for i, name := range names {
		typ := key
		if i == 1 {
			typ = value
		}
		if declaring && name.Kind == syntax.KindNameReference {
			v := st.declare(name.Text, typ)
			f.record(name, f.access(name, v))
			continue
		}
		f.expr(name, st)
		st.facts.kill(syntacticPath(name))
	}
}

func (f *funcBuilder) typeSwitch(n *syntax.Node, st *state) {
	inner := st.nested()
	f.stmt(n.Child(syntax.RoleInitializer), inner)
	value := n.Child(syntax.RoleValue)
	f.expr(value, inner)
	valueType := semantic.TypeOf(f.table[value])
	path, _ := f.pathOf(value, inner)

	var alias *syntax.Node
	if items := listItems(n.Child(syntax.RoleAlias)); len(items) == 1 {
		alias = items[0]
	}

	for _, c := range n.Children() {
		if c.Kind != syntax.KindTypeCase && c.Kind != syntax.KindDefaultCase {
			continue
		}
		var caseType types.Type
		if ts := c.ChildrenWith(syntax.RoleType); len(ts) == 1 && ts[0].Text != "nil" {
			caseType = f.reg().Type(syntax.TypeText(ts[0]))
		}
		clause := inner.branch(nil).nested()
		switch {
		case alias != nil:
			typ := caseType
			if typ == nil {
				typ = valueType
			}
			v := clause.declare(alias.Text, typ)
			if _, ok := f.table[alias]; !ok {
				f.record(alias, f.access(alias, v))
			}
		case path != "" && caseType != nil:
			clause.facts[path] = caseType
		}
		for _, s := range c.Children() {
			if s.Role != syntax.RoleType {
				f.stmt(s, clause)
			}
		}
	}
	killAssigned(n, inner)
	inner.leave()
}

func (f *funcBuilder) shortVarDecl(n *syntax.Node, st *state) {
	rights := f.exprList(n.Child(syntax.RoleRight), st)
	lefts := listItems(n.Child(syntax.RoleLeft))
	typs := f.valueTypes(len(lefts), n.Child(syntax.RoleRight), rights)
	for i, l := range lefts {
		if l.Kind != syntax.KindNameReference || l.Text == "_" {
			continue
		}
		if v, ok := st.scope.vars[l.Text]; ok {
			// Redeclaration in the same scope assigns.
			st.facts.kill(l.Text)
			f.record(l, f.access(l, v))
			if t, ok := nonNilFact(v.typ, typs[i]); ok {
				st.facts[l.Text] = t
			}
			continue
		}
		var typ types.Type
		if typs[i] != nil {
			typ = typs[i].WithNullability(true)
		}
		v := st.declare(l.Text, typ)
		f.record(l, f.access(l, v))
		if t, ok := nonNilFact(typ, typs[i]); ok {
			st.facts[l.Text] = t
		}
	}
}

// nonNilFact returns the narrowing of a variable declared as declared after it is given a value
// of type value.
func nonNilFact(declared, value types.Type) (types.Type, bool) {
	if declared == nil || value == nil || !declared.IsNullable() || value.IsNullable() || value == types.UntypedNil {
		return nil, false
	}
	return declared.WithNullability(false), true
}

func (f *funcBuilder) assign(n *syntax.Node, st *state) {
	rightNode := n.Child(syntax.RoleRight)
	rights := f.exprList(rightNode, st)
	lefts := listItems(n.Child(syntax.RoleLeft))
	for _, l := range lefts {
		st.facts.kill(syntacticPath(l))
	}
	plain := true
	if op := n.Operation(); op != nil && op.Text != "=" {
		plain = false
	}
	typs := f.valueTypes(len(lefts), rightNode, rights)
	for i, l := range lefts {
		f.expr(l, st)
		if !plain {
			continue
		}
		f.assignFact(l, typs[i], st)
	}
}

// assignFact narrows a nilable path after it is assigned a value known to be non-nil.
func (f *funcBuilder) assignFact(target *syntax.Node, value types.Type, st *state) {
	path, _ := f.pathOf(target, st)
	if path == "" {
		return
	}
	declared := semantic.TypeOf(semantic.Unwrap(f.table[target]))
	if t, ok := nonNilFact(declared, value); ok {
		st.facts[path] = t
	}
}

func (f *funcBuilder) varSpec(n *syntax.Node, st *state) {
	values := f.exprList(n.Child(syntax.RoleValue), st)
	names := n.ChildrenWith(syntax.RoleName)
	var declared types.Type
	if t := n.Child(syntax.RoleType); t != nil {
		declared = f.reg().Type(syntax.TypeText(t))
	}
	typs := f.valueTypes(len(names), n.Child(syntax.RoleValue), values)
	for i, name := range names {
		typ := declared
		if typ == nil && typs[i] != nil {
			typ = typs[i].WithNullability(true)
		}
		st.declare(name.Text, typ)
		if t, ok := nonNilFact(typ, typs[i]); ok {
			st.facts[name.Text] = t
		}
	}
}

func (f *funcBuilder) constSpec(n *syntax.Node, st *state) {
	var names []*syntax.Node
	var declared types.Type
	var values []semantic.Expression
	for _, c := range n.Children() {
		switch {
		case c.Kind == syntax.KindNameReference && declared == nil && values == nil:
			names = append(names, c)
		case c.Kind == syntax.KindType:
			declared = f.reg().Type(syntax.TypeText(c))
		case c.Kind == syntax.KindExpressionList || c.Kind.IsExpression():
			values = f.exprList(c, st)
		}
	}
	for i, name := range names {
		typ := declared
		if typ == nil && i < len(values) {
			typ = semantic.TypeOf(values[i])
		}
		v := st.declare(name.Text, typ)
		f.record(name, f.access(name, v))
	}
}

// valueTypes returns the types assigned to n targets from the given right-hand side.
func (f *funcBuilder) valueTypes(n int, rightNode *syntax.Node, rights []semantic.Expression) []types.Type {
	out := make([]types.Type, n)
	switch {
	case len(rights) == n:
		for i, r := range rights {
			out[i] = semantic.TypeOf(r)
		}
	case len(rights) == 1 && n > 1:
		items := listItems(rightNode)
		if len(items) != 1 {
			break
		}
		if results, ok := f.multi[items[0]]; ok {
			copy(out, results)
			break
		}
		// Comma-ok forms.
		switch items[0].Kind {
		case syntax.KindTypeAssertion, syntax.KindIndex:
			out[0] = semantic.TypeOf(rights[0])
			if n == 2 {
				out[1] = types.Bool
			}
		case syntax.KindPrefix:
			if op := items[0].Operation(); op != nil && op.Text == "<-" {
				out[0] = semantic.TypeOf(rights[0])
				if n == 2 {
					out[1] = types.Bool
				}
			}
		}
	}
	return out
}
