package builder

import (
	"strings"

	"semq/internal/semantic"
	"semq/internal/syntax"
	"semq/internal/types"
)

func (f *funcBuilder) record(n *syntax.Node, e semantic.Expression) {
	if n == nil || e == nil {
		return
	}
	if _, ok := f.table[n]; !ok {
		f.table[n] = e
	}
}

// exprList builds each expression of an expression list.
func (f *funcBuilder) exprList(n *syntax.Node, st *state) []semantic.Expression {
	items := listItems(n)
	out := make([]semantic.Expression, 0, len(items))
	for _, item := range items {
		out = append(out, f.expr(item, st))
	}
	return out
}

// expr builds n and records it.
func (f *funcBuilder) expr(n *syntax.Node, st *state) semantic.Expression {
	if n == nil {
		return nil
	}
	var e semantic.Expression
	switch n.Kind {
	case syntax.KindNameReference:
		e = f.name(n, st)
	case syntax.KindDotQualified:
		e = f.qualified(n, st)
	case syntax.KindCall:
		e = f.call(n, st)
	case syntax.KindBinary:
		e = f.binary(n, st)
	case syntax.KindPrefix:
		e = f.prefix(n, st)
	case syntax.KindParenthesized:
		if c := n.Children(); len(c) == 1 {
			e = f.expr(c[0], st)
		}
	case syntax.KindLiteral:
		e = &semantic.Literal{Type: semantic.Resolved(literalType(n)), Node: n}
	case syntax.KindNil:
		e = &semantic.Literal{Type: semantic.Resolved(types.UntypedNil), Node: n}
	case syntax.KindCompositeLiteral:
		f.compositeBody(n.Child(syntax.RoleBody), st)
		var typ types.Type
		if t := n.Child(syntax.RoleType); t != nil {
			typ = f.reg().Type(syntax.TypeText(t)).WithNullability(false)
		}
		e = &semantic.Literal{Type: semantic.Resolved(typ), Node: n}
	case syntax.KindTypeAssertion:
		operand := f.expr(n.Child(syntax.RoleOperand), st)
		var typ types.Type
		if t := n.Child(syntax.RoleType); t != nil {
			typ = f.reg().Type(syntax.TypeText(t))
		}
		e = &semantic.TypeOperation{Operand: operand, Type: semantic.Resolved(typ), Node: n}
	case syntax.KindIndex:
		e = f.index(n, st)
	case syntax.KindFuncLiteral:
		e = f.closure(n, st)
	case syntax.KindExpressionList:
		f.exprList(n, st)
		return nil
	default:
		for _, c := range n.Children() {
			f.stmt(c, st)
		}
		e = &semantic.ErrorExpression{Reason: "unsupported " + n.Grammar, Node: n}
	}
	f.record(n, e)
	return e
}

// access is a plain read of v at n.
func (f *funcBuilder) access(n *syntax.Node, v *variable) *semantic.QualifiedAccess {
	acc := &semantic.QualifiedAccess{Kind: semantic.PropertyAccess, Callee: n.Text, Node: n}
	if v == nil {
		acc.Type = semantic.ErrorTypeRef{Reason: "blank identifier"}
	} else {
		acc.Type = semantic.Resolved(v.typ)
	}
	return acc
}

// narrowed wraps e when a fact holds for path.
func (f *funcBuilder) narrowed(e semantic.Expression, path string, root *variable, at *syntax.Node, st *state) semantic.Expression {
	if path == "" {
		return e
	}
	typ, ok := st.facts[path]
	if !ok {
		return e
	}
	return &semantic.ExpressionWithSmartcast{
		Original:      e,
		SmartcastType: semantic.Resolved(typ),
		Stable:        f.stable(path, root, at),
	}
}

func (f *funcBuilder) name(n *syntax.Node, st *state) semantic.Expression {
	if v := f.lookup(n.Text, st); v != nil {
		return f.narrowed(f.access(n, v), n.Text, v, n, st)
	}
	acc := &semantic.QualifiedAccess{Kind: semantic.PropertyAccess, Callee: n.Text, Node: n}
	if fn := f.reg().Func(n.Text); fn != nil {
		acc.Type = semantic.Resolved(f.reg().FuncType(fn))
	} else {
		acc.Type = semantic.ErrorTypeRef{Reason: "unresolved name " + n.Text}
	}
	return acc
}

// dispatch returns the dispatch receiver of member m reached through the qualified access q.
// Promoted members are dispatched on the embedded field. An embedded value is narrowed along with
// the receiver it is reached through; an embedded pointer only by a check of its own path.
func (f *funcBuilder) dispatch(recv semantic.Expression, m types.Member, q *syntax.Node, st *state) semantic.Expression {
	if m.Via == nil {
		return recv
	}
	typ := f.reg().Type(m.Via.Type)
	implicit := &semantic.ImplicitReceiverValue{Name: m.Via.Name, Type: semantic.Resolved(typ), Node: q}
	if typ != nil && typ.IsNullable() {
		recvPath := syntacticPath(q.Receiver())
		if recvPath == "" {
			return implicit
		}
		path, root := f.resolvePath(recvPath+"."+m.Via.Name, st)
		return f.narrowed(implicit, path, root, q, st)
	}
	cast, ok := recv.(*semantic.ExpressionWithSmartcast)
	if !ok {
		return implicit
	}
	return &semantic.ExpressionWithSmartcast{
		Original:      implicit,
		SmartcastType: semantic.Resolved(typ.WithNullability(false)),
		Stable:        cast.Stable,
	}
}

func (f *funcBuilder) member(recv semantic.Expression, name string) (types.Member, bool) {
	typ := semantic.TypeOf(recv)
	if typ == nil {
		return types.Member{}, false
	}
	return f.reg().Member(typ, name)
}

func (f *funcBuilder) qualified(q *syntax.Node, st *state) semantic.Expression {
	recv := f.expr(q.Receiver(), st)
	sel := q.Selector()
	if sel == nil {
		return &semantic.ErrorExpression{Reason: "missing selector", Node: q}
	}

	if sel.Kind == syntax.KindNameReference {
		acc := &semantic.QualifiedAccess{Kind: semantic.PropertyAccess, Callee: sel.Text, ExplicitReceiver: recv, Node: q}
		var e semantic.Expression = acc
		if m, ok := f.member(recv, sel.Text); ok {
			acc.Type = semantic.Resolved(m.Type)
			acc.DispatchReceiver = f.dispatch(recv, m, q, st)
			if m.Method == nil {
				path, root := f.pathOf(q, st)
				e = f.narrowed(acc, path, root, q, st)
			}
		} else {
			acc.Type = semantic.ErrorTypeRef{Reason: "unknown member " + sel.Text}
		}
		f.record(sel, e)
		return e
	}

	if sel.Kind != syntax.KindCall {
		f.expr(sel, st)
		return &semantic.ErrorExpression{Reason: "unsupported selector", Node: q}
	}
	callee := sel.Callee()
	m, ok := f.member(recv, callee.Text)
	if ok && m.Method == nil {
		// A function-typed field: the call invokes the field value.
		field := &semantic.QualifiedAccess{
			Kind:             semantic.PropertyAccess,
			Callee:           callee.Text,
			ExplicitReceiver: recv,
			DispatchReceiver: f.dispatch(recv, m, q, st),
			Type:             semantic.Resolved(m.Type),
			Node:             callee,
		}
		var value semantic.Expression = field
		if recvPath := syntacticPath(q.Receiver()); recvPath != "" {
			path, root := f.resolvePath(recvPath+"."+callee.Text, st)
			value = f.narrowed(field, path, root, q, st)
		}
		f.record(callee, value)
		args := f.args(sel, st)
		inv := f.invoke(value, args, q)
		f.record(sel, inv)
		return inv
	}

	args := f.args(sel, st)
	acc := &semantic.QualifiedAccess{
		Kind:             semantic.FunctionCall,
		Callee:           callee.Text,
		ExplicitReceiver: recv,
		Arguments:        args,
		Node:             q,
	}
	if ok {
		acc.DispatchReceiver = f.dispatch(recv, m, q, st)
		acc.Type = semantic.Resolved(m.Type)
		f.recordResults(q, m.Method)
	} else {
		acc.Type = semantic.ErrorTypeRef{Reason: "unknown method " + callee.Text}
	}
	f.record(sel, acc)
	f.record(callee, acc)
	return acc
}

func (f *funcBuilder) args(call *syntax.Node, st *state) []semantic.Expression {
	var out []semantic.Expression
	for _, a := range call.Arguments() {
		out = append(out, f.expr(a, st))
	}
	return out
}

// invoke builds a call through the function value recv.
func (f *funcBuilder) invoke(recv semantic.Expression, args []semantic.Expression, n *syntax.Node) semantic.Expression {
	var result semantic.TypeRef = semantic.ErrorTypeRef{Reason: "not a function"}
	if fn, ok := semantic.TypeOf(recv).(*types.Func); ok {
		result = semantic.Resolved(fn.Result)
	}
	return &semantic.ImplicitInvokeCall{QualifiedAccess: semantic.QualifiedAccess{
		Kind:             semantic.FunctionCall,
		Callee:           "invoke",
		ExplicitReceiver: recv,
		DispatchReceiver: recv,
		Arguments:        args,
		Type:             result,
		Node:             n,
	}}
}

func (f *funcBuilder) recordResults(n *syntax.Node, fn *types.FuncDecl) {
	if fn == nil || len(fn.Results) < 2 {
		return
	}
	results := make([]types.Type, len(fn.Results))
	for i, r := range fn.Results {
		results[i] = f.reg().Type(r)
	}
	f.multi[n] = results
}

func (f *funcBuilder) call(n *syntax.Node, st *state) semantic.Expression {
	callee := n.Callee()
	if callee == nil {
		return &semantic.ErrorExpression{Reason: "missing callee", Node: n}
	}
	if callee.Kind != syntax.KindNameReference || f.lookup(callee.Text, st) != nil {
		recv := f.expr(callee, st)
		return f.invoke(recv, f.args(n, st), n)
	}

	name := callee.Text
	args := f.args(n, st)
	acc := &semantic.QualifiedAccess{Kind: semantic.FunctionCall, Callee: name, Arguments: args, Node: n}
	if fn := f.reg().Func(name); fn != nil {
		acc.Type = semantic.Resolved(f.reg().ResultType(fn))
		f.recordResults(n, fn)
	} else {
		acc.Type = f.builtin(name, n, args)
	}
	f.record(callee, acc)
	return acc
}

// builtin types calls of predeclared functions and conversions.
func (f *funcBuilder) builtin(name string, n *syntax.Node, args []semantic.Expression) semantic.TypeRef {
	argType := func(i int) types.Type {
		if i < len(args) {
			return semantic.TypeOf(args[i])
		}
		return nil
	}
	typeArg := func() types.Type {
		if a := n.Arguments(); len(a) > 0 {
			return f.reg().Type(syntax.TypeText(a[0]))
		}
		return nil
	}
	switch name {
	case "len", "cap", "copy":
		return semantic.Resolved(types.Int)
	case "new":
		if t := typeArg(); t != nil {
			return semantic.Resolved(&types.Pointer{Elem: t, NonNil: true})
		}
	case "make":
		if t := typeArg(); t != nil {
			return semantic.Resolved(t.WithNullability(false))
		}
	case "append":
		if t := argType(0); t != nil {
			return semantic.Resolved(t.WithNullability(false))
		}
	case "min", "max":
		return semantic.Resolved(argType(0))
	case "real", "imag":
		return semantic.Resolved(types.Float64)
	case "complex":
		return semantic.Resolved(types.Complex)
	case "recover":
		return semantic.Resolved(types.Any)
	case "panic", "print", "println", "delete", "close", "clear":
		return semantic.ErrorTypeRef{Reason: "no value"}
	}
	// Conversions.
	if t, ok := f.reg().Type(name).(*types.Basic); ok {
		return semantic.Resolved(t)
	}
	if f.reg().Decl(name) != nil {
		return semantic.Resolved(f.reg().Type(name))
	}
	return semantic.ErrorTypeRef{Reason: "unresolved function " + name}
}

var comparison = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "&&": true, "||": true,
}

func (f *funcBuilder) binary(n *syntax.Node, st *state) semantic.Expression {
	opNode := n.Operation()
	op := ""
	if opNode != nil {
		op = opNode.Text
	}
	leftNode := n.Child(syntax.RoleLeft)
	left := f.expr(leftNode, st)

	rightState := st
	switch op {
	case "&&":
		whenTrue, _ := f.conditionFacts(leftNode, st)
		rightState = st.branch(whenTrue)
	case "||":
		_, whenFalse := f.conditionFacts(leftNode, st)
		rightState = st.branch(whenFalse)
	}
	right := f.expr(n.Child(syntax.RoleRight), rightState)

	var typ types.Type
	switch {
	case comparison[op]:
		typ = types.Bool
	default:
		typ = semantic.TypeOf(left)
		if _, untyped := semantic.Unwrap(left).(*semantic.Literal); untyped {
			if rt := semantic.TypeOf(right); rt != nil {
				typ = rt
			}
		}
	}
	return &semantic.QualifiedAccess{
		Kind:             semantic.OperatorCall,
		Callee:           op,
		ExplicitReceiver: left,
		DispatchReceiver: left,
		Arguments:        []semantic.Expression{right},
		Type:             semantic.Resolved(typ),
		Node:             n,
	}
}

func (f *funcBuilder) prefix(n *syntax.Node, st *state) semantic.Expression {
	op := ""
	if o := n.Operation(); o != nil {
		op = o.Text
	}
	operand := f.expr(n.Child(syntax.RoleOperand), st)
	ot := semantic.TypeOf(operand)

	var typ types.Type
	switch op {
	case "!":
		typ = types.Bool
	case "&":
		if ot != nil {
			typ = &types.Pointer{Elem: ot.WithNullability(true), NonNil: true}
		}
	case "*":
		if p, ok := ot.(*types.Pointer); ok {
			typ = p.Elem
		}
	case "<-":
		if c, ok := ot.(*types.Chan); ok {
			typ = c.Elem
		}
	default:
		typ = ot
	}
	return &semantic.QualifiedAccess{
		Kind:             semantic.OperatorCall,
		Callee:           op,
		ExplicitReceiver: operand,
		DispatchReceiver: operand,
		Type:             semantic.Resolved(typ),
		Node:             n,
	}
}

func (f *funcBuilder) index(n *syntax.Node, st *state) semantic.Expression {
	operand := f.expr(n.Child(syntax.RoleOperand), st)
	idx := f.expr(n.Child(syntax.RoleValue), st)

	var typ types.Type
	switch t := types.Deref(semantic.TypeOf(operand)).(type) {
	case *types.Slice:
		typ = t.Elem
	case *types.Map:
		typ = t.Value
	case *types.Basic:
		if t.Name == "string" {
			typ = f.reg().Type("byte")
		}
	}
	return &semantic.QualifiedAccess{
		Kind:             semantic.OperatorCall,
		Callee:           "[]",
		ExplicitReceiver: operand,
		DispatchReceiver: operand,
		Arguments:        []semantic.Expression{idx},
		Type:             semantic.Resolved(typ),
		Node:             n,
	}
}

// closure builds a function literal. Facts of the enclosing function flow into the body; the
// stability rules decide whether they may be relied on there.
func (f *funcBuilder) closure(n *syntax.Node, st *state) semantic.Expression {
	inner := &state{scope: newScope(st.scope), facts: st.facts.clone(), closure: n}
	f.params(n.Child(syntax.RoleParameters), inner)
	f.params(n.Child(syntax.RoleResult), inner)
	body := n.Child(syntax.RoleBody)
	f.stmt(body, inner)

	sig := n.Text
	if body != nil {
		sig = strings.TrimSpace(n.Text[:body.Span.StartByte-n.Span.StartByte])
	}
	return &semantic.AnonymousFunction{
		Type: semantic.Resolved(&types.Func{Signature: sig, Result: f.funcResult(n), NonNil: true}),
		Node: n,
	}
}

func (f *funcBuilder) funcResult(n *syntax.Node) types.Type {
	r := n.Child(syntax.RoleResult)
	if r == nil || r.Kind != syntax.KindType {
		return nil
	}
	return f.reg().Type(syntax.TypeText(r))
}

// compositeBody builds the element values of a composite literal, skipping field keys.
func (f *funcBuilder) compositeBody(n *syntax.Node, st *state) {
	if n == nil {
		return
	}
	for _, c := range n.Children() {
		switch {
		case c.Grammar == "keyed_element":
			if kids := c.Children(); len(kids) > 0 {
				f.element(kids[len(kids)-1], st)
			}
		default:
			f.element(c, st)
		}
	}
}

func (f *funcBuilder) element(n *syntax.Node, st *state) {
	switch {
	case n.Grammar == "literal_value":
		f.compositeBody(n, st)
	case n.Grammar == "literal_element":
		for _, c := range n.Children() {
			f.element(c, st)
		}
	case n.Kind.IsExpression():
		f.expr(n, st)
	}
}

func literalType(n *syntax.Node) types.Type {
	switch n.Grammar {
	case "int_literal", "iota":
		return types.Int
	case "float_literal":
		return types.Float64
	case "imaginary_literal":
		return types.Complex
	case "rune_literal":
		return types.Rune
	case "true", "false":
		return types.Bool
	default:
		return types.String
	}
}
