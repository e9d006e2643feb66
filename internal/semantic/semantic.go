// Package semantic is the resolved form of syntax nodes: qualified accesses with their
// receivers, implicit invocations, safe calls and the smart-cast wrapper carrying narrowing
// metadata.
package semantic

import (
	"semq/internal/syntax"
	"semq/internal/types"
)

// TypeRef is a possibly unresolved type reference.
type TypeRef interface {
	typeRef()
}

type ResolvedTypeRef struct {
	Type types.Type
}

// ErrorTypeRef stands for a type the builder could not resolve.
type ErrorTypeRef struct {
	Reason string
}

func (ResolvedTypeRef) typeRef() {}
func (ErrorTypeRef) typeRef()    {}

// Resolved wraps t, mapping nil to an error reference.
func Resolved(t types.Type) TypeRef {
	if t == nil {
		return ErrorTypeRef{Reason: "unresolved"}
	}
	return ResolvedTypeRef{Type: t}
}

// Expression is a node of the semantic tree.
type Expression interface {
	ResultType() TypeRef
	Syntax() *syntax.Node
}

// ExpressionWithSmartcast wraps an expression whose type flow analysis narrowed.
type ExpressionWithSmartcast struct {
	Original      Expression
	SmartcastType TypeRef
	Stable        bool
}

func (e *ExpressionWithSmartcast) ResultType() TypeRef { return e.SmartcastType }

func (e *ExpressionWithSmartcast) Syntax() *syntax.Node {
	if e.Original == nil {
		return nil
	}
	return e.Original.Syntax()
}

type AccessKind int

const (
	PropertyAccess AccessKind = iota
	FunctionCall
	OperatorCall
)

func (k AccessKind) String() string {
	switch k {
	case PropertyAccess:
		return "property"
	case FunctionCall:
		return "call"
	case OperatorCall:
		return "operator"
	}
	return "unknown"
}

// QualifiedAccess is a property access or call with its receivers.
// A nil receiver means the access has none of that kind.
type QualifiedAccess struct {
	Kind              AccessKind
	Callee            string
	ExplicitReceiver  Expression
	DispatchReceiver  Expression
	ExtensionReceiver Expression
	Arguments         []Expression
	Type              TypeRef
	Node              *syntax.Node
}

func (q *QualifiedAccess) ResultType() TypeRef      { return q.Type }
func (q *QualifiedAccess) Syntax() *syntax.Node     { return q.Node }
func (q *QualifiedAccess) Access() *QualifiedAccess { return q }

// QualifiedAccessExpression is implemented by every node built on a QualifiedAccess.
type QualifiedAccessExpression interface {
	Expression
	Access() *QualifiedAccess
}

// ImplicitInvokeCall is a call made through a function-typed value, e.g. f(x) where f is a
// local variable. The invoked value is the explicit receiver.
type ImplicitInvokeCall struct {
	QualifiedAccess
}

// SafeCall is a receiver-guarded access: the selector only runs when the receiver is non-nil.
type SafeCall struct {
	Receiver Expression
	Selector Expression
	Type     TypeRef
	Node     *syntax.Node
}

func (s *SafeCall) ResultType() TypeRef  { return s.Type }
func (s *SafeCall) Syntax() *syntax.Node { return s.Node }

// Literal covers constants, nil and composite literals.
type Literal struct {
	Type TypeRef
	Node *syntax.Node
}

func (l *Literal) ResultType() TypeRef  { return l.Type }
func (l *Literal) Syntax() *syntax.Node { return l.Node }

// ImplicitReceiverValue is a receiver supplied by context rather than written at the call site,
// such as the embedded field a promoted member is reached through.
type ImplicitReceiverValue struct {
	Name string
	Type TypeRef
	Node *syntax.Node
}

func (v *ImplicitReceiverValue) ResultType() TypeRef  { return v.Type }
func (v *ImplicitReceiverValue) Syntax() *syntax.Node { return v.Node }

// TypeOperation is a type assertion.
type TypeOperation struct {
	Operand Expression
	Type    TypeRef
	Node    *syntax.Node
}

func (t *TypeOperation) ResultType() TypeRef  { return t.Type }
func (t *TypeOperation) Syntax() *syntax.Node { return t.Node }

type AnonymousFunction struct {
	Type TypeRef
	Node *syntax.Node
}

func (f *AnonymousFunction) ResultType() TypeRef  { return f.Type }
func (f *AnonymousFunction) Syntax() *syntax.Node { return f.Node }

// Unwrap strips smart-cast wrappers.
func Unwrap(e Expression) Expression {
	for {
		w, ok := e.(*ExpressionWithSmartcast)
		if !ok {
			return e
		}
		e = w.Original
	}
}

// ErrorExpression stands for syntax the builder has no semantic form for.
type ErrorExpression struct {
	Reason string
	Node   *syntax.Node
}

func (e *ErrorExpression) ResultType() TypeRef  { return ErrorTypeRef{Reason: e.Reason} }
func (e *ErrorExpression) Syntax() *syntax.Node { return e.Node }

// TypeOf returns the resolved result type of e, or nil.
func TypeOf(e Expression) types.Type {
	if e == nil {
		return nil
	}
	if r, ok := e.ResultType().(ResolvedTypeRef); ok {
		return r.Type
	}
	return nil
}
