// Package smartcast answers flow-narrowing queries over resolved expressions.
//
// Absence is the normal result: a nil Info or an empty receiver list means nothing was
// narrowed. The only error is session invalidation.
package smartcast

import (
	"semq/internal/semantic"
	"semq/internal/session"
	"semq/internal/syntax"
	"semq/internal/types"
)

// Info is the narrowed type of an expression.
type Info struct {
	Type   types.Type
	Stable bool
}

// Kind identifies an implicit receiver.
type Kind int

const (
	Dispatch Kind = iota
	Extension
)

func (k Kind) String() string {
	switch k {
	case Dispatch:
		return "DISPATCH"
	case Extension:
		return "EXTENSION"
	}
	return "UNKNOWN"
}

// receiverKinds is the reporting order.
var receiverKinds = []Kind{Dispatch, Extension}

// ImplicitReceiver is a stable narrowing of a receiver the call site does not spell out.
type ImplicitReceiver struct {
	Type types.Type
	Kind Kind
	Site *syntax.Node
}

type Provider struct {
	s *session.Session
}

func NewProvider(s *session.Session) *Provider {
	return &Provider{s: s}
}

// SmartCastInfo returns the narrowing of expr, or nil when it is not narrowed.
func (p *Provider) SmartCastInfo(expr *syntax.Node) (*Info, error) {
	return session.Run(p.s, func() *Info {
		resolved := p.s.Resolve(normalize(expr, false))
		var cast *semantic.ExpressionWithSmartcast
		switch e := resolved.(type) {
		case *semantic.ExpressionWithSmartcast:
			cast = e
		case *semantic.ImplicitInvokeCall:
			// f(x) through a narrowed function value: the cast sits on the invoked value.
			cast, _ = e.ExplicitReceiver.(*semantic.ExpressionWithSmartcast)
		}
		if cast == nil {
			return nil
		}
		typ, ok := p.s.PublicType(cast.SmartcastType)
		if !ok {
			return nil
		}
		return &Info{Type: typ, Stable: cast.Stable}
	})
}

// ImplicitReceiverSmartCasts returns the stable narrowings of the dispatch and extension
// receivers of expr, dispatch first. Receivers identical to the explicit receiver are left to
// SmartCastInfo.
func (p *Provider) ImplicitReceiverSmartCasts(expr *syntax.Node) ([]ImplicitReceiver, error) {
	return session.Run(p.s, func() []ImplicitReceiver {
		site := normalize(expr, true)
		access := qualifiedAccess(p.s.Resolve(site))
		if access == nil {
			return nil
		}
		var out []ImplicitReceiver
		for _, kind := range receiverKinds {
			receiver := receiverOf(access, kind)
			if receiver == nil || receiver == access.ExplicitReceiver {
				continue
			}
			if !p.s.IsStableSmartcast(receiver) {
				continue
			}
			typ, ok := p.s.PublicType(receiver.ResultType())
			if !ok {
				continue
			}
			out = append(out, ImplicitReceiver{Type: typ, Kind: kind, Site: site})
		}
		return out
	})
}

func receiverOf(q *semantic.QualifiedAccess, kind Kind) semantic.Expression {
	switch kind {
	case Dispatch:
		return q.DispatchReceiver
	case Extension:
		return q.ExtensionReceiver
	}
	return nil
}

// qualifiedAccess extracts the access receivers are read from: the node itself, the selector of
// a safe call, or the access a smart-cast wrapper stands for.
func qualifiedAccess(e semantic.Expression) *semantic.QualifiedAccess {
	switch e := e.(type) {
	case semantic.QualifiedAccessExpression:
		return e.Access()
	case *semantic.SafeCall:
		if sel, ok := e.Selector.(semantic.QualifiedAccessExpression); ok {
			return sel.Access()
		}
	case *semantic.ExpressionWithSmartcast:
		if q, ok := e.Original.(semantic.QualifiedAccessExpression); ok {
			return q.Access()
		}
	}
	return nil
}

// normalize widens a bare name reference to the call it names and then to the qualified
// expression it is the selector of, so `a.b` resolves through the qualified form. With
// operations set, an operator token widens to its operator expression.
func normalize(n *syntax.Node, operations bool) *syntax.Node {
	if n == nil {
		return nil
	}
	switch {
	case n.Kind == syntax.KindNameReference:
		if p := n.Parent(); p != nil && p.Kind == syntax.KindCall && n.Role == syntax.RoleCallee {
			n = p
		}
		if p := n.Parent(); p != nil && isQualified(p) && n.Role == syntax.RoleSelector {
			n = p
		}
	case operations && n.Kind == syntax.KindOperationReference:
		if p := n.Parent(); p != nil && (p.Kind == syntax.KindBinary || p.Kind == syntax.KindPrefix) {
			n = p
		}
	}
	return n
}

func isQualified(n *syntax.Node) bool {
	return n.Kind == syntax.KindDotQualified || n.Kind == syntax.KindSafeQualified
}
