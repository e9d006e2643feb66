package smartcast

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semq/internal/semantic"
	"semq/internal/session"
	"semq/internal/syntax"
	"semq/internal/types"
)

var (
	circle    = types.Parse("*Circle", nil)
	nonNilC   = circle.WithNullability(false)
	shape     = types.Parse("Shape", nil)
	extension = types.Parse("*Ext", nil).WithNullability(false)
)

func cast(e semantic.Expression, t types.Type, stable bool) *semantic.ExpressionWithSmartcast {
	return &semantic.ExpressionWithSmartcast{Original: e, SmartcastType: semantic.Resolved(t), Stable: stable}
}

func ref(n *syntax.Node, t types.Type) *semantic.QualifiedAccess {
	return &semantic.QualifiedAccess{Kind: semantic.PropertyAccess, Callee: n.Text, Type: semantic.Resolved(t), Node: n}
}

// qualified builds recv.sel(), returning the qualified node, the call and the selector name.
func qualified(recv, sel string) (q, call, name *syntax.Node) {
	q = syntax.NewNode(syntax.KindDotQualified, recv+"."+sel+"()")
	name = syntax.NewNode(syntax.KindNameReference, sel)
	call = syntax.NewNode(syntax.KindCall, sel+"()").Add(syntax.RoleCallee, name)
	q.Add(syntax.RoleReceiver, syntax.NewNode(syntax.KindNameReference, recv))
	q.Add(syntax.RoleSelector, call)
	return q, call, name
}

func TestSmartCastInfo(t *testing.T) {
	x := syntax.NewNode(syntax.KindNameReference, "x")
	plain := syntax.NewNode(syntax.KindNameReference, "y")
	broken := syntax.NewNode(syntax.KindNameReference, "z")

	s := session.New(session.MapResolver{
		x:      cast(ref(x, circle), nonNilC, true),
		plain:  ref(plain, circle),
		broken: &semantic.ExpressionWithSmartcast{Original: ref(broken, circle), SmartcastType: semantic.ErrorTypeRef{}},
	})
	p := NewProvider(s)

	info, err := p.SmartCastInfo(x)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "*Circle!", info.Type.String())
	assert.True(t, info.Stable)

	t.Run("Absence is the default", func(t *testing.T) {
		for _, n := range []*syntax.Node{plain, broken, syntax.NewNode(syntax.KindLiteral, "1"), nil} {
			info, err := p.SmartCastInfo(n)
			require.NoError(t, err)
			assert.Nil(t, info)
		}
	})
}

func TestSmartCastInfo_Normalization(t *testing.T) {
	q, call, name := qualified("c", "Area")
	inner := &semantic.QualifiedAccess{Kind: semantic.FunctionCall, Callee: "Area", Node: q}

	s := session.New(session.MapResolver{
		q:    cast(inner, types.Float64, false),
		call: &semantic.QualifiedAccess{Kind: semantic.FunctionCall, Node: call},
		name: &semantic.QualifiedAccess{Kind: semantic.FunctionCall, Node: name},
	})
	p := NewProvider(s)

	info, err := p.SmartCastInfo(name)
	require.NoError(t, err)
	require.NotNil(t, info, "a selector name resolves through its qualified expression")
	assert.Equal(t, types.Float64, info.Type)
	assert.False(t, info.Stable)

	t.Run("Implicit invocation reads its explicit receiver", func(t *testing.T) {
		f := syntax.NewNode(syntax.KindNameReference, "f")
		fcall := syntax.NewNode(syntax.KindCall, "f()").Add(syntax.RoleCallee, f)
		fn := types.Parse("func() int", nil)
		invoke := &semantic.ImplicitInvokeCall{QualifiedAccess: semantic.QualifiedAccess{
			Kind:             semantic.FunctionCall,
			Callee:           "invoke",
			ExplicitReceiver: cast(ref(f, fn), fn.WithNullability(false), true),
			Type:             semantic.Resolved(types.Int),
			Node:             fcall,
		}}
		p := NewProvider(session.New(session.MapResolver{fcall: invoke}))

		info, err := p.SmartCastInfo(f)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "func() int!", info.Type.String())

		invoke.ExplicitReceiver = ref(f, fn)
		info, err = NewProvider(session.New(session.MapResolver{fcall: invoke})).SmartCastInfo(f)
		require.NoError(t, err)
		assert.Nil(t, info)
	})
}

func TestSmartCastInfo_StabilityFromMetadata(t *testing.T) {
	x := syntax.NewNode(syntax.KindNameReference, "x")
	q, _, _ := qualified("c", "Area")
	access := &semantic.QualifiedAccess{
		Kind:             semantic.FunctionCall,
		Callee:           "Area",
		ExplicitReceiver: ref(syntax.NewNode(syntax.KindNameReference, "c"), circle),
		DispatchReceiver: cast(&semantic.ImplicitReceiverValue{Name: "Base"}, nonNilC, true),
		Node:             q,
	}
	never := session.WithStability(func(*semantic.ExpressionWithSmartcast) bool { return false })
	p := NewProvider(session.New(session.MapResolver{
		x: cast(ref(x, circle), nonNilC, true),
		q: access,
	}, never))

	info, err := p.SmartCastInfo(x)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.True(t, info.Stable, "the flag carried by the cast is reported as is")

	got, err := p.ImplicitReceiverSmartCasts(q)
	require.NoError(t, err)
	assert.Empty(t, got, "the stability predicate still filters implicit receivers")
}

func TestImplicitReceiverSmartCasts(t *testing.T) {
	q, _, name := qualified("s", "Describe")
	explicit := cast(ref(q.Receiver(), shape), shape.WithNullability(false), true)

	t.Run("Dispatch precedes extension", func(t *testing.T) {
		access := &semantic.QualifiedAccess{
			Kind:              semantic.FunctionCall,
			ExplicitReceiver:  explicit,
			DispatchReceiver:  cast(&semantic.ImplicitReceiverValue{Name: "Base"}, nonNilC, true),
			ExtensionReceiver: cast(&semantic.ImplicitReceiverValue{Name: "ext"}, extension, true),
			Node:              q,
		}
		p := NewProvider(session.New(session.MapResolver{q: access}))
		got, err := p.ImplicitReceiverSmartCasts(name)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, Dispatch, got[0].Kind)
		assert.Equal(t, "*Circle!", got[0].Type.String())
		assert.Equal(t, Extension, got[1].Kind)
		assert.Equal(t, "*Ext!", got[1].Type.String())
		assert.Same(t, q, got[0].Site)
	})

	t.Run("Receiver identical to the explicit receiver", func(t *testing.T) {
		access := &semantic.QualifiedAccess{ExplicitReceiver: explicit, DispatchReceiver: explicit, Node: q}
		p := NewProvider(session.New(session.MapResolver{q: access}))
		got, err := p.ImplicitReceiverSmartCasts(name)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Unstable and unresolved receivers are skipped", func(t *testing.T) {
		access := &semantic.QualifiedAccess{
			ExplicitReceiver:  explicit,
			DispatchReceiver:  cast(&semantic.ImplicitReceiverValue{Name: "Base"}, nonNilC, false),
			ExtensionReceiver: &semantic.ExpressionWithSmartcast{SmartcastType: semantic.ErrorTypeRef{}, Stable: true},
			Node:              q,
		}
		p := NewProvider(session.New(session.MapResolver{q: access}))
		got, err := p.ImplicitReceiverSmartCasts(name)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Receivers that are not smart casts", func(t *testing.T) {
		access := &semantic.QualifiedAccess{
			ExplicitReceiver: explicit,
			DispatchReceiver: &semantic.ImplicitReceiverValue{Name: "Base", Type: semantic.Resolved(circle)},
			Node:             q,
		}
		p := NewProvider(session.New(session.MapResolver{q: access}))
		got, err := p.ImplicitReceiverSmartCasts(name)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Safe call selector", func(t *testing.T) {
		safe := syntax.NewNode(syntax.KindSafeQualified, "s?.Describe()")
		access := &semantic.QualifiedAccess{
			DispatchReceiver: cast(&semantic.ImplicitReceiverValue{Name: "Base"}, nonNilC, true),
			Node:             safe,
		}
		p := NewProvider(session.New(session.MapResolver{safe: &semantic.SafeCall{Selector: access, Node: safe}}))
		got, err := p.ImplicitReceiverSmartCasts(safe)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, Dispatch, got[0].Kind)
	})

	t.Run("Operator reference widens to its expression", func(t *testing.T) {
		op := syntax.NewNode(syntax.KindOperationReference, "+")
		bin := syntax.NewNode(syntax.KindBinary, "a + b").Add(syntax.RoleOperation, op)
		access := &semantic.QualifiedAccess{
			Kind:             semantic.OperatorCall,
			DispatchReceiver: cast(&semantic.ImplicitReceiverValue{Name: "a"}, nonNilC, true),
			Node:             bin,
		}
		p := NewProvider(session.New(session.MapResolver{bin: access}))
		got, err := p.ImplicitReceiverSmartCasts(op)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		info, err := p.SmartCastInfo(op)
		require.NoError(t, err)
		assert.Nil(t, info, "direct queries do not widen operators")
	})
}

func TestProvider_Invalidated(t *testing.T) {
	x := syntax.NewNode(syntax.KindNameReference, "x")
	s := session.New(session.MapResolver{x: cast(ref(x, circle), nonNilC, true)})
	p := NewProvider(s)

	info, err := p.SmartCastInfo(x)
	require.NoError(t, err)
	require.NotNil(t, info)

	s.Close()
	info, err = p.SmartCastInfo(x)
	assert.True(t, errors.Is(err, session.ErrInvalidated))
	assert.Nil(t, info)
	recv, err := p.ImplicitReceiverSmartCasts(x)
	assert.True(t, errors.Is(err, session.ErrInvalidated))
	assert.Nil(t, recv)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "DISPATCH", Dispatch.String())
	assert.Equal(t, "EXTENSION", Extension.String())
}
