// Package syntax is the owned syntax tree consumed by the semantic layers.
//
// Trees are immutable once built. Go call and selector shapes are normalized to a
// receiver/selector form: `a.b` is DotQualified(a, NameReference b) and `a.b()` is
// DotQualified(a, Call(NameReference b)).
package syntax

type Kind int

const (
	KindOther Kind = iota
	KindFile
	KindFunction
	KindMethod
	KindFuncLiteral
	KindParameters
	KindParameter
	KindDeclName
	KindType
	KindBlock
	KindIf
	KindFor
	KindTypeSwitch
	KindTypeCase
	KindDefaultCase
	KindShortVarDecl
	KindAssign
	KindIncDec
	KindVarSpec
	KindReturn
	KindExprStmt
	KindBranch // break, continue, goto

	KindNameReference
	KindCall
	KindArguments
	KindDotQualified
	KindSafeQualified
	KindOperationReference
	KindBinary
	KindPrefix
	KindParenthesized
	KindLiteral
	KindNil
	KindCompositeLiteral
	KindTypeAssertion
	KindIndex
	KindExpressionList
)

var kindNames = map[Kind]string{
	KindOther:              "other",
	KindFile:               "file",
	KindFunction:           "function",
	KindMethod:             "method",
	KindFuncLiteral:        "func_literal",
	KindParameters:         "parameters",
	KindParameter:          "parameter",
	KindDeclName:           "decl_name",
	KindType:               "type",
	KindBlock:              "block",
	KindIf:                 "if",
	KindFor:                "for",
	KindTypeSwitch:         "type_switch",
	KindTypeCase:           "type_case",
	KindDefaultCase:        "default_case",
	KindShortVarDecl:       "short_var_decl",
	KindAssign:             "assign",
	KindIncDec:             "inc_dec",
	KindVarSpec:            "var_spec",
	KindReturn:             "return",
	KindExprStmt:           "expr_stmt",
	KindBranch:             "branch",
	KindNameReference:      "name_reference",
	KindCall:               "call",
	KindArguments:          "arguments",
	KindDotQualified:       "dot_qualified",
	KindSafeQualified:      "safe_qualified",
	KindOperationReference: "operation_reference",
	KindBinary:             "binary",
	KindPrefix:             "prefix",
	KindParenthesized:      "parenthesized",
	KindLiteral:            "literal",
	KindNil:                "nil",
	KindCompositeLiteral:   "composite_literal",
	KindTypeAssertion:      "type_assertion",
	KindIndex:              "index",
	KindExpressionList:     "expression_list",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsExpression reports whether nodes of this kind denote expressions.
func (k Kind) IsExpression() bool {
	return k >= KindNameReference && k != KindArguments && k != KindExpressionList
}

// Role is the position a child occupies in its parent.
type Role string

const (
	RoleNone        Role = ""
	RoleName        Role = "name"
	RoleType        Role = "type"
	RoleReceiver    Role = "receiver"
	RoleSelector    Role = "selector"
	RoleCallee      Role = "callee"
	RoleArguments   Role = "arguments"
	RoleLeft        Role = "left"
	RoleRight       Role = "right"
	RoleOperation   Role = "operation"
	RoleOperand     Role = "operand"
	RoleCondition   Role = "condition"
	RoleConsequence Role = "consequence"
	RoleAlternative Role = "alternative"
	RoleInitializer Role = "initializer"
	RoleUpdate      Role = "update"
	RoleValue       Role = "value"
	RoleAlias       Role = "alias"
	RoleParameters  Role = "parameters"
	RoleResult      Role = "result"
	RoleBody        Role = "body"
)

type Position struct {
	Line   int // 1-based
	Column int // 1-based, in bytes
}

type Span struct {
	StartByte, EndByte int
	Start, End         Position
}

// Contains reports whether pos falls inside the span. The end position is exclusive.
func (s Span) Contains(pos Position) bool {
	if pos.Line < s.Start.Line || pos.Line > s.End.Line {
		return false
	}
	if pos.Line == s.Start.Line && pos.Column < s.Start.Column {
		return false
	}
	if pos.Line == s.End.Line && pos.Column >= s.End.Column {
		return false
	}
	return true
}

// Node is one syntax tree node.
type Node struct {
	Kind    Kind
	Role    Role
	Grammar string // grammar node type the node was built from, if any
	Text    string
	Span    Span

	parent   *Node
	children []*Node
}

// NewNode creates a detached node. Hosts and tests use it to build trees by hand.
func NewNode(kind Kind, text string) *Node {
	return &Node{Kind: kind, Text: text}
}

// Add attaches child under role and returns n for chaining.
func (n *Node) Add(role Role, child *Node) *Node {
	if child == nil {
		return n
	}
	child.Role = role
	child.parent = n
	n.children = append(n.children, child)
	return n
}

func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the first child with role.
func (n *Node) Child(role Role) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.Role == role {
			return c
		}
	}
	return nil
}

func (n *Node) ChildrenWith(role Role) []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants depth first. Returning false skips the children.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(visit)
	}
}

// Ancestor returns the closest ancestor (excluding n) whose kind is one of kinds.
func (n *Node) Ancestor(kinds ...Kind) *Node {
	for p := n.Parent(); p != nil; p = p.parent {
		for _, k := range kinds {
			if p.Kind == k {
				return p
			}
		}
	}
	return nil
}

// Convenience accessors for the normalized expression shapes.

func (n *Node) Receiver() *Node  { return n.Child(RoleReceiver) }
func (n *Node) Selector() *Node  { return n.Child(RoleSelector) }
func (n *Node) Callee() *Node    { return n.Child(RoleCallee) }
func (n *Node) Operation() *Node { return n.Child(RoleOperation) }

func (n *Node) Arguments() []*Node {
	if args := n.Child(RoleArguments); args != nil {
		return args.children
	}
	return nil
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.Kind.String() + "(" + n.Text + ")"
}
