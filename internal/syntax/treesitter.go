package syntax

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// File is a parsed source file.
type File struct {
	Path    string
	Package string
	Source  []byte
	Root    *Node
}

// Parse parses Go source into an owned syntax tree.
func Parse(ctx context.Context, path string, src []byte) (*File, error) {
	tree, err := ParseTree(ctx, src)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	defer tree.Close()
	return FromTree(path, src, tree.RootNode()), nil
}

// ParseTree runs the tree-sitter Go parser.
func ParseTree(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())
	return parser.ParseCtx(ctx, nil, src)
}

// FromTree converts a tree-sitter Go tree.
func FromTree(path string, src []byte, root *sitter.Node) *File {
	c := &converter{src: src}
	f := &File{Path: path, Source: src, Root: c.node(root)}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			if id := child.NamedChild(j); id.Type() == "package_identifier" {
				f.Package = id.Content(src)
			}
		}
	}
	return f
}

var typeGrammar = map[string]bool{
	"type_identifier": true, "pointer_type": true, "qualified_type": true, "slice_type": true,
	"map_type": true, "function_type": true, "interface_type": true, "struct_type": true,
	"array_type": true, "channel_type": true, "generic_type": true, "parenthesized_type": true,
	"negated_type": true, "implicit_length_array_type": true,
}

var literalGrammar = map[string]bool{
	"int_literal": true, "float_literal": true, "imaginary_literal": true, "rune_literal": true,
	"interpreted_string_literal": true, "raw_string_literal": true, "true": true, "false": true,
	"iota": true,
}

type converter struct {
	src []byte
}

func (c *converter) leaf(kind Kind, ts *sitter.Node) *Node {
	start, end := ts.StartPoint(), ts.EndPoint()
	return &Node{
		Kind:    kind,
		Grammar: ts.Type(),
		Text:    ts.Content(c.src),
		Span: Span{
			StartByte: int(ts.StartByte()),
			EndByte:   int(ts.EndByte()),
			Start:     Position{Line: int(start.Row) + 1, Column: int(start.Column) + 1},
			End:       Position{Line: int(end.Row) + 1, Column: int(end.Column) + 1},
		},
	}
}

// spanning builds a node covering from..to, for shapes that have no grammar node of their own.
func (c *converter) spanning(kind Kind, from, to *sitter.Node) *Node {
	n := c.leaf(kind, from)
	end := to.EndPoint()
	n.Span.EndByte = int(to.EndByte())
	n.Span.End = Position{Line: int(end.Row) + 1, Column: int(end.Column) + 1}
	n.Text = string(c.src[from.StartByte():to.EndByte()])
	n.Grammar = ""
	return n
}

func (c *converter) field(ts *sitter.Node, name string) *sitter.Node {
	return ts.ChildByFieldName(name)
}

// node converts ts and its subtree.
func (c *converter) node(ts *sitter.Node) *Node {
	if ts == nil {
		return nil
	}
	typ := ts.Type()
	switch {
	case typeGrammar[typ]:
		return c.leaf(KindType, ts)
	case literalGrammar[typ]:
		return c.leaf(KindLiteral, ts)
	}

	switch typ {
	case "source_file":
		return c.generic(KindFile, ts)
	case "function_declaration":
		n := c.leaf(KindFunction, ts)
		c.addDeclName(n, c.field(ts, "name"))
		n.Add(RoleParameters, c.node(c.field(ts, "parameters")))
		n.Add(RoleResult, c.resultNode(c.field(ts, "result")))
		n.Add(RoleBody, c.node(c.field(ts, "body")))
		return n
	case "method_declaration":
		n := c.leaf(KindMethod, ts)
		n.Add(RoleReceiver, c.node(c.field(ts, "receiver")))
		c.addDeclName(n, c.field(ts, "name"))
		n.Add(RoleParameters, c.node(c.field(ts, "parameters")))
		n.Add(RoleResult, c.resultNode(c.field(ts, "result")))
		n.Add(RoleBody, c.node(c.field(ts, "body")))
		return n
	case "func_literal":
		n := c.leaf(KindFuncLiteral, ts)
		n.Add(RoleParameters, c.node(c.field(ts, "parameters")))
		n.Add(RoleResult, c.resultNode(c.field(ts, "result")))
		n.Add(RoleBody, c.node(c.field(ts, "body")))
		return n
	case "parameter_list":
		n := c.leaf(KindParameters, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			n.Add(RoleNone, c.node(ts.NamedChild(i)))
		}
		return n
	case "parameter_declaration", "variadic_parameter_declaration":
		n := c.leaf(KindParameter, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			if child := ts.NamedChild(i); child.Type() == "identifier" {
				c.addDeclName(n, child)
			}
		}
		if t := c.field(ts, "type"); t != nil {
			tn := c.leaf(KindType, t)
			if typ == "variadic_parameter_declaration" {
				tn.Text = "[]" + tn.Text
			}
			n.Add(RoleType, tn)
		}
		return n
	case "block":
		n := c.leaf(KindBlock, ts)
		c.addStatements(n, ts)
		return n
	case "if_statement":
		n := c.leaf(KindIf, ts)
		n.Add(RoleInitializer, c.node(c.field(ts, "initializer")))
		n.Add(RoleCondition, c.node(c.field(ts, "condition")))
		n.Add(RoleConsequence, c.node(c.field(ts, "consequence")))
		n.Add(RoleAlternative, c.node(c.field(ts, "alternative")))
		return n
	case "for_statement":
		n := c.leaf(KindFor, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if child.Type() == "block" {
				n.Add(RoleBody, c.node(child))
			} else {
				n.Add(RoleNone, c.node(child))
			}
		}
		return n
	case "for_clause":
		n := c.leaf(KindOther, ts)
		n.Add(RoleInitializer, c.node(c.field(ts, "initializer")))
		n.Add(RoleCondition, c.node(c.field(ts, "condition")))
		n.Add(RoleUpdate, c.node(c.field(ts, "update")))
		return n
	case "range_clause":
		n := c.leaf(KindOther, ts)
		n.Add(RoleLeft, c.node(c.field(ts, "left")))
		n.Add(RoleRight, c.node(c.field(ts, "right")))
		return n
	case "type_switch_statement":
		return c.typeSwitch(ts)
	case "type_case":
		return c.typeCase(ts)
	case "default_case":
		n := c.leaf(KindDefaultCase, ts)
		c.addStatements(n, ts)
		return n
	case "short_var_declaration":
		n := c.leaf(KindShortVarDecl, ts)
		n.Add(RoleLeft, c.node(c.field(ts, "left")))
		n.Add(RoleRight, c.node(c.field(ts, "right")))
		return n
	case "assignment_statement":
		n := c.leaf(KindAssign, ts)
		n.Add(RoleLeft, c.node(c.field(ts, "left")))
		if op := c.field(ts, "operator"); op != nil {
			n.Add(RoleOperation, c.leaf(KindOperationReference, op))
		}
		n.Add(RoleRight, c.node(c.field(ts, "right")))
		return n
	case "inc_statement", "dec_statement":
		n := c.leaf(KindIncDec, ts)
		if ts.NamedChildCount() > 0 {
			n.Add(RoleOperand, c.node(ts.NamedChild(0)))
		}
		return n
	case "var_spec":
		n := c.leaf(KindVarSpec, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			if child := ts.NamedChild(i); child.Type() == "identifier" {
				c.addDeclName(n, child)
			}
		}
		if t := c.field(ts, "type"); t != nil {
			n.Add(RoleType, c.leaf(KindType, t))
		}
		n.Add(RoleValue, c.node(c.field(ts, "value")))
		return n
	case "return_statement":
		return c.generic(KindReturn, ts)
	case "expression_statement":
		return c.generic(KindExprStmt, ts)
	case "break_statement", "continue_statement", "goto_statement":
		return c.leaf(KindBranch, ts)
	case "expression_list":
		return c.generic(KindExpressionList, ts)
	case "argument_list":
		return c.generic(KindArguments, ts)
	case "identifier", "field_identifier":
		return c.leaf(KindNameReference, ts)
	case "nil":
		return c.leaf(KindNil, ts)
	case "call_expression":
		return c.call(ts)
	case "selector_expression":
		n := c.leaf(KindDotQualified, ts)
		n.Add(RoleReceiver, c.node(c.field(ts, "operand")))
		n.Add(RoleSelector, c.node(c.field(ts, "field")))
		return n
	case "binary_expression":
		n := c.leaf(KindBinary, ts)
		n.Add(RoleLeft, c.node(c.field(ts, "left")))
		if op := c.field(ts, "operator"); op != nil {
			n.Add(RoleOperation, c.leaf(KindOperationReference, op))
		}
		n.Add(RoleRight, c.node(c.field(ts, "right")))
		return n
	case "unary_expression":
		n := c.leaf(KindPrefix, ts)
		if op := c.field(ts, "operator"); op != nil {
			n.Add(RoleOperation, c.leaf(KindOperationReference, op))
		}
		n.Add(RoleOperand, c.node(c.field(ts, "operand")))
		return n
	case "parenthesized_expression":
		return c.generic(KindParenthesized, ts)
	case "composite_literal":
		n := c.leaf(KindCompositeLiteral, ts)
		if t := c.field(ts, "type"); t != nil {
			n.Add(RoleType, c.leaf(KindType, t))
		}
		n.Add(RoleBody, c.node(c.field(ts, "body")))
		return n
	case "index_expression":
		n := c.leaf(KindIndex, ts)
		n.Add(RoleOperand, c.node(c.field(ts, "operand")))
		n.Add(RoleValue, c.node(c.field(ts, "index")))
		return n
	case "type_assertion_expression":
		n := c.leaf(KindTypeAssertion, ts)
		n.Add(RoleOperand, c.node(c.field(ts, "operand")))
		if t := c.field(ts, "type"); t != nil {
			n.Add(RoleType, c.leaf(KindType, t))
		}
		return n
	case "comment":
		return nil
	}
	return c.generic(KindOther, ts)
}

func (c *converter) generic(kind Kind, ts *sitter.Node) *Node {
	n := c.leaf(kind, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		n.Add(RoleNone, c.node(ts.NamedChild(i)))
	}
	return n
}

func (c *converter) addDeclName(n *Node, ts *sitter.Node) {
	if ts == nil {
		return
	}
	n.Add(RoleName, c.leaf(KindDeclName, ts))
}

// resultNode keeps a single result type as a type node; result lists become parameters.
func (c *converter) resultNode(ts *sitter.Node) *Node {
	if ts == nil {
		return nil
	}
	if ts.Type() == "parameter_list" {
		return c.node(ts)
	}
	return c.leaf(KindType, ts)
}

// addStatements adds the statements of a block-like node, looking through statement_list.
func (c *converter) addStatements(n *Node, ts *sitter.Node) {
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		if child.Type() == "statement_list" {
			c.addStatements(n, child)
			continue
		}
		n.Add(RoleNone, c.node(child))
	}
}

func (c *converter) call(ts *sitter.Node) *Node {
	fn := c.field(ts, "function")
	args := c.field(ts, "arguments")
	if fn != nil && fn.Type() == "selector_expression" {
		// a.b(x) becomes DotQualified(a, Call(b, x)).
		field := c.field(fn, "field")
		q := c.leaf(KindDotQualified, ts)
		q.Add(RoleReceiver, c.node(c.field(fn, "operand")))
		if field == nil {
			return q
		}
		last := field
		if args != nil {
			last = args
		}
		call := c.spanning(KindCall, field, last)
		call.Add(RoleCallee, c.leaf(KindNameReference, field))
		call.Add(RoleArguments, c.node(args))
		q.Add(RoleSelector, call)
		return q
	}
	n := c.leaf(KindCall, ts)
	n.Add(RoleCallee, c.node(fn))
	n.Add(RoleArguments, c.node(args))
	return n
}

func (c *converter) typeSwitch(ts *sitter.Node) *Node {
	n := c.leaf(KindTypeSwitch, ts)
	n.Add(RoleInitializer, c.node(c.field(ts, "initializer")))
	n.Add(RoleAlias, c.node(c.field(ts, "alias")))
	n.Add(RoleValue, c.node(c.field(ts, "value")))
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		switch child.Type() {
		case "type_case", "default_case":
			n.Add(RoleNone, c.node(child))
		}
	}
	return n
}

// typeCase splits a case clause into its types (before the colon) and statements.
func (c *converter) typeCase(ts *sitter.Node) *Node {
	n := c.leaf(KindTypeCase, ts)
	afterColon := false
	for i := 0; i < int(ts.ChildCount()); i++ {
		child := ts.Child(i)
		if !child.IsNamed() {
			if child.Type() == ":" {
				afterColon = true
			}
			continue
		}
		switch {
		case !afterColon:
			n.Add(RoleType, c.leaf(KindType, child))
		case child.Type() == "statement_list":
			c.addStatements(n, child)
		default:
			n.Add(RoleNone, c.node(child))
		}
	}
	return n
}

// ExpressionAt returns the innermost expression covering line:col.
func (f *File) ExpressionAt(line, col int) *Node {
	pos := Position{Line: line, Column: col}
	var best *Node
	f.Root.Walk(func(n *Node) bool {
		if !n.Span.Contains(pos) {
			return false
		}
		if n.Kind.IsExpression() {
			best = n
		}
		return true
	})
	return best
}

// NameReferences returns every name reference in source order.
func (f *File) NameReferences() []*Node {
	var out []*Node
	f.Root.Walk(func(n *Node) bool {
		if n.Kind == KindNameReference {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Functions returns the top-level function and method declarations.
func (f *File) Functions() []*Node {
	var out []*Node
	for _, c := range f.Root.Children() {
		if c.Kind == KindFunction || c.Kind == KindMethod {
			out = append(out, c)
		}
	}
	return out
}

// TypeText normalizes the text of a type node for the type parser.
func TypeText(n *Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(n.Text), " ")
}
