package extractor

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// ValueDirective marks a struct declaration as a value type when it appears as a line of its doc
// comment, e.g. "//semq:value".
const ValueDirective = "semq:value"

// GoExtractor implements LanguageExtractor for Go.
type GoExtractor struct{}

func (g *GoExtractor) GetLanguage() *sitter.Language {
	return golang.GetLanguage()
}

func (g *GoExtractor) GetQuery() string {
	return `
		(function_declaration) @func
		(method_declaration) @func
		(type_spec) @type
		(const_spec) @const
		(var_spec) @var
	`
}

func (g *GoExtractor) ExtractUnit(captureName string, node *sitter.Node, sourceCode []byte, filepath string, packageName string) *CodeUnit {
	if captureName != "func" && insideFunction(node) {
		// Local declarations belong to the function body.
		return nil
	}
	var unit *CodeUnit
	switch captureName {
	case "func":
		unit = g.extractFunctionUnit(node, sourceCode, filepath)
	case "type":
		unit = g.extractTypeUnit(node, sourceCode, filepath)
	case "const":
		unit = g.extractValueUnit(node, sourceCode, filepath, "constant")
	case "var":
		unit = g.extractValueUnit(node, sourceCode, filepath, "variable")
	}

	if unit != nil {
		unit.Package = packageName
		unit.Language = "go"
	}
	return unit
}

func insideFunction(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_declaration", "method_declaration", "func_literal":
			return true
		}
	}
	return false
}

// Go-specific detail schemas

type GoFunctionDetails struct {
	Receiver     string     `json:"receiver,omitempty"`
	ReceiverType string     `json:"receiver_type,omitempty"` // base type name, pointer stripped
	Parameters   []GoParam  `json:"parameters"`
	Returns      []GoReturn `json:"returns"`
	Signature    string     `json:"signature"`
}

type GoTypeDetails struct {
	Fields []GoField `json:"fields"`
	// Value is set when the doc comment carries ValueDirective.
	Value bool `json:"value,omitempty"`
}

type GoInterfaceDetails struct {
	Methods []GoFunctionDetails `json:"methods"`
}

type GoNamedDetails struct {
	Underlying string `json:"underlying"`
}

type GoValueDetails struct {
	Names []string `json:"names"`
	Value string   `json:"value,omitempty"`
	Type  string   `json:"type,omitempty"`
}

type GoParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type GoReturn struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

type GoField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Tag      string `json:"tag,omitempty"`
	Embedded bool   `json:"embedded,omitempty"`
}

func unitID(filepath, name string, node *sitter.Node) string {
	return fmt.Sprintf("%s:%s:%d", filepath, name, node.StartPoint().Row+1)
}

func (g *GoExtractor) extractTypeUnit(node *sitter.Node, sourceCode []byte, filepath string) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(sourceCode)

	// A lone spec documents through its declaration; grouped specs carry their own comments.
	docNode := node
	if parent := node.Parent(); parent != nil && parent.Type() == "type_declaration" && parent.NamedChildCount() == 1 {
		docNode = parent
	}
	docComment := g.extractDocComment(docNode, sourceCode)

	var details interface{}
	unitType := "type"
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		switch typeNode.Type() {
		case "struct_type":
			unitType = "struct"
			d := g.extractStructDetails(typeNode, sourceCode)
			d.Value = hasDirective(docComment, ValueDirective)
			details = d
		case "interface_type":
			unitType = "interface"
			details = g.extractInterfaceDetails(typeNode, sourceCode)
		default:
			details = GoNamedDetails{Underlying: typeNode.Content(sourceCode)}
		}
	}

	return &CodeUnit{
		ID:          unitID(filepath, name, node),
		Filepath:    filepath,
		StartLine:   int(docNode.StartPoint().Row + 1),
		EndLine:     int(docNode.EndPoint().Row + 1),
		Content:     docNode.Content(sourceCode),
		UnitType:    unitType,
		Name:        name,
		Description: docComment,
		Details:     details,
	}
}

func hasDirective(doc, directive string) bool {
	for _, line := range strings.Split(doc, "\n") {
		if strings.TrimSpace(line) == directive {
			return true
		}
	}
	return false
}

func (g *GoExtractor) extractStructDetails(structNode *sitter.Node, sourceCode []byte) GoTypeDetails {
	fields := []GoField{}
	var fieldList *sitter.Node
	for i := 0; i < int(structNode.NamedChildCount()); i++ {
		if child := structNode.NamedChild(i); child.Type() == "field_declaration_list" {
			fieldList = child
			break
		}
	}
	if fieldList == nil {
		return GoTypeDetails{Fields: fields}
	}

	for i := 0; i < int(fieldList.NamedChildCount()); i++ {
		fieldDecl := fieldList.NamedChild(i)
		if fieldDecl.Type() != "field_declaration" {
			continue
		}

		var fieldType, fieldTag string
		if typeNode := fieldDecl.ChildByFieldName("type"); typeNode != nil {
			fieldType = typeNode.Content(sourceCode)
		}
		if tagNode := fieldDecl.ChildByFieldName("tag"); tagNode != nil {
			fieldTag = tagNode.Content(sourceCode)
		}

		named := false
		for j := 0; j < int(fieldDecl.NamedChildCount()); j++ {
			child := fieldDecl.NamedChild(j)
			if child.Type() == "field_identifier" {
				fields = append(fields, GoField{Name: child.Content(sourceCode), Type: fieldType, Tag: fieldTag})
				named = true
			}
		}
		if !named && fieldType != "" {
			fields = append(fields, GoField{Name: embeddedName(fieldType), Type: fieldType, Tag: fieldTag, Embedded: true})
		}
	}
	return GoTypeDetails{Fields: fields}
}

// embeddedName is the implicit field name of an embedded type: pkg.*T and *pkg.T[K] name T.
func embeddedName(typ string) string {
	name := strings.TrimPrefix(typ, "*")
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	if lastDot := strings.LastIndex(name, "."); lastDot != -1 {
		name = name[lastDot+1:]
	}
	return name
}

func (g *GoExtractor) extractInterfaceDetails(interfaceNode *sitter.Node, sourceCode []byte) GoInterfaceDetails {
	methods := []GoFunctionDetails{}
	for i := 0; i < int(interfaceNode.NamedChildCount()); i++ {
		elem := interfaceNode.NamedChild(i)
		switch elem.Type() {
		case "method_elem", "method_spec":
			details := GoFunctionDetails{
				Signature:  elem.Content(sourceCode),
				Parameters: []GoParam{},
				Returns:    []GoReturn{},
			}
			if paramsNode := elem.ChildByFieldName("parameters"); paramsNode != nil {
				details.Parameters = g.extractParams(paramsNode, sourceCode)
			}
			if resultNode := elem.ChildByFieldName("result"); resultNode != nil {
				details.Returns = g.extractReturns(resultNode, sourceCode)
			}
			methods = append(methods, details)
		case "type_elem", "type_identifier", "qualified_type", "constraint_elem":
			// Embedded interfaces and type sets.
			methods = append(methods, GoFunctionDetails{
				Signature:  elem.Content(sourceCode),
				Parameters: []GoParam{},
				Returns:    []GoReturn{},
			})
		}
	}
	return GoInterfaceDetails{Methods: methods}
}

func (g *GoExtractor) extractFunctionUnit(node *sitter.Node, sourceCode []byte, filepath string) *CodeUnit {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(sourceCode)
	content := node.Content(sourceCode)

	unitType := "function"
	details := GoFunctionDetails{
		Parameters: []GoParam{},
		Returns:    []GoReturn{},
	}

	if node.Type() == "method_declaration" {
		unitType = "method"
		if receiverNode := node.ChildByFieldName("receiver"); receiverNode != nil {
			details.Receiver = receiverNode.Content(sourceCode)
			if recv := g.extractParams(receiverNode, sourceCode); len(recv) == 1 {
				details.ReceiverType = embeddedName(recv[0].Type)
			}
		}
	}

	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		details.Parameters = g.extractParams(paramsNode, sourceCode)
	}
	if resultNode := node.ChildByFieldName("result"); resultNode != nil {
		details.Returns = g.extractReturns(resultNode, sourceCode)
	}
	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		details.Signature = strings.TrimSpace(string(sourceCode[node.StartByte():bodyNode.StartByte()]))
	} else {
		details.Signature = content
	}

	return &CodeUnit{
		ID:          unitID(filepath, name, node),
		Filepath:    filepath,
		StartLine:   int(node.StartPoint().Row + 1),
		EndLine:     int(node.EndPoint().Row + 1),
		Content:     content,
		UnitType:    unitType,
		Name:        name,
		Description: g.extractDocComment(node, sourceCode),
		Details:     details,
	}
}

// extractValueUnit handles const and var specs. A spec declaring several names yields one unit
// named after the first; the full list is in the details.
func (g *GoExtractor) extractValueUnit(node *sitter.Node, sourceCode []byte, filepath, unitType string) *CodeUnit {
	details := GoValueDetails{}
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.FieldNameForChild(i) == "name" {
			details.Names = append(details.Names, node.Child(i).Content(sourceCode))
		}
	}
	if len(details.Names) == 0 {
		return nil
	}
	name := details.Names[0]

	docComment := g.extractDocComment(node, sourceCode)
	if parent := node.Parent(); docComment == "" && parent != nil && parent.NamedChildCount() == 1 {
		docComment = g.extractDocComment(parent, sourceCode)
	}

	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		details.Type = typeNode.Content(sourceCode)
	}
	if valueNode := node.ChildByFieldName("value"); valueNode != nil {
		details.Value = valueNode.Content(sourceCode)
	}

	return &CodeUnit{
		ID:          unitID(filepath, name, node),
		Filepath:    filepath,
		StartLine:   int(node.StartPoint().Row + 1),
		EndLine:     int(node.EndPoint().Row + 1),
		Content:     node.Content(sourceCode),
		UnitType:    unitType,
		Name:        name,
		Description: docComment,
		Details:     details,
	}
}

func (g *GoExtractor) extractDocComment(node *sitter.Node, sourceCode []byte) string {
	var commentLines []string
	currentNode := node
	for {
		prevSibling := currentNode.PrevSibling()
		if prevSibling == nil || prevSibling.Type() != "comment" {
			break
		}
		if currentNode.StartPoint().Row-prevSibling.EndPoint().Row > 1 {
			break
		}
		commentLines = append([]string{prevSibling.Content(sourceCode)}, commentLines...)
		currentNode = prevSibling
	}
	return cleanDocComment(strings.Join(commentLines, "\n"))
}

func (g *GoExtractor) extractParams(paramsNode *sitter.Node, sourceCode []byte) []GoParam {
	params := []GoParam{}
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		pNode := paramsNode.NamedChild(i)
		if pNode.Type() != "parameter_declaration" && pNode.Type() != "variadic_parameter_declaration" {
			continue
		}
		pType := ""
		if tn := pNode.ChildByFieldName("type"); tn != nil {
			pType = tn.Content(sourceCode)
		}
		if pNode.Type() == "variadic_parameter_declaration" {
			pType = "[]" + pType
		}
		var names []string
		for j := 0; j < int(pNode.NamedChildCount()); j++ {
			if child := pNode.NamedChild(j); child.Type() == "identifier" {
				names = append(names, child.Content(sourceCode))
			}
		}
		if len(names) == 0 {
			params = append(params, GoParam{Type: pType})
			continue
		}
		for _, n := range names {
			params = append(params, GoParam{Name: n, Type: pType})
		}
	}
	return params
}

func (g *GoExtractor) extractReturns(resultNode *sitter.Node, sourceCode []byte) []GoReturn {
	returns := []GoReturn{}
	if resultNode.Type() == "parameter_list" {
		for _, p := range g.extractParams(resultNode, sourceCode) {
			returns = append(returns, GoReturn{Name: p.Name, Type: p.Type})
		}
		return returns
	}
	return append(returns, GoReturn{Type: resultNode.Content(sourceCode)})
}

func cleanDocComment(rawComment string) string {
	if rawComment == "" {
		return ""
	}
	lines := strings.Split(rawComment, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "//")
		l = strings.TrimPrefix(l, "/*")
		l = strings.TrimSuffix(l, "*/")
		cleaned = append(cleaned, strings.TrimSpace(l))
	}
	return strings.Join(cleaned, "\n")
}
