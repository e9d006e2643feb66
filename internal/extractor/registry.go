package extractor

import (
	"regexp"
	"strings"

	"semq/internal/types"
)

var compositeRe = regexp.MustCompile(`^(&?)([A-Za-z_][A-Za-z0-9_.]*)\s*\{`)

// Populate records the declarations of units in reg. Units of other packages are skipped.
func Populate(reg *types.Registry, units []*CodeUnit) {
	for _, unit := range units {
		if unit == nil || (unit.Package != "" && unit.Package != reg.Package) {
			continue
		}
		switch d := unit.Details.(type) {
		case GoTypeDetails:
			decl := &types.Decl{Name: unit.Name, Kind: types.DeclStruct, Value: d.Value, Line: unit.StartLine}
			for _, f := range d.Fields {
				decl.Fields = append(decl.Fields, types.Field{Name: f.Name, Type: f.Type, Embedded: f.Embedded})
			}
			reg.AddDecl(decl)
		case GoInterfaceDetails:
			reg.AddDecl(&types.Decl{Name: unit.Name, Kind: types.DeclInterface, Line: unit.StartLine})
		case GoNamedDetails:
			reg.AddDecl(&types.Decl{Name: unit.Name, Kind: types.DeclNamed, Underlying: d.Underlying, Line: unit.StartLine})
		case GoFunctionDetails:
			fn := &types.FuncDecl{Name: unit.Name, Receiver: d.ReceiverType, Signature: d.Signature}
			for _, p := range d.Parameters {
				fn.Params = append(fn.Params, types.Param{Name: p.Name, Type: p.Type})
			}
			for _, r := range d.Returns {
				fn.Results = append(fn.Results, r.Type)
			}
			reg.AddFunc(fn)
		case GoValueDetails:
			if unit.UnitType != "variable" {
				continue
			}
			values := splitTopLevel(d.Value)
			for i, name := range d.Names {
				typ := d.Type
				if typ == "" && len(values) == len(d.Names) {
					typ = literalType(values[i])
				}
				if typ != "" {
					reg.AddGlobal(name, typ)
				}
			}
		}
	}
}

// literalType infers the written type of an untyped initializer. Only literals and composite
// literals are recognised.
func literalType(expr string) string {
	expr = strings.TrimSpace(expr)
	switch {
	case expr == "":
		return ""
	case expr == "true" || expr == "false":
		return "bool"
	case expr[0] == '"' || expr[0] == '`':
		return "string"
	case expr[0] == '\'':
		return "rune"
	case expr[0] >= '0' && expr[0] <= '9':
		if strings.ContainsAny(expr, ".eE") && !strings.HasPrefix(expr, "0x") {
			return "float64"
		}
		return "int"
	}
	if m := compositeRe.FindStringSubmatch(expr); m != nil {
		if m[1] == "&" {
			return "*" + m[2]
		}
		return m[2]
	}
	return ""
}

// splitTopLevel splits an expression list on commas outside brackets and string literals.
func splitTopLevel(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(list); i++ {
		c := list[i]
		if quote != 0 {
			if c == '\\' && quote != '`' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '`', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(list[start:]))
}
