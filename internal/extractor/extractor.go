package extractor

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor runs the declaration query of a language extractor over parse trees.
type Extractor struct {
	langExtractor LanguageExtractor
	langName      string
	query         *sitter.Query
}

// NewExtractor creates an extractor for lang. Only "go" is supported.
func NewExtractor(lang string) (*Extractor, error) {
	var langExt LanguageExtractor
	switch lang {
	case "go":
		langExt = &GoExtractor{}
	default:
		return nil, errors.WithHint(errors.Newf("unsupported language: %s", lang), "only go sources are analysed")
	}
	query, err := sitter.NewQuery([]byte(langExt.GetQuery()), langExt.GetLanguage())
	if err != nil {
		return nil, errors.Wrap(err, "compile declaration query")
	}
	return &Extractor{langExtractor: langExt, langName: lang, query: query}, nil
}

// ExtractFromFile reads, parses and extracts a single source file.
func (e *Extractor) ExtractFromFile(filepath string) ([]*CodeUnit, error) {
	sourceCode, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", filepath)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, sourceCode)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", filepath)
	}
	defer tree.Close()

	return e.ExtractTree(filepath, sourceCode, tree.RootNode()), nil
}

// PackageName returns the package clause name of a source file.
func (e *Extractor) PackageName(filepath string) (string, error) {
	sourceCode, err := os.ReadFile(filepath)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", filepath)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.langExtractor.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, sourceCode)
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", filepath)
	}
	defer tree.Close()

	return e.detectPackageName(tree.RootNode(), sourceCode), nil
}

// ExtractTree extracts the declarations of an already parsed file.
func (e *Extractor) ExtractTree(filepath string, sourceCode []byte, root *sitter.Node) []*CodeUnit {
	packageName := e.detectPackageName(root, sourceCode)

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(e.query, root)

	var codeUnits []*CodeUnit
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			captureName := e.query.CaptureNameForId(c.Index)
			unit := e.langExtractor.ExtractUnit(captureName, c.Node, sourceCode, filepath, packageName)
			if unit != nil {
				codeUnits = append(codeUnits, unit)
			}
		}
	}
	return codeUnits
}

func (e *Extractor) detectPackageName(root *sitter.Node, sourceCode []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		clause := root.NamedChild(i)
		if clause.Type() != "package_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			if id := clause.NamedChild(j); id.Type() == "package_identifier" {
				return id.Content(sourceCode)
			}
		}
	}
	return ""
}
