package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/repoctx/internal/model"
)

func init() {
	Languages["python"] = &Language{
		Name:       "python",
		Extensions: []string{".py", ".pyi"},
		lang:       python.GetLanguage(),
		Extract:    pythonExtract,
	}
}

func pythonExtract(root *sitter.Node, source []byte, file string) []model.Symbol {
	var syms []model.Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		// @decorator
		// def f(): ...
		if node.Type() == "decorated_definition" {
			if def := node.ChildByFieldName("definition"); def != nil {
				node = def
			}
		}
		switch node.Type() {
		case "function_definition":
			syms = append(syms, pythonFunction(node, source, file))
		case "class_definition":
			syms = append(syms, pythonClass(node, source, file))
		}
	}
	return syms
}

func pythonFunction(node *sitter.Node, source []byte, file string) model.Symbol {
	sym := newSymbol(model.Function, pythonName(node, source), file, node, source)
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			name, typ := pythonParam(params.NamedChild(i), source)
			addInput(&sym, name, typ)
		}
	}
	if ret := fieldText(node, "return_type", source); ret != "" {
		sym.Output = ret
	}
	sym.Doc = pythonDocstring(node, source)
	return sym
}

func pythonClass(node *sitter.Node, source []byte, file string) model.Symbol {
	sym := newSymbol(model.Class, pythonName(node, source), file, node, source)
	sym.Doc = pythonDocstring(node, source)
	return sym
}

func pythonName(node *sitter.Node, source []byte) string {
	if name := fieldText(node, "name", source); name != "" {
		return name
	}
	return "<?>"
}

// pythonParam returns the name and annotation of one parameter node, or an
// empty name for separators such as the bare "*".
func pythonParam(p *sitter.Node, source []byte) (string, string) {
	switch p.Type() {
	case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
		return NodeText(p, source), ""
	case "default_parameter":
		return fieldText(p, "name", source), ""
	case "typed_default_parameter":
		return fieldText(p, "name", source), fieldText(p, "type", source)
	case "typed_parameter":
		// typed_parameter has no name field; the pattern is its first named child.
		var name string
		if first := p.NamedChild(0); first != nil && first.Type() != "type" {
			name = NodeText(first, source)
		}
		return name, fieldText(p, "type", source)
	}
	return "", ""
}

// pythonDocstring returns the string literal that opens a definition's body.
func pythonDocstring(node *sitter.Node, source []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	text := strings.TrimLeft(NodeText(str, source), "rRuUbBfF")
	return strings.TrimSpace(strings.Trim(text, `"'`))
}
