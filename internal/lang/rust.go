package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/phobologic/repoctx/internal/model"
)

func init() {
	Languages["rust"] = &Language{
		Name:       "rust",
		Extensions: []string{".rs"},
		lang:       rust.GetLanguage(),
		Extract:    rustExtract,
	}
}

// rustTypeItems are the top-level items indexed as classes.
var rustTypeItems = map[string]bool{
	"struct_item": true,
	"enum_item":   true,
	"union_item":  true,
	"trait_item":  true,
	"type_item":   true,
}

var rustDoc = docRun{
	comment: func(t string) bool { return t == "line_comment" || t == "block_comment" },
	strip: func(text string) (string, bool) {
		switch {
		case strings.HasPrefix(text, "////"):
			return "", false
		case strings.HasPrefix(text, "///"):
			return strings.TrimSpace(text[3:]), true
		case strings.HasPrefix(text, "/**") && strings.HasSuffix(text, "*/"):
			return strings.TrimSpace(text[3 : len(text)-2]), true
		}
		return "", false
	},
	skip: map[string]bool{"attribute_item": true},
}

func rustExtract(root *sitter.Node, source []byte, file string) []model.Symbol {
	var syms []model.Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch {
		case node.Type() == "function_item":
			syms = append(syms, rustFunction(node, source, file))
		case rustTypeItems[node.Type()]:
			sym := newSymbol(model.Class, rustName(node, source), file, node, source)
			sym.Doc = precedingDoc(node, source, rustDoc)
			syms = append(syms, sym)
		}
	}
	return syms
}

func rustFunction(node *sitter.Node, source []byte, file string) model.Symbol {
	sym := newSymbol(model.Function, rustName(node, source), file, node, source)
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			switch p.Type() {
			case "parameter":
				addInput(&sym, fieldText(p, "pattern", source), fieldText(p, "type", source))
			case "self_parameter":
				addInput(&sym, CollapseWhitespace(NodeText(p, source)), "Self")
			}
		}
	}
	if ret := fieldText(node, "return_type", source); ret != "" {
		sym.Output = ret
	}
	sym.Doc = precedingDoc(node, source, rustDoc)
	return sym
}

func rustName(node *sitter.Node, source []byte) string {
	if name := fieldText(node, "name", source); name != "" {
		return name
	}
	return "<?>"
}
