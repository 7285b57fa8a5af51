package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"

	"github.com/phobologic/repoctx/internal/model"
)

func init() {
	Languages["ruby"] = &Language{
		Name:       "ruby",
		Extensions: []string{".rb"},
		lang:       ruby.GetLanguage(),
		Extract:    rubyExtract,
	}
}

var rubyDoc = docRun{
	comment: func(t string) bool { return t == "comment" },
	strip: func(text string) (string, bool) {
		if !strings.HasPrefix(text, "#") || strings.HasPrefix(text, "#!") {
			return "", false
		}
		return strings.TrimSpace(text[1:]), true
	},
}

func rubyExtract(root *sitter.Node, source []byte, file string) []model.Symbol {
	var syms []model.Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "method", "singleton_method":
			syms = append(syms, rubyMethod(node, source, file))
		case "class", "module":
			name := rubyClassName(node, source)
			if name == "" {
				continue
			}
			sym := newSymbol(model.Class, name, file, node, source)
			sym.Doc = precedingDoc(node, source, rubyDoc)
			syms = append(syms, sym)
		}
	}
	return syms
}

func rubyMethod(node *sitter.Node, source []byte, file string) model.Symbol {
	name := fieldText(node, "name", source)
	if name == "" {
		name = "<?>"
	}
	sym := newSymbol(model.Function, name, file, node, source)
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() == "identifier" {
				addInput(&sym, NodeText(p, source), "")
				continue
			}
			// optional, keyword, splat, hash splat and block parameters
			// all carry a name field.
			addInput(&sym, fieldText(p, "name", source), "")
		}
	}
	sym.Doc = precedingDoc(node, source, rubyDoc)
	return sym
}

// rubyClassName extracts the name from a class or module node.
func rubyClassName(node *sitter.Node, source []byte) string {
	if name := fieldText(node, "name", source); name != "" {
		return name
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "constant" || child.Type() == "scope_resolution" {
			return NodeText(child, source)
		}
	}
	return ""
}
