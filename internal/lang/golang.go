package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/phobologic/repoctx/internal/model"
)

func init() {
	Languages["go"] = &Language{
		Name:       "go",
		Extensions: []string{".go"},
		lang:       golang.GetLanguage(),
		Extract:    goExtract,
	}
}

var goDoc = docRun{
	comment: func(t string) bool { return t == "comment" },
	directive: func(text string) bool {
		return strings.HasPrefix(text, "//go:")
	},
	strip: func(text string) (string, bool) {
		switch {
		case strings.HasPrefix(text, "//"):
			return strings.TrimSpace(text[2:]), true
		case strings.HasPrefix(text, "/*"):
			return strings.TrimSpace(strings.TrimSuffix(text[2:], "*/")), true
		}
		return "", false
	},
}

func goExtract(root *sitter.Node, source []byte, file string) []model.Symbol {
	var syms []model.Symbol
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration", "method_declaration":
			syms = append(syms, goFunction(node, source, file))
		case "type_declaration":
			syms = append(syms, goTypes(node, source, file)...)
		}
	}
	return syms
}

func goFunction(node *sitter.Node, source []byte, file string) model.Symbol {
	name := fieldText(node, "name", source)
	if name == "" {
		name = "<?>"
	}
	sym := newSymbol(model.Function, name, file, node, source)
	if recv := node.ChildByFieldName("receiver"); recv != nil {
		goParams(&sym, recv, source)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		goParams(&sym, params, source)
	}
	if result := fieldText(node, "result", source); result != "" {
		sym.Output = result
	}
	sym.Doc = precedingDoc(node, source, goDoc)
	return sym
}

// goParams appends every parameter of a parameter_list, expanding grouped
// names ("a, b int") and naming unnamed parameters "_".
func goParams(sym *model.Symbol, list *sitter.Node, source []byte) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		p := list.NamedChild(i)
		typ := fieldText(p, "type", source)
		switch p.Type() {
		case "parameter_declaration":
			var names []string
			for j := 0; j < int(p.NamedChildCount()); j++ {
				if child := p.NamedChild(j); child.Type() == "identifier" {
					names = append(names, NodeText(child, source))
				}
			}
			if len(names) == 0 {
				names = []string{"_"}
			}
			for _, n := range names {
				addInput(sym, n, typ)
			}
		case "variadic_parameter_declaration":
			name := fieldText(p, "name", source)
			if name == "" {
				name = "_"
			}
			addInput(sym, name, "..."+typ)
		}
	}
}

// goTypes returns one class symbol per type spec. A grouped declaration
// type ( A int; B string ) spans each spec separately.
func goTypes(decl *sitter.Node, source []byte, file string) []model.Symbol {
	var specs []*sitter.Node
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if child.Type() == "type_spec" || child.Type() == "type_alias" {
			specs = append(specs, child)
		}
	}

	var syms []model.Symbol
	for _, spec := range specs {
		spanNode := spec
		if len(specs) == 1 {
			spanNode = decl
		}
		name := fieldText(spec, "name", source)
		if name == "" {
			continue
		}
		sym := newSymbol(model.Class, name, file, spanNode, source)
		if len(specs) == 1 {
			sym.Doc = precedingDoc(decl, source, goDoc)
		} else {
			sym.Doc = precedingDoc(spec, source, goDoc)
		}
		syms = append(syms, sym)
	}
	return syms
}
