package lang

import (
	"regexp"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repoctx/internal/model"
)

// callNodes lists the call-expression node types of the supported grammars.
var callNodes = map[string]struct{}{
	"call":                   {}, // python, ruby
	"call_expression":        {}, // go, rust
	"method_call":            {}, // older ruby grammars
	"method_call_expression": {}, // older rust grammars
}

var callNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*[?!]?$`)

// newSymbol returns a symbol for a declaration node with its line span and
// raw calls filled in. Inputs are empty and the output is unknown.
func newSymbol(kind model.SymbolKind, name, file string, node *sitter.Node, source []byte) model.Symbol {
	start, end := lineSpan(node)
	return model.Symbol{
		Kind:          kind,
		Name:          name,
		File:          file,
		Inputs:        []string{},
		InputTypes:    []string{},
		Output:        model.Unknown,
		RawCalls:      callsIn(node, source),
		InternalCalls: []string{},
		ExternalCalls: []string{},
		CalledBy:      []string{},
		LineStart:     start,
		LineEnd:       end,
	}
}

// addInput appends a parameter, substituting the unknown placeholder for a
// missing type.
func addInput(sym *model.Symbol, name, typ string) {
	if name == "" {
		return
	}
	if typ == "" {
		typ = model.Unknown
	}
	sym.Inputs = append(sym.Inputs, name)
	sym.InputTypes = append(sym.InputTypes, typ)
}

func lineSpan(node *sitter.Node) (int, int) {
	return int(node.StartPoint().Row) + 1, int(node.EndPoint().Row) + 1
}

// fieldText returns the collapsed text of a named field, or "" if absent.
func fieldText(node *sitter.Node, field string, source []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return CollapseWhitespace(NodeText(child, source))
}

// callsIn returns the sorted set of call-target names found anywhere below node.
func callsIn(node *sitter.Node, source []byte) []string {
	set := make(map[string]struct{})
	collectCalls(node, source, set)
	calls := make([]string, 0, len(set))
	for name := range set {
		calls = append(calls, name)
	}
	sort.Strings(calls)
	return calls
}

// collectCalls records the callee name of every call node below node.
// ERROR subtrees are not traversed.
func collectCalls(node *sitter.Node, source []byte, out map[string]struct{}) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || child.Type() == "ERROR" {
			continue
		}
		if _, ok := callNodes[child.Type()]; ok {
			if callee := calleeNode(child); callee != nil {
				if name := lastSegment(NodeText(callee, source)); name != "" {
					out[name] = struct{}{}
				}
			}
		}
		collectCalls(child, source, out)
	}
}

func calleeNode(call *sitter.Node) *sitter.Node {
	for _, field := range []string{"function", "method"} {
		n := call.ChildByFieldName(field)
		if n == nil {
			continue
		}
		return unwrapGeneric(n)
	}
	if call.ChildCount() > 0 {
		return call.Child(0)
	}
	return nil
}

// unwrapGeneric strips explicit type arguments from a callee: rust's
// foo::<T>() is a generic_function, go's Map[int]() an index_expression or
// type_instantiation_expression around the function operand.
func unwrapGeneric(n *sitter.Node) *sitter.Node {
	for {
		var inner *sitter.Node
		switch n.Type() {
		case "generic_function":
			inner = n.ChildByFieldName("function")
		case "index_expression":
			inner = n.ChildByFieldName("operand")
		case "type_instantiation_expression":
			inner = n.ChildByFieldName("type")
			if inner == nil {
				inner = n.NamedChild(0)
			}
		}
		if inner == nil {
			return n
		}
		n = inner
	}
}

// lastSegment reduces callee text such as "module.obj.method" or
// "Vec::<u8>::new" to its final name. It returns "" when the final segment is
// not a plain identifier.
func lastSegment(text string) string {
	if i := strings.LastIndexAny(text, ".:"); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSpace(text)
	if !callNameRe.MatchString(text) {
		return ""
	}
	return text
}

// docRun configures precedingDoc for one comment convention.
type docRun struct {
	// comment reports whether a node type is a comment.
	comment func(nodeType string) bool
	// strip removes the doc marker; ok is false for comments that are not docs.
	strip func(text string) (line string, ok bool)
	// directive reports comments such as //go:noinline that may sit inside
	// or below a doc run without being part of it. Optional.
	directive func(text string) bool
	// skip lists node types allowed between the docs and the declaration.
	skip map[string]bool
}

// precedingDoc joins the contiguous run of doc comments that ends directly
// above node. A blank line or a non-doc node ends the run.
func precedingDoc(node *sitter.Node, source []byte, run docRun) string {
	var lines []string
	cur := node
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if int(cur.StartPoint().Row)-int(prev.EndPoint().Row) > 1 {
			break
		}
		if run.skip[prev.Type()] {
			cur = prev
			continue
		}
		if !run.comment(prev.Type()) {
			break
		}
		text := strings.TrimRight(NodeText(prev, source), "\r\n")
		if run.directive != nil && run.directive(text) {
			cur = prev
			continue
		}
		line, ok := run.strip(text)
		if !ok {
			break
		}
		lines = append(lines, line)
		cur = prev
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
