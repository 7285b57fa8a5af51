// Package lang provides a language registry mapping file extensions to
// tree-sitter grammars and their symbol extractors.
package lang

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repoctx/internal/model"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// ErrNoTree is returned when the parser yields no syntax tree.
var ErrNoTree = errors.New("parser returned no tree")

// ExtractFunc turns the root of a parsed file into top-level symbols.
// Implementations must not panic on malformed trees; unrecognized nodes are
// skipped.
type ExtractFunc func(root *sitter.Node, source []byte, file string) []model.Symbol

// Language holds tree-sitter configuration and the symbol extractor for a
// supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	// Extract produces the symbols of one file.
	Extract ExtractFunc
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Parse parses source with parser, which must have been created by
// NewParser. The caller owns the returned tree and must Close it.
func (l *Language) Parse(parser *sitter.Parser, source []byte) (*sitter.Tree, error) {
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.Name, err)
	}
	if tree == nil {
		return nil, ErrNoTree
	}
	return tree, nil
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// Names returns the registered language names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Languages))
	for name := range Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodeText returns the source text of a tree-sitter node. Invalid UTF-8 is
// replaced with U+FFFD so the text survives JSON encoding unchanged.
func NodeText(node *sitter.Node, source []byte) string {
	return strings.ToValidUTF8(string(source[node.StartByte():node.EndByte()]), "\uFFFD")
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
