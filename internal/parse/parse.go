// Package parse turns repository files into file records and symbols.
package parse

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repoctx/internal/lang"
	"github.com/phobologic/repoctx/internal/model"
)

// ErrUnsupported is returned for files whose extension maps to no registered
// language.
var ErrUnsupported = errors.New("unsupported language")

// Extractor reads and parses files below a repository root. It keeps one
// tree-sitter parser per language and is not safe for concurrent use; each
// worker goroutine owns its own Extractor.
type Extractor struct {
	root    string
	parsers map[string]*sitter.Parser
}

// NewExtractor returns an Extractor for files below root.
func NewExtractor(root string) *Extractor {
	return &Extractor{root: root, parsers: make(map[string]*sitter.Parser)}
}

// File extracts the FileRecord and symbols of the file at the root-relative,
// slash-separated path rel. Symbols are returned in source order.
//
// A read or parse failure returns an error and no record; the caller drops
// the file from the index.
func (e *Extractor) File(rel string) (model.FileRecord, []model.Symbol, error) {
	name := lang.ForExtension(path.Ext(rel))
	if name == "" {
		return model.FileRecord{}, nil, fmt.Errorf("%s: %w", rel, ErrUnsupported)
	}
	source, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if err != nil {
		return model.FileRecord{}, nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return e.Source(rel, name, source)
}

// Source extracts from already-read file content.
func (e *Extractor) Source(rel, langName string, source []byte) (model.FileRecord, []model.Symbol, error) {
	l := lang.Languages[langName]
	if l == nil {
		return model.FileRecord{}, nil, fmt.Errorf("%s: %w", rel, ErrUnsupported)
	}
	rec := model.FileRecord{
		Path:     rel,
		Language: langName,
		Bytes:    int64(len(source)),
		Lines:    model.CountLines(source),
	}

	parser, ok := e.parsers[langName]
	if !ok {
		parser = l.NewParser()
		e.parsers[langName] = parser
	}
	tree, err := l.Parse(parser, source)
	if err != nil {
		return model.FileRecord{}, nil, fmt.Errorf("parsing %s: %w", rel, err)
	}
	defer tree.Close()

	syms := l.Extract(tree.RootNode(), source, rel)
	if syms == nil {
		syms = []model.Symbol{}
	}
	return rec, syms, nil
}

// Close releases the cached parsers.
func (e *Extractor) Close() {
	for name, p := range e.parsers {
		p.Close()
		delete(e.parsers, name)
	}
}
