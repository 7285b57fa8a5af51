// Package model defines core data structures for repoctx.
package model

import "sort"

// SymbolKind indicates the syntactic kind of a symbol.
type SymbolKind string

const (
	Class    SymbolKind = "class"
	Function SymbolKind = "function"
)

// Unknown is the placeholder for a missing type annotation.
const Unknown = "unknown"

// RepoStats aggregates recognized-language files after ignore filtering.
// It is a cheap change signal, not a correctness guard.
type RepoStats struct {
	FileCount  int   `json:"file_count"`
	TotalBytes int64 `json:"total_bytes"`
	TotalLines int   `json:"total_lines"`
}

// FileRecord describes one indexed source file.
type FileRecord struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Bytes    int64  `json:"bytes"`
	Lines    int    `json:"lines"`
}

// Symbol is a top-level function or class/type declaration.
//
// InputTypes is aligned 1:1 with Inputs. RawCalls is the sorted set of
// call-target names seen in the declaration; InternalCalls, ExternalCalls and
// CalledBy are derived from the whole symbol set by the resolver.
type Symbol struct {
	Kind       SymbolKind `json:"kind"`
	Name       string     `json:"name"`
	File       string     `json:"file"`
	Inputs     []string   `json:"inputs"`
	InputTypes []string   `json:"input_types"`
	Output     string     `json:"output"`

	RawCalls      []string `json:"raw_calls"`
	InternalCalls []string `json:"internal_calls"`
	ExternalCalls []string `json:"external_calls"`
	CalledBy      []string `json:"called_by"`

	Doc string `json:"doc,omitempty"`

	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`
}

// Index is the complete symbol index of a repository.
type Index struct {
	Stats   RepoStats    `json:"stats"`
	Files   []FileRecord `json:"files"`
	Symbols []Symbol     `json:"symbols"`
}

// FingerprintMap maps a root-relative, slash-separated file path to the hex
// digest of its content.
type FingerprintMap map[string]string

// SyncMeta is the synchronization state persisted next to the Index.
// Fingerprints must describe exactly the files that produced the Index.
type SyncMeta struct {
	Version      int            `json:"version"`
	Hash         string         `json:"hash"`
	Stats        RepoStats      `json:"stats"`
	Fingerprints FingerprintMap `json:"file_hashes"`
}

// NewIndex returns an empty Index with non-nil slices.
func NewIndex(stats RepoStats) *Index {
	return &Index{
		Stats:   stats,
		Files:   []FileRecord{},
		Symbols: []Symbol{},
	}
}

// Equal reports whether two fingerprint maps hold the same entries.
func (m FingerprintMap) Equal(other FingerprintMap) bool {
	if len(m) != len(other) {
		return false
	}
	for path, h := range m {
		if oh, ok := other[path]; !ok || oh != h {
			return false
		}
	}
	return true
}

// Paths returns the map's keys in sorted order.
func (m FingerprintMap) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Normalize orders files by path and symbols by file path, keeping each
// file's extraction order. Slice fields are made non-nil so an Index
// compares equal after a round-trip through a store.
func (idx *Index) Normalize() {
	if idx.Files == nil {
		idx.Files = []FileRecord{}
	}
	if idx.Symbols == nil {
		idx.Symbols = []Symbol{}
	}
	sort.SliceStable(idx.Files, func(i, j int) bool {
		return idx.Files[i].Path < idx.Files[j].Path
	})
	sort.SliceStable(idx.Symbols, func(i, j int) bool {
		return idx.Symbols[i].File < idx.Symbols[j].File
	})
	for i := range idx.Symbols {
		idx.Symbols[i].normalize()
	}
}

func (s *Symbol) normalize() {
	s.Inputs = nonNil(s.Inputs)
	s.InputTypes = nonNil(s.InputTypes)
	s.RawCalls = nonNil(s.RawCalls)
	s.InternalCalls = nonNil(s.InternalCalls)
	s.ExternalCalls = nonNil(s.ExternalCalls)
	s.CalledBy = nonNil(s.CalledBy)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// HasFile reports whether the Index holds a FileRecord for path.
func (idx *Index) HasFile(path string) bool {
	for i := range idx.Files {
		if idx.Files[i].Path == path {
			return true
		}
	}
	return false
}

// SymbolsNamed returns every symbol with the given name, in index order.
func (idx *Index) SymbolsNamed(name string) []*Symbol {
	var out []*Symbol
	for i := range idx.Symbols {
		if idx.Symbols[i].Name == name {
			out = append(out, &idx.Symbols[i])
		}
	}
	return out
}

// CountLines returns the number of lines in data as an editor shows them:
// a trailing newline does not start a new line and empty data has none.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
