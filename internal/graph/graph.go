// Package graph resolves call names against the repository's symbol set and
// derives file-level dependency edges from the result.
package graph

import (
	"sort"

	"github.com/phobologic/repoctx/internal/model"
)

// Dependency is a file-level edge: Source calls Symbols defined in Target.
type Dependency struct {
	Source  string
	Target  string
	Symbols []string
}

// CallEdge is one resolved caller → callee pair.
type CallEdge struct {
	Caller string
	File   string
	Callee string
}

// Resolve rewrites InternalCalls, ExternalCalls and CalledBy of every symbol
// from the symbols' RawCalls.
//
// A raw call is internal when any symbol anywhere in syms carries that name.
// Same-named symbols are not told apart, so an unrelated symbol can make a
// call internal. Resolution needs two sweeps because CalledBy depends on the
// internal calls of every other symbol.
func Resolve(syms []model.Symbol) {
	known := make(map[string]struct{}, len(syms))
	for i := range syms {
		known[syms[i].Name] = struct{}{}
	}

	callers := make(map[string]map[string]struct{})
	for i := range syms {
		s := &syms[i]
		s.InternalCalls = []string{}
		s.ExternalCalls = []string{}
		for _, call := range s.RawCalls {
			if _, ok := known[call]; !ok {
				s.ExternalCalls = append(s.ExternalCalls, call)
				continue
			}
			s.InternalCalls = append(s.InternalCalls, call)
			if callers[call] == nil {
				callers[call] = make(map[string]struct{})
			}
			callers[call][s.Name] = struct{}{}
		}
	}

	for i := range syms {
		syms[i].CalledBy = sortedKeys(callers[syms[i].Name])
	}
}

// FileDependencies returns one edge per (caller file, defining file) pair,
// listing the called symbol names. Edges are sorted and never point at their
// own source file.
func FileDependencies(idx *model.Index) []Dependency {
	// Build definition index: symbol name → set of files that define it
	defines := make(map[string]map[string]struct{})
	for i := range idx.Symbols {
		s := &idx.Symbols[i]
		if defines[s.Name] == nil {
			defines[s.Name] = make(map[string]struct{})
		}
		defines[s.Name][s.File] = struct{}{}
	}

	type edgeKey struct{ src, tgt string }
	edgeSymbols := make(map[edgeKey]map[string]struct{})

	for i := range idx.Symbols {
		s := &idx.Symbols[i]
		for _, call := range s.InternalCalls {
			for defFile := range defines[call] {
				if defFile == s.File {
					continue // no self-edges
				}
				key := edgeKey{s.File, defFile}
				if edgeSymbols[key] == nil {
					edgeSymbols[key] = make(map[string]struct{})
				}
				edgeSymbols[key][call] = struct{}{}
			}
		}
	}

	deps := make([]Dependency, 0, len(edgeSymbols))
	for key, syms := range edgeSymbols {
		deps = append(deps, Dependency{
			Source:  key.src,
			Target:  key.tgt,
			Symbols: sortedKeys(syms),
		})
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})

	return deps
}

// CallEdges lists every resolved internal call, sorted by caller file, caller
// and callee. Duplicate edges are dropped.
func CallEdges(idx *model.Index) []CallEdge {
	seen := make(map[CallEdge]struct{})
	var edges []CallEdge
	for i := range idx.Symbols {
		s := &idx.Symbols[i]
		for _, callee := range s.InternalCalls {
			e := CallEdge{Caller: s.Name, File: s.File, Callee: callee}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].File != edges[j].File {
			return edges[i].File < edges[j].File
		}
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})

	return edges
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
