// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/repoctx/internal/graph"
	"github.com/phobologic/repoctx/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Options selects optional sections.
type Options struct {
	// External adds a table of each symbol's unresolved calls.
	External bool
}

// Encode converts an Index into TOON format.
func Encode(repo string, idx *model.Index, opts Options) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(repo)))
	parts = append(parts, "stats:",
		fmt.Sprintf("  files: %d", idx.Stats.FileCount),
		fmt.Sprintf("  bytes: %d", idx.Stats.TotalBytes),
		fmt.Sprintf("  lines: %d", idx.Stats.TotalLines))

	var fileRows [][]string
	for i := range idx.Files {
		f := &idx.Files[i]
		fileRows = append(fileRows, []string{
			f.Path,
			f.Language,
			fmt.Sprintf("%d", f.Lines),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "language", "lines"}, fileRows))

	var symbolRows [][]string
	for i := range idx.Symbols {
		s := &idx.Symbols[i]
		symbolRows = append(symbolRows, []string{
			s.File,
			s.Name,
			string(s.Kind),
			fmt.Sprintf("%d-%d", s.LineStart, s.LineEnd),
			Signature(s),
			firstLine(s.Doc),
		})
	}
	parts = append(parts, formatTabular("symbols", []string{"file", "name", "kind", "lines", "signature", "doc"}, symbolRows))

	var callRows [][]string
	for _, e := range graph.CallEdges(idx) {
		callRows = append(callRows, []string{e.File, e.Caller, e.Callee})
	}
	parts = append(parts, formatTabular("calls", []string{"file", "caller", "callee"}, callRows))

	var depRows [][]string
	for _, d := range graph.FileDependencies(idx) {
		depRows = append(depRows, []string{
			d.Source,
			d.Target,
			strings.Join(d.Symbols, " "),
		})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "symbols"}, depRows))

	if opts.External {
		var extRows [][]string
		for i := range idx.Symbols {
			s := &idx.Symbols[i]
			if len(s.ExternalCalls) == 0 {
				continue
			}
			extRows = append(extRows, []string{s.File, s.Name, strings.Join(s.ExternalCalls, " ")})
		}
		parts = append(parts, formatTabular("external", []string{"file", "name", "calls"}, extRows))
	}

	return strings.Join(parts, "\n")
}

// Signature renders a symbol as name(input: type, ...) -> output. Unknown
// types and outputs are left out; classes render as their bare name.
func Signature(s *model.Symbol) string {
	if s.Kind == model.Class {
		return s.Name
	}
	params := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		params[i] = in
		if i < len(s.InputTypes) && s.InputTypes[i] != model.Unknown {
			params[i] += ": " + s.InputTypes[i]
		}
	}
	sig := s.Name + "(" + strings.Join(params, ", ") + ")"
	if s.Output != "" && s.Output != model.Unknown {
		sig += " -> " + s.Output
	}
	return sig
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
