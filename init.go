package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const (
	sentinelStart = "<!-- repoctx:start -->"
	sentinelEnd   = "<!-- repoctx:end -->"
)

// newInitCmd builds the `repoctx init` subcommand, which writes (or updates)
// a repoctx usage section in a CLAUDE.md file.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [path-to-CLAUDE.md]",
		Short: "Write a repoctx usage section to CLAUDE.md",
		Long: `Write a repoctx usage section to a CLAUDE.md file. The section is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

path-to-CLAUDE.md defaults to ./CLAUDE.md.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section := generateSection()

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(stdout, section)
				return nil
			}

			path := "CLAUDE.md"
			if len(args) > 0 {
				path = args[0]
			}

			existing, _ := os.ReadFile(path)
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(stdout, updated)
				return nil
			}

			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}

			_, _ = fmt.Fprintf(stderr, "wrote repoctx section to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the full sentinel-wrapped repoctx documentation block.
func generateSection() string {
	body := `## repoctx: Repository Context

Run ` + "`repoctx`" + ` via the Bash tool at the start of any task on an unfamiliar
codebase. It prints every top-level function and type with its signature,
line span and the calls it makes inside the repository.

**Availability:** Check with ` + "`repoctx --version`" + ` first; skip gracefully if
not found.

**Run it:**
` + "```" + `bash
repoctx                       # current directory, all languages
repoctx /path/to/repo         # explicit path
repoctx -l go,python          # filter by language
repoctx --format json         # full index as JSON
repoctx --force               # rebuild instead of syncing
` + "```" + `

**State:** The index lives in ` + "`.context/`" + ` at the repository root and only
changed files are parsed again on later runs. Add ` + "`.context/`" + ` to ` + "`.gitignore`" + `.

**All flags:** ` + "`repoctx --help`" + `

**How to use the output, follow these rules:**

1. **Use ` + "`symbols`" + ` instead of Grep to find definitions.** Before searching
   for a function or type, check the ` + "`symbols`" + ` table. It lists every
   top-level definition with file, line span and signature.

2. **Use ` + "`calls`" + ` to trace call chains.** Each row is a call from one
   symbol to a name defined somewhere in the repository.

3. **Use ` + "`dependencies`" + ` to see which files lean on which.**

4. **Only fall back to Glob/Grep for things repoctx cannot answer**, e.g.
   method-level detail or searching within a file you've already identified.`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
