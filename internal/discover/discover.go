// Package discover walks a repository and produces the snapshot that drives
// change detection: aggregate stats plus a content fingerprint per file.
package discover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/repoctx/internal/lang"
	"github.com/phobologic/repoctx/internal/model"
)

// Fingerprint algorithm names.
const (
	HashSHA256 = "sha256"
	HashXXH3   = "xxh3"
)

// StoreDir is the directory under the repository root that holds the
// persisted index. It is never walked.
const StoreDir = ".context"

// Entry is a discovered source file.
type Entry struct {
	Path     string // root-relative, slash-separated
	Language string
}

// Snapshot is the observed state of a repository at one point in time.
type Snapshot struct {
	Stats        model.RepoStats
	Fingerprints model.FingerprintMap
	Files        []Entry // sorted by path
}

// Options controls which files are part of a snapshot.
type Options struct {
	// Languages restricts the snapshot to the named languages. Empty means all.
	Languages []string
	// ExtraIgnore adds directory or file names to the fixed ignore set.
	ExtraIgnore []string
	// RespectGitignore excludes files ignored by git.
	RespectGitignore bool
	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64
	// Hash selects the fingerprint algorithm; empty means sha256.
	Hash string
	// Workers bounds parallel hashing; zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

var skipNames = map[string]struct{}{
	".git":          {},
	".hg":           {},
	".svn":          {},
	".venv":         {},
	"venv":          {},
	"env":           {},
	".env":          {},
	"__pycache__":   {},
	"node_modules":  {},
	"target":        {},
	"dist":          {},
	"build":         {},
	".out":          {},
	".cache":        {},
	".idea":         {},
	".vscode":       {},
	".tox":          {},
	".mypy_cache":   {},
	".pytest_cache": {},
	StoreDir:        {},
}

// Ignored reports whether any segment of the slash-separated path rel is in
// the fixed ignore set or in extra.
func Ignored(rel string, extra []string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if _, ok := skipNames[seg]; ok {
			return true
		}
		for _, e := range extra {
			if seg == e {
				return true
			}
		}
	}
	return false
}

// HashFunc returns the fingerprint function for an algorithm name.
func HashFunc(name string) (func([]byte) string, error) {
	switch name {
	case "", HashSHA256:
		return func(b []byte) string {
			sum := sha256.Sum256(b)
			return hex.EncodeToString(sum[:])
		}, nil
	case HashXXH3:
		return func(b []byte) string {
			sum := xxh3.Hash128(b).Bytes()
			return hex.EncodeToString(sum[:])
		}, nil
	}
	return nil, fmt.Errorf("unknown hash algorithm %q", name)
}

// Take walks root and fingerprints every recognized source file.
// Files that cannot be read are left out of the snapshot.
func Take(ctx context.Context, root string, opts Options) (*Snapshot, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hash, err := HashFunc(opts.Hash)
	if err != nil {
		return nil, err
	}

	entries, err := Files(root, opts)
	if err != nil {
		return nil, err
	}

	type result struct {
		ok    bool
		hash  string
		bytes int64
		lines int
	}
	results := make([]result, len(entries))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Path)))
			if err != nil {
				logger.Warn("skipping unreadable file", "path", e.Path, "error", err)
				return nil
			}
			results[i] = result{
				ok:    true,
				hash:  hash(data),
				bytes: int64(len(data)),
				lines: model.CountLines(data),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Fingerprints: make(model.FingerprintMap, len(entries)),
		Files:        make([]Entry, 0, len(entries)),
	}
	for i, e := range entries {
		r := results[i]
		if !r.ok {
			continue
		}
		snap.Files = append(snap.Files, e)
		snap.Fingerprints[e.Path] = r.hash
		snap.Stats.FileCount++
		snap.Stats.TotalBytes += r.bytes
		snap.Stats.TotalLines += r.lines
	}
	return snap, nil
}

// Files lists the recognized source files under root, sorted by path.
// Only the filtering options are consulted.
func Files(root string, opts Options) ([]Entry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}

	var gitFiles map[string]struct{}
	var gi *ignore.GitIgnore
	if opts.RespectGitignore {
		gitFiles = gitLsFiles(root)
		if gitFiles == nil {
			gi = loadGitignore(root)
		}
	}

	var results []Entry
	var warnOnce sync.Once

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			warnOnce.Do(func() {
				logger.Warn("skipping unreadable path", "path", path, "error", err)
			})
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if Ignored(d.Name(), opts.ExtraIgnore) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if Ignored(d.Name(), opts.ExtraIgnore) {
			return nil
		}

		langName := lang.ForExtension(filepath.Ext(d.Name()))
		if langName == "" {
			return nil
		}
		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if opts.MaxFileSize > 0 {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() > opts.MaxFileSize {
				logger.Warn("skipping large file", "path", rel, "bytes", info.Size(), "limit", opts.MaxFileSize)
				return nil
			}
		}

		results = append(results, Entry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
