// Package incremental keeps an Index in step with the filesystem by
// re-extracting only the files whose fingerprint changed.
package incremental

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/phobologic/repoctx/internal/graph"
	"github.com/phobologic/repoctx/internal/model"
	"github.com/phobologic/repoctx/internal/parse"
)

// Changes lists the paths a sync touched, each sorted.
type Changes struct {
	Changed []string // added or modified
	Removed []string
}

// Empty reports whether no file changed.
func (c Changes) Empty() bool {
	return len(c.Changed) == 0 && len(c.Removed) == 0
}

// Diff compares two fingerprint maps. A path is changed when it is in cur
// and old lacks it or holds a different digest; it is removed when only old
// has it.
func Diff(old, cur model.FingerprintMap) Changes {
	c := Changes{Changed: []string{}, Removed: []string{}}
	for _, path := range cur.Paths() {
		if prev, ok := old[path]; !ok || prev != cur[path] {
			c.Changed = append(c.Changed, path)
		}
	}
	for _, path := range old.Paths() {
		if _, ok := cur[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}
	return c
}

// FileExtractor extracts one root-relative file. Implementations need not
// be safe for concurrent use.
type FileExtractor interface {
	File(rel string) (model.FileRecord, []model.Symbol, error)
}

// Syncer applies fingerprint diffs to an Index.
type Syncer struct {
	// NewExtractor is called once per worker.
	NewExtractor func() FileExtractor
	// Workers bounds parallel extraction; zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// NewSyncer returns a Syncer that parses files below root.
func NewSyncer(root string, workers int, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		NewExtractor: func() FileExtractor { return parse.NewExtractor(root) },
		Workers:      workers,
		Logger:       logger,
	}
}

// Build returns a fresh Index holding every file of cur.
func (s *Syncer) Build(ctx context.Context, stats model.RepoStats, cur model.FingerprintMap) (*model.Index, error) {
	idx := model.NewIndex(stats)
	if _, err := s.Sync(ctx, idx, nil, cur); err != nil {
		return nil, err
	}
	return idx, nil
}

// Sync mutates idx from the state described by old to the state described
// by cur. Records of changed and removed files are dropped, changed files
// are extracted again and the resolver runs over the whole symbol set.
//
// A file that cannot be read or parsed contributes no record. The index is
// left untouched when ctx is cancelled during extraction.
func (s *Syncer) Sync(ctx context.Context, idx *model.Index, old, cur model.FingerprintMap) (Changes, error) {
	changes := Diff(old, cur)

	extracted, err := s.extract(ctx, changes.Changed)
	if err != nil {
		return changes, err
	}

	stale := make(map[string]struct{}, len(changes.Changed)+len(changes.Removed))
	for _, p := range changes.Changed {
		stale[p] = struct{}{}
	}
	for _, p := range changes.Removed {
		stale[p] = struct{}{}
	}

	files := idx.Files[:0]
	for _, f := range idx.Files {
		if _, ok := stale[f.Path]; !ok {
			files = append(files, f)
		}
	}
	syms := idx.Symbols[:0]
	for _, sym := range idx.Symbols {
		if _, ok := stale[sym.File]; !ok {
			syms = append(syms, sym)
		}
	}
	for _, r := range extracted {
		files = append(files, r.record)
		syms = append(syms, r.symbols...)
	}
	idx.Files = files
	idx.Symbols = syms

	graph.Resolve(idx.Symbols)
	idx.Normalize()
	return changes, nil
}

type extraction struct {
	record  model.FileRecord
	symbols []model.Symbol
}

// extract runs the extractor over paths on a bounded worker pool and returns
// the successful results in path order.
func (s *Syncer) extract(ctx context.Context, paths []string) ([]extraction, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	type result struct {
		index int
		ex    extraction
	}

	numWorkers := s.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	work := make(chan int, len(paths))
	results := make(chan result, len(paths))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parsers
			ex := s.NewExtractor()
			if c, ok := ex.(interface{ Close() }); ok {
				defer c.Close()
			}

			for i := range work {
				if ctx.Err() != nil {
					continue
				}
				rec, syms, err := ex.File(paths[i])
				if err != nil {
					logger.Debug("skipping file", "path", paths[i], "error", err)
					continue
				}
				results <- result{index: i, ex: extraction{record: rec, symbols: syms}}
			}
		}()
	}

	for i := range paths {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	var collected []result
	for r := range results {
		collected = append(collected, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	out := make([]extraction, len(collected))
	for i, r := range collected {
		out[i] = r.ex
	}
	return out, nil
}
