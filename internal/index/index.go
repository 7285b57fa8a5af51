// Package index loads the persisted repository index and brings it up to
// date with the working tree, rebuilding from scratch only when the stored
// state cannot be trusted.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/phobologic/repoctx/internal/config"
	"github.com/phobologic/repoctx/internal/discover"
	"github.com/phobologic/repoctx/internal/incremental"
	"github.com/phobologic/repoctx/internal/model"
	"github.com/phobologic/repoctx/internal/store"
)

// FormatVersion identifies the extractor output format. Stored state with a
// different version is rebuilt.
const FormatVersion = 1

// Mode says how a run produced its Index.
type Mode string

const (
	ModeBuild     Mode = "build"
	ModeSync      Mode = "sync"
	ModeUnchanged Mode = "unchanged"
)

// Result describes one run.
type Result struct {
	Mode Mode
	// Reason explains a full build.
	Reason  string
	Changed []string
	Removed []string
	// StatsMatched reports whether the aggregate stats equalled the stored ones.
	StatsMatched bool
}

// Options configures an Indexer.
type Options struct {
	Config config.Config
	Logger *slog.Logger
}

// Indexer keeps one repository's index current. It holds the store open
// between runs and is not safe for concurrent use.
type Indexer struct {
	root   string
	cfg    config.Config
	store  store.Store
	syncer *incremental.Syncer
	logger *slog.Logger
}

// Open prepares an Indexer for root, opening the configured store under
// root/.context.
func Open(root string, opts Options) (*Indexer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	st, err := store.Open(opts.Config.Store, filepath.Join(root, discover.StoreDir))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &Indexer{
		root:   root,
		cfg:    opts.Config,
		store:  st,
		syncer: incremental.NewSyncer(root, opts.Config.Workers, logger),
		logger: logger,
	}, nil
}

// Close releases the store.
func (ix *Indexer) Close() error {
	return ix.store.Close()
}

// LoadOrBuild opens an Indexer for root, runs it once and closes it.
func LoadOrBuild(ctx context.Context, root string, opts Options) (*model.Index, Result, error) {
	ix, err := Open(root, opts)
	if err != nil {
		return nil, Result{}, err
	}
	idx, res, err := ix.Run(ctx, false)
	if cerr := ix.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing store: %w", cerr)
	}
	return idx, res, err
}

// Run snapshots the repository and returns an up-to-date Index.
//
// When the stored fingerprints equal the snapshot the stored Index is
// returned and nothing is written. Otherwise the stored Index is synced with
// the fingerprint diff, or rebuilt when force is set or the stored state is
// missing, corrupt or from another format. Differing stats alone never force
// a rebuild; the fingerprint diff decides what is extracted. Only a failure
// to persist the result is returned as an error.
func (ix *Indexer) Run(ctx context.Context, force bool) (*model.Index, Result, error) {
	snap, err := discover.Take(ctx, ix.root, ix.cfg.SnapshotOptions(ix.logger))
	if err != nil {
		return nil, Result{}, fmt.Errorf("snapshot: %w", err)
	}
	ix.logger.Debug("snapshot.done", "files", snap.Stats.FileCount, "bytes", snap.Stats.TotalBytes)

	prev, meta, reason := ix.loadPrior(force)
	if reason != "" {
		ix.logger.Info("index.rebuild", "reason", reason)
		idx, err := ix.syncer.Build(ctx, snap.Stats, snap.Fingerprints)
		if err != nil {
			return nil, Result{}, err
		}
		res := Result{Mode: ModeBuild, Reason: reason, Changed: snap.Fingerprints.Paths(), Removed: []string{}}
		return idx, res, ix.save(idx, snap)
	}

	res := Result{StatsMatched: meta.Stats == snap.Stats}
	if res.StatsMatched && meta.Fingerprints.Equal(snap.Fingerprints) {
		res.Mode = ModeUnchanged
		res.Changed, res.Removed = []string{}, []string{}
		return prev, res, nil
	}
	if !res.StatsMatched {
		ix.logger.Debug("sync.stats_mismatch", "stored", meta.Stats, "current", snap.Stats)
	}

	changes, err := ix.syncer.Sync(ctx, prev, meta.Fingerprints, snap.Fingerprints)
	if err != nil {
		return nil, Result{}, err
	}
	prev.Stats = snap.Stats
	res.Mode = ModeSync
	res.Changed, res.Removed = changes.Changed, changes.Removed
	ix.logger.Info("sync.diff", "changed", len(changes.Changed), "removed", len(changes.Removed))
	return prev, res, ix.save(prev, snap)
}

// loadPrior returns the stored state, or a non-empty reason why it cannot
// be used.
func (ix *Indexer) loadPrior(force bool) (*model.Index, *model.SyncMeta, string) {
	if force {
		return nil, nil, "forced"
	}
	idx, meta, err := ix.store.Load()
	if err != nil {
		if !errors.Is(err, store.ErrNoState) {
			ix.logger.Warn("store.load", "error", err)
		}
		return nil, nil, "no prior state"
	}
	switch {
	case meta.Version != FormatVersion:
		return nil, nil, fmt.Sprintf("format version %d, want %d", meta.Version, FormatVersion)
	case meta.Hash != ix.cfg.Hash:
		return nil, nil, fmt.Sprintf("hash %q, want %q", meta.Hash, ix.cfg.Hash)
	}
	for _, f := range idx.Files {
		if _, ok := meta.Fingerprints[f.Path]; !ok {
			return nil, nil, "index and metadata disagree"
		}
	}
	return idx, meta, ""
}

func (ix *Indexer) save(idx *model.Index, snap *discover.Snapshot) error {
	meta := &model.SyncMeta{
		Version:      FormatVersion,
		Hash:         ix.cfg.Hash,
		Stats:        snap.Stats,
		Fingerprints: snap.Fingerprints,
	}
	if err := ix.store.Save(idx, meta); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	return nil
}
