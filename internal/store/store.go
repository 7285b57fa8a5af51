// Package store persists an Index and its SyncMeta under the repository's
// .context directory. Three backends share one contract: a Save replaces
// both records as a unit and a Load that cannot produce both returns
// ErrNoState.
package store

import (
	"errors"
	"fmt"

	"github.com/phobologic/repoctx/internal/model"
)

// ErrNoState reports that no usable prior state exists: the records are
// missing, unreadable or corrupt. Callers fall back to a full build.
var ErrNoState = errors.New("no stored state")

// Backend names.
const (
	KindJSON   = "json"
	KindBolt   = "bolt"
	KindSQLite = "sqlite"
)

// Kinds lists the supported backends.
var Kinds = []string{KindJSON, KindBolt, KindSQLite}

// Store loads and saves the persisted index state.
type Store interface {
	// Load returns the stored Index and SyncMeta. Any failure to produce
	// both wraps ErrNoState.
	Load() (*model.Index, *model.SyncMeta, error)
	// Save atomically replaces the stored Index and SyncMeta.
	Save(idx *model.Index, meta *model.SyncMeta) error
	Close() error
}

// Open returns the backend named kind rooted at dir. An empty kind selects
// the json backend.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case "", KindJSON:
		return NewJSONStore(dir), nil
	case KindBolt:
		return NewBoltStore(dir)
	case KindSQLite:
		return NewSQLiteStore(dir)
	}
	return nil, fmt.Errorf("unknown store %q", kind)
}

func noState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoState, fmt.Sprintf(format, args...))
}

// fill repairs nil slices left by decoders so loaded records compare equal
// to what was saved.
func fill(idx *model.Index, meta *model.SyncMeta) {
	idx.Normalize()
	if meta.Fingerprints == nil {
		meta.Fingerprints = model.FingerprintMap{}
	}
}
