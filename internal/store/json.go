package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phobologic/repoctx/internal/model"
)

// File names used by the json backend.
const (
	IndexFile = "context.json"
	MetaFile  = "meta.json"
)

// JSONStore keeps the index and metadata as two pretty-printed JSON files.
// Each file is replaced by rename so a reader never sees a partial write.
type JSONStore struct {
	dir string
}

// NewJSONStore returns a JSONStore in dir. The directory is created on the
// first Save.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Load reads both files.
func (s *JSONStore) Load() (*model.Index, *model.SyncMeta, error) {
	var idx model.Index
	if err := readJSON(filepath.Join(s.dir, IndexFile), &idx); err != nil {
		return nil, nil, err
	}
	var meta model.SyncMeta
	if err := readJSON(filepath.Join(s.dir, MetaFile), &meta); err != nil {
		return nil, nil, err
	}
	fill(&idx, &meta)
	return &idx, &meta, nil
}

// Save drops the old metadata, writes the index and then the new metadata.
// A crash part way leaves no metadata, which reads back as ErrNoState.
func (s *JSONStore) Save(idx *model.Index, meta *model.SyncMeta) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating store dir: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, MetaFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", MetaFile, err)
	}
	if err := writeJSON(filepath.Join(s.dir, IndexFile), idx); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, MetaFile), meta)
}

// Close is a no-op.
func (s *JSONStore) Close() error { return nil }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return noState("%s missing", filepath.Base(path))
		}
		return noState("reading %s: %v", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return noState("decoding %s: %v", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
