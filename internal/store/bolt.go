package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/phobologic/repoctx/internal/model"
)

// BoltFile is the database file of the bolt backend.
const BoltFile = "index.db"

var (
	bucketContext = []byte("context")
	keyIndex      = []byte("index")
	keyMeta       = []byte("meta")
)

// BoltStore keeps the index and metadata as JSON values in one bbolt bucket.
// Both values are written in a single transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database in dir.
func NewBoltStore(dir string) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, BoltFile), 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load reads both values.
func (s *BoltStore) Load() (*model.Index, *model.SyncMeta, error) {
	var indexJSON, metaJSON []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContext)
		if b == nil {
			return nil
		}
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := b.Get(keyIndex); v != nil {
			indexJSON = append([]byte(nil), v...)
		}
		if v := b.Get(keyMeta); v != nil {
			metaJSON = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, nil, noState("bbolt read: %v", err)
	}
	if indexJSON == nil || metaJSON == nil {
		return nil, nil, noState("bucket %s empty", bucketContext)
	}

	var idx model.Index
	if err := json.Unmarshal(indexJSON, &idx); err != nil {
		return nil, nil, noState("decoding index: %v", err)
	}
	var meta model.SyncMeta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, noState("decoding meta: %v", err)
	}
	fill(&idx, &meta)
	return &idx, &meta, nil
}

// Save replaces both values in one transaction.
func (s *BoltStore) Save(idx *model.Index, meta *model.SyncMeta) error {
	indexJSON, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketContext)
		if err != nil {
			return err
		}
		if err := b.Put(keyIndex, indexJSON); err != nil {
			return err
		}
		return b.Put(keyMeta, metaJSON)
	})
	if err != nil {
		return fmt.Errorf("bbolt write: %w", err)
	}
	return nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
