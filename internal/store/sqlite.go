package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/phobologic/repoctx/internal/model"
)

// SQLiteFile is the database file of the sqlite backend.
const SQLiteFile = "index.sqlite"

// SQLiteStore keeps the index in relational tables so other tools can query
// symbols directly. Save replaces every table inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens the database in dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, SQLiteFile))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS stats (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			file_count INTEGER,
			total_bytes INTEGER,
			total_lines INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			ord INTEGER PRIMARY KEY,
			path TEXT UNIQUE,
			language TEXT,
			bytes INTEGER,
			lines INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS symbols (
			ord INTEGER PRIMARY KEY,
			kind TEXT,
			name TEXT,
			file TEXT,
			inputs JSON,
			input_types JSON,
			output TEXT,
			raw_calls JSON,
			internal_calls JSON,
			external_calls JSON,
			called_by JSON,
			doc TEXT,
			line_start INTEGER,
			line_end INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS fingerprints (
			path TEXT PRIMARY KEY,
			hash TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Save replaces the stored state in one transaction.
func (s *SQLiteStore) Save(idx *model.Index, meta *model.SyncMeta) error {
	if err := s.save(context.Background(), idx, meta); err != nil {
		return fmt.Errorf("sqlite write: %w", err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, idx *model.Index, meta *model.SyncMeta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"stats", "files", "symbols", "fingerprints", "meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stats (id, file_count, total_bytes, total_lines) VALUES (1, ?, ?, ?)`,
		idx.Stats.FileCount, idx.Stats.TotalBytes, idx.Stats.TotalLines); err != nil {
		return err
	}

	fileStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO files (ord, path, language, bytes, lines) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer fileStmt.Close()
	for i, f := range idx.Files {
		if _, err := fileStmt.ExecContext(ctx, i, f.Path, f.Language, f.Bytes, f.Lines); err != nil {
			return err
		}
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (ord, kind, name, file, inputs, input_types, output,
			raw_calls, internal_calls, external_calls, called_by, doc, line_start, line_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer symStmt.Close()
	for i := range idx.Symbols {
		sym := &idx.Symbols[i]
		lists := make([]string, 0, 6)
		for _, l := range [][]string{sym.Inputs, sym.InputTypes, sym.RawCalls, sym.InternalCalls, sym.ExternalCalls, sym.CalledBy} {
			lists = append(lists, encodeList(l))
		}
		if _, err := symStmt.ExecContext(ctx, i, string(sym.Kind), sym.Name, sym.File,
			lists[0], lists[1], sym.Output, lists[2], lists[3], lists[4], lists[5],
			sym.Doc, sym.LineStart, sym.LineEnd); err != nil {
			return err
		}
	}

	fpStmt, err := tx.PrepareContext(ctx, `INSERT INTO fingerprints (path, hash) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer fpStmt.Close()
	for path, h := range meta.Fingerprints {
		if _, err := fpStmt.ExecContext(ctx, path, h); err != nil {
			return err
		}
	}

	metaStats, err := json.Marshal(meta.Stats)
	if err != nil {
		return err
	}
	for key, value := range map[string]string{
		"version": strconv.Itoa(meta.Version),
		"hash":    meta.Hash,
		"stats":   string(metaStats),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load reads the stored state. A database without a meta version row holds
// no state.
func (s *SQLiteStore) Load() (*model.Index, *model.SyncMeta, error) {
	idx, meta, err := s.load(context.Background())
	if err != nil {
		if errors.Is(err, ErrNoState) {
			return nil, nil, err
		}
		return nil, nil, noState("sqlite read: %v", err)
	}
	fill(idx, meta)
	return idx, meta, nil
}

func (s *SQLiteStore) load(ctx context.Context) (*model.Index, *model.SyncMeta, error) {
	metaRows := make(map[string]string)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, nil, err
		}
		metaRows[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	versionText, ok := metaRows["version"]
	if !ok {
		return nil, nil, noState("sqlite meta empty")
	}
	meta := &model.SyncMeta{Hash: metaRows["hash"], Fingerprints: model.FingerprintMap{}}
	if meta.Version, err = strconv.Atoi(versionText); err != nil {
		return nil, nil, fmt.Errorf("meta version: %w", err)
	}
	if err := json.Unmarshal([]byte(metaRows["stats"]), &meta.Stats); err != nil {
		return nil, nil, fmt.Errorf("meta stats: %w", err)
	}

	idx := model.NewIndex(model.RepoStats{})
	err = s.db.QueryRowContext(ctx, `SELECT file_count, total_bytes, total_lines FROM stats WHERE id = 1`).
		Scan(&idx.Stats.FileCount, &idx.Stats.TotalBytes, &idx.Stats.TotalLines)
	if err != nil {
		return nil, nil, fmt.Errorf("stats: %w", err)
	}

	if err := s.loadFiles(ctx, idx); err != nil {
		return nil, nil, err
	}
	if err := s.loadSymbols(ctx, idx); err != nil {
		return nil, nil, err
	}

	fpRows, err := s.db.QueryContext(ctx, `SELECT path, hash FROM fingerprints`)
	if err != nil {
		return nil, nil, err
	}
	defer fpRows.Close()
	for fpRows.Next() {
		var path, h string
		if err := fpRows.Scan(&path, &h); err != nil {
			return nil, nil, err
		}
		meta.Fingerprints[path] = h
	}
	if err := fpRows.Err(); err != nil {
		return nil, nil, err
	}

	return idx, meta, nil
}

func (s *SQLiteStore) loadFiles(ctx context.Context, idx *model.Index) error {
	rows, err := s.db.QueryContext(ctx, `SELECT path, language, bytes, lines FROM files ORDER BY ord`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var f model.FileRecord
		if err := rows.Scan(&f.Path, &f.Language, &f.Bytes, &f.Lines); err != nil {
			return err
		}
		idx.Files = append(idx.Files, f)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadSymbols(ctx context.Context, idx *model.Index) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, name, file, inputs, input_types, output, raw_calls,
			internal_calls, external_calls, called_by, doc, line_start, line_end
		FROM symbols ORDER BY ord
	`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sym   model.Symbol
			kind  string
			lists [6]string
		)
		if err := rows.Scan(&kind, &sym.Name, &sym.File, &lists[0], &lists[1], &sym.Output,
			&lists[2], &lists[3], &lists[4], &lists[5], &sym.Doc, &sym.LineStart, &sym.LineEnd); err != nil {
			return err
		}
		sym.Kind = model.SymbolKind(kind)
		targets := []*[]string{&sym.Inputs, &sym.InputTypes, &sym.RawCalls, &sym.InternalCalls, &sym.ExternalCalls, &sym.CalledBy}
		for i, dst := range targets {
			if err := json.Unmarshal([]byte(lists[i]), dst); err != nil {
				return fmt.Errorf("symbol %s: %w", sym.Name, err)
			}
		}
		idx.Symbols = append(idx.Symbols, sym)
	}
	return rows.Err()
}

func encodeList(l []string) string {
	if l == nil {
		return "[]"
	}
	data, _ := json.Marshal(l)
	return string(data)
}
