// Package indexdb keeps a queryable SQLite history of tool runs: one row per
// run and per world report, plus every match and diagnostic.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mcworldtools/internal/report"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db, now: time.Now}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			worlds INTEGER NOT NULL,
			matched INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			total INTEGER NOT NULL,
			scanned INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			freed_bytes INTEGER,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worlds (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			level_name TEXT NOT NULL,
			matched INTEGER NOT NULL,
			removed INTEGER NOT NULL,
			total INTEGER NOT NULL,
			scanned INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			freed_bytes INTEGER,
			PRIMARY KEY(run_id, path)
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			seq INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY(run_id, path, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			seq INTEGER NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY(run_id, path, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS runs_tool ON runs(tool, recorded_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordReport stores r in a single transaction and returns the run id.
func (s *SQLiteIndex) RecordReport(ctx context.Context, r *report.Report) (int64, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return 0, err
	}
	sum := sha256.Sum256(raw)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	t := r.Total
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs(tool,recorded_at,worlds,matched,removed,total,scanned,elapsed_ms,freed_bytes,digest) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.Tool, s.now().UTC().Format(time.RFC3339), t.Worlds, t.Matched, t.Removed, t.Total, t.Scanned,
		t.ElapsedTime.Raw, freed(t.FreedSpace), hex.EncodeToString(sum[:]))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	run, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	insertWorld, err := tx.PrepareContext(ctx, `INSERT INTO worlds(run_id,path,level_name,matched,removed,total,scanned,elapsed_ms,freed_bytes) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer insertWorld.Close()
	insertMatch, err := tx.PrepareContext(ctx, `INSERT INTO matches(run_id,path,seq,raw_json) VALUES(?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer insertMatch.Close()
	insertDiag, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics(run_id,path,seq,message) VALUES(?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer insertDiag.Close()

	for _, k := range r.Keys() {
		w := r.Worlds[k]
		if _, err := insertWorld.ExecContext(ctx, run, k, w.LevelName, w.Matched, w.Removed, w.Total, w.Scanned, w.ElapsedTime.Raw, freed(w.FreedSpace)); err != nil {
			return 0, fmt.Errorf("insert world %q: %w", k, err)
		}
		for i, m := range w.Results {
			b, err := json.Marshal(m)
			if err != nil {
				return 0, err
			}
			if _, err := insertMatch.ExecContext(ctx, run, k, i, string(b)); err != nil {
				return 0, fmt.Errorf("insert match: %w", err)
			}
		}
		for i, d := range w.Diagnostics {
			if _, err := insertDiag.ExecContext(ctx, run, k, i, d); err != nil {
				return 0, fmt.Errorf("insert diagnostic: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return run, nil
}

func freed(s *report.Space) any {
	if s == nil {
		return nil
	}
	return s.Raw
}
