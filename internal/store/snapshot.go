package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lorekeep/lore/internal/entry"
)

// snapshotMeta records how much of the op log a snapshot has absorbed.
// LogHash fingerprints the absorbed prefix so a rewritten log invalidates
// the snapshot instead of silently corrupting state.
type snapshotMeta struct {
	AppliedOps   int
	AppliedBytes int64
	LogHash      string
	MaxCounter   uint64
	CompactedAt  time.Time
}

// openSnapshotDB opens the SQLite snapshot database.
func openSnapshotDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSnapshotTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createSnapshotTables(db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS entries (
  id TEXT PRIMARY KEY,
  category TEXT NOT NULL,
  confidence TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  tombstoned INTEGER NOT NULL DEFAULT 0,
  data TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_category ON entries(category)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_updated_at ON entries(updated_at)`,
		`CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating snapshot tables: %w", err)
		}
	}
	return nil
}

// loadSnapshot reads the materialized state and its metadata. A missing or
// empty snapshot returns a nil map and zero meta.
func loadSnapshot(path string) (map[string]*entry.Entry, snapshotMeta, error) {
	var meta snapshotMeta

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, meta, nil
	}

	db, err := openSnapshotDB(path)
	if err != nil {
		return nil, meta, err
	}
	defer db.Close()

	meta, err = readMeta(db)
	if err != nil {
		return nil, meta, err
	}
	if meta.AppliedOps == 0 {
		return nil, meta, nil
	}

	rows, err := db.Query(`SELECT data FROM entries`)
	if err != nil {
		return nil, meta, fmt.Errorf("reading snapshot entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*entry.Entry)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, meta, err
		}
		var e entry.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, meta, fmt.Errorf("decoding snapshot entry: %w", err)
		}
		entries[e.ID] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, meta, err
	}

	return entries, meta, nil
}

// writeSnapshot replaces the materialized state in a single transaction.
func writeSnapshot(path string, entries map[string]*entry.Entry, meta snapshotMeta) error {
	db, err := openSnapshotDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (id, category, confidence, updated_at, tombstoned, data)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding entry %s: %w", e.ID, err)
		}
		tomb := 0
		if e.Tombstoned {
			tomb = 1
		}
		if _, err := stmt.Exec(e.ID, string(e.Category), string(e.Confidence),
			e.UpdatedAt.UTC().Format(time.RFC3339Nano), tomb, string(data)); err != nil {
			return fmt.Errorf("inserting entry %s: %w", e.ID, err)
		}
	}

	if err := writeMeta(tx, meta); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func readMeta(db *sql.DB) (snapshotMeta, error) {
	var meta snapshotMeta
	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return meta, fmt.Errorf("reading snapshot meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, err
		}
		switch key {
		case "applied_ops":
			meta.AppliedOps, _ = strconv.Atoi(value)
		case "applied_bytes":
			meta.AppliedBytes, _ = strconv.ParseInt(value, 10, 64)
		case "log_hash":
			meta.LogHash = value
		case "max_counter":
			meta.MaxCounter, _ = strconv.ParseUint(value, 10, 64)
		case "compacted_at":
			meta.CompactedAt, _ = time.Parse(time.RFC3339Nano, value)
		}
	}
	return meta, rows.Err()
}

func writeMeta(tx *sql.Tx, meta snapshotMeta) error {
	pairs := map[string]string{
		"applied_ops":   strconv.Itoa(meta.AppliedOps),
		"applied_bytes": strconv.FormatInt(meta.AppliedBytes, 10),
		"log_hash":     meta.LogHash,
		"max_counter":  strconv.FormatUint(meta.MaxCounter, 10),
		"compacted_at": meta.CompactedAt.UTC().Format(time.RFC3339Nano),
	}
	for key, value := range pairs {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return fmt.Errorf("writing snapshot meta %s: %w", key, err)
		}
	}
	return nil
}
