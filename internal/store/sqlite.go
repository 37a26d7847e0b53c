package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the snapshot in a single-row sqlite table, backing
// the `--database sqlite` selector of spec §6. Grounded on
// r3e-network-service_layer's database.Open (sql.Open + PingContext
// connectivity check), adapted from lib/pq/Postgres to the pure-Go
// modernc.org/sqlite driver since a file-embedded database needs no
// server process — lib/pq itself cannot serve this selector.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a sqlite database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite %q: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshot (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save upserts the single-row snapshot.
func (s *SQLiteStore) Save(snapshot Snapshot) error {
	if snapshot.Version == "" {
		snapshot.Version = snapshotVersion
	}
	snapshot.LastUpdate = time.Now()
	if len(snapshot.MessageLog) > maxMessageLog {
		snapshot.MessageLog = snapshot.MessageLog[len(snapshot.MessageLog)-maxMessageLog:]
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the single-row snapshot.
func (s *SQLiteStore) Load() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("store: no snapshot saved yet: %w", os.ErrNotExist)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// AppendMessage loads, appends, and saves the snapshot.
func (s *SQLiteStore) AppendMessage(msg LogMessage) error {
	snap, err := s.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	snap.MessageLog = append(snap.MessageLog, msg)
	return s.Save(snap)
}

var _ Store = (*SQLiteStore)(nil)
