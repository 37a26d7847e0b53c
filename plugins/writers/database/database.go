// Package database implements DatabaseWriter: inserts structured
// records into a Postgres table via github.com/lib/pq, one row per
// data_id/field pair (spec §6's `--write_database` CLI flag).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("database", New)
}

// Writer inserts one row per scalar field of every structured record it
// receives, into a fixed-shape table:
//
//	(data_id text, field text, timestamp timestamptz, value double precision)
type Writer struct {
	dsn     string
	table   string
	db      *sql.DB
	insertQ string
}

// New builds a Writer from kwargs: "dsn" (required, Postgres connection
// string) and optional "table" (default "logger_data").
func New(kwargs map[string]any) (stage.Writer, error) {
	dsn, _ := kwargs["dsn"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("database writer: dsn is required")
	}
	table := "logger_data"
	if v, ok := kwargs["table"].(string); ok && v != "" {
		table = v
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database writer: open: %w", err)
	}
	return &Writer{
		dsn:     dsn,
		table:   table,
		db:      db,
		insertQ: fmt.Sprintf(`INSERT INTO %s (data_id, field, timestamp, value) VALUES ($1, $2, $3, $4)`, table),
	}, nil
}

func (w *Writer) Name() string                 { return "database:" + w.table }
func (w *Writer) AcceptedKinds() []record.Kind { return []record.Kind{record.KindStructured} }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	s := r.Structured()
	ts := time.Unix(0, int64(s.Timestamp*float64(time.Second)))
	for name, fv := range s.Fields {
		if fv.IsSeries() {
			for _, ts2 := range fv.Series {
				if err := w.insert(ctx, s.DataID, name, time.Unix(0, int64(ts2.Timestamp*float64(time.Second))), ts2.Value); err != nil {
					return err
				}
			}
			continue
		}
		if err := w.insert(ctx, s.DataID, name, ts, fv.Scalar); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) insert(ctx context.Context, dataID, field string, ts time.Time, value any) error {
	if _, err := w.db.ExecContext(ctx, w.insertQ, dataID, field, ts, value); err != nil {
		return fmt.Errorf("database writer: insert: %w", err)
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context) error { return nil }
func (w *Writer) Close() error                    { return w.db.Close() }
