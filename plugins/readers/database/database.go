// Package database implements DatabaseReader: polls a Postgres table for
// rows newer than the last one seen, emitting each as a text record
// (spec §6's `--database` CLI flag; companion reader to
// plugins/writers/database, grounded the same way on github.com/lib/pq).
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
	registry.RegisterReader("database", New)
}

// Reader polls `SELECT text_column FROM table WHERE id_column > ?
// ORDER BY id_column` once every poll_interval, advancing a cursor over
// id_column.
type Reader struct {
	db           *sql.DB
	table        string
	idColumn     string
	textColumn   string
	pollInterval time.Duration

	lastID int64
	rows   *sql.Rows
}

// New builds a Reader from kwargs: "dsn" (required), optional "table"
// (default "logger_data"), "id_column" (default "id"), "text_column"
// (default "line"), "poll_interval_secs" (default 1).
func New(kwargs map[string]any) (stage.Reader, error) {
	dsn, _ := kwargs["dsn"].(string)
	if dsn == "" {
		return nil, fmt.Errorf("database reader: dsn is required")
	}
	table := "logger_data"
	if v, ok := kwargs["table"].(string); ok && v != "" {
		table = v
	}
	idColumn := "id"
	if v, ok := kwargs["id_column"].(string); ok && v != "" {
		idColumn = v
	}
	textColumn := "line"
	if v, ok := kwargs["text_column"].(string); ok && v != "" {
		textColumn = v
	}
	pollInterval := time.Second
	if v, ok := kwargs["poll_interval_secs"].(float64); ok {
		pollInterval = time.Duration(v * float64(time.Second))
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database reader: open: %w", err)
	}
	return &Reader{db: db, table: table, idColumn: idColumn, textColumn: textColumn, pollInterval: pollInterval}, nil
}

func (r *Reader) Name() string                 { return "database:" + r.table }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return record.KindText }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	for {
		if r.rows != nil {
			if r.rows.Next() {
				var id int64
				var line string
				if err := r.rows.Scan(&id, &line); err != nil {
					return record.Record{}, fmt.Errorf("database reader: scan: %w", err)
				}
				r.lastID = id
				return record.NewText(r.Name(), line), nil
			}
			r.rows.Close()
			r.rows = nil
		}

		query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE %s > $1 ORDER BY %s`,
			r.idColumn, r.textColumn, r.table, r.idColumn, r.idColumn)
		rows, err := r.db.QueryContext(ctx, query, r.lastID)
		if err != nil {
			return record.Record{}, fmt.Errorf("database reader: query: %w", err)
		}
		r.rows = rows

		if !r.rows.Next() {
			r.rows.Close()
			r.rows = nil
			select {
			case <-ctx.Done():
				return record.Record{}, ctx.Err()
			case <-time.After(r.pollInterval):
			}
			continue
		}

		var id int64
		var line string
		if err := r.rows.Scan(&id, &line); err != nil {
			return record.Record{}, fmt.Errorf("database reader: scan: %w", err)
		}
		r.lastID = id
		return record.NewText(r.Name(), line), nil
	}
}

func (r *Reader) Close() error {
	if r.rows != nil {
		r.rows.Close()
	}
	return r.db.Close()
}
