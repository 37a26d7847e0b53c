// Package logfile implements LogfileWriter: appends record text to a
// log file using gopkg.in/natefinch/lumberjack.v2, which rotates it by size
// and age, optionally prefixing each line with a timestamp (spec §6's
// `--write_logfile` / `--logfile_use_timestamps` CLI flags). Output is not
// split into date-stamped files.
package logfile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("logfile", New)
}

// Writer appends each record's text, newline-terminated, to a rotated
// log file.
type Writer struct {
	mu            sync.Mutex
	lj            *lumberjack.Logger
	useTimestamps bool
}

// New builds a Writer from kwargs: "filename" (required), optional
// "max_size_mb" (default 100), "max_backups" (default 10), "max_age_days"
// (default 0, unlimited), "compress" (bool), and "use_timestamps" (bool,
// prefixes each line with an RFC3339Nano timestamp).
func New(kwargs map[string]any) (stage.Writer, error) {
	filename, _ := kwargs["filename"].(string)
	if filename == "" {
		return nil, fmt.Errorf("logfile writer: filename is required")
	}
	maxSize := 100
	if v, ok := kwargs["max_size_mb"].(int); ok {
		maxSize = v
	}
	maxBackups := 10
	if v, ok := kwargs["max_backups"].(int); ok {
		maxBackups = v
	}
	maxAge := 0
	if v, ok := kwargs["max_age_days"].(int); ok {
		maxAge = v
	}
	compress, _ := kwargs["compress"].(bool)
	useTimestamps, _ := kwargs["use_timestamps"].(bool)

	return &Writer{
		lj: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   compress,
		},
		useTimestamps: useTimestamps,
	}, nil
}

func (w *Writer) Name() string                 { return "logfile:" + w.lj.Filename }
func (w *Writer) AcceptedKinds() []record.Kind { return nil }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := r.AsText()
	if w.useTimestamps {
		line = time.Now().UTC().Format(time.RFC3339Nano) + " " + line
	}
	_, err := w.lj.Write([]byte(line + "\n"))
	return err
}

func (w *Writer) Flush(ctx context.Context) error { return nil }

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lj.Close()
}
