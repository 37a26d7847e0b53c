// Package text implements TextWriter: appends each record's text to a
// file, or to stdout/stderr when path is "-"/"--" (spec §6's
// `--write_file PATH|-` CLI flag).
package text

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("text", New)
}

// Writer appends each record's text, newline-terminated, to a file or
// stream.
type Writer struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	closer bool // whether Close should actually close the handle (not for stdout/stderr)
}

// New builds a Writer from kwargs: "path" (required; "-" for stdout, "--"
// for stderr).
func New(kwargs map[string]any) (stage.Writer, error) {
	path, _ := kwargs["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("text writer: path is required")
	}

	w := &Writer{path: path}
	switch path {
	case "-":
		w.file = os.Stdout
	case "--":
		w.file = os.Stderr
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("text writer: open %q: %w", path, err)
		}
		w.file = f
		w.closer = true
	}
	return w, nil
}

func (w *Writer) Name() string                 { return "text:" + w.path }
func (w *Writer) AcceptedKinds() []record.Kind { return nil } // accepts any kind via AsText
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.file, r.AsText()+"\n")
	return err
}

func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closer {
		return nil
	}
	return w.file.Close()
}
