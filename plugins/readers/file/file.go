// Package file implements FileReader: reads lines from a file, with
// optional tail-follow (poll for new lines appended after EOF, like
// `tail -f`) and optional filename-glob rotation (re-open the
// lexicographically next matching file at EOF when tail_follow is off)
// (spec §6's `--file` CLI flag).
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterReader("file", New)
}

// Reader reads newline-delimited text from one file, or a sequence of
// files matched by a glob pattern.
type Reader struct {
	pattern    string
	tailFollow bool
	pollEvery  time.Duration

	files   []string
	fileIdx int
	file    *os.File
	scanner *bufio.Scanner
}

// New builds a Reader from kwargs: "filename" (required, a literal path
// or glob pattern), optional "tail_follow" (bool) and "poll_interval_secs"
// (default 1).
func New(kwargs map[string]any) (stage.Reader, error) {
	pattern, _ := kwargs["filename"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("file reader: filename is required")
	}
	tailFollow, _ := kwargs["tail_follow"].(bool)
	pollEvery := time.Second
	if v, ok := kwargs["poll_interval_secs"].(float64); ok {
		pollEvery = time.Duration(v * float64(time.Second))
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("file reader: glob %q: %w", pattern, err)
	}
	if len(files) == 0 {
		files = []string{pattern}
	}
	sort.Strings(files)

	return &Reader{pattern: pattern, tailFollow: tailFollow, pollEvery: pollEvery, files: files}, nil
}

func (r *Reader) Name() string                 { return "file:" + r.pattern }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return record.KindText }

func (r *Reader) openCurrent() error {
	if r.fileIdx >= len(r.files) {
		return io.EOF
	}
	f, err := os.Open(r.files[r.fileIdx])
	if err != nil {
		return fmt.Errorf("file reader: open %q: %w", r.files[r.fileIdx], err)
	}
	r.file = f
	r.scanner = bufio.NewScanner(f)
	r.scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return nil
}

// Read returns the next line, blocking (if tail_follow) until one
// appears, or io.EOF once every matched file has been exhausted and
// tail_follow is false.
func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	for {
		if r.file == nil {
			if err := r.openCurrent(); err != nil {
				return record.Record{}, err
			}
		}
		if r.scanner.Scan() {
			return record.NewText(r.Name(), r.scanner.Text()), nil
		}
		if err := r.scanner.Err(); err != nil {
			return record.Record{}, fmt.Errorf("file reader: scan %q: %w", r.files[r.fileIdx], err)
		}

		if r.tailFollow {
			select {
			case <-ctx.Done():
				return record.Record{}, ctx.Err()
			case <-time.After(r.pollEvery):
			}
			continue
		}

		r.file.Close()
		r.file = nil
		r.fileIdx++
		if r.fileIdx >= len(r.files) {
			return record.Record{}, io.EOF
		}
	}
}

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
