// Package log builds the io.Writer a logger daemon's slog handler writes
// to, adapted from the teacher's internal/log MultiWriter + lumberjack
// file appender (the rest of that package — its own Logger interface,
// logrus adapter, Kafka/Loki appenders — is dropped; slog is this
// repo's primary structured logger and has no need for a parallel
// abstraction, see DESIGN.md).
package log

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"rvdas.dev/logger/internal/config"
)

// MultiWriter fans out one Write call to every writer it holds,
// unchanged from the teacher's appender.go.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.writers = append(m.writers, w)
	return m
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

// WriterFor builds the destination for structured log output from a
// daemon's LogConfig: stderr always, plus a rotating file appender when
// cfg.File is set, reusing the teacher's AddFileAppender shape.
func WriterFor(cfg config.LogConfig) io.Writer {
	mw := NewMultiWriter().Add(os.Stderr)
	if cfg.File == "" {
		return mw
	}
	return mw.Add(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.Rotation.MaxSizeMB,
		MaxAge:     cfg.Rotation.MaxAgeDays,
		MaxBackups: cfg.Rotation.MaxBackups,
		Compress:   cfg.Rotation.Compress,
	})
}
