package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/stage"
)

// sliceReader replays a fixed sequence of text lines, one per Read call,
// then reports ErrReaderExhausted, mirroring a TextFileReader hitting EOF
// with no rotation configured.
type sliceReader struct {
	name  string
	lines []string
	delay time.Duration
	i     int
}

func (r *sliceReader) Name() string                     { return r.name }
func (r *sliceReader) AcceptedKinds() []record.Kind      { return nil }
func (r *sliceReader) ProducedKind() record.Kind         { return record.KindText }
func (r *sliceReader) Close() error                      { return nil }
func (r *sliceReader) Read(ctx context.Context) (record.Record, error) {
	if r.i >= len(r.lines) {
		return record.Record{}, fmt.Errorf("%w: %s", ErrReaderExhausted, r.name)
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return record.Record{}, ctx.Err()
		}
	}
	line := r.lines[r.i]
	r.i++
	rec := record.NewText(r.name, line)
	return rec, nil
}

// prefixTransform prepends a fixed string to every text record, modeling
// PrefixTransform.
type prefixTransform struct {
	prefix string
}

func (t *prefixTransform) Name() string                { return "prefix" }
func (t *prefixTransform) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText} }
func (t *prefixTransform) ProducedKind() record.Kind    { return record.KindText }
func (t *prefixTransform) Apply(ctx context.Context, r record.Record) ([]record.Record, error) {
	return []record.Record{record.NewText(r.Source, t.prefix+r.Text())}, nil
}

// recordingWriter appends every record it receives to an in-memory slice
// under a mutex, so tests can assert on order and arrival spacing.
type recordingWriter struct {
	name string

	mu       sync.Mutex
	received []string
	arrived  []time.Time
	failNext bool
}

func (w *recordingWriter) Name() string                { return w.name }
func (w *recordingWriter) AcceptedKinds() []record.Kind { return []record.Kind{record.KindText} }
func (w *recordingWriter) ProducedKind() record.Kind    { return record.KindText }
func (w *recordingWriter) Flush(ctx context.Context) error { return nil }
func (w *recordingWriter) Close() error                    { return nil }
func (w *recordingWriter) Write(ctx context.Context, r record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext {
		w.failNext = false
		return errors.New("injected write failure")
	}
	w.received = append(w.received, r.Text())
	w.arrived = append(w.arrived, time.Now())
	return nil
}

func (w *recordingWriter) snapshot() ([]string, []time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.received))
	copy(out, w.received)
	ts := make([]time.Time, len(w.arrived))
	copy(ts, w.arrived)
	return out, ts
}

// waitForLen polls until f() returns at least n, or fails the test after a
// bounded timeout -- avoids sleeping a fixed duration for a variable-speed
// pipeline.
func waitForLen(t *testing.T, timeout time.Duration, f func() int, n int) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for length >= %d, got %d", n, f())
}

// scenario 1: a single reader's lines reach a single writer exactly once,
// in order, each prefixed, with emission spaced at least cfg.Interval apart.
func TestListenerPreservesOrderPrefixAndSpacing(t *testing.T) {
	lines := []string{"line one", "line two", "line three"}
	reader := &sliceReader{name: "textfile", lines: lines}
	writer := &recordingWriter{name: "stdout"}

	l, err := New(Config{
		Name:       "license",
		Readers:    []stage.Reader{reader},
		Transforms: []stage.Transform{&prefixTransform{prefix: "license: "}},
		Writers:    []NamedWriter{{Writer: writer, QueueDepth: 16}},
		Interval:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop(time.Second)

	waitForLen(t, 2*time.Second, func() int {
		got, _ := writer.snapshot()
		return len(got)
	}, len(lines))

	got, arrived := writer.snapshot()
	if len(got) != len(lines) {
		t.Fatalf("expected %d records, got %d: %v", len(lines), len(got), got)
	}
	for i, line := range lines {
		want := "license: " + line
		if got[i] != want {
			t.Fatalf("record %d = %q, want %q (order/prefix violated)", i, got[i], want)
		}
	}
	for i := 1; i < len(arrived); i++ {
		gap := arrived[i].Sub(arrived[i-1])
		if gap < 15*time.Millisecond {
			t.Fatalf("emission %d arrived only %s after %d, want >= ~20ms spacing", i, gap, i-1)
		}
	}
}

// scenario 2: fan-out to two writers delivers the same records, in the
// same order, to both -- modeling a UDPWriter plus a second pipeline's
// UDPReader both downstream of one set of readers.
func TestListenerFansOutToMultipleWriters(t *testing.T) {
	lines := []string{"alpha", "beta", "gamma"}
	reader := &sliceReader{name: "textfile", lines: lines}
	primary := &recordingWriter{name: "primary"}
	secondary := &recordingWriter{name: "secondary"}

	l, err := New(Config{
		Name:    "fanout",
		Readers: []stage.Reader{reader},
		Writers: []NamedWriter{
			{Writer: primary, QueueDepth: 16},
			{Writer: secondary, QueueDepth: 16},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop(time.Second)

	waitForLen(t, 2*time.Second, func() int {
		got, _ := secondary.snapshot()
		return len(got)
	}, len(lines))

	primaryGot, _ := primary.snapshot()
	secondaryGot, _ := secondary.snapshot()
	if len(primaryGot) != len(lines) || len(secondaryGot) != len(lines) {
		t.Fatalf("expected %d records on each writer, got primary=%v secondary=%v", len(lines), primaryGot, secondaryGot)
	}
	for i, line := range lines {
		if primaryGot[i] != line || secondaryGot[i] != line {
			t.Fatalf("record %d: primary=%q secondary=%q, want both %q", i, primaryGot[i], secondaryGot[i], line)
		}
	}
}

// A reader that always fails should escalate the listener to StateFailed
// after cfg.ReaderFailureLimit attempts, never fewer.
func TestListenerEscalatesToFailedAfterReaderFailureLimit(t *testing.T) {
	reader := &alwaysFailReader{name: "broken"}
	writer := &recordingWriter{name: "sink"}

	l, err := New(Config{
		Name:                "broken-logger",
		Readers:             []stage.Reader{reader},
		Writers:             []NamedWriter{{Writer: writer, QueueDepth: 4}},
		ReaderFailureLimit:  3,
		ReaderFailureWindow: time.Minute,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if l.Status().State == StateFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := l.Status().State; got != StateFailed {
		t.Fatalf("expected StateFailed after %d reader failures, got %s", 3, got)
	}
	if reader.attempts() < 3 {
		t.Fatalf("expected at least 3 read attempts before FATAL, got %d", reader.attempts())
	}
}

type alwaysFailReader struct {
	name string
	mu   sync.Mutex
	n    int
}

func (r *alwaysFailReader) Name() string                { return r.name }
func (r *alwaysFailReader) AcceptedKinds() []record.Kind { return nil }
func (r *alwaysFailReader) ProducedKind() record.Kind    { return record.KindText }
func (r *alwaysFailReader) Close() error                 { return nil }
func (r *alwaysFailReader) Read(ctx context.Context) (record.Record, error) {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
	return record.Record{}, errors.New("permanent failure")
}
func (r *alwaysFailReader) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
