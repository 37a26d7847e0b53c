// Package listener implements the pipeline engine of spec §4.2: N Readers
// fan in to a single ordered Transform chain, whose output fans out to W
// Writers, each behind its own bounded queue and backpressure policy.
// Grounded on internal/pipeline/pipeline.go's capture-loop/process-loop
// split and internal/task/task.go's phase-ordered Start/Stop and
// per-component failure isolation, generalized from one capturer/N
// pipelines/M reporters to the spec's N readers/ordered-transform-chain/W
// writers shape.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/tevino/abool"

	"rvdas.dev/logger/internal/metrics"
	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/stage"
)

// State mirrors the logger lifecycle states of spec §4.4.
type State string

const (
	StateCreated  State = "created"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// NamedWriter pairs a Writer with the queue depth and backpressure policy
// its Listener should apply to it (spec §4.2).
type NamedWriter struct {
	Writer       stage.Writer
	QueueDepth   int
	Backpressure stage.BackpressurePolicy
}

// Config assembles a Listener from already-constructed stage instances.
// Construction from a StageSpec's class/kwargs pair is the config/manager
// layer's job (via package registry); Listener only orchestrates instances
// it is handed, matching pipeline.Config's shape in the teacher.
type Config struct {
	Name       string
	Readers    []stage.Reader
	Transforms []stage.Transform
	Writers    []NamedWriter

	// ReaderRestartBackoffMax caps the exponential backoff between reader
	// restart attempts (spec §4.3 default: 30s).
	ReaderRestartBackoffMax time.Duration
	// ReaderFailureLimit is how many reader failures within
	// ReaderFailureWindow escalate the logger to StateFailed (spec §4.3
	// default: 3 within 60s — see DESIGN.md Open Question 1: this
	// escalates the logger, not the owning daemon).
	ReaderFailureLimit  int
	ReaderFailureWindow time.Duration

	// Interval, if set, paces the transform stage so consecutive emitted
	// records are separated by at least this long (spec §4.2).
	Interval time.Duration
}

func (c *Config) setDefaults() {
	if c.ReaderRestartBackoffMax <= 0 {
		c.ReaderRestartBackoffMax = 30 * time.Second
	}
	if c.ReaderFailureLimit <= 0 {
		c.ReaderFailureLimit = 3
	}
	if c.ReaderFailureWindow <= 0 {
		c.ReaderFailureWindow = 60 * time.Second
	}
}

// Status is a point-in-time snapshot published to the owning manager and,
// through it, to the Cached Data Server status fields (spec §4.4, §7).
type Status struct {
	Name          string
	State         State
	FailureReason string
	StartedAt     time.Time
	StoppedAt     time.Time
	WriterHealth  map[string]bool // writer name -> healthy (not degraded)
}

// Listener runs one logger's reader-fan-in -> transform-chain ->
// writer-fan-out pipeline (spec §4.2).
type Listener struct {
	cfg Config

	mu            sync.RWMutex
	state         State
	failureReason string
	startedAt     time.Time
	stoppedAt     time.Time
	failures      []time.Time // recent reader failure timestamps, for escalation

	degraded map[string]*abool.AtomicBool // writer name -> degraded flag

	ctx    context.Context
	cancel context.CancelFunc
	fanIn  chan record.Record
	queues map[string]chan record.Record

	runners *pool.ContextPool
}

// New builds a Listener in StateCreated. It does not start any goroutine.
func New(cfg Config) (*Listener, error) {
	cfg.setDefaults()
	if cfg.Name == "" {
		return nil, errors.New("listener: name is required")
	}
	if len(cfg.Readers) == 0 {
		return nil, errors.New("listener: at least one reader is required")
	}
	if err := checkFormat(cfg.Readers, cfg.Transforms, cfg.Writers); err != nil {
		return nil, fmt.Errorf("listener %q: %w", cfg.Name, err)
	}

	degraded := make(map[string]*abool.AtomicBool, len(cfg.Writers))
	for _, w := range cfg.Writers {
		degraded[w.Writer.Name()] = abool.New()
	}

	return &Listener{
		cfg:      cfg,
		state:    StateCreated,
		degraded: degraded,
	}, nil
}

// checkFormat validates that every stage's declared AcceptedKinds accepts
// the previous stage's ProducedKind, a static best-effort compatibility
// check run before any I/O happens (spec §4.2).
func checkFormat(readers []stage.Reader, transforms []stage.Transform, writers []NamedWriter) error {
	accepts := func(kinds []record.Kind, produced record.Kind) bool {
		if kinds == nil {
			return true
		}
		for _, k := range kinds {
			if k == produced {
				return true
			}
		}
		return false
	}

	// All readers must agree on a single produced kind, since they share
	// one downstream transform chain.
	var readerKind record.Kind
	for i, r := range readers {
		if i == 0 {
			readerKind = r.ProducedKind()
			continue
		}
		if r.ProducedKind() != readerKind {
			return fmt.Errorf("reader %q produces %s, but reader %q produces %s; all readers in a listener must agree",
				r.Name(), r.ProducedKind(), readers[0].Name(), readerKind)
		}
	}

	produced := readerKind
	for _, t := range transforms {
		if !accepts(t.AcceptedKinds(), produced) {
			return fmt.Errorf("transform %q does not accept %s records", t.Name(), produced)
		}
		produced = t.ProducedKind()
	}

	for _, w := range writers {
		if !accepts(w.Writer.AcceptedKinds(), produced) {
			return fmt.Errorf("writer %q does not accept %s records", w.Writer.Name(), produced)
		}
	}
	return nil
}

// Start starts the listener: writer fan-out goroutines first, then the
// transform/dispatch goroutine, then the reader goroutines last — so
// there is always somewhere for a record to go before anything can
// produce one, mirroring internal/task/task.go's reverse-dependency-order
// start sequence (reporters -> pipelines -> capturers).
func (l *Listener) Start(parent context.Context) error {
	l.mu.Lock()
	if l.state != StateCreated && l.state != StateStopped && l.state != StateFailed {
		l.mu.Unlock()
		return fmt.Errorf("listener %q: cannot start from state %s", l.cfg.Name, l.state)
	}
	l.state = StateStarting
	l.startedAt = time.Now()
	l.mu.Unlock()
	metrics.ListenerState.WithLabelValues(l.cfg.Name).Set(metrics.ListenerStateStarting)

	l.ctx, l.cancel = context.WithCancel(parent)
	l.fanIn = make(chan record.Record, 64)
	l.queues = make(map[string]chan record.Record, len(l.cfg.Writers))
	for _, w := range l.cfg.Writers {
		depth := w.QueueDepth
		if depth <= 0 {
			depth = 256
		}
		l.queues[w.Writer.Name()] = make(chan record.Record, depth)
	}

	l.runners = pool.New().WithContext(l.ctx)

	for _, w := range l.cfg.Writers {
		w := w
		l.runners.Go(func(ctx context.Context) error {
			l.writerLoop(ctx, w)
			return nil
		})
	}

	l.runners.Go(func(ctx context.Context) error {
		l.dispatchLoop(ctx)
		return nil
	})

	for _, r := range l.cfg.Readers {
		r := r
		l.runners.Go(func(ctx context.Context) error {
			l.readerLoop(ctx, r)
			return nil
		})
	}

	l.mu.Lock()
	l.state = StateRunning
	l.mu.Unlock()
	metrics.ListenerState.WithLabelValues(l.cfg.Name).Set(metrics.ListenerStateRunning)
	slog.Info("listener started", "logger", l.cfg.Name, "readers", len(l.cfg.Readers), "writers", len(l.cfg.Writers))
	return nil
}

// Stop closes the readers and waits up to grace for the pipeline
// goroutines to return. The dispatch and writer goroutines return only once
// the listener's context is cancelled, so unless the parent context is
// already done Stop cancels them when grace runs out; records still queued
// at that point are not written. Writers are then flushed and closed.
func (l *Listener) Stop(grace time.Duration) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return fmt.Errorf("listener %q: cannot stop from state %s", l.cfg.Name, l.state)
	}
	l.state = StateStopping
	l.mu.Unlock()

	for _, r := range l.cfg.Readers {
		if err := r.Close(); err != nil {
			slog.Warn("reader close error", "logger", l.cfg.Name, "reader", r.Name(), "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		_ = l.runners.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		slog.Warn("listener stop grace exceeded, cancelling", "logger", l.cfg.Name, "grace", grace)
		l.cancel()
		<-done
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), grace)
	defer flushCancel()
	for _, w := range l.cfg.Writers {
		if err := w.Writer.Flush(flushCtx); err != nil {
			slog.Warn("writer flush error", "logger", l.cfg.Name, "writer", w.Writer.Name(), "error", err)
		}
		if err := w.Writer.Close(); err != nil {
			slog.Warn("writer close error", "logger", l.cfg.Name, "writer", w.Writer.Name(), "error", err)
		}
	}

	l.mu.Lock()
	l.state = StateStopped
	l.stoppedAt = time.Now()
	l.mu.Unlock()
	metrics.ListenerState.WithLabelValues(l.cfg.Name).Set(metrics.ListenerStateStopped)
	slog.Info("listener stopped", "logger", l.cfg.Name)
	return nil
}

// readerLoop pulls records from one reader into the shared fan-in channel,
// restarting the reader with exponential backoff on error and escalating
// to StateFailed if it fails too often too fast (spec §4.3).
func (l *Listener) readerLoop(ctx context.Context, r stage.Reader) {
	backoff := time.Second
	for {
		rec, err := r.Read(ctx)
		if err == nil {
			select {
			case l.fanIn <- rec:
			case <-ctx.Done():
				return
			}
			metrics.RecordsReadTotal.WithLabelValues(l.cfg.Name, r.Name()).Inc()
			backoff = time.Second
			continue
		}

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrReaderExhausted) || errors.Is(err, io.EOF) {
			slog.Info("reader exhausted", "logger", l.cfg.Name, "reader", r.Name())
			return
		}

		slog.Warn("reader error, restarting", "logger", l.cfg.Name, "reader", r.Name(), "error", err, "backoff", backoff)
		metrics.ReaderFailuresTotal.WithLabelValues(l.cfg.Name, r.Name()).Inc()
		if l.recordReaderFailure() {
			l.fail(fmt.Sprintf("reader %q failed %d times within %s", r.Name(), l.cfg.ReaderFailureLimit, l.cfg.ReaderFailureWindow))
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > l.cfg.ReaderRestartBackoffMax {
			backoff = l.cfg.ReaderRestartBackoffMax
		}
	}
}

// ErrReaderExhausted is a sentinel a Reader wraps (via errors.Is) to signal
// clean end-of-source rather than a transient failure (e.g. EOF on a file
// Reader with no rotation configured). readerLoop treats an error satisfying
// errors.Is(err, io.EOF) the same way; the file and serial readers in
// plugins/readers return io.EOF at end of input.
var ErrReaderExhausted = errors.New("reader exhausted")

func (l *Listener) recordReaderFailure() (escalate bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-l.cfg.ReaderFailureWindow)
	kept := l.failures[:0]
	for _, t := range l.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.failures = kept
	return len(l.failures) >= l.cfg.ReaderFailureLimit
}

func (l *Listener) fail(reason string) {
	l.mu.Lock()
	l.state = StateFailed
	l.failureReason = reason
	l.mu.Unlock()
	metrics.ListenerState.WithLabelValues(l.cfg.Name).Set(metrics.ListenerStateFailed)
	slog.Error("listener failed", "logger", l.cfg.Name, "reason", reason)
	l.cancel()
}

// dispatchLoop applies the ordered transform chain to each fanned-in
// record and offers every surviving record to every writer queue,
// generalizing pipeline.go's single-threaded processPacket chain from one
// capturer/reporter to N readers/W writers.
func (l *Listener) dispatchLoop(ctx context.Context) {
	var lastEmit time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-l.fanIn:
			if !ok {
				return
			}
			if l.cfg.Interval > 0 && !lastEmit.IsZero() {
				if wait := l.cfg.Interval - time.Since(lastEmit); wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return
					}
				}
			}
			recs := []record.Record{rec}
			for _, t := range l.cfg.Transforms {
				var next []record.Record
				for _, r := range recs {
					out, err := t.Apply(ctx, r)
					if err != nil {
						slog.Debug("transform error", "logger", l.cfg.Name, "transform", t.Name(), "error", err)
						continue
					}
					next = append(next, out...)
				}
				recs = next
				if len(recs) == 0 {
					break
				}
			}
			for _, out := range recs {
				l.fanOut(ctx, out)
			}
			if len(recs) > 0 {
				lastEmit = time.Now()
			}
		}
	}
}

func (l *Listener) fanOut(ctx context.Context, rec record.Record) {
	for _, w := range l.cfg.Writers {
		q := l.queues[w.Writer.Name()]
		switch w.Backpressure {
		case stage.PolicyDropOldest:
			select {
			case q <- rec:
			default:
				select {
				case <-q:
				default:
				}
				select {
				case q <- rec:
				default:
				}
				slog.Warn("writer queue full, dropped oldest record", "logger", l.cfg.Name, "writer", w.Writer.Name())
			}
		default: // PolicyBlock
			select {
			case q <- rec:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Listener) writerLoop(ctx context.Context, w NamedWriter) {
	q := l.queues[w.Writer.Name()]
	degraded := l.degraded[w.Writer.Name()]
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-q:
			if !ok {
				return
			}
			if err := w.Writer.Write(ctx, rec); err != nil {
				if degraded.SetToIf(false, true) {
					metrics.WriterDegradedTotal.WithLabelValues(l.cfg.Name, w.Writer.Name()).Inc()
					slog.Warn("writer degraded", "logger", l.cfg.Name, "writer", w.Writer.Name(), "error", err)
				}
				if l.allWritersDegraded() {
					l.fail("all writers degraded")
				}
				continue
			}
			metrics.RecordsWrittenTotal.WithLabelValues(l.cfg.Name, w.Writer.Name()).Inc()
			degraded.UnSet()
		}
	}
}

func (l *Listener) allWritersDegraded() bool {
	if len(l.degraded) == 0 {
		return false
	}
	for _, flag := range l.degraded {
		if !flag.IsSet() {
			return false
		}
	}
	return true
}

// Status returns a snapshot of the listener's current state.
func (l *Listener) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	health := make(map[string]bool, len(l.degraded))
	for name, flag := range l.degraded {
		health[name] = !flag.IsSet()
	}
	return Status{
		Name:          l.cfg.Name,
		State:         l.state,
		FailureReason: l.failureReason,
		StartedAt:     l.startedAt,
		StoppedAt:     l.stoppedAt,
		WriterHealth:  health,
	}
}
