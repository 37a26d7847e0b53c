// Package stage defines the Reader/Transform/Writer contracts every
// pipeline component implements, and the shared Plugin lifecycle all three
// are built on (spec §4.1). It is the generalization of the teacher's
// pkg/plugin split across Capturer/Parser/Processor/Reporter down to the
// three kinds the spec actually names.
package stage

import (
	"context"

	"rvdas.dev/logger/internal/record"
)

// Plugin is the lifecycle every Reader, Transform and Writer implements,
// grounded on pkg/plugin/lifecycle.go.
type Plugin interface {
	// Name returns the registered component name, used in logs and status.
	Name() string
	// AcceptedKinds lists the record.Kind values this stage can consume.
	// A Reader returns nil (it has no upstream). check_format (spec §4.2)
	// validates the declared kind of the previous stage is a member.
	AcceptedKinds() []record.Kind
	// ProducedKind is the record.Kind this stage emits.
	ProducedKind() record.Kind
}

// Reader yields Records, one call at a time, from some external source
// (serial port, socket, file, database, timer). Readers may block
// indefinitely for data and MUST be safe to invoke from at most one
// caller — composition across readers is the ComposedReader's job, not the
// Reader's (spec §4.1).
type Reader interface {
	Plugin
	// Read blocks until the next Record is available, ctx is cancelled, or
	// the source is exhausted (io.EOF wrapped as a return error satisfying
	// errors.Is(err, io.EOF)).
	Read(ctx context.Context) (record.Record, error)
	// Close releases any resources. Read must return promptly after Close.
	Close() error
}

// Transform consumes one Record and produces zero, one, or a finite list of
// Records (spec §4.1). Transforms MUST be pure with respect to their
// declared internal state: identical inputs with identical internal state
// produce identical outputs — a Transform may keep internal counters,
// parsers or accumulators, but must not reach outside itself (no hidden
// global state, no wall-clock reads unless the transform's whole purpose is
// timestamping).
type Transform interface {
	Plugin
	// Apply returns the records to emit downstream. A nil/empty slice is a
	// FilterDrop (spec §7): normal control flow, not an error.
	Apply(ctx context.Context, r record.Record) ([]record.Record, error)
}

// Writer delivers a Record to an external destination and returns once the
// call completes (spec §4.1). Writers may buffer internally; each
// implementation documents its own failure semantics. What the queue in
// front of a writer does when full is the BackpressurePolicy on that
// writer's listener.NamedWriter entry.
type Writer interface {
	Plugin
	// Write delivers one record. An error marks the writer degraded in the
	// owning Listener (spec §4.2) but does not by itself stop the pipeline.
	Write(ctx context.Context, r record.Record) error
	// Flush forces any buffered state out before Close; Close releases
	// resources. Both run with a bounded shutdown-grace context.
	Flush(ctx context.Context) error
	Close() error
}

// BackpressurePolicy selects what a Listener's per-writer queue does when
// full (spec §4.2).
type BackpressurePolicy string

const (
	// PolicyBlock blocks the fan-out for this writer until the queue
	// drains. This is the spec's default.
	PolicyBlock BackpressurePolicy = "block"
	// PolicyDropOldest evicts the oldest queued record and logs a warning.
	PolicyDropOldest BackpressurePolicy = "drop_oldest"
)
