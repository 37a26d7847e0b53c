// Package poll implements PollReader: wraps a delegate Reader (typically
// a query-response instrument reader) and re-triggers it on a
// robfig/cron/v3 schedule instead of reading continuously, for
// instruments that must be explicitly polled rather than streaming
// (spec §6's `--interval` composition with a request/response reader).
package poll

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterReader("poll", New)
}

// Reader calls delegate.Read once per cron tick and hands the result
// back to whoever calls its own Read, blocking in between ticks.
type Reader struct {
	delegate stage.Reader
	schedule string
	cron     *cron.Cron
	results  chan result
	done     chan struct{}
}

type result struct {
	rec record.Record
	err error
}

// New builds a Reader from kwargs: "schedule" (required, a
// robfig/cron/v3 expression, e.g. "@every 10s") and "delegate_class" /
// "delegate_kwargs" to construct the wrapped Reader via the registry.
func New(kwargs map[string]any) (stage.Reader, error) {
	schedule, _ := kwargs["schedule"].(string)
	if schedule == "" {
		return nil, fmt.Errorf("poll reader: schedule is required")
	}
	delegateClass, _ := kwargs["delegate_class"].(string)
	if delegateClass == "" {
		return nil, fmt.Errorf("poll reader: delegate_class is required")
	}
	delegateKwargs, _ := kwargs["delegate_kwargs"].(map[string]any)

	delegate, err := registry.NewReader(delegateClass, delegateKwargs)
	if err != nil {
		return nil, fmt.Errorf("poll reader: building delegate %s: %w", delegateClass, err)
	}

	r := &Reader{
		delegate: delegate,
		schedule: schedule,
		cron:     cron.New(),
		results:  make(chan result, 1),
		done:     make(chan struct{}),
	}

	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("poll reader: invalid schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	return r, nil
}

func (r *Reader) tick() {
	rec, err := r.delegate.Read(context.Background())
	select {
	case r.results <- result{rec, err}:
	case <-r.done:
	}
}

func (r *Reader) Name() string                 { return "poll:" + r.delegate.Name() }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return r.delegate.ProducedKind() }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	select {
	case res := <-r.results:
		return res.rec, res.err
	case <-ctx.Done():
		return record.Record{}, ctx.Err()
	case <-r.done:
		return record.Record{}, fmt.Errorf("poll reader: closed")
	}
}

func (r *Reader) Close() error {
	close(r.done)
	r.cron.Stop()
	return r.delegate.Close()
}
