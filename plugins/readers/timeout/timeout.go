// Package timeout implements TimeoutReader: wraps a delegate Reader and
// emits a synthetic record if the delegate stays silent for longer than
// a configured duration, so downstream transforms/writers can detect a
// dead instrument instead of blocking forever (spec §7's Timeout error
// kind).
package timeout

import (
	"context"
	"fmt"
	"time"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterReader("timeout", New)
}

// Reader races delegate.Read against a timer; if the timer wins it
// returns a synthetic text record instead of blocking further.
type Reader struct {
	delegate stage.Reader
	timeout  time.Duration
	message  string

	results chan result
	started bool
}

type result struct {
	rec record.Record
	err error
}

// New builds a Reader from kwargs: "timeout_secs" (required), optional
// "message" (default "timeout"), and "delegate_class" / "delegate_kwargs"
// to construct the wrapped Reader via the registry.
func New(kwargs map[string]any) (stage.Reader, error) {
	timeoutSecs, ok := kwargs["timeout_secs"].(float64)
	if !ok || timeoutSecs <= 0 {
		return nil, fmt.Errorf("timeout reader: timeout_secs is required and must be > 0")
	}
	message := "timeout"
	if v, ok := kwargs["message"].(string); ok && v != "" {
		message = v
	}
	delegateClass, _ := kwargs["delegate_class"].(string)
	if delegateClass == "" {
		return nil, fmt.Errorf("timeout reader: delegate_class is required")
	}
	delegateKwargs, _ := kwargs["delegate_kwargs"].(map[string]any)

	delegate, err := registry.NewReader(delegateClass, delegateKwargs)
	if err != nil {
		return nil, fmt.Errorf("timeout reader: building delegate %s: %w", delegateClass, err)
	}

	return &Reader{
		delegate: delegate,
		timeout:  time.Duration(timeoutSecs * float64(time.Second)),
		message:  message,
		results:  make(chan result, 1),
	}, nil
}

func (r *Reader) Name() string                 { return "timeout:" + r.delegate.Name() }
func (r *Reader) AcceptedKinds() []record.Kind { return nil }
func (r *Reader) ProducedKind() record.Kind    { return r.delegate.ProducedKind() }

func (r *Reader) Read(ctx context.Context) (record.Record, error) {
	if !r.started {
		r.started = true
		go r.pump()
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-r.results:
		if !r.started {
			return record.Record{}, fmt.Errorf("timeout reader: closed")
		}
		go r.pump()
		return res.rec, res.err
	case <-timer.C:
		return record.NewText(r.Name(), r.message), nil
	case <-ctx.Done():
		return record.Record{}, ctx.Err()
	}
}

func (r *Reader) pump() {
	rec, err := r.delegate.Read(context.Background())
	r.results <- result{rec, err}
}

func (r *Reader) Close() error {
	r.started = false
	return r.delegate.Close()
}
