package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/stage"
)

// ComposedReader runs N child Readers concurrently and merges their output
// into a single Read() stream, implementing spec §3's "Composed
// Reader/Writer: nested pipeline blocks" for the reader side. Grounded on
// internal/task/task.go's dispatch-mode fan-in (multiple capturers feeding
// one channel), generalized from flow-hash dispatch (teacher routes one
// source to N pipelines) to pure fan-in (N sources merge to one stream),
// since a ComposedReader has no downstream transform chain of its own to
// shard across.
type ComposedReader struct {
	name     string
	children []stage.Reader

	once   sync.Once
	out    chan readResult
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type readResult struct {
	rec record.Record
	err error
}

// NewComposedReader builds a ComposedReader over children. All children
// must declare the same ProducedKind; this is checked eagerly since a
// ComposedReader is itself a Reader and must answer ProducedKind().
func NewComposedReader(name string, children ...stage.Reader) (*ComposedReader, error) {
	if len(children) == 0 {
		return nil, errors.New("listener: composed reader requires at least one child")
	}
	kind := children[0].ProducedKind()
	for _, c := range children[1:] {
		if c.ProducedKind() != kind {
			return nil, fmt.Errorf("listener: composed reader %q children disagree on produced kind", name)
		}
	}
	return &ComposedReader{name: name, children: children}, nil
}

func (c *ComposedReader) Name() string                  { return c.name }
func (c *ComposedReader) AcceptedKinds() []record.Kind   { return nil }
func (c *ComposedReader) ProducedKind() record.Kind      { return c.children[0].ProducedKind() }

func (c *ComposedReader) start() {
	c.out = make(chan readResult, len(c.children))
	c.ctx, c.cancel = context.WithCancel(context.Background())
	for _, child := range c.children {
		child := child
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				rec, err := child.Read(c.ctx)
				select {
				case c.out <- readResult{rec: rec, err: err}:
				case <-c.ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}
}

// Read returns the next Record from whichever child produces one first.
func (c *ComposedReader) Read(ctx context.Context) (record.Record, error) {
	c.once.Do(c.start)
	select {
	case res := <-c.out:
		return res.rec, res.err
	case <-ctx.Done():
		return record.Record{}, ctx.Err()
	}
}

// Close stops every child reader and waits for their goroutines to exit.
func (c *ComposedReader) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	var firstErr error
	for _, child := range c.children {
		if err := child.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.wg.Wait()
	return firstErr
}

// ComposedWriter fans one Write() call out to N child Writers, implementing
// spec §3's nested pipeline blocks for the writer side. Grounded on
// internal/task/task.go's senderLoop distributing one OutputPacket to M
// Reporters.
type ComposedWriter struct {
	name     string
	children []stage.Writer
}

// NewComposedWriter builds a ComposedWriter over children.
func NewComposedWriter(name string, children ...stage.Writer) *ComposedWriter {
	return &ComposedWriter{name: name, children: children}
}

func (c *ComposedWriter) Name() string { return c.name }

// AcceptedKinds is the intersection of all children's accepted kinds; nil
// (accept-all) only if every child accepts everything.
func (c *ComposedWriter) AcceptedKinds() []record.Kind {
	counts := make(map[record.Kind]int)
	restricted := 0
	for _, ch := range c.children {
		kinds := ch.AcceptedKinds()
		if kinds == nil {
			continue
		}
		restricted++
		for _, k := range kinds {
			counts[k]++
		}
	}
	if restricted == 0 {
		return nil
	}
	out := []record.Kind{}
	for k, n := range counts {
		if n == restricted {
			out = append(out, k)
		}
	}
	return out
}

func (c *ComposedWriter) ProducedKind() record.Kind { return 0 }

// Write delivers rec to every child, returning the first error (after
// attempting all children, so one failing child doesn't block delivery to
// the rest).
func (c *ComposedWriter) Write(ctx context.Context, rec record.Record) error {
	var firstErr error
	for _, child := range c.children {
		if err := child.Write(ctx, rec); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("composed writer %q: child %q: %w", c.name, child.Name(), err)
		}
	}
	return firstErr
}

// Flush flushes every child.
func (c *ComposedWriter) Flush(ctx context.Context) error {
	var firstErr error
	for _, child := range c.children {
		if err := child.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every child.
func (c *ComposedWriter) Close() error {
	var firstErr error
	for _, child := range c.children {
		if err := child.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
