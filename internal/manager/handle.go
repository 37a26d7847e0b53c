package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/listener"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

// ListenerHandle abstracts over where a logger's pipeline actually runs:
// in-process (NewInProcessHandleFactory) or as a child OS process
// (childproc.go's NewChildProcessHandleFactory, the manager's default per spec
// §3's "Isolation" paragraph: "each running logger isolated from the
// manager's own process and from every other logger"). reconcile.go only
// depends on this interface.
type ListenerHandle interface {
	Start() error
	Stop(grace time.Duration) error
	PID() int
	Exited() bool
	ExitError() error
	Config() config.LoggerConfig
}

// inProcessHandle runs a logger's Listener directly inside the manager's
// own goroutines. PID is always 0 since no child OS process exists.
type inProcessHandle struct {
	name string
	cfg  config.LoggerConfig

	mu       sync.Mutex
	lst      *listener.Listener
	exited   bool
	exitErr  error
	stopOnce sync.Once
}

// NewInProcessHandleFactory builds a HandleFactory that runs every logger
// in-process, resolving StageSpecs through registry.
func NewInProcessHandleFactory() HandleFactory {
	return func(name string, cfg config.LoggerConfig) ListenerHandle {
		return &inProcessHandle{name: name, cfg: cfg}
	}
}

func (h *inProcessHandle) Config() config.LoggerConfig { return h.cfg }

func (h *inProcessHandle) Start() error {
	readers := make([]stage.Reader, 0, len(h.cfg.Readers))
	for _, spec := range h.cfg.Readers {
		r, err := registry.NewReader(spec.Class, spec.Kwargs)
		if err != nil {
			return fmt.Errorf("handle %s: reader: %w", h.name, err)
		}
		readers = append(readers, r)
	}
	transforms := make([]stage.Transform, 0, len(h.cfg.Transforms))
	for _, spec := range h.cfg.Transforms {
		t, err := registry.NewTransform(spec.Class, spec.Kwargs)
		if err != nil {
			return fmt.Errorf("handle %s: transform: %w", h.name, err)
		}
		transforms = append(transforms, t)
	}
	writers := make([]listener.NamedWriter, 0, len(h.cfg.Writers))
	for _, spec := range h.cfg.Writers {
		w, err := registry.NewWriter(spec.Class, spec.Kwargs)
		if err != nil {
			return fmt.Errorf("handle %s: writer: %w", h.name, err)
		}
		writers = append(writers, listener.NamedWriter{Writer: w, QueueDepth: 64})
	}

	lst, err := listener.New(listener.Config{
		Name:       h.name,
		Readers:    readers,
		Transforms: transforms,
		Writers:    writers,
		Interval:   time.Duration(h.cfg.IntervalSecs * float64(time.Second)),
	})
	if err != nil {
		return fmt.Errorf("handle %s: %w", h.name, err)
	}

	if err := lst.Start(context.Background()); err != nil {
		return fmt.Errorf("handle %s: start: %w", h.name, err)
	}

	h.mu.Lock()
	h.lst = lst
	h.mu.Unlock()

	go h.watch(lst)
	return nil
}

func (h *inProcessHandle) watch(lst *listener.Listener) {
	for {
		time.Sleep(200 * time.Millisecond)
		status := lst.Status()
		if status.State == listener.StateFailed || status.State == listener.StateStopped {
			h.mu.Lock()
			h.exited = true
			if status.FailureReason != "" {
				h.exitErr = fmt.Errorf("%s", status.FailureReason)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *inProcessHandle) Stop(grace time.Duration) error {
	var err error
	h.stopOnce.Do(func() {
		h.mu.Lock()
		lst := h.lst
		h.mu.Unlock()
		if lst != nil {
			err = lst.Stop(grace)
		}
	})
	return err
}

func (h *inProcessHandle) PID() int { return 0 }

func (h *inProcessHandle) Exited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *inProcessHandle) ExitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}
