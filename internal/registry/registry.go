// Package registry implements the process-wide component registry of
// spec §4.8: a mapping from class name to a constructor that accepts a
// kwargs map and returns a stage instance. Grounded on
// pkg/plugin/registry.go's register-or-panic / Get*Factory / sorted-List*
// shape, generalized from the teacher's four plugin kinds (Capturer,
// Parser, Processor, Reporter) to the spec's three (Reader, Transform,
// Writer), and from zero-arg factories to kwargs-taking constructors since
// a StageSpec's kwargs are known at registration time (spec §4.8:
// "a constructor that accepts a kwargs map").
package registry

import (
	"fmt"
	"sort"
	"sync"

	"rvdas.dev/logger/internal/stage"
)

// ReaderConstructor builds a Reader from its StageSpec kwargs.
type ReaderConstructor func(kwargs map[string]any) (stage.Reader, error)

// TransformConstructor builds a Transform from its StageSpec kwargs.
type TransformConstructor func(kwargs map[string]any) (stage.Transform, error)

// WriterConstructor builds a Writer from its StageSpec kwargs.
type WriterConstructor func(kwargs map[string]any) (stage.Writer, error)

// ErrNotFound is returned by NewReader/NewTransform/NewWriter when no constructor is
// registered under the requested class name, per spec §3's "every
// referenced class/module resolvable in the registry" invariant.
type ErrNotFound struct {
	Kind string
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: no %s registered as %q", e.Kind, e.Name)
}

type registry struct {
	mu         sync.RWMutex
	readers    map[string]ReaderConstructor
	transforms map[string]TransformConstructor
	writers    map[string]WriterConstructor
}

var global = &registry{
	readers:    make(map[string]ReaderConstructor),
	transforms: make(map[string]TransformConstructor),
	writers:    make(map[string]WriterConstructor),
}

// RegisterReader registers a Reader constructor by class name. Panics if
// the name is already registered or arguments are invalid — a duplicate
// registration indicates a compile-time bug in an init() func, exactly as
// pkg/plugin/registry.go treats it.
func RegisterReader(class string, ctor ReaderConstructor) {
	global.mu.Lock()
	defer global.mu.Unlock()
	mustRegister(class, ctor == nil, "reader")
	if _, exists := global.readers[class]; exists {
		panic(fmt.Sprintf("registry: reader %q already registered", class))
	}
	global.readers[class] = ctor
}

// RegisterTransform registers a Transform constructor by class name.
func RegisterTransform(class string, ctor TransformConstructor) {
	global.mu.Lock()
	defer global.mu.Unlock()
	mustRegister(class, ctor == nil, "transform")
	if _, exists := global.transforms[class]; exists {
		panic(fmt.Sprintf("registry: transform %q already registered", class))
	}
	global.transforms[class] = ctor
}

// RegisterWriter registers a Writer constructor by class name.
func RegisterWriter(class string, ctor WriterConstructor) {
	global.mu.Lock()
	defer global.mu.Unlock()
	mustRegister(class, ctor == nil, "writer")
	if _, exists := global.writers[class]; exists {
		panic(fmt.Sprintf("registry: writer %q already registered", class))
	}
	global.writers[class] = ctor
}

func mustRegister(class string, ctorNil bool, kind string) {
	if class == "" {
		panic("registry: " + kind + " class name cannot be empty")
	}
	if ctorNil {
		panic("registry: " + kind + " constructor cannot be nil")
	}
}

// NewReader resolves class and constructs a Reader from kwargs.
func NewReader(class string, kwargs map[string]any) (stage.Reader, error) {
	global.mu.RLock()
	ctor, ok := global.readers[class]
	global.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "reader", Name: class}
	}
	return ctor(kwargs)
}

// NewTransform resolves class and constructs a Transform from kwargs.
func NewTransform(class string, kwargs map[string]any) (stage.Transform, error) {
	global.mu.RLock()
	ctor, ok := global.transforms[class]
	global.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "transform", Name: class}
	}
	return ctor(kwargs)
}

// NewWriter resolves class and constructs a Writer from kwargs.
func NewWriter(class string, kwargs map[string]any) (stage.Writer, error) {
	global.mu.RLock()
	ctor, ok := global.writers[class]
	global.mu.RUnlock()
	if !ok {
		return nil, &ErrNotFound{Kind: "writer", Name: class}
	}
	return ctor(kwargs)
}

// HasReader reports whether class is resolvable, used by the config loader
// to validate a CruiseDefinition before attempting construction (spec §3).
func HasReader(class string) bool {
	global.mu.RLock()
	defer global.mu.RUnlock()
	_, ok := global.readers[class]
	return ok
}

// HasTransform reports whether class is resolvable.
func HasTransform(class string) bool {
	global.mu.RLock()
	defer global.mu.RUnlock()
	_, ok := global.transforms[class]
	return ok
}

// HasWriter reports whether class is resolvable.
func HasWriter(class string) bool {
	global.mu.RLock()
	defer global.mu.RUnlock()
	_, ok := global.writers[class]
	return ok
}

// ListReaders returns a sorted list of all registered reader class names.
func ListReaders() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return sortedKeys(global.readers)
}

// ListTransforms returns a sorted list of all registered transform class names.
func ListTransforms() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return sortedKeys(global.transforms)
}

// ListWriters returns a sorted list of all registered writer class names.
func ListWriters() []string {
	global.mu.RLock()
	defer global.mu.RUnlock()
	return sortedKeys(global.writers)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
