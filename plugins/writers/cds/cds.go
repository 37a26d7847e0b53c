// Package cds implements CachedDataServerWriter: publishes structured
// record fields into an in-process internal/cds.Cache, the same cache a
// cds.Server serves over websocket/UDP (spec §4.6). Lets a pipeline
// publish directly into a cache shared with a co-located data server
// without going over the network.
package cds

import (
	"context"
	"fmt"

	"rvdas.dev/logger/internal/cds"
	"rvdas.dev/logger/internal/record"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func init() {
	registry.RegisterWriter("cached_data_server", New)
}

// sharedCaches lets multiple logger configs reference the same named
// cache within one process (e.g. a logger writer and a co-located
// cds.Server).
var sharedCaches = map[string]*cds.Cache{}

// Writer publishes each structured record's fields into a cds.Cache.
type Writer struct {
	cache *cds.Cache
}

// New builds a Writer from kwargs: "cache_name" (required, identifies a
// process-wide shared cache instance), optional "back_seconds" /
// "back_records" defaults for newly-created caches.
func New(kwargs map[string]any) (stage.Writer, error) {
	name, _ := kwargs["cache_name"].(string)
	if name == "" {
		return nil, fmt.Errorf("cached_data_server writer: cache_name is required")
	}
	backSeconds := 60.0
	if v, ok := kwargs["back_seconds"].(float64); ok {
		backSeconds = v
	}
	backRecords := 1
	if v, ok := kwargs["back_records"].(int); ok {
		backRecords = v
	}

	cache, ok := sharedCaches[name]
	if !ok {
		cache = cds.NewCache(backSeconds, backRecords)
		sharedCaches[name] = cache
	}
	return &Writer{cache: cache}, nil
}

// Cache returns the named shared cache, creating it with defaults if it
// doesn't exist yet. Used by cmd/loggerctl to hand a cds.Server the same
// cache instance a writer is publishing into.
func Cache(name string) *cds.Cache {
	cache, ok := sharedCaches[name]
	if !ok {
		cache = cds.NewCache(60, 1)
		sharedCaches[name] = cache
	}
	return cache
}

func (w *Writer) Name() string                 { return "cached_data_server" }
func (w *Writer) AcceptedKinds() []record.Kind { return []record.Kind{record.KindStructured} }
func (w *Writer) ProducedKind() record.Kind    { return 0 }

func (w *Writer) Write(ctx context.Context, r record.Record) error {
	s := r.Structured()
	for name, fv := range s.Fields {
		if fv.IsSeries() {
			for _, ts := range fv.Series {
				w.cache.Publish(name, cds.Sample{Timestamp: ts.Timestamp, Value: ts.Value})
			}
			continue
		}
		w.cache.Publish(name, cds.Sample{Timestamp: s.Timestamp, Value: fv.Scalar})
	}
	return nil
}

func (w *Writer) Flush(ctx context.Context) error { return nil }
func (w *Writer) Close() error                    { return nil }
