// Package cds implements the Cached Data Server of spec §4.6: an
// in-memory, per-field time-windowed cache accepting writes from the
// pipeline engine's writers, a websocket publish/subscribe protocol, and a
// UDP ingest port, with ready/ack backpressure per subscriber. Grounded on
// internal/metrics/server.go's managed http.Server-with-graceful-Shutdown
// shape (server.go) and internal/eventbus/bus.go's partitioned-subscriber
// fan-out idea (the per-subscriber dispatch goroutine in server.go),
// neither of which the teacher itself combines with a retention policy —
// the periodic sweep is grounded on r3e-network-service_layer's scheduled-
// cleanup job pattern using github.com/robfig/cron/v3 (DESIGN.md Open
// Question 3).
package cds

import (
	"sort"
	"sync"
	"time"
)

// Sample is one (timestamp, value) pair for a field.
type Sample struct {
	Timestamp float64 `json:"timestamp"`
	Value     any     `json:"value"`
}

// FieldMetadata describes a field for the `describe` request.
type FieldMetadata struct {
	Units       string `json:"units,omitempty"`
	Description string `json:"description,omitempty"`
	Device      string `json:"device,omitempty"`
	DeviceType  string `json:"device_type,omitempty"`
}

// Retention bounds one field's buffer: entries are kept if they fall
// within Seconds of now, OR are among the most recent Records count,
// whichever keeps more (spec §4.6: "keep last back_seconds of values and
// at least back_records of them").
type Retention struct {
	Seconds float64
	Records int
}

func (r Retention) orDefault(d Retention) Retention {
	if r.Seconds <= 0 {
		r.Seconds = d.Seconds
	}
	if r.Records <= 0 {
		r.Records = d.Records
	}
	return r
}

type fieldBuffer struct {
	mu        sync.Mutex
	samples   []Sample
	retention Retention
	metadata  FieldMetadata
}

func (b *fieldBuffer) append(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Maintain timestamp order even if publishers race; spec §5 only
	// guarantees "timestamp-ordered append" per field, not across fields.
	idx := sort.Search(len(b.samples), func(i int) bool { return b.samples[i].Timestamp > s.Timestamp })
	b.samples = append(b.samples, Sample{})
	copy(b.samples[idx+1:], b.samples[idx:])
	b.samples[idx] = s
	b.trimLocked(time.Now())
}

func (b *fieldBuffer) trimLocked(now time.Time) {
	if len(b.samples) <= b.retention.Records {
		return
	}
	cutoff := now.Unix()
	if b.retention.Seconds > 0 {
		cutoff = now.Add(-time.Duration(b.retention.Seconds * float64(time.Second))).Unix()
	}
	keepFrom := 0
	for i, s := range b.samples {
		if int64(s.Timestamp) >= cutoff {
			keepFrom = i
			break
		}
		keepFrom = i + 1
	}
	// Never trim below retention.Records most recent samples.
	minKeepFrom := len(b.samples) - b.retention.Records
	if minKeepFrom < 0 {
		minKeepFrom = 0
	}
	if keepFrom > minKeepFrom {
		keepFrom = minKeepFrom
	}
	if keepFrom > 0 {
		b.samples = append([]Sample(nil), b.samples[keepFrom:]...)
	}
}

// since returns the samples with Timestamp >= cutoff, newest n capped to
// maxRecords if maxRecords > 0.
func (b *fieldBuffer) since(cutoff float64, maxRecords int) []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := sort.Search(len(b.samples), func(i int) bool { return b.samples[i].Timestamp >= cutoff })
	out := append([]Sample(nil), b.samples[idx:]...)
	if maxRecords > 0 && len(out) > maxRecords {
		out = out[len(out)-maxRecords:]
	}
	return out
}

func (b *fieldBuffer) latest() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Cache is the Cached Data Server's core storage, independent of any wire
// protocol (server.go and udp.go both write through it).
type Cache struct {
	mu                sync.RWMutex
	fields            map[string]*fieldBuffer
	defaultRetention  Retention
}

// NewCache builds an empty Cache with the given default per-field
// retention, used when a write doesn't specify its own.
func NewCache(defaultBackSeconds float64, defaultBackRecords int) *Cache {
	return &Cache{
		fields: make(map[string]*fieldBuffer),
		defaultRetention: Retention{
			Seconds: defaultBackSeconds,
			Records: defaultBackRecords,
		},
	}
}

func (c *Cache) fieldLocked(name string) *fieldBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.fields[name]
	if !ok {
		b = &fieldBuffer{retention: c.defaultRetention}
		c.fields[name] = b
	}
	return b
}

// Publish writes one sample for name.
func (c *Cache) Publish(name string, s Sample) {
	c.fieldLocked(name).append(s)
}

// SetMetadata records description metadata for name, used by `describe`.
func (c *Cache) SetMetadata(name string, md FieldMetadata) {
	b := c.fieldLocked(name)
	b.mu.Lock()
	b.metadata = md
	b.mu.Unlock()
}

// SetRetention overrides the retention policy for one field.
func (c *Cache) SetRetention(name string, r Retention) {
	b := c.fieldLocked(name)
	b.mu.Lock()
	b.retention = r.orDefault(c.defaultRetention)
	b.mu.Unlock()
}

// Fields lists every field name with at least one sample or metadata.
func (c *Cache) Fields() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.fields))
	for name := range c.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns metadata for the requested fields (all fields if names
// is empty).
func (c *Cache) Describe(names []string) map[string]FieldMetadata {
	if len(names) == 0 {
		names = c.Fields()
	}
	out := make(map[string]FieldMetadata, len(names))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range names {
		if b, ok := c.fields[n]; ok {
			b.mu.Lock()
			out[n] = b.metadata
			b.mu.Unlock()
		}
	}
	return out
}

// Since returns samples for name with timestamp >= cutoff, capped to
// maxRecords (0 = unbounded).
func (c *Cache) Since(name string, cutoff float64, maxRecords int) []Sample {
	c.mu.RLock()
	b, ok := c.fields[name]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return b.since(cutoff, maxRecords)
}

// Latest returns the most recent sample for name.
func (c *Cache) Latest(name string) (Sample, bool) {
	c.mu.RLock()
	b, ok := c.fields[name]
	c.mu.RUnlock()
	if !ok {
		return Sample{}, false
	}
	return b.latest()
}

// Sweep evicts entries beyond retention in every field; called
// periodically by the cron job in server.go.
func (c *Cache) Sweep() {
	c.mu.RLock()
	buffers := make([]*fieldBuffer, 0, len(c.fields))
	for _, b := range c.fields {
		buffers = append(buffers, b)
	}
	c.mu.RUnlock()

	now := time.Now()
	for _, b := range buffers {
		b.mu.Lock()
		b.trimLocked(now)
		b.mu.Unlock()
	}
}
