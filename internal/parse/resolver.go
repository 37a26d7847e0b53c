package parse

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/mitchellh/mapstructure"
)

// FieldInfo describes one DeviceType field, surfaced in the optional
// metadata block ParseTransform attaches every metadata_interval seconds
// (spec §4.5).
type FieldInfo struct {
	Units       string `mapstructure:"units"`
	Description string `mapstructure:"description"`
}

// FormatEntry is one candidate record_format a DeviceType offers, tried
// in declaration order against a field_string (spec §4.5).
type FormatEntry struct {
	MessageType string `mapstructure:"message_type"`
	Format      string `mapstructure:"format"`
}

// DeviceTypeDef is one entry of a CruiseDefinition's device_types map.
type DeviceTypeDef struct {
	Fields  map[string]FieldInfo `mapstructure:"fields"`
	Formats []FormatEntry        `mapstructure:"formats"`
}

// DeviceDef is one entry of a CruiseDefinition's devices map: it names a
// DeviceType and a field rename map (DeviceType field name -> this
// device's field name, e.g. "Latitude" -> "S330Latitude").
type DeviceDef struct {
	DeviceType string            `mapstructure:"device_type"`
	Fields     map[string]string `mapstructure:"fields"`
}

// resolved is the per-data_id compiled state a Resolver caches.
type resolved struct {
	device     DeviceDef
	deviceType DeviceTypeDef
	compiled   []compiledCandidate
}

type compiledCandidate struct {
	messageType string
	format      *CompiledFormat
}

// Resolver performs spec §4.5's second-pass Device/DeviceType resolution:
// given a data_id, find its Device, that Device's DeviceType, try each of
// the DeviceType's candidate formats against field_string in order, and
// rename matched fields per the Device's rename map. Resolution results
// are cached with github.com/patrickmn/go-cache (no expiration — a cruise
// definition's devices/device_types are immutable until the manager loads
// a new one, at which point a fresh Resolver is built), the same cache
// library plugins/parser/sip/sip.go uses for its per-call session state.
type Resolver struct {
	devices     map[string]any
	deviceTypes map[string]any
	cache       *gocache.Cache
}

// NewResolver builds a Resolver over devices/device_types decoded from a
// CruiseDefinition.
func NewResolver(devices, deviceTypes map[string]any) *Resolver {
	return &Resolver{
		devices:     devices,
		deviceTypes: deviceTypes,
		cache:       gocache.New(gocache.NoExpiration, time.Hour),
	}
}

func (r *Resolver) resolve(dataID string) (*resolved, error) {
	if cached, ok := r.cache.Get(dataID); ok {
		return cached.(*resolved), nil
	}

	rawDevice, ok := r.devices[dataID]
	if !ok {
		return nil, fmt.Errorf("parse: no device registered for data_id %q", dataID)
	}
	var device DeviceDef
	if err := mapstructure.Decode(rawDevice, &device); err != nil {
		return nil, fmt.Errorf("parse: decode device %q: %w", dataID, err)
	}

	rawType, ok := r.deviceTypes[device.DeviceType]
	if !ok {
		return nil, fmt.Errorf("parse: device %q references unknown device_type %q", dataID, device.DeviceType)
	}
	var deviceType DeviceTypeDef
	if err := mapstructure.Decode(rawType, &deviceType); err != nil {
		return nil, fmt.Errorf("parse: decode device_type %q: %w", device.DeviceType, err)
	}

	candidates := make([]compiledCandidate, 0, len(deviceType.Formats))
	for _, fe := range deviceType.Formats {
		cf, err := CompileFormat(fe.Format)
		if err != nil {
			return nil, fmt.Errorf("parse: device_type %q: %w", device.DeviceType, err)
		}
		candidates = append(candidates, compiledCandidate{messageType: fe.MessageType, format: cf})
	}

	res := &resolved{device: device, deviceType: deviceType, compiled: candidates}
	r.cache.Set(dataID, res, gocache.NoExpiration)
	return res, nil
}

// Resolve applies the Device's DeviceType candidate formats to
// fieldString in declaration order, renaming matched fields per the
// Device's rename map, and returns the (possibly empty) renamed field set.
func (r *Resolver) Resolve(dataID, fieldString string) (map[string]any, error) {
	res, err := r.resolve(dataID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, c := range res.compiled {
		fields, err := c.format.Match(fieldString)
		if err != nil {
			lastErr = err
			continue
		}
		return renameFields(fields, res.device.Fields), nil
	}
	if lastErr == nil {
		lastErr = ErrNoMatch
	}
	return nil, fmt.Errorf("parse: data_id %q: no candidate format matched %q: %w", dataID, fieldString, lastErr)
}

func renameFields(fields map[string]any, renames map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for name, v := range fields {
		if renamed, ok := renames[name]; ok {
			out[renamed] = v
			continue
		}
		out[name] = v
	}
	return out
}

// Metadata returns the field metadata block for dataID's resolved device,
// renamed the same way Resolve renames values (spec §4.5's
// metadata_interval attachment: "units, description, device, device_type").
func (r *Resolver) Metadata(dataID string) (map[string]map[string]any, error) {
	res, err := r.resolve(dataID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(res.deviceType.Fields))
	for name, info := range res.deviceType.Fields {
		renamed := name
		if r, ok := res.device.Fields[name]; ok {
			renamed = r
		}
		out[renamed] = map[string]any{
			"units":       info.Units,
			"description": info.Description,
			"device":      dataID,
			"device_type": res.device.DeviceType,
		}
	}
	return out, nil
}
