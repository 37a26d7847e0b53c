// Package parse implements the record-format mini-language and
// Device/DeviceType two-pass resolution of spec §4.5, used by
// plugins/transforms/parse's ParseTransform. The placeholder token syntax
// (`%name:type%`) reuses internal/config/expand.go's `%NAME%` delimiter
// choice for consistency across the two places this codebase invents its
// own mini-language. Grounded on plugins/parser/sip/sip.go's
// CanHandle/Handle-style parser shape and its use of
// github.com/patrickmn/go-cache for session/lookup caching, adapted here
// from "cache a SIP call's session state" to "cache a data_id's resolved
// Device+DeviceType+compiled-pattern, which is static once a cruise
// definition loads."
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FieldType names one of the typed placeholders spec §4.5 lists.
type FieldType string

const (
	FieldInt      FieldType = "int"
	FieldFloat    FieldType = "float"
	FieldOptFloat FieldType = "ofloat"
	FieldWord     FieldType = "word"
	FieldISO8601  FieldType = "iso8601"
	FieldLatLon   FieldType = "latlon"
	FieldString   FieldType = "string"
)

var placeholderPattern = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*):([a-z0-9]+)%`)

// CompiledFormat is a record_format string compiled to a regular
// expression plus the ordered (name, type) pairs for its capture groups.
type CompiledFormat struct {
	Source string
	re     *regexp.Regexp
	fields []fieldSpec
}

type fieldSpec struct {
	name string
	typ  FieldType
}

// patternFor returns the regex fragment matching one field type.
func patternFor(t FieldType) (string, error) {
	switch t {
	case FieldInt:
		return `[-+]?\d+`, nil
	case FieldFloat:
		return `[-+]?\d+(?:\.\d+)?`, nil
	case FieldOptFloat:
		return `[-+]?\d+(?:\.\d+)?|`, nil
	case FieldWord:
		return `\S+`, nil
	case FieldISO8601:
		return `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[-+]\d{2}:?\d{2})?`, nil
	case FieldLatLon:
		return `\d+\.\d+,[NSEW]`, nil
	case FieldString:
		return `.*?`, nil
	default:
		return "", fmt.Errorf("parse: unknown field type %q", t)
	}
}

// CompileFormat parses a record_format string into a matchable
// CompiledFormat. Literal characters outside `%name:type%` placeholders
// are matched verbatim (regex-escaped); consecutive placeholders are
// separated by whatever literal text sits between them in the format.
func CompileFormat(format string) (*CompiledFormat, error) {
	var sb strings.Builder
	sb.WriteString("^")
	var fields []fieldSpec

	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(format, -1) {
		literal := format[last:loc[0]]
		sb.WriteString(regexp.QuoteMeta(literal))

		name := format[loc[2]:loc[3]]
		typ := FieldType(format[loc[4]:loc[5]])
		frag, err := patternFor(typ)
		if err != nil {
			return nil, fmt.Errorf("record format %q: %w", format, err)
		}
		sb.WriteString("(" + frag + ")")
		fields = append(fields, fieldSpec{name: name, typ: typ})

		last = loc[1]
	}
	sb.WriteString(regexp.QuoteMeta(format[last:]))
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("record format %q: compiled to invalid regex: %w", format, err)
	}
	return &CompiledFormat{Source: format, re: re, fields: fields}, nil
}

// ErrNoMatch is returned by Match when text does not fit the format.
var ErrNoMatch = fmt.Errorf("parse: text does not match record format")

// Match applies the compiled format to text, returning typed field values.
func (f *CompiledFormat) Match(text string) (map[string]any, error) {
	m := f.re.FindStringSubmatch(text)
	if m == nil {
		return nil, ErrNoMatch
	}
	out := make(map[string]any, len(f.fields))
	for i, fs := range f.fields {
		raw := m[i+1]
		v, err := convert(fs.typ, raw)
		if err != nil {
			return nil, fmt.Errorf("record format %q: field %q: %w", f.Source, fs.name, err)
		}
		out[fs.name] = v
	}
	return out, nil
}

func convert(t FieldType, raw string) (any, error) {
	switch t {
	case FieldInt:
		return strconv.ParseInt(raw, 10, 64)
	case FieldFloat:
		return strconv.ParseFloat(raw, 64)
	case FieldOptFloat:
		if raw == "" {
			return nil, nil
		}
		return strconv.ParseFloat(raw, 64)
	case FieldWord, FieldString:
		return raw, nil
	case FieldISO8601:
		return parseISO8601(raw)
	case FieldLatLon:
		return parseNMEALatLon(raw)
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
}

func parseISO8601(raw string) (float64, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return float64(t.UnixNano()) / 1e9, nil
		}
	}
	return 0, fmt.Errorf("unparseable ISO-8601 timestamp %q", raw)
}

// parseNMEALatLon converts an NMEA DDDMM.MMMM,[NSEW] coordinate (as found
// in GPGGA/GPRMC sentences) to signed decimal degrees.
func parseNMEALatLon(raw string) (float64, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed NMEA lat/lon %q", raw)
	}
	value, hemisphere := parts[0], parts[1]

	dot := strings.Index(value, ".")
	if dot < 2 {
		return 0, fmt.Errorf("malformed NMEA lat/lon %q", raw)
	}
	degDigits := dot - 2
	deg, err := strconv.ParseFloat(value[:degDigits], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed NMEA lat/lon %q: %w", raw, err)
	}
	min, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed NMEA lat/lon %q: %w", raw, err)
	}

	decimal := deg + min/60
	switch hemisphere {
	case "S", "W":
		decimal = -decimal
	case "N", "E":
	default:
		return 0, fmt.Errorf("malformed NMEA hemisphere %q", hemisphere)
	}
	return decimal, nil
}
