package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadCruiseDefinition reads a cruise/logger definition file, decoding
// both YAML and JSON through yaml.v3 (a JSON superset, so no extension
// sniffing is needed), merges any `includes` paths' devices/device_types
// into the document, runs the two-pass var/template expansion of spec
// §4.3, and decodes the result into a CruiseDefinition. Validation against
// the registry is the caller's job (registry names aren't known to this
// package) via CruiseDefinition.Validate.
func LoadCruiseDefinition(path string) (*CruiseDefinition, error) {
	doc, err := loadDocument(path)
	if err != nil {
		return nil, err
	}

	if err := mergeIncludes(doc, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("config: %s: includes: %w", path, err)
	}

	doc, err = expandVariables(doc)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	doc, err = expandTemplates(doc)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	var cd CruiseDefinition
	if err := decodeInto(doc, &cd); err != nil {
		return nil, fmt.Errorf("config: %s: decode: %w", path, err)
	}
	return &cd, nil
}

// LoadLoggerConfig loads a single LoggerConfig, optionally selecting one
// config by name out of a cruise file via the "path:config_name" syntax
// of spec §4.3.
func LoadLoggerConfig(ref string) (*LoggerConfig, error) {
	path, configName, selecting := strings.Cut(ref, ":")
	if !selecting {
		doc, err := loadDocument(path)
		if err != nil {
			return nil, err
		}
		doc, err = expandVariables(doc)
		if err != nil {
			return nil, err
		}
		doc, err = expandTemplates(doc)
		if err != nil {
			return nil, err
		}
		var lc LoggerConfig
		if err := decodeInto(doc, &lc); err != nil {
			return nil, fmt.Errorf("config: %s: decode: %w", path, err)
		}
		return &lc, nil
	}

	cd, err := LoadCruiseDefinition(path)
	if err != nil {
		return nil, err
	}
	cfg, ok := cd.Configs[configName]
	if !ok {
		return nil, fmt.Errorf("config: %s: no config named %q", path, configName)
	}
	return &cfg, nil
}

func loadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: %s: parse: %w", path, err)
	}
	return doc, nil
}

// mergeIncludes deep-merges the devices/device_types maps of every path
// listed under the document's `includes` key (resolved relative to
// baseDir, supporting glob patterns) into the document's own top-level
// devices/device_types maps, later entries winning on key collision per
// spec §4.3.
func mergeIncludes(doc map[string]any, baseDir string) error {
	raw, ok := doc["includes"]
	if !ok {
		return nil
	}
	delete(doc, "includes")

	patterns, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("includes: expected a list of paths/globs")
	}

	devices, _ := doc["devices"].(map[string]any)
	if devices == nil {
		devices = map[string]any{}
	}
	deviceTypes, _ := doc["device_types"].(map[string]any)
	if deviceTypes == nil {
		deviceTypes = map[string]any{}
	}

	for _, p := range patterns {
		pattern, ok := p.(string)
		if !ok {
			return fmt.Errorf("includes: entry %v is not a string", p)
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("includes: bad glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		for _, m := range matches {
			included, err := loadDocument(m)
			if err != nil {
				return err
			}
			if d, ok := included["devices"].(map[string]any); ok {
				for k, v := range d {
					devices[k] = v
				}
			}
			if dt, ok := included["device_types"].(map[string]any); ok {
				for k, v := range dt {
					deviceTypes[k] = v
				}
			}
		}
	}

	doc["devices"] = devices
	doc["device_types"] = deviceTypes
	return nil
}

func decodeInto(doc map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return err
	}
	return dec.Decode(doc)
}
