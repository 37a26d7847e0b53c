package config

import "fmt"

// StageSpec names a registry class and the kwargs to construct it with
// (spec §3). Module is an optional hint for out-of-tree plugin packages;
// this implementation resolves purely by Class against internal/registry,
// so Module is carried through for round-tripping but not consulted.
type StageSpec struct {
	Class  string         `yaml:"class" json:"class"`
	Module string         `yaml:"module,omitempty" json:"module,omitempty"`
	Kwargs map[string]any `yaml:"kwargs,omitempty" json:"kwargs,omitempty"`
}

// LoggerConfig is one named, runnable pipeline configuration (spec §3).
// Empty/missing Readers+Writers is the "off" configuration for a logger.
type LoggerConfig struct {
	Name          string      `yaml:"name" json:"name"`
	Readers       []StageSpec `yaml:"readers,omitempty" json:"readers,omitempty"`
	Transforms    []StageSpec `yaml:"transforms,omitempty" json:"transforms,omitempty"`
	Writers       []StageSpec `yaml:"writers,omitempty" json:"writers,omitempty"`
	StderrWriters []StageSpec `yaml:"stderr_writers,omitempty" json:"stderr_writers,omitempty"`
	IntervalSecs  float64     `yaml:"interval,omitempty" json:"interval,omitempty"`
	CheckFormat   bool        `yaml:"check_format,omitempty" json:"check_format,omitempty"`
	HostID        string      `yaml:"host_id,omitempty" json:"host_id,omitempty"`
}

// IsOff reports whether this is the "off" configuration: no readers and no
// writers (spec §3).
func (lc *LoggerConfig) IsOff() bool {
	return len(lc.Readers) == 0 && len(lc.Writers) == 0
}

// Validate checks the invariants of spec §3: a non-off config needs at
// least one Reader and one Writer, and every referenced class must be
// resolvable. hasReader/hasTransform/hasWriter are injected so this
// package doesn't import internal/registry directly (keeping config
// dependency-free of the plugin set it describes), following the
// teacher's own config package independence from pkg/plugin.
func (lc *LoggerConfig) Validate(hasReader, hasTransform, hasWriter func(string) bool) error {
	if lc.Name == "" {
		return fmt.Errorf("logger config: name is required")
	}
	if lc.IsOff() {
		return nil
	}
	if len(lc.Readers) == 0 {
		return fmt.Errorf("logger config %q: at least one reader is required (or omit readers and writers entirely for an off config)", lc.Name)
	}
	if len(lc.Writers) == 0 {
		return fmt.Errorf("logger config %q: at least one writer is required", lc.Name)
	}
	for i, s := range lc.Readers {
		if s.Class == "" {
			return fmt.Errorf("logger config %q: readers[%d]: class is required", lc.Name, i)
		}
		if !hasReader(s.Class) {
			return fmt.Errorf("logger config %q: readers[%d]: unknown reader class %q", lc.Name, i, s.Class)
		}
	}
	for i, s := range lc.Transforms {
		if s.Class == "" {
			return fmt.Errorf("logger config %q: transforms[%d]: class is required", lc.Name, i)
		}
		if !hasTransform(s.Class) {
			return fmt.Errorf("logger config %q: transforms[%d]: unknown transform class %q", lc.Name, i, s.Class)
		}
	}
	for i, s := range append(append([]StageSpec{}, lc.Writers...), lc.StderrWriters...) {
		if s.Class == "" {
			return fmt.Errorf("logger config %q: writers[%d]: class is required", lc.Name, i)
		}
		if !hasWriter(s.Class) {
			return fmt.Errorf("logger config %q: writers[%d]: unknown writer class %q", lc.Name, i, s.Class)
		}
	}
	return nil
}

// CruiseInfo is the `cruise:` block of a CruiseDefinition.
type CruiseInfo struct {
	ID    string `yaml:"id" json:"id"`
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

// LoggerEntry lists the config names available for one logger.
type LoggerEntry struct {
	Configs []string `yaml:"configs" json:"configs"`
}

// CruiseDefinition is the full declarative document a cruise file loads
// into (spec §3): named logger configs, which configs each logger may run,
// and named "modes" selecting one config per logger.
type CruiseDefinition struct {
	Cruise      CruiseInfo              `yaml:"cruise" json:"cruise"`
	Loggers     map[string]LoggerEntry  `yaml:"loggers" json:"loggers"`
	Configs     map[string]LoggerConfig `yaml:"configs" json:"configs"`
	Modes       map[string]map[string]string `yaml:"modes" json:"modes"`
	DefaultMode string                  `yaml:"default_mode" json:"default_mode"`

	// Devices/DeviceTypes feed internal/parse's record-format parser
	// (spec §4.5); merged from `includes` before expansion per spec §4.3.
	Devices     map[string]any `yaml:"devices,omitempty" json:"devices,omitempty"`
	DeviceTypes map[string]any `yaml:"device_types,omitempty" json:"device_types,omitempty"`
}

// Validate checks the CruiseDefinition invariants of spec §3: every
// config_name referenced by a logger or mode exists, every logger in a
// mode appears in Loggers, every logger has at least an "off" config
// available, and DefaultMode exists.
func (cd *CruiseDefinition) Validate(hasReader, hasTransform, hasWriter func(string) bool) error {
	if cd.Cruise.ID == "" {
		return fmt.Errorf("cruise: id is required")
	}
	for name, entry := range cd.Loggers {
		if len(entry.Configs) == 0 {
			return fmt.Errorf("logger %q: must list at least one config", name)
		}
		hasOff := false
		for _, cfgName := range entry.Configs {
			cfg, ok := cd.Configs[cfgName]
			if !ok {
				return fmt.Errorf("logger %q: references undefined config %q", name, cfgName)
			}
			if cfg.IsOff() {
				hasOff = true
			}
		}
		if !hasOff {
			return fmt.Errorf("logger %q: must have at least one off config (no readers and no writers) among its configs", name)
		}
	}
	for cfgName, cfg := range cd.Configs {
		if err := cfg.Validate(hasReader, hasTransform, hasWriter); err != nil {
			return fmt.Errorf("config %q: %w", cfgName, err)
		}
	}
	for modeName, assignment := range cd.Modes {
		for loggerName, cfgName := range assignment {
			if _, ok := cd.Loggers[loggerName]; !ok {
				return fmt.Errorf("mode %q: references undefined logger %q", modeName, loggerName)
			}
			if _, ok := cd.Configs[cfgName]; !ok {
				return fmt.Errorf("mode %q: logger %q references undefined config %q", modeName, loggerName, cfgName)
			}
		}
	}
	if cd.DefaultMode == "" {
		return fmt.Errorf("default_mode is required")
	}
	if _, ok := cd.Modes[cd.DefaultMode]; !ok {
		return fmt.Errorf("default_mode %q does not exist in modes", cd.DefaultMode)
	}
	return nil
}
