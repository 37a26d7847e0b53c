// Command logger runs a single pipeline: one set of Readers feeding an
// ordered Transform chain feeding a set of Writers, built either from a
// LoggerConfig loaded from a cruise file or from a left-to-right sequence
// of composition flags (spec §6 "CLI: single-logger runner").
//
// Order-sensitive flag composition (modifier flags like --slice_separator
// must appear before the stage flag they affect) doesn't fit cobra's
// all-flags-parsed-up-front model, so this command parses os.Args directly
// instead of declaring a cobra.Command — the one place in this repo that
// departs from the teacher's cobra convention, because the CLI contract
// itself is order-dependent rather than a named subcommand tree.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "rvdas.dev/logger/plugins/all"

	"rvdas.dev/logger/internal/config"
	"rvdas.dev/logger/internal/listener"
	"rvdas.dev/logger/internal/registry"
	"rvdas.dev/logger/internal/stage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := buildConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	readers, err := buildReaders(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	transforms, err := buildTransforms(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	writers, err := buildWriters(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	interval := time.Duration(cfg.IntervalSecs * float64(time.Second))
	lst, err := listener.New(listener.Config{
		Name:       cfg.Name,
		Readers:    readers,
		Transforms: transforms,
		Writers:    writers,
		Interval:   interval,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := lst.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger: start: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	if err := lst.Stop(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "logger: stop: %v\n", err)
		os.Exit(1)
	}

	status := lst.Status()
	if status.State == listener.StateFailed {
		fmt.Fprintf(os.Stderr, "logger: pipeline failed: %s\n", status.FailureReason)
		os.Exit(1)
	}
}

// buildConfig resolves the effective LoggerConfig, either by reading
// --logger-config from stdin (the shape internal/manager/childproc.go's
// childProcessHandle speaks), by loading --config_file path[:name], or by
// composing positional flags in order.
func buildConfig(args []string) (config.LoggerConfig, error) {
	for i, a := range args {
		if a == "--logger-config" && i+1 < len(args) && args[i+1] == "-" {
			return readConfigFromStdin()
		}
		if a == "--config_file" && i+1 < len(args) {
			cfg, err := config.LoadLoggerConfig(args[i+1])
			if err != nil {
				return config.LoggerConfig{}, err
			}
			return *cfg, nil
		}
	}
	return composeFromFlags(args)
}

func readConfigFromStdin() (config.LoggerConfig, error) {
	var cfg config.LoggerConfig
	dec := json.NewDecoder(bufio.NewReader(os.Stdin))
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode --logger-config from stdin: %w", err)
	}
	return cfg, nil
}

// composeFromFlags builds a LoggerConfig from the documented left-to-right
// composition flags: each stage flag appends one StageSpec, and modifier
// flags set state consulted by the stage flags that follow them.
func composeFromFlags(args []string) (config.LoggerConfig, error) {
	cfg := config.LoggerConfig{Name: "logger", IntervalSecs: 1}

	sliceSeparator := " "
	parseDefinitionPath := ""
	logfileUseTimestamps := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			i++
			if i >= len(args) {
				return ""
			}
			return args[i]
		}

		switch arg {
		case "--interval":
			v, err := strconv.ParseFloat(next(), 64)
			if err != nil {
				return cfg, fmt.Errorf("--interval: %w", err)
			}
			cfg.IntervalSecs = v

		case "--slice_separator":
			sliceSeparator = next()

		case "--parse_definition_path":
			parseDefinitionPath = next()

		case "--logfile_use_timestamps":
			logfileUseTimestamps = true

		case "--serial":
			kwargs, err := parseKeyValueKwargs(next())
			if err != nil {
				return cfg, fmt.Errorf("--serial: %w", err)
			}
			cfg.Readers = append(cfg.Readers, config.StageSpec{Class: "serial", Kwargs: kwargs})

		case "--udp":
			cfg.Readers = append(cfg.Readers, config.StageSpec{Class: "udp", Kwargs: map[string]any{"address": ":" + next()}})

		case "--file":
			cfg.Readers = append(cfg.Readers, config.StageSpec{Class: "file", Kwargs: map[string]any{"filename": next()}})

		case "--logfile":
			cfg.Readers = append(cfg.Readers, config.StageSpec{Class: "logfile", Kwargs: map[string]any{"filename": next() + "*"}})

		case "--transform_timestamp":
			cfg.Transforms = append(cfg.Transforms, config.StageSpec{Class: "timestamp", Kwargs: map[string]any{}})

		case "--transform_prefix":
			cfg.Transforms = append(cfg.Transforms, config.StageSpec{Class: "prefix", Kwargs: map[string]any{"prefix": next()}})

		case "--transform_slice":
			cfg.Transforms = append(cfg.Transforms, config.StageSpec{Class: "slice", Kwargs: map[string]any{"spec": next(), "separator": sliceSeparator}})

		case "--transform_regex_filter":
			cfg.Transforms = append(cfg.Transforms, config.StageSpec{Class: "regex_filter", Kwargs: map[string]any{"pattern": next()}})

		case "--transform_parse":
			kwargs := map[string]any{"record_format": "%data_id:word% %field_string:string%"}
			if parseDefinitionPath != "" {
				kwargs["definition_path"] = parseDefinitionPath
			}
			cfg.Transforms = append(cfg.Transforms, config.StageSpec{Class: "parse", Kwargs: kwargs})

		case "--write_file":
			cfg.Writers = append(cfg.Writers, config.StageSpec{Class: "text", Kwargs: map[string]any{"path": next()}})

		case "--write_udp":
			cfg.Writers = append(cfg.Writers, config.StageSpec{Class: "udp", Kwargs: map[string]any{"address": "255.255.255.255:" + next()}})

		case "--write_logfile":
			cfg.Writers = append(cfg.Writers, config.StageSpec{Class: "logfile", Kwargs: map[string]any{
				"filename":       next() + ".log",
				"use_timestamps": logfileUseTimestamps,
			}})

		default:
			return cfg, fmt.Errorf("unrecognized flag %q", arg)
		}
	}

	return cfg, nil
}

func parseKeyValueKwargs(spec string) (map[string]any, error) {
	kwargs := map[string]any{}
	for _, pair := range strings.Split(spec, ",") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed key=value pair %q", pair)
		}
		kwargs[k] = v
	}
	return kwargs, nil
}

func buildReaders(cfg config.LoggerConfig) ([]stage.Reader, error) {
	readers := make([]stage.Reader, 0, len(cfg.Readers))
	for _, spec := range cfg.Readers {
		r, err := registry.NewReader(spec.Class, spec.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("build reader %s: %w", spec.Class, err)
		}
		readers = append(readers, r)
	}
	return readers, nil
}

func buildTransforms(cfg config.LoggerConfig) ([]stage.Transform, error) {
	transforms := make([]stage.Transform, 0, len(cfg.Transforms))
	for _, spec := range cfg.Transforms {
		t, err := registry.NewTransform(spec.Class, spec.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("build transform %s: %w", spec.Class, err)
		}
		transforms = append(transforms, t)
	}
	return transforms, nil
}

func buildWriters(cfg config.LoggerConfig) ([]listener.NamedWriter, error) {
	writers := make([]listener.NamedWriter, 0, len(cfg.Writers)+len(cfg.StderrWriters))
	for _, spec := range cfg.Writers {
		w, err := registry.NewWriter(spec.Class, spec.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("build writer %s: %w", spec.Class, err)
		}
		writers = append(writers, listener.NamedWriter{Writer: w})
	}
	for _, spec := range cfg.StderrWriters {
		w, err := registry.NewWriter(spec.Class, spec.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("build stderr writer %s: %w", spec.Class, err)
		}
		writers = append(writers, listener.NamedWriter{Writer: w})
	}
	return writers, nil
}
