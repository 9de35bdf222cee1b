// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/go-xlevent"
	"github.com/joeycumines/go-xlevent/internal/batch"
	"github.com/joeycumines/go-xlevent/libvirtsource"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"gitlab.com/tozd/go/errors"
)

const (
	sourceXenlight = "xenlight"
	sourceLibvirt  = "libvirt"
)

// Config is the TOML config file.
type Config struct {
	Source        string       `toml:"source"`
	LogLevel      string       `toml:"log_level"`
	LibvirtSocket string       `toml:"libvirt_socket"`
	Domains       []uint32     `toml:"domains"`
	Timeouts      bool         `toml:"timeouts"`
	MaxWatches    int          `toml:"max_watches"`
	Output        OutputConfig `toml:"output"`
}

// OutputConfig controls how events are batched before each write.
type OutputConfig struct {
	BatchSize     int           `toml:"batch_size"`
	MinBatch      int           `toml:"min_batch"`
	FlushInterval time.Duration `toml:"flush_interval"`
}

func defaultConfig() Config {
	return Config{
		Source:        sourceXenlight,
		LogLevel:      logiface.LevelInformational.String(),
		LibvirtSocket: libvirtsource.DefaultSocket,
		Output: OutputConfig{
			BatchSize:     64,
			MinBatch:      1,
			FlushInterval: 100 * time.Millisecond,
		},
	}
}

// loadConfig returns the defaults, overlaid with path, if not empty.
// Unknown keys are an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Source {
	case sourceXenlight, sourceLibvirt:
	default:
		return errors.Errorf("invalid source: %q", c.Source)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxWatches < 0 {
		return errors.Errorf("invalid max_watches: %d", c.MaxWatches)
	}
	if c.Output.MinBatch < 0 || c.Output.FlushInterval < 0 {
		return errors.New("invalid output config")
	}
	return nil
}

func (c Config) opener() xlevent.NativeOpener {
	if c.Source == sourceLibvirt {
		return libvirtsource.Opener(libvirtsource.Config{Socket: c.LibvirtSocket})
	}
	return xlevent.OpenXenlight
}

func (c Config) loopOptions(logger *logiface.Logger[logiface.Event]) []xlevent.LoopOption {
	return []xlevent.LoopOption{
		xlevent.WithLogger(logger),
		xlevent.WithTimeouts(c.Timeouts),
		xlevent.WithMaxWatches(c.MaxWatches),
	}
}

func (c OutputConfig) batch() *batch.Config {
	return &batch.Config{
		MaxSize:       c.BatchSize,
		MinSize:       c.MinBatch,
		FlushInterval: c.FlushInterval,
	}
}

// parseLevel accepts the short syslog keywords used by [logiface.Level].
func parseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return 0, errors.Errorf("invalid log level: %q", s)
}

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}
