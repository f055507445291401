// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	// ConsumedEnvKeys records every variable the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load returns the merged configuration: defaults, then file, then environment.
// The result is validated.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnknownEnvKeys lists BIGEYE_* variables in environ the loader never consumed.
// Call it after Load.
func (l *Loader) UnknownEnvKeys(environ []string) []string {
	var unknown []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// loadFile decodes a YAML file over cfg with strict parsing. Keys absent from
// the file keep their current value.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) mergeEnv(cfg *Config) {
	d := &cfg.Device
	d.Vendor = ParseString(l.consume("DEVICE_VENDOR"), d.Vendor)
	d.Product = ParseString(l.consume("DEVICE_PRODUCT"), d.Product)
	d.Serial = ParseString(l.consume("DEVICE_SERIAL"), d.Serial)
	d.Path = ParseString(l.consume("DEVICE_PATH"), d.Path)
	d.Backend = ParseString(l.consume("DEVICE_BACKEND"), d.Backend)
	d.SysfsRoot = ParseString(l.consume("SYSFS_ROOT"), d.SysfsRoot)
	d.DevDir = ParseString(l.consume("DEV_DIR"), d.DevDir)

	f := &cfg.Format
	f.Encodings = ParseList(l.consume("FORMAT_ENCODINGS"), f.Encodings)
	f.Width = ParseInt(l.consume("FORMAT_WIDTH"), f.Width)
	f.Height = ParseInt(l.consume("FORMAT_HEIGHT"), f.Height)
	f.FPS = ParseInt(l.consume("FORMAT_FPS"), f.FPS)
	f.MaxFPS = ParseInt(l.consume("FORMAT_MAX_FPS"), f.MaxFPS)

	c := &cfg.Capture
	c.Name = ParseString(l.consume("ELEMENT_NAME"), c.Name)
	c.QueueCapacity = ParseInt(l.consume("QUEUE_CAPACITY"), c.QueueCapacity)
	c.PopTimeout = ParseDuration(l.consume("POP_TIMEOUT"), c.PopTimeout)
	c.WaitTimeout = ParseDuration(l.consume("WAIT_TIMEOUT"), c.WaitTimeout)
	c.Buffers = ParseInt(l.consume("BUFFERS"), c.Buffers)

	cfg.Pipeline.Launch = ParseString(l.consume("PIPELINE"), cfg.Pipeline.Launch)
	cfg.Pipeline.AppSrc = ParseString(l.consume("APPSRC"), cfg.Pipeline.AppSrc)
	cfg.API.Listen = ParseString(l.consume("LISTEN"), cfg.API.Listen)
	cfg.Log.Level = ParseString(l.consume("LOG_LEVEL"), cfg.Log.Level)

	t := &cfg.Telemetry
	t.Enabled = ParseBool(l.consume("TELEMETRY_ENABLED"), t.Enabled)
	t.Exporter = ParseString(l.consume("OTLP_EXPORTER"), t.Exporter)
	t.Endpoint = ParseString(l.consume("OTLP_ENDPOINT"), t.Endpoint)
	t.SamplingRate = ParseFloat(l.consume("TRACE_SAMPLING_RATE"), t.SamplingRate)
}
