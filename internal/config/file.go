package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the flags. Pointer fields distinguish "absent"
// from zero values so that a file only overrides what it mentions.
// Durations are strings accepted by ParseSeconds ("30", "1.5", "250ms").
type fileConfig struct {
	Interval      *string  `yaml:"interval"`
	OutFile       *string  `yaml:"outfile"`
	CPUWindow     *string  `yaml:"cpu_window"`
	Command       *string  `yaml:"command"`
	Args          []string `yaml:"args"`
	Timeout       *string  `yaml:"timeout"`
	Grace         *string  `yaml:"grace"`
	GPUTool       *string  `yaml:"gpu_smi"`
	GPUDevice     *int     `yaml:"gpu_device"`
	Verbose       *bool    `yaml:"verbose"`
	Quiet         *bool    `yaml:"quiet"`
	LogFormat     *string  `yaml:"log_format"`
	MetricsAddr   *string  `yaml:"metrics_addr"`
	SkipPreflight *bool    `yaml:"skip_preflight"`
	NoSummary     *bool    `yaml:"no_summary"`
}

// LoadFile reads a YAML config file and applies the keys it sets onto cfg.
// Unknown keys are rejected.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return decode(f, path, cfg)
}

func decode(r io.Reader, name string, cfg *Config) error {
	var fc fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: nothing to apply.
			return nil
		}
		return fmt.Errorf("parse config file %s: %w", name, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	durations := []struct {
		field string
		raw   *string
		dst   *time.Duration
	}{
		{"interval", fc.Interval, &cfg.Interval},
		{"cpu_window", fc.CPUWindow, &cfg.CPUWindow},
		{"timeout", fc.Timeout, &cfg.Timeout},
		{"grace", fc.Grace, &cfg.Grace},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := ParseSeconds(*d.raw)
		if err != nil {
			return ValidationError{Field: d.field, Message: err.Error()}
		}
		*d.dst = v
	}
	if fc.CPUWindow != nil {
		cfg.cpuWindowSet = true
	}

	setString(&cfg.OutFile, fc.OutFile)
	setString(&cfg.Command, fc.Command)
	setString(&cfg.GPUTool, fc.GPUTool)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	setBool(&cfg.Verbose, fc.Verbose)
	setBool(&cfg.Quiet, fc.Quiet)
	setBool(&cfg.SkipPreflight, fc.SkipPreflight)
	setBool(&cfg.NoSummary, fc.NoSummary)
	if fc.GPUDevice != nil {
		cfg.GPUDevice = *fc.GPUDevice
	}
	if len(fc.Args) > 0 {
		cfg.Args = append([]string(nil), fc.Args...)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
