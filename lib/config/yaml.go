// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a Config from a YAML file, applies defaults, and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// configYAML mirrors Config with durations as strings ("45s", "30m"),
// parsed by time.ParseDuration. YAML has no native duration type and
// raw nanosecond integers in config files are unreadable.
type configYAML struct {
	EndpointURL        string `yaml:"endpoint_url"`
	ApplicationID      string `yaml:"application_id"`
	ApplicationName    string `yaml:"application_name"`
	ApplicationVersion string `yaml:"application_version"`
	DeviceID           int64  `yaml:"device_id"`
	OperatingSystem    string `yaml:"operating_system"`
	Manufacturer       string `yaml:"manufacturer"`
	ModelID            string `yaml:"model_id"`
	MaxRecordAge       string `yaml:"max_record_age"`
	LowerMemoryBound   int64  `yaml:"lower_memory_bound"`
	UpperMemoryBound   int64  `yaml:"upper_memory_bound"`
	SendInterval       string `yaml:"send_interval"`
	HTTPTimeout        string `yaml:"http_timeout"`
	TrustInsecure      bool   `yaml:"trust_insecure"`
}

// UnmarshalYAML decodes a Config from YAML, parsing duration fields
// with time.ParseDuration. Empty duration fields stay zero so that
// ApplyDefaults fills them afterwards.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	var raw configYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parseDuration := func(field, value string) (time.Duration, error) {
		if value == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("config: invalid %s %q: %w", field, value, err)
		}
		return d, nil
	}

	maxRecordAge, err := parseDuration("max_record_age", raw.MaxRecordAge)
	if err != nil {
		return err
	}
	sendInterval, err := parseDuration("send_interval", raw.SendInterval)
	if err != nil {
		return err
	}
	httpTimeout, err := parseDuration("http_timeout", raw.HTTPTimeout)
	if err != nil {
		return err
	}

	*c = Config{
		EndpointURL:        raw.EndpointURL,
		ApplicationID:      raw.ApplicationID,
		ApplicationName:    raw.ApplicationName,
		ApplicationVersion: raw.ApplicationVersion,
		DeviceID:           raw.DeviceID,
		OperatingSystem:    raw.OperatingSystem,
		Manufacturer:       raw.Manufacturer,
		ModelID:            raw.ModelID,
		MaxRecordAge:       maxRecordAge,
		LowerMemoryBound:   raw.LowerMemoryBound,
		UpperMemoryBound:   raw.UpperMemoryBound,
		SendInterval:       sendInterval,
		HTTPTimeout:        httpTimeout,
		TrustInsecure:      raw.TrustInsecure,
	}
	return nil
}
