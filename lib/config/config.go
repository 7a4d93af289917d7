// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Defaults applied by ApplyDefaults when the corresponding field is
// zero.
const (
	// DefaultMaxRecordAge is how long a cached record may wait before
	// the evictor trims it (1 h 45 m).
	DefaultMaxRecordAge = 6_300_000 * time.Millisecond

	// DefaultLowerMemoryBound is the cache size the space-based
	// eviction shrinks down to (80 MiB).
	DefaultLowerMemoryBound = 80 * 1024 * 1024

	// DefaultUpperMemoryBound is the cache size that triggers
	// space-based eviction (100 MiB).
	DefaultUpperMemoryBound = 100 * 1024 * 1024

	// DefaultSendInterval is how often open-session beacons are sent
	// until the server supplies its own interval.
	DefaultSendInterval = 120 * time.Second

	// DefaultHTTPTimeout bounds each HTTP round trip.
	DefaultHTTPTimeout = 30 * time.Second
)

// Config holds everything the SDK needs to observe an application and
// deliver beacons.
type Config struct {
	// EndpointURL is the beacon ingestion endpoint. Required; must be
	// an absolute http or https URL.
	EndpointURL string `yaml:"endpoint_url"`

	// ApplicationID identifies the monitored application at the
	// server. Required.
	ApplicationID string `yaml:"application_id"`

	// ApplicationName is the human-readable application name sent in
	// beacon metadata. Optional.
	ApplicationName string `yaml:"application_name"`

	// ApplicationVersion is the monitored application's version
	// string. Optional.
	ApplicationVersion string `yaml:"application_version"`

	// DeviceID identifies the device or installation. Required to be
	// non-zero so sessions can be correlated server-side.
	DeviceID int64 `yaml:"device_id"`

	// OperatingSystem, Manufacturer, and ModelID describe the host in
	// beacon metadata. Optional.
	OperatingSystem string `yaml:"operating_system"`
	Manufacturer    string `yaml:"manufacturer"`
	ModelID         string `yaml:"model_id"`

	// MaxRecordAge is how long a record may sit in the cache before
	// the age-based eviction removes it. Must be at least one
	// millisecond; a zero value is replaced by DefaultMaxRecordAge.
	MaxRecordAge time.Duration `yaml:"max_record_age"`

	// LowerMemoryBound and UpperMemoryBound are the two thresholds of
	// the space-based eviction: crossing the upper bound starts
	// evicting, and eviction stops once the cache is at or below the
	// lower bound.
	LowerMemoryBound int64 `yaml:"lower_memory_bound"`
	UpperMemoryBound int64 `yaml:"upper_memory_bound"`

	// SendInterval is the initial open-session send interval, used
	// until the first server response replaces it.
	SendInterval time.Duration `yaml:"send_interval"`

	// HTTPTimeout bounds each request to the ingestion endpoint.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// TrustInsecure disables TLS certificate verification. Intended
	// for tests against self-signed endpoints only.
	TrustInsecure bool `yaml:"trust_insecure"`
}

// ApplyDefaults fills in zero-valued optional fields. Required
// identity fields (EndpointURL, ApplicationID, DeviceID) are left
// untouched; Validate reports them if missing.
func (c *Config) ApplyDefaults() {
	if c.MaxRecordAge == 0 {
		c.MaxRecordAge = DefaultMaxRecordAge
	}
	if c.LowerMemoryBound == 0 {
		c.LowerMemoryBound = DefaultLowerMemoryBound
	}
	if c.UpperMemoryBound == 0 {
		c.UpperMemoryBound = DefaultUpperMemoryBound
	}
	if c.SendInterval == 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
}

// Validate checks the configuration for use by the SDK.
//
// MaxRecordAge below one millisecond is rejected: a zero age would
// make every record instantly eligible for eviction, which historic
// builder implementations handled inconsistently. The SDK uniformly
// requires a positive age.
func (c Config) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("config: endpoint URL is required")
	}
	parsed, err := url.Parse(c.EndpointURL)
	if err != nil {
		return fmt.Errorf("config: invalid endpoint URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("config: endpoint URL must be http or https (got %q)", c.EndpointURL)
	}
	if c.ApplicationID == "" {
		return fmt.Errorf("config: application ID is required")
	}
	if c.DeviceID == 0 {
		return fmt.Errorf("config: device ID is required")
	}
	if c.MaxRecordAge < time.Millisecond {
		return fmt.Errorf("config: max record age must be at least 1ms (got %v)", c.MaxRecordAge)
	}
	if c.LowerMemoryBound <= 0 {
		return fmt.Errorf("config: lower memory bound must be positive (got %d)", c.LowerMemoryBound)
	}
	if c.UpperMemoryBound <= c.LowerMemoryBound {
		return fmt.Errorf("config: upper memory bound %d must exceed lower bound %d",
			c.UpperMemoryBound, c.LowerMemoryBound)
	}
	if c.SendInterval <= 0 {
		return fmt.Errorf("config: send interval must be positive (got %v)", c.SendInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: HTTP timeout must be positive (got %v)", c.HTTPTimeout)
	}
	return nil
}
