// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config defines the SDK configuration: the ingestion
// endpoint, application and device identity, beacon cache bounds, and
// transport settings. A zero Config is not usable; callers fill in the
// required fields, call ApplyDefaults for the rest, and Validate
// before handing the config to the SDK.
//
// The struct carries yaml tags so that driver programs can load it
// from a file; the SDK itself never touches the filesystem.
package config
