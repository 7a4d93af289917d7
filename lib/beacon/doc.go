// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package beacon builds the key=value wire fragments that make up a
// beacon payload: the per-chunk prefix carrying session-immutable
// metadata, and the individual event, value, error, and crash records
// appended behind it. Values are URL-encoded; fragments are joined
// with ampersands by the cache's chunking.
package beacon
