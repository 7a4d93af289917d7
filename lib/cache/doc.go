// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache buffers per-session telemetry records between the
// instrumentation threads that produce them and the sender goroutine
// that transmits them.
//
// Each session is identified by a Key and owns two append-only record
// sequences (events and actions). The sender moves a session's pending
// records into an in-flight set, pulls size-bounded chunks from it,
// and either finishes the transmission or restores the in-flight set
// from an explicit snapshot when a send fails.
//
// The cache keeps a byte-accurate size counter. When the size crosses
// the configured upper bound, a non-blocking signal wakes the Evictor,
// which trims records by age and then sheds the oldest records
// round-robin across sessions until the size is back under the lower
// bound. Eviction never touches in-flight records.
package cache
