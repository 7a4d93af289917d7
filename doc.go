// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package beaconkit is the public entry point of the SDK. New wires
// the record cache, the eviction goroutine, the HTTP client, and the
// sender goroutine into one SDK object; sessions created from it carry
// the instrumentation calls (events, values, errors, crashes, user
// identification, actions) that become beacon records.
//
// Instrumentation calls never block on the network: they append to the
// in-memory cache and return. The sender transmits in the background;
// Shutdown flushes what it can and joins every goroutine.
package beaconkit
