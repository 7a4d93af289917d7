// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package sending drives beacon transmission: a single sender
// goroutine executes a state machine (init handshake, steady-state
// capture, capture-off polling, shutdown flush) against a shared
// Context that holds the server configuration, session bookkeeping,
// and the shutdown and init-completion signals.
//
// The state machine is a tagged StateID with one dispatch function
// rather than dynamically dispatched state objects; transitions are
// staged via SetNextState and applied after each execution step.
package sending
