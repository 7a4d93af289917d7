// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol implements the wire side of beacon delivery: the
// HTTP client that carries status, new-session, and beacon requests
// to the ingestion endpoint, and the parser for the server's
// ampersand-separated key=value responses.
//
// The client is a stateless carrier. It reports every outcome as a
// Response (network errors surface as status code 0) and performs no
// retries; retry policy belongs to the sending state machine.
package protocol
