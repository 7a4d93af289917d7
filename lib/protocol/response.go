// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"net/http"
	"strconv"
	"time"
)

// Response is the outcome of one request to the ingestion endpoint.
// Network-level failures are represented as StatusCode 0 rather than
// an error so the state machine handles every outcome through one
// classification.
type Response struct {
	// StatusCode is the HTTP status, or 0 when the request never
	// produced a response (connection refused, timeout, ...).
	StatusCode int

	// Body is the full response body. Empty on network failure.
	Body []byte

	// Headers holds the response headers. Nil on network failure.
	Headers http.Header
}

// Success reports whether the request was accepted: any status in
// [200, 400).
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// TooManyRequests reports whether the server is throttling. The
// sender backs off for the Retry-After duration and retries the same
// chunk.
func (r Response) TooManyRequests() bool {
	return r.StatusCode == http.StatusTooManyRequests
}

// RetryAfter returns the backoff the server requested via the
// Retry-After header (delay-seconds form), or fallback if the header
// is absent or unparseable.
func (r Response) RetryAfter(fallback time.Duration) time.Duration {
	if r.Headers == nil {
		return fallback
	}
	value := r.Headers.Get("Retry-After")
	if value == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
