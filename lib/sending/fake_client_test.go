// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package sending

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/beaconkit/beaconkit/lib/protocol"
	"github.com/beaconkit/beaconkit/lib/testutil"
)

// fakeClient is a scripted protocol.Client. Responses are consumed
// from per-operation queues (the last response repeats once the queue
// is exhausted). Channels signal after every call so tests can
// synchronize without polling.
type fakeClient struct {
	mu sync.Mutex

	status     []protocol.Response
	newSession []protocol.Response
	beacon     []protocol.Response

	statusIndex     int
	newSessionIndex int
	beaconIndex     int

	beaconPayloads [][]byte
	beaconIPs      []string

	statusCalled     chan struct{}
	newSessionCalled chan struct{}
	beaconCalled     chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statusCalled:     make(chan struct{}, 64),
		newSessionCalled: make(chan struct{}, 64),
		beaconCalled:     make(chan struct{}, 64),
	}
}

// okResponse builds a 200 response with the given body.
func okResponse(body string) protocol.Response {
	return protocol.Response{StatusCode: 200, Body: []byte(body), Headers: http.Header{}}
}

// failResponse builds a response with the given status and no body.
// Status 0 models a network failure.
func failResponse(status int) protocol.Response {
	return protocol.Response{StatusCode: status}
}

// throttleResponse builds a 429 response with a Retry-After header.
func throttleResponse(retryAfterSeconds string) protocol.Response {
	headers := http.Header{}
	headers.Set("Retry-After", retryAfterSeconds)
	return protocol.Response{StatusCode: 429, Headers: headers}
}

func takeResponse(queue []protocol.Response, index *int, fallback protocol.Response) protocol.Response {
	if len(queue) == 0 {
		return fallback
	}
	i := *index
	if i >= len(queue) {
		i = len(queue) - 1
	} else {
		*index++
	}
	return queue[i]
}

func (f *fakeClient) SendStatusRequest(_ context.Context) protocol.Response {
	f.mu.Lock()
	response := takeResponse(f.status, &f.statusIndex, okResponse("cp=1"))
	f.mu.Unlock()
	f.statusCalled <- struct{}{}
	return response
}

func (f *fakeClient) SendNewSessionRequest(_ context.Context) protocol.Response {
	f.mu.Lock()
	response := takeResponse(f.newSession, &f.newSessionIndex, okResponse("cp=1"))
	f.mu.Unlock()
	f.newSessionCalled <- struct{}{}
	return response
}

func (f *fakeClient) SendBeaconRequest(_ context.Context, clientIP string, payload []byte) protocol.Response {
	f.mu.Lock()
	copied := make([]byte, len(payload))
	copy(copied, payload)
	f.beaconPayloads = append(f.beaconPayloads, copied)
	f.beaconIPs = append(f.beaconIPs, clientIP)
	response := takeResponse(f.beacon, &f.beaconIndex, okResponse(""))
	f.mu.Unlock()
	f.beaconCalled <- struct{}{}
	return response
}

func (f *fakeClient) beaconCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beaconPayloads)
}

func (f *fakeClient) beaconPayload(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beaconPayloads[i]
}

func (f *fakeClient) waitStatusCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		testutil.RequireReceive(t, f.statusCalled, 5*time.Second, "status call %d of %d", i+1, n)
	}
}

func (f *fakeClient) waitNewSessionCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		testutil.RequireReceive(t, f.newSessionCalled, 5*time.Second, "new session call %d of %d", i+1, n)
	}
}

func (f *fakeClient) waitBeaconCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		testutil.RequireReceive(t, f.beaconCalled, 5*time.Second, "beacon call %d of %d", i+1, n)
	}
}
