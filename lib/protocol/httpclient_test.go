// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(HTTPClientConfig{
		BaseURL:       server.URL,
		ApplicationID: "app-17",
		ServerID:      1,
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return client, server
}

func TestStatusRequestQueryParameters(t *testing.T) {
	var gotQuery map[string][]string
	var gotMethod string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.Query()
		io.WriteString(w, "cp=1")
	}))

	response := client.SendStatusRequest(context.Background())
	if !response.Success() {
		t.Fatalf("status = %d, want success", response.StatusCode)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("method = %s, want GET", gotMethod)
	}

	expect := map[string]string{
		"type":  "m",
		"srvid": "1",
		"app":   "app-17",
		"va":    AgentVersion,
		"pt":    "1",
		"tt":    "okgo",
	}
	for key, want := range expect {
		if got := gotQuery[key]; len(got) != 1 || got[0] != want {
			t.Fatalf("query %s = %v, want %q", key, got, want)
		}
	}
	if _, ok := gotQuery["ns"]; ok {
		t.Fatal("status request must not carry ns")
	}
}

func TestNewSessionRequestSetsNewSessionFlag(t *testing.T) {
	var gotQuery map[string][]string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		io.WriteString(w, "cp=1")
	}))

	client.SendNewSessionRequest(context.Background())
	if got := gotQuery["ns"]; len(got) != 1 || got[0] != "1" {
		t.Fatalf("query ns = %v, want 1", got)
	}
}

func TestBeaconRequestSmallPayloadUncompressed(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		io.WriteString(w, "cp=1")
	}))

	payload := []byte("vv=3&va=1.0.0&et=10")
	response := client.SendBeaconRequest(context.Background(), "203.0.113.4", payload)
	if !response.Success() {
		t.Fatalf("status = %d, want success", response.StatusCode)
	}
	if !bytes.Equal(gotBody, payload) {
		t.Fatalf("body = %q, want %q", gotBody, payload)
	}
	if gotHeaders.Get("Content-Encoding") != "" {
		t.Fatal("small payload must not be compressed")
	}
	if got := gotHeaders.Get("X-Client-IP"); got != "203.0.113.4" {
		t.Fatalf("X-Client-IP = %q", got)
	}
}

func TestBeaconRequestLargePayloadGzipped(t *testing.T) {
	var gotBody []byte
	var gotEncoding string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotEncoding = r.Header.Get("Content-Encoding")
		io.WriteString(w, "cp=1")
	}))

	payload := []byte("et=10&na=" + strings.Repeat("x", 4096))
	response := client.SendBeaconRequest(context.Background(), "", payload)
	if !response.Success() {
		t.Fatalf("status = %d, want success", response.StatusCode)
	}
	if gotEncoding != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", gotEncoding)
	}

	reader, err := gzip.NewReader(bytes.NewReader(gotBody))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatal("decompressed body does not match payload")
	}
}

func TestNetworkFailureIsStatusZero(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	response := client.SendStatusRequest(context.Background())
	if response.StatusCode != 0 {
		t.Fatalf("status = %d, want 0 for network failure", response.StatusCode)
	}
	if response.Success() {
		t.Fatal("network failure must not be a success")
	}
}

func TestSetServerIDAffectsSubsequentRequests(t *testing.T) {
	var gotServerID string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotServerID = r.URL.Query().Get("srvid")
		io.WriteString(w, "cp=1")
	}))

	client.SetServerID(5)
	client.SendStatusRequest(context.Background())
	if gotServerID != "5" {
		t.Fatalf("srvid = %q, want 5", gotServerID)
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	response := client.SendBeaconRequest(context.Background(), "", []byte("et=19"))
	if !response.TooManyRequests() {
		t.Fatalf("status = %d, want 429", response.StatusCode)
	}
	if got := response.RetryAfter(0); got.Seconds() != 2 {
		t.Fatalf("RetryAfter = %v, want 2s", got)
	}
}
