// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Monitor request query keys and fixed values.
const (
	queryRequestType   = "type"
	queryServerID      = "srvid"
	queryApplication   = "app"
	queryAgentVersion  = "va"
	queryPlatformType  = "pt"
	queryAgentTech     = "tt"
	queryNewSession    = "ns"
	requestTypeMobile  = "m"
	platformTypeOpenGo = "1"
	agentTechnology    = "okgo"
)

// AgentVersion is the protocol-level version reported in every
// request's va parameter.
const AgentVersion = "1.0.0"

// compressionThreshold is the beacon payload size above which the
// body is gzip-compressed. Small payloads are sent uncompressed: the
// gzip header would outweigh the savings.
const compressionThreshold = 1024

// Client carries requests to the ingestion endpoint. Exactly three
// operations exist; each returns a Response and never an error
// (network failures are Response{StatusCode: 0}).
type Client interface {
	// SendStatusRequest asks the server for the current sending
	// configuration.
	SendStatusRequest(ctx context.Context) Response

	// SendNewSessionRequest announces a new session and obtains its
	// sending configuration.
	SendNewSessionRequest(ctx context.Context) Response

	// SendBeaconRequest posts one beacon chunk on behalf of the
	// session's client IP.
	SendBeaconRequest(ctx context.Context, clientIP string, payload []byte) Response
}

// ServerAssigner is optionally implemented by Clients that can be
// redirected to the server instance a ServerConfig assigned. The
// sender checks for it after every configuration update.
type ServerAssigner interface {
	// SetServerID switches subsequent requests to the given server
	// instance.
	SetServerID(id int)
}

// HTTPClientConfig holds construction parameters for HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the ingestion endpoint, e.g.
	// "https://beacons.example.com/mbeacon". Required.
	BaseURL string

	// ApplicationID identifies the monitored application. Required.
	ApplicationID string

	// ServerID is the initial server instance; later responses may
	// reassign it via SetServerID.
	ServerID int

	// Timeout bounds each round trip. Defaults to 30 seconds.
	Timeout time.Duration

	// TrustInsecure disables TLS certificate verification. Test use
	// only.
	TrustInsecure bool

	// HTTPClient overrides the underlying *http.Client. Defaults to a
	// client honoring Timeout and TrustInsecure.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// HTTPClient is the concrete Client backed by net/http. Beacon bodies
// above compressionThreshold are gzip-compressed.
type HTTPClient struct {
	baseURL       string
	applicationID string
	serverID      atomic.Int64
	httpClient    *http.Client
	logger        *slog.Logger
}

var (
	_ Client         = (*HTTPClient)(nil)
	_ ServerAssigner = (*HTTPClient)(nil)
)

// NewHTTPClient creates an HTTPClient from the given configuration.
func NewHTTPClient(config HTTPClientConfig) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("protocol: base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("protocol: invalid base URL: %w", err)
	}
	if config.ApplicationID == "" {
		return nil, fmt.Errorf("protocol: application ID is required")
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if config.TrustInsecure {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{
			Transport: transport,
			Timeout:   timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := &HTTPClient{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		applicationID: config.ApplicationID,
		httpClient:    httpClient,
		logger:        logger,
	}
	client.serverID.Store(int64(config.ServerID))
	return client, nil
}

// SetServerID switches subsequent requests to the server instance the
// latest ServerConfig assigned.
func (c *HTTPClient) SetServerID(id int) {
	c.serverID.Store(int64(id))
}

// SendStatusRequest implements Client.
func (c *HTTPClient) SendStatusRequest(ctx context.Context) Response {
	return c.do(ctx, http.MethodGet, c.monitorURL(false), "", nil)
}

// SendNewSessionRequest implements Client.
func (c *HTTPClient) SendNewSessionRequest(ctx context.Context) Response {
	return c.do(ctx, http.MethodGet, c.monitorURL(true), "", nil)
}

// SendBeaconRequest implements Client.
func (c *HTTPClient) SendBeaconRequest(ctx context.Context, clientIP string, payload []byte) Response {
	return c.do(ctx, http.MethodPost, c.monitorURL(false), clientIP, payload)
}

// monitorURL builds the request URL with the monitor query
// parameters.
func (c *HTTPClient) monitorURL(newSession bool) string {
	query := url.Values{}
	query.Set(queryRequestType, requestTypeMobile)
	query.Set(queryServerID, strconv.FormatInt(c.serverID.Load(), 10))
	query.Set(queryApplication, c.applicationID)
	query.Set(queryAgentVersion, AgentVersion)
	query.Set(queryPlatformType, platformTypeOpenGo)
	query.Set(queryAgentTech, agentTechnology)
	if newSession {
		query.Set(queryNewSession, "1")
	}
	return c.baseURL + "?" + query.Encode()
}

// do performs one request. Any transport-level failure is reported as
// Response{StatusCode: 0} after a warn log; the caller's retry policy
// decides what happens next.
func (c *HTTPClient) do(ctx context.Context, method, requestURL, clientIP string, payload []byte) Response {
	var body io.Reader
	compressed := false
	if len(payload) > 0 {
		encoded := payload
		if len(payload) > compressionThreshold {
			var buf bytes.Buffer
			writer := gzip.NewWriter(&buf)
			if _, err := writer.Write(payload); err == nil && writer.Close() == nil {
				encoded = buf.Bytes()
				compressed = true
			}
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, body)
	if err != nil {
		c.logger.Warn("building beacon request failed", "error", err)
		return Response{}
	}
	if len(payload) > 0 {
		request.Header.Set("Content-Type", "text/plain; charset=utf-8")
		if compressed {
			request.Header.Set("Content-Encoding", "gzip")
		}
	}
	if clientIP != "" {
		request.Header.Set("X-Client-IP", clientIP)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("beacon endpoint unreachable", "method", method, "error", err)
		return Response{}
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		c.logger.Warn("reading beacon response failed", "error", err)
		return Response{}
	}

	return Response{
		StatusCode: response.StatusCode,
		Body:       responseBody,
		Headers:    response.Header,
	}
}
