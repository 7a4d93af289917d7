// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package sending

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/beaconkit/beaconkit/lib/cache"
	"github.com/beaconkit/beaconkit/lib/clock"
	"github.com/beaconkit/beaconkit/lib/config"
	"github.com/beaconkit/beaconkit/lib/protocol"
)

// StateID identifies the sender's current state.
type StateID int

// Sender states.
const (
	StateInit StateID = iota
	StateCaptureOn
	StateCaptureOff
	StateFlush
	StateTerminal
)

func (s StateID) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCaptureOn:
		return "capture-on"
	case StateCaptureOff:
		return "capture-off"
	case StateFlush:
		return "flush"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// sessionInfo is the context's bookkeeping for one open session.
type sessionInfo struct {
	clientIP string

	// configured is set once the server acknowledged the session's
	// new-session request.
	configured bool
}

// sessionRef pairs a session key with its client IP. It serves both
// the finished-session queue and open-session snapshots.
type sessionRef struct {
	key      cache.Key
	clientIP string
}

// ContextConfig holds construction parameters for a Context.
type ContextConfig struct {
	// SDK is the immutable SDK configuration (endpoint, identity,
	// intervals).
	SDK config.Config

	// Client carries requests to the ingestion endpoint. Required.
	Client protocol.Client

	// Cache is the beacon cache the sender drains. Required.
	Cache *cache.Cache

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Context is the shared mutable state between the sender goroutine
// and the application threads that create sessions, request shutdown,
// or wait for initialization. Every field is accessed through
// mutex-guarded operations; the mutex is never held across blocking
// I/O.
type Context struct {
	sdk    config.Config
	client protocol.Client
	cache  *cache.Cache
	clock  clock.Clock
	logger *slog.Logger

	// runCtx is cancelled when shutdown is requested, aborting
	// in-flight steady-state HTTP requests. The flush state uses its
	// own bounded context instead.
	runCtx    context.Context
	cancelRun context.CancelFunc

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	initDone chan struct{}
	initOnce sync.Once

	mu                        sync.Mutex
	initSucceeded             bool
	serverConfig              protocol.ServerConfig
	currentState              StateID
	nextState                 StateID
	hasNextState              bool
	lastStatusCheckMillis     int64
	lastOpenSessionSendMillis int64
	sessions                  map[cache.Key]*sessionInfo
	finished                  []sessionRef
}

// NewContext creates a Context in the init state with the default
// server configuration.
func NewContext(cc ContextConfig) *Context {
	clk := cc.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())

	serverConfig := protocol.DefaultServerConfig()
	serverConfig.SendInterval = cc.SDK.SendInterval

	return &Context{
		sdk:          cc.SDK,
		client:       cc.Client,
		cache:        cc.Cache,
		clock:        clk,
		logger:       logger,
		runCtx:       runCtx,
		cancelRun:    cancel,
		shutdownCh:   make(chan struct{}),
		initDone:     make(chan struct{}),
		serverConfig: serverConfig,
		currentState: StateInit,
		sessions:     make(map[cache.Key]*sessionInfo),
	}
}

// RequestShutdown signals the sender to drain and stop. Idempotent;
// safe from any goroutine.
func (c *Context) RequestShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		c.cancelRun()
	})
}

// ShutdownRequested reports whether shutdown has been signaled.
func (c *Context) ShutdownRequested() bool {
	select {
	case <-c.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChan returns the channel closed when shutdown is requested.
func (c *Context) ShutdownChan() <-chan struct{} {
	return c.shutdownCh
}

// sleepInterruptible pauses for d or until shutdown is requested,
// whichever comes first, and reports whether shutdown cut the sleep
// short.
func (c *Context) sleepInterruptible(d time.Duration) bool {
	select {
	case <-c.clock.After(d):
		return false
	case <-c.shutdownCh:
		return true
	}
}

// completeInit records the initialization outcome and releases every
// WaitForInitCompletion caller. Only the first call takes effect, so
// a later terminal transition cannot overwrite a successful init.
func (c *Context) completeInit(succeeded bool) {
	c.initOnce.Do(func() {
		c.mu.Lock()
		c.initSucceeded = succeeded
		c.mu.Unlock()
		close(c.initDone)
	})
}

// WaitForInitCompletion blocks until initialization finishes (either
// outcome) or the timeout elapses, and reports whether the SDK
// initialized successfully. A non-positive timeout waits without
// bound.
func (c *Context) WaitForInitCompletion(timeout time.Duration) bool {
	if timeout > 0 {
		select {
		case <-c.initDone:
		case <-c.clock.After(timeout):
			return false
		}
	} else {
		<-c.initDone
	}
	return c.IsInitialized()
}

// IsInitialized reports whether the init handshake has succeeded.
func (c *Context) IsInitialized() bool {
	select {
	case <-c.initDone:
	default:
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initSucceeded
}

// ServerConfig returns the current server configuration.
func (c *Context) ServerConfig() protocol.ServerConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverConfig
}

// UpdateServerConfig atomically replaces the server configuration. If
// the client implements protocol.ServerAssigner, the new server ID is
// applied to subsequent requests.
func (c *Context) UpdateServerConfig(sc protocol.ServerConfig) {
	c.mu.Lock()
	c.serverConfig = sc
	c.mu.Unlock()

	if assigner, ok := c.client.(protocol.ServerAssigner); ok {
		assigner.SetServerID(sc.ServerID)
	}
}

// State returns the sender's current state.
func (c *Context) State() StateID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentState
}

// SetNextState stages a transition applied after the current
// execution step.
func (c *Context) SetNextState(next StateID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextState = next
	c.hasNextState = true
}

// applyNextState performs a staged transition, if any, and reports
// the states involved.
func (c *Context) applyNextState() (from, to StateID, transitioned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasNextState {
		return c.currentState, c.currentState, false
	}
	from = c.currentState
	c.currentState = c.nextState
	c.hasNextState = false
	return from, c.currentState, true
}

// LastStatusCheckMillis returns when the last status request was
// made, in Unix milliseconds. Zero before the first request.
func (c *Context) LastStatusCheckMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatusCheckMillis
}

// SetLastStatusCheckMillis records a status request time.
func (c *Context) SetLastStatusCheckMillis(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastStatusCheckMillis = ts
}

// LastOpenSessionSendMillis returns when open-session beacons were
// last sent.
func (c *Context) LastOpenSessionSendMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOpenSessionSendMillis
}

// SetLastOpenSessionSendMillis records an open-session send time.
func (c *Context) SetLastOpenSessionSendMillis(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOpenSessionSendMillis = ts
}

// StartSession registers an open session with its client IP.
func (c *Context) StartSession(key cache.Key, clientIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[key] = &sessionInfo{clientIP: clientIP}
}

// FinishSession moves an open session to the finished queue. No-op
// for unknown keys (the session may already be finished).
func (c *Context) FinishSession(key cache.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.sessions[key]
	if !ok {
		return
	}
	delete(c.sessions, key)
	c.finished = append(c.finished, sessionRef{key: key, clientIP: info.clientIP})
}

// popFinishedSession removes and returns the oldest finished session.
func (c *Context) popFinishedSession() (sessionRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.finished) == 0 {
		return sessionRef{}, false
	}
	entry := c.finished[0]
	c.finished[0] = sessionRef{}
	c.finished = c.finished[1:]
	return entry, true
}

// requeueFinishedSession puts a failed session back at the front of
// the finished queue so the next pass retries it first.
func (c *Context) requeueFinishedSession(entry sessionRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = append([]sessionRef{entry}, c.finished...)
}

// OpenSessions returns a snapshot of the open sessions.
func (c *Context) OpenSessions() []sessionRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]sessionRef, 0, len(c.sessions))
	for key, info := range c.sessions {
		snapshot = append(snapshot, sessionRef{key: key, clientIP: info.clientIP})
	}
	return snapshot
}

// unconfiguredSessions returns the open sessions whose new-session
// request has not been acknowledged yet.
func (c *Context) unconfiguredSessions() []cache.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []cache.Key
	for key, info := range c.sessions {
		if !info.configured {
			keys = append(keys, key)
		}
	}
	return keys
}

// markSessionConfigured records the server's acknowledgement of a
// session's new-session request.
func (c *Context) markSessionConfigured(key cache.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.sessions[key]; ok {
		info.configured = true
	}
}
