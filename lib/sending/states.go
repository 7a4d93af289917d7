// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package sending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beaconkit/beaconkit/lib/beacon"
	"github.com/beaconkit/beaconkit/lib/cache"
	"github.com/beaconkit/beaconkit/lib/protocol"
)

// Timing constants of the sending policy.
const (
	// reinitDelay is the long pause after the init retry schedule is
	// exhausted, before the schedule restarts.
	reinitDelay = 2 * time.Hour

	// statusCheckInterval is how often the capture-on and capture-off
	// states re-poll the server configuration.
	statusCheckInterval = 2 * time.Hour

	// captureOnSleep is the upper bound on the capture-on state's
	// per-iteration sleep.
	captureOnSleep = 1 * time.Second

	// maxChunkSendAttempts bounds retries of a single throttled
	// chunk.
	maxChunkSendAttempts = 3

	// defaultRetryAfter is the throttle backoff applied when a 429
	// response carries no usable Retry-After header.
	defaultRetryAfter = 10 * time.Second

	// flushTimeout bounds the shutdown flush pass.
	flushTimeout = 10 * time.Second

	// chunkDelimiter separates the prefix and records within a
	// beacon chunk.
	chunkDelimiter = '&'
)

// initRetryDelays is the bounded backoff schedule of the init
// handshake.
var initRetryDelays = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Execute runs one step of the state machine: it dispatches to the
// current state's logic and then applies any staged transition.
func Execute(c *Context) {
	switch c.State() {
	case StateInit:
		executeInit(c)
	case StateCaptureOn:
		executeCaptureOn(c)
	case StateCaptureOff:
		executeCaptureOff(c)
	case StateFlush:
		executeFlush(c)
	case StateTerminal:
		executeTerminal(c)
	}

	if from, to, transitioned := c.applyNextState(); transitioned {
		c.logger.Info("sender state transition", "from", from.String(), "to", to.String())
	}
}

// executeInit performs the initialization handshake: it requests the
// server configuration with a bounded backoff schedule (then a long
// reinit delay, then the schedule again) until it succeeds or
// shutdown is requested.
func executeInit(c *Context) {
	delayIndex := 0
	for {
		if c.ShutdownRequested() {
			c.SetNextState(StateTerminal)
			return
		}

		response := c.client.SendStatusRequest(c.runCtx)
		if response.Success() {
			parsed := protocol.ParseStatusResponse(response.Body, c.ServerConfig())
			if parsed.Status == protocol.StatusOK {
				c.UpdateServerConfig(parsed)
				c.SetLastStatusCheckMillis(c.clock.NowMillis())
				c.completeInit(true)
				if parsed.Capture {
					c.SetNextState(StateCaptureOn)
				} else {
					c.SetNextState(StateCaptureOff)
				}
				return
			}
		}

		var delay time.Duration
		if delayIndex < len(initRetryDelays) {
			delay = initRetryDelays[delayIndex]
			delayIndex++
		} else {
			delay = reinitDelay
			delayIndex = 0
		}
		c.logger.Warn("initial status request failed",
			"status", response.StatusCode,
			"retry_in", delay,
		)
		if c.sleepInterruptible(delay) {
			c.SetNextState(StateTerminal)
			return
		}
	}
}

// executeCaptureOn runs one steady-state iteration: refresh the
// server configuration when due, announce unconfigured sessions,
// drain finished sessions, send open-session beacons on the send
// interval, then sleep briefly. Any response along the way may carry
// a configuration disabling capture; the iteration leaves for the
// capture-off state as soon as it observes that.
func executeCaptureOn(c *Context) {
	if c.ShutdownRequested() {
		c.SetNextState(StateFlush)
		return
	}
	if !c.ServerConfig().Capture {
		c.SetNextState(StateCaptureOff)
		return
	}

	now := c.clock.NowMillis()
	if now-c.LastStatusCheckMillis() >= statusCheckInterval.Milliseconds() {
		if off := refreshServerConfig(c); off {
			c.SetNextState(StateCaptureOff)
			return
		}
	}

	sendNewSessionRequests(c)
	if !c.ServerConfig().Capture {
		c.SetNextState(StateCaptureOff)
		return
	}
	sendFinishedSessions(c, c.runCtx)
	sendOpenSessions(c)
	if !c.ServerConfig().Capture {
		c.SetNextState(StateCaptureOff)
		return
	}

	sleep := captureOnSleep
	if interval := c.ServerConfig().SendInterval; interval < sleep {
		sleep = interval
	}
	c.sleepInterruptible(sleep)
}

// refreshServerConfig sends a status request and publishes the
// response. Returns true when the server disabled capture. A
// rejection (4xx other than 429) disables capture outright; transport
// failures, server errors, and malformed responses keep the current
// configuration, and the next check happens one interval later.
func refreshServerConfig(c *Context) (captureOff bool) {
	response := c.client.SendStatusRequest(c.runCtx)
	c.SetLastStatusCheckMillis(c.clock.NowMillis())

	if !response.Success() {
		if serverRejected(response) {
			c.logger.Warn("server rejected status request, disabling capture",
				"status", response.StatusCode)
			disableCapture(c)
			return true
		}
		c.logger.Warn("status refresh failed", "status", response.StatusCode)
		return false
	}
	parsed := protocol.ParseStatusResponse(response.Body, c.ServerConfig())
	if parsed.Status != protocol.StatusOK {
		c.logger.Warn("status refresh returned malformed body")
		return false
	}
	c.UpdateServerConfig(parsed)
	return !parsed.Capture
}

// serverRejected reports whether the response is a client-side
// rejection: a 4xx other than the 429 throttle. Rejections will not
// succeed on retry, so the sender stops capturing instead of re-hitting
// the server.
func serverRejected(response protocol.Response) bool {
	return response.StatusCode >= 400 && response.StatusCode < 500 &&
		!response.TooManyRequests()
}

// disableCapture publishes the current configuration with capture
// switched off.
func disableCapture(c *Context) {
	config := c.ServerConfig()
	config.Capture = false
	c.UpdateServerConfig(config)
}

// sendNewSessionRequests announces sessions the server has not
// acknowledged yet. A failure leaves the session unconfigured; it is
// retried on the next iteration.
func sendNewSessionRequests(c *Context) {
	for _, key := range c.unconfiguredSessions() {
		response := c.client.SendNewSessionRequest(c.runCtx)
		if !response.Success() {
			c.logger.Warn("new session request failed",
				"beacon_id", key.BeaconID,
				"status", response.StatusCode,
			)
			return
		}
		parsed := protocol.ParseStatusResponse(response.Body, c.ServerConfig())
		if parsed.Status == protocol.StatusOK {
			c.UpdateServerConfig(parsed)
		}
		c.markSessionConfigured(key)
	}
}

// sendFinishedSessions drains the finished-session queue. Each
// session's remaining records are sent chunk by chunk; a fully sent
// session is removed from the cache. On failure the session's
// in-flight data is restored, the session is requeued, and the drain
// stops until the next iteration.
func sendFinishedSessions(c *Context, ctx context.Context) {
	for {
		entry, ok := c.popFinishedSession()
		if !ok {
			return
		}
		if err := sendSessionBeacon(c, ctx, entry); err != nil {
			c.cache.ResetChunkedData(entry.key)
			c.requeueFinishedSession(entry)
			c.logger.Warn("finished session send failed",
				"beacon_id", entry.key.BeaconID,
				"error", err,
			)
			return
		}
		c.cache.DeleteEntry(entry.key)
	}
}

// sendOpenSessions sends the buffered records of every open session
// once per send interval. The prepared snapshot covers only what
// existed at that instant; records arriving mid-send stay for the
// next interval. Open sessions are never deleted here.
func sendOpenSessions(c *Context) {
	now := c.clock.NowMillis()
	if now-c.LastOpenSessionSendMillis() < c.ServerConfig().SendInterval.Milliseconds() {
		return
	}
	c.SetLastOpenSessionSendMillis(now)

	for _, entry := range c.OpenSessions() {
		if err := sendSessionBeacon(c, c.runCtx, entry); err != nil {
			c.cache.ResetChunkedData(entry.key)
			c.logger.Warn("open session send failed",
				"beacon_id", entry.key.BeaconID,
				"error", err,
			)
			return
		}
	}
}

// errCaptureDisabled aborts a transmission whose response carried a
// configuration with capture switched off. The caller restores the
// session's data; whether it is ever sent is up to a later
// capture-enabling response.
var errCaptureDisabled = errors.New("server disabled capture")

// sendSessionBeacon transmits one session's prepared records in
// size-bounded chunks. The transmission stops as soon as a response
// disables capture.
func sendSessionBeacon(c *Context, ctx context.Context, entry sessionRef) error {
	serverConfig := c.ServerConfig()
	prefix := beacon.ChunkPrefix(c.sdk, entry.key, protocol.AgentVersion, serverConfig.Multiplicity)

	c.cache.PrepareDataForSending(entry.key)
	for {
		chunk := c.cache.NextChunk(entry.key, prefix, serverConfig.MaxBeaconSizeBytes, chunkDelimiter)
		if chunk == "" {
			return nil
		}
		if err := sendChunk(c, ctx, entry.clientIP, []byte(chunk)); err != nil {
			return err
		}
		if !c.ServerConfig().Capture {
			return errCaptureDisabled
		}
	}
}

// sendChunk posts one chunk, honoring server throttling: a 429
// response is retried with the same bytes after the Retry-After
// delay, at most maxChunkSendAttempts times. A rejection (other 4xx)
// disables capture before the error returns; transient failures are
// returned as-is. The caller restores the in-flight data on any
// error.
func sendChunk(c *Context, ctx context.Context, clientIP string, payload []byte) error {
	for attempt := 1; ; attempt++ {
		response := c.client.SendBeaconRequest(ctx, clientIP, payload)
		switch {
		case response.Success():
			// Beacon responses may carry configuration updates; an
			// empty or unparseable body is simply not one.
			parsed := protocol.ParseStatusResponse(response.Body, c.ServerConfig())
			if parsed.Status == protocol.StatusOK {
				c.UpdateServerConfig(parsed)
			}
			return nil
		case response.TooManyRequests():
			if attempt >= maxChunkSendAttempts {
				return fmt.Errorf("server still throttling after %d attempts", attempt)
			}
			delay := response.RetryAfter(defaultRetryAfter)
			c.logger.Info("server throttling beacon sends",
				"retry_after", delay,
				"attempt", attempt,
			)
			select {
			case <-c.clock.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			if serverRejected(response) {
				c.logger.Warn("server rejected beacon, disabling capture",
					"status", response.StatusCode)
				disableCapture(c)
				return fmt.Errorf("server rejected beacon with status %d", response.StatusCode)
			}
			return fmt.Errorf("beacon request failed with status %d", response.StatusCode)
		}
	}
}

// executeCaptureOff polls the server on the status-check interval
// until capture is re-enabled or shutdown is requested. Buffered
// payloads are not flushed from this state; with capture off they are
// discarded at shutdown.
func executeCaptureOff(c *Context) {
	elapsed := time.Duration(c.clock.NowMillis()-c.LastStatusCheckMillis()) * time.Millisecond
	if wait := statusCheckInterval - elapsed; wait > 0 {
		if c.sleepInterruptible(wait) {
			c.SetNextState(StateTerminal)
			return
		}
	}
	if c.ShutdownRequested() {
		c.SetNextState(StateTerminal)
		return
	}

	// Only a cleanly parsed response with capture enabled leaves this
	// state; refreshServerConfig keeps the old (capture-off)
	// configuration on any failure.
	refreshServerConfig(c)
	if c.ServerConfig().Capture {
		c.SetNextState(StateCaptureOn)
	}
}

// executeFlush marks every open session finished and drains the
// queue once, without per-iteration sleeps, under a bounded context.
// The pass aborts when one session fails twice in a row so shutdown
// stays bounded.
func executeFlush(c *Context) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for _, entry := range c.OpenSessions() {
		c.FinishSession(entry.key)
	}

	var lastFailed cache.Key
	hasFailed := false
	for {
		entry, ok := c.popFinishedSession()
		if !ok {
			break
		}
		if err := sendSessionBeacon(c, ctx, entry); err != nil {
			c.cache.ResetChunkedData(entry.key)
			c.logger.Warn("flush send failed",
				"beacon_id", entry.key.BeaconID,
				"error", err,
			)
			if hasFailed && entry.key == lastFailed {
				break
			}
			lastFailed = entry.key
			hasFailed = true
			c.requeueFinishedSession(entry)
			continue
		}
		hasFailed = false
		c.cache.DeleteEntry(entry.key)
	}

	c.SetNextState(StateTerminal)
}

// executeTerminal completes initialization (as failed, when it never
// succeeded) so no waiter stays blocked, and leaves the worker loop
// to exit.
func executeTerminal(c *Context) {
	c.completeInit(false)
}
