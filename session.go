// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package beaconkit

import (
	"sync/atomic"

	"github.com/beaconkit/beaconkit/lib/beacon"
	"github.com/beaconkit/beaconkit/lib/cache"
)

// Session is one monitored user session. Its reporting calls build
// beacon records and append them to the cache; transmission happens in
// the background. After End (or SDK shutdown) all calls are no-ops.
//
// A Session is safe for concurrent use; record ordering follows the
// per-session sequence numbers.
type Session struct {
	sdk         *SDK
	key         cache.Key
	clientIP    string
	startMillis int64

	sequence     atomic.Int32
	nextActionID atomic.Int64
	ended        atomic.Bool
}

// nextSeq returns the next per-session sequence number, starting at 1.
func (s *Session) nextSeq() int32 {
	return s.sequence.Add(1)
}

// timing returns the current timestamp and the offset from session
// start.
func (s *Session) timing() (nowMillis, offsetMillis int64) {
	nowMillis = s.sdk.clock.NowMillis()
	return nowMillis, nowMillis - s.startMillis
}

// ReportEvent records a named event.
func (s *Session) ReportEvent(name string) {
	if s.ended.Load() {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.NamedEvent(now, s.nextSeq(), offset, name))
}

// ReportIntValue records a named 32-bit integer value.
func (s *Session) ReportIntValue(name string, value int32) {
	if s.ended.Load() {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.IntValue(now, s.nextSeq(), offset, name, value))
}

// ReportDoubleValue records a named floating-point value.
func (s *Session) ReportDoubleValue(name string, value float64) {
	if s.ended.Load() {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.DoubleValue(now, s.nextSeq(), offset, name, value))
}

// ReportStringValue records a named string value.
func (s *Session) ReportStringValue(name, value string) {
	if s.ended.Load() {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.StringValue(now, s.nextSeq(), offset, name, value))
}

// ReportError records an error with a numeric code and a reason.
// Dropped when the server disabled error reporting.
func (s *Session) ReportError(name string, code int32, reason string) {
	if s.ended.Load() || !s.sdk.sender.ServerConfig().ErrorReporting {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.Error(now, s.nextSeq(), offset, name, code, reason))
}

// ReportCrash records a crash with its reason and stacktrace. Dropped
// when the server disabled crash reporting.
func (s *Session) ReportCrash(name, reason, stacktrace string) {
	if s.ended.Load() || !s.sdk.sender.ServerConfig().CrashReporting {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.Crash(now, s.nextSeq(), offset, name, reason, stacktrace))
}

// IdentifyUser tags the session with a user identifier.
func (s *Session) IdentifyUser(tag string) {
	if s.ended.Load() {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.IdentifyUser(now, s.nextSeq(), offset, tag))
}

// AddEventRecord appends a pre-encoded event record to the session.
// Most callers want the typed Report methods; this is the raw surface
// for instrumentation that builds its own wire fragments.
func (s *Session) AddEventRecord(record cache.Record) {
	if s.ended.Load() {
		return
	}
	s.sdk.cache.AddEvent(s.key, record)
}

// AddActionRecord appends a pre-encoded action record to the session.
func (s *Session) AddActionRecord(record cache.Record) {
	if s.ended.Load() {
		return
	}
	s.sdk.cache.AddAction(s.key, record)
}

// EnterAction starts a named root action. The action is recorded when
// Leave is called.
func (s *Session) EnterAction(name string) *Action {
	now, _ := s.timing()
	return &Action{
		session:     s,
		id:          s.nextActionID.Add(1),
		name:        name,
		startMillis: now,
		startSeq:    s.nextSeq(),
	}
}

// End closes the session: it records the session-end event and queues
// the session for transmission. Only the first call has an effect.
func (s *Session) End() {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	now, offset := s.timing()
	s.sdk.cache.AddEvent(s.key, beacon.SessionEnd(now, s.nextSeq(), offset))
	s.sdk.sender.FinishSession(s.key)
}

// Action is one timed root action within a session.
type Action struct {
	session     *Session
	id          int64
	name        string
	startMillis int64
	startSeq    int32
	left        atomic.Bool
}

// Leave finishes the action and records it with its duration. Only the
// first call has an effect; a leave after the session ended is
// dropped.
func (a *Action) Leave() {
	if !a.left.CompareAndSwap(false, true) {
		return
	}
	s := a.session
	if s.ended.Load() {
		return
	}
	now := s.sdk.clock.NowMillis()
	startOffset := a.startMillis - s.startMillis
	endOffset := now - s.startMillis
	s.sdk.cache.AddAction(s.key, beacon.Action(now, a.startSeq, a.name, a.id, 0, startOffset, endOffset))
}
