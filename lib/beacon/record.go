// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package beacon

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/beaconkit/beaconkit/lib/cache"
)

// EventType tags a record on the wire (et key).
type EventType int

// Wire event types.
const (
	EventTypeAction       EventType = 1
	EventTypeNamedEvent   EventType = 10
	EventTypeValueString  EventType = 11
	EventTypeValueInt     EventType = 12
	EventTypeValueDouble  EventType = 13
	EventTypeSessionStart EventType = 18
	EventTypeSessionEnd   EventType = 19
	EventTypeWebRequest   EventType = 30
	EventTypeError        EventType = 40
	EventTypeCrash        EventType = 50
	EventTypeIdentifyUser EventType = 60
)

// Record fragment keys.
const (
	keyEventType    = "et"
	keyName         = "na"
	keyThreadID     = "it"
	keyParentAction = "pa"
	keySequence     = "s0"
	keyTimeOffset   = "t0"
	keyValue        = "vl"
	keyErrorCode    = "ev"
	keyReason       = "rs"
	keyStacktrace   = "st"
)

// fragment joins key=value pairs with ampersands, URL-encoding each
// value.
type fragment struct {
	pairs []string
}

func (f *fragment) add(key, value string) {
	f.pairs = append(f.pairs, key+"="+url.QueryEscape(value))
}

func (f *fragment) addInt(key string, value int64) {
	f.pairs = append(f.pairs, key+"="+strconv.FormatInt(value, 10))
}

func (f *fragment) record(timestampMillis int64) cache.Record {
	return cache.Record{
		TimestampMillis: timestampMillis,
		Data:            strings.Join(f.pairs, "&"),
	}
}

// base starts a fragment with the fields every record carries.
func base(eventType EventType, sequence int32, timeOffsetMillis int64) *fragment {
	f := &fragment{}
	f.addInt(keyEventType, int64(eventType))
	f.addInt(keyThreadID, 1)
	f.addInt(keyParentAction, 0)
	f.addInt(keySequence, int64(sequence))
	f.addInt(keyTimeOffset, timeOffsetMillis)
	return f
}

// SessionStart builds the record opening a session.
func SessionStart(timestampMillis int64, sequence int32) cache.Record {
	return base(EventTypeSessionStart, sequence, 0).record(timestampMillis)
}

// SessionEnd builds the record closing a session. timeOffsetMillis is
// the session duration at the moment the end was signaled.
func SessionEnd(timestampMillis int64, sequence int32, timeOffsetMillis int64) cache.Record {
	return base(EventTypeSessionEnd, sequence, timeOffsetMillis).record(timestampMillis)
}

// NamedEvent builds a named event record.
func NamedEvent(timestampMillis int64, sequence int32, timeOffsetMillis int64, name string) cache.Record {
	f := base(EventTypeNamedEvent, sequence, timeOffsetMillis)
	f.add(keyName, name)
	return f.record(timestampMillis)
}

// IntValue builds a reported 32-bit integer value record.
func IntValue(timestampMillis int64, sequence int32, timeOffsetMillis int64, name string, value int32) cache.Record {
	f := base(EventTypeValueInt, sequence, timeOffsetMillis)
	f.add(keyName, name)
	f.addInt(keyValue, int64(value))
	return f.record(timestampMillis)
}

// DoubleValue builds a reported floating-point value record.
func DoubleValue(timestampMillis int64, sequence int32, timeOffsetMillis int64, name string, value float64) cache.Record {
	f := base(EventTypeValueDouble, sequence, timeOffsetMillis)
	f.add(keyName, name)
	f.add(keyValue, strconv.FormatFloat(value, 'f', -1, 64))
	return f.record(timestampMillis)
}

// StringValue builds a reported string value record.
func StringValue(timestampMillis int64, sequence int32, timeOffsetMillis int64, name, value string) cache.Record {
	f := base(EventTypeValueString, sequence, timeOffsetMillis)
	f.add(keyName, name)
	f.add(keyValue, value)
	return f.record(timestampMillis)
}

// Error builds a reported error record.
func Error(timestampMillis int64, sequence int32, timeOffsetMillis int64, name string, code int32, reason string) cache.Record {
	f := base(EventTypeError, sequence, timeOffsetMillis)
	f.add(keyName, name)
	f.addInt(keyErrorCode, int64(code))
	f.add(keyReason, reason)
	return f.record(timestampMillis)
}

// Crash builds a crash report record.
func Crash(timestampMillis int64, sequence int32, timeOffsetMillis int64, name, reason, stacktrace string) cache.Record {
	f := base(EventTypeCrash, sequence, timeOffsetMillis)
	f.add(keyName, name)
	f.add(keyReason, reason)
	f.add(keyStacktrace, stacktrace)
	return f.record(timestampMillis)
}

// IdentifyUser builds a user identification record.
func IdentifyUser(timestampMillis int64, sequence int32, timeOffsetMillis int64, tag string) cache.Record {
	f := base(EventTypeIdentifyUser, sequence, timeOffsetMillis)
	f.add(keyName, tag)
	return f.record(timestampMillis)
}

// Action builds a completed action record. actionID identifies the
// action; parentID is zero for root actions.
func Action(timestampMillis int64, sequence int32, name string, actionID, parentID int64, startOffsetMillis, endOffsetMillis int64) cache.Record {
	f := &fragment{}
	f.addInt(keyEventType, int64(EventTypeAction))
	f.add(keyName, name)
	f.addInt(keyThreadID, 1)
	f.addInt("ca", actionID)
	f.addInt(keyParentAction, parentID)
	f.addInt(keySequence, int64(sequence))
	f.addInt(keyTimeOffset, startOffsetMillis)
	f.addInt("t1", endOffsetMillis-startOffsetMillis)
	return f.record(timestampMillis)
}
