// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"strings"
	"testing"
)

func testKey(id uint32) Key {
	return Key{BeaconID: id}
}

// record builds a Record with the given payload and timestamp.
func record(ts int64, data string) Record {
	return Record{TimestampMillis: ts, Data: data}
}

// sumSizes returns the accounted size of the given payloads.
func sumSizes(payloads ...string) int64 {
	var total int64
	for _, p := range payloads {
		total += int64(len(p)) + RecordOverheadBytes
	}
	return total
}

func TestAddUpdatesSizeAccounting(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "et=10&na=click"))
	c.AddAction(key, record(2, "et=1&na=load"))

	want := sumSizes("et=10&na=click", "et=1&na=load")
	if got := c.NumBytes(); got != want {
		t.Fatalf("NumBytes = %d, want %d", got, want)
	}
}

func TestNotifySignaledWhenUpperBoundCrossed(t *testing.T) {
	c := New(Config{UpperBound: 100})
	key := testKey(1)

	c.AddEvent(key, record(1, strings.Repeat("x", 40)))
	select {
	case <-c.Notify():
		t.Fatal("notify fired below the upper bound")
	default:
	}

	c.AddEvent(key, record(2, strings.Repeat("x", 40)))
	select {
	case <-c.Notify():
	default:
		t.Fatal("notify did not fire after crossing the upper bound")
	}
}

func TestPrepareMergesInInsertionOrder(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	// Interleave events and actions; the transmitted order must be
	// the overall insertion order, not events-then-actions.
	c.AddEvent(key, record(1, "r=1"))
	c.AddAction(key, record(2, "r=2"))
	c.AddEvent(key, record(3, "r=3"))
	c.AddAction(key, record(4, "r=4"))

	c.PrepareDataForSending(key)
	chunk := c.NextChunk(key, "p", 1024, '&')
	if chunk != "p&r=1&r=2&r=3&r=4" {
		t.Fatalf("chunk = %q, want insertion order", chunk)
	}
}

func TestPrepareIdempotentWhileInFlight(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "r=1"))
	c.PrepareDataForSending(key)

	// A record arriving mid-transmission stays pending.
	c.AddEvent(key, record(2, "r=2"))
	c.PrepareDataForSending(key)

	chunk := c.NextChunk(key, "p", 1024, '&')
	if chunk != "p&r=1" {
		t.Fatalf("chunk = %q, want only the prepared record", chunk)
	}
	if got := c.NextChunk(key, "p", 1024, '&'); got != "" {
		t.Fatalf("second chunk = %q, want empty", got)
	}

	// The mid-transmission record is picked up by the next prepare.
	c.PrepareDataForSending(key)
	if chunk := c.NextChunk(key, "p", 1024, '&'); chunk != "p&r=2" {
		t.Fatalf("chunk after re-prepare = %q, want %q", chunk, "p&r=2")
	}
}

func TestHasDataForSending(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	if c.HasDataForSending(key) {
		t.Fatal("HasDataForSending true for unknown key")
	}

	c.AddEvent(key, record(1, "r=1"))
	if c.HasDataForSending(key) {
		t.Fatal("HasDataForSending true before prepare")
	}

	c.PrepareDataForSending(key)
	if !c.HasDataForSending(key) {
		t.Fatal("HasDataForSending false after prepare")
	}

	c.NextChunk(key, "p", 1024, '&')
	if c.HasDataForSending(key) {
		t.Fatal("HasDataForSending true after draining")
	}
}

// TestNextChunkSingleChunk mirrors the chunking example: all four
// records plus prefix fit one 50-byte chunk; the next call reports no
// data.
func TestNextChunkSingleChunk(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "a=1"))
	c.AddEvent(key, record(2, "b=22"))
	c.AddEvent(key, record(3, "c=333"))
	c.AddEvent(key, record(4, "d=4444"))
	c.PrepareDataForSending(key)

	chunk := c.NextChunk(key, "p", 50, '&')
	if chunk != "p&a=1&b=22&c=333&d=4444" {
		t.Fatalf("chunk = %q", chunk)
	}
	if len(chunk) != 23 {
		t.Fatalf("chunk length = %d, want 23", len(chunk))
	}
	if got := c.NextChunk(key, "p", 50, '&'); got != "" {
		t.Fatalf("second chunk = %q, want empty", got)
	}
}

func TestNextChunkRespectsMaxSizeAndNeverSplits(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	for i := 0; i < 10; i++ {
		c.AddEvent(key, record(int64(i), fmt.Sprintf("rec=%04d", i)))
	}
	c.PrepareDataForSending(key)

	var got []string
	for {
		chunk := c.NextChunk(key, "pfx", 30, '&')
		if chunk == "" {
			break
		}
		if len(chunk) > 30 {
			t.Fatalf("chunk %q exceeds max size: %d bytes", chunk, len(chunk))
		}
		got = append(got, chunk)
	}

	// Each record costs 9 bytes (delimiter + 8 data bytes); with a
	// 3-byte prefix, exactly three records fit per 30-byte chunk.
	want := []string{
		"pfx&rec=0000&rec=0001&rec=0002",
		"pfx&rec=0003&rec=0004&rec=0005",
		"pfx&rec=0006&rec=0007&rec=0008",
		"pfx&rec=0009",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNextChunkDropsOversizeRecord(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, strings.Repeat("x", 100)))
	c.AddEvent(key, record(2, "ok=1"))
	c.PrepareDataForSending(key)

	chunk := c.NextChunk(key, "p", 20, '&')
	if chunk != "p&ok=1" {
		t.Fatalf("chunk = %q, want the oversize record skipped", chunk)
	}
	if got := c.NextChunk(key, "p", 20, '&'); got != "" {
		t.Fatalf("second chunk = %q, want empty", got)
	}
	if got := c.NumBytes(); got != 0 {
		t.Fatalf("NumBytes after drop = %d, want 0", got)
	}
}

// TestResetRestoresSnapshot covers the round-trip property: prepare,
// partially chunk, reset; the in-flight set must return to its
// prepared state with identical records, order, and accounted size.
func TestResetRestoresSnapshot(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	payloads := []string{"r=1", "r=2", "r=3", "r=4"}
	for i, p := range payloads {
		c.AddEvent(key, record(int64(i), p))
	}
	sizeBefore := c.NumBytes()

	c.PrepareDataForSending(key)

	// Consume one small chunk, then fail the send.
	first := c.NextChunk(key, "p", 9, '&')
	if first != "p&r=1&r=2" {
		t.Fatalf("first chunk = %q", first)
	}
	c.ResetChunkedData(key)

	if got := c.NumBytes(); got != sizeBefore {
		t.Fatalf("NumBytes after reset = %d, want %d", got, sizeBefore)
	}

	// The full sequence is retransmitted in order.
	chunk := c.NextChunk(key, "p", 1024, '&')
	if chunk != "p&r=1&r=2&r=3&r=4" {
		t.Fatalf("chunk after reset = %q", chunk)
	}
}

func TestResetTwiceAfterRepeatedFailures(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "r=1"))
	c.AddEvent(key, record(2, "r=2"))
	c.PrepareDataForSending(key)

	// Two consecutive failed transmissions; the snapshot must survive
	// the first reset.
	c.NextChunk(key, "p", 1024, '&')
	c.ResetChunkedData(key)
	c.NextChunk(key, "p", 1024, '&')
	c.ResetChunkedData(key)

	if chunk := c.NextChunk(key, "p", 1024, '&'); chunk != "p&r=1&r=2" {
		t.Fatalf("chunk after second reset = %q", chunk)
	}
}

func TestResetWithoutPrepareIsNoOp(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "r=1"))
	c.ResetChunkedData(key)

	if got := c.NumBytes(); got != sumSizes("r=1") {
		t.Fatalf("NumBytes = %d, want %d", got, sumSizes("r=1"))
	}
}

func TestDeleteEntryAccounting(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	keep := testKey(1)
	drop := testKey(2)

	c.AddEvent(keep, record(1, "keep=1"))
	c.AddEvent(drop, record(1, "drop=1"))
	c.AddAction(drop, record(2, "drop=2"))
	c.PrepareDataForSending(drop) // in-flight records count too

	c.DeleteEntry(drop)

	if got := c.NumBytes(); got != sumSizes("keep=1") {
		t.Fatalf("NumBytes = %d, want %d", got, sumSizes("keep=1"))
	}
	if got := len(c.Keys()); got != 1 {
		t.Fatalf("Keys count = %d, want 1", got)
	}
	if c.HasDataForSending(drop) {
		t.Fatal("deleted entry still has data for sending")
	}
}

func TestEvictRecordsByAge(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(100, "old=1"))
	c.AddEvent(key, record(200, "old=2"))
	c.AddEvent(key, record(300, "new=1"))
	c.AddAction(key, record(150, "old=3"))

	removed := c.EvictRecordsByAge(key, 250)
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}
	if got := c.NumBytes(); got != sumSizes("new=1") {
		t.Fatalf("NumBytes = %d, want %d", got, sumSizes("new=1"))
	}

	// Boundary: a record exactly at the cutoff is kept.
	if removed := c.EvictRecordsByAge(key, 300); removed != 0 {
		t.Fatalf("removed at boundary = %d, want 0", removed)
	}
}

func TestEvictRecordsByNumberDrainsEventsFirst(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(1, "e=1"))
	c.AddEvent(key, record(2, "e=2"))
	c.AddAction(key, record(3, "a=1"))
	c.AddAction(key, record(4, "a=2"))

	if removed := c.EvictRecordsByNumber(key, 3); removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	// Only the last action survives.
	c.PrepareDataForSending(key)
	if chunk := c.NextChunk(key, "p", 1024, '&'); chunk != "p&a=2" {
		t.Fatalf("surviving chunk = %q, want %q", chunk, "p&a=2")
	}

	// Asking for more than remains removes what exists.
	c.AddEvent(key, record(5, "e=3"))
	if removed := c.EvictRecordsByNumber(key, 10); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestEvictionNeverTouchesInFlight(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(1)

	c.AddEvent(key, record(100, "sending=1"))
	c.PrepareDataForSending(key)
	c.AddEvent(key, record(100, "pending=1"))

	if removed := c.EvictRecordsByNumber(key, 10); removed != 1 {
		t.Fatalf("EvictRecordsByNumber removed %d, want 1 (pending only)", removed)
	}
	if removed := c.EvictRecordsByAge(key, 1_000_000); removed != 0 {
		t.Fatalf("EvictRecordsByAge removed %d in-flight records", removed)
	}

	if chunk := c.NextChunk(key, "p", 1024, '&'); chunk != "p&sending=1" {
		t.Fatalf("chunk = %q, want the in-flight record intact", chunk)
	}
}

func TestOperationsOnUnknownKey(t *testing.T) {
	c := New(Config{UpperBound: 1 << 20})
	key := testKey(99)

	c.PrepareDataForSending(key)
	c.ResetChunkedData(key)
	c.DeleteEntry(key)
	if chunk := c.NextChunk(key, "p", 1024, '&'); chunk != "" {
		t.Fatalf("chunk for unknown key = %q", chunk)
	}
	if removed := c.EvictRecordsByAge(key, 100); removed != 0 {
		t.Fatalf("EvictRecordsByAge on unknown key removed %d", removed)
	}
	if removed := c.EvictRecordsByNumber(key, 1); removed != 0 {
		t.Fatalf("EvictRecordsByNumber on unknown key removed %d", removed)
	}
	if got := c.NumBytes(); got != 0 {
		t.Fatalf("NumBytes = %d, want 0", got)
	}
}
