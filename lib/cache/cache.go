// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Config holds construction parameters for a Cache.
type Config struct {
	// UpperBound is the cache size in bytes that triggers the eviction
	// signal. Must be positive.
	UpperBound int64

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Cache is the in-memory per-session record store. All methods are
// safe for concurrent use: instrumentation threads append records
// while the sender goroutine chunks them and the evictor trims them.
//
// Locking is two-level: a cache mutex guards the key map, and each
// bucket has its own mutex guarding the record sequences. The size
// counter is atomic so NumBytes never contends with record traffic.
type Cache struct {
	mu      sync.Mutex
	buckets map[Key]*bucket

	size       atomic.Int64
	upperBound int64
	notify     chan struct{}
	logger     *slog.Logger
}

// bucket holds one session's records. events and actions are
// append-only in arrival order; inFlight holds records moved out for
// an outstanding transmission; snapshot is the explicit copy taken by
// PrepareDataForSending so that ResetChunkedData can restore the
// in-flight set byte-for-byte after a failed send.
type bucket struct {
	mu      sync.Mutex
	nextSeq uint64

	events   []entry
	actions  []entry
	inFlight []entry
	snapshot []entry
}

// New creates an empty Cache. Panics if the upper bound is not
// positive; that is a construction bug, not a runtime condition.
func New(config Config) *Cache {
	if config.UpperBound <= 0 {
		panic(fmt.Sprintf("cache: upper bound must be positive, got %d", config.UpperBound))
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		buckets:    make(map[Key]*bucket),
		upperBound: config.UpperBound,
		notify:     make(chan struct{}, 1),
		logger:     logger,
	}
}

// AddEvent appends an event record to the session's bucket, creating
// the bucket on first use. Never blocks on I/O; instrumentation
// callers must not be stalled by the sender or the evictor.
func (c *Cache) AddEvent(key Key, record Record) {
	c.add(key, record, true)
}

// AddAction appends an action record to the session's bucket.
func (c *Cache) AddAction(key Key, record Record) {
	c.add(key, record, false)
}

func (c *Cache) add(key Key, record Record, isEvent bool) {
	b := c.getOrCreateBucket(key)

	b.mu.Lock()
	e := entry{record: record, seq: b.nextSeq}
	b.nextSeq++
	if isEvent {
		b.events = append(b.events, e)
	} else {
		b.actions = append(b.actions, e)
	}
	b.mu.Unlock()

	if c.size.Add(record.Size()) > c.upperBound {
		// Non-blocking signal to the evictor.
		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

// PrepareDataForSending moves the session's pending events and actions
// into the in-flight set, merged in insertion order, and snapshots the
// result for ResetChunkedData. Idempotent while a prior transmission
// is unfinished: if the in-flight set is already non-empty, pending
// records stay where they are until the next preparation.
func (c *Cache) PrepareDataForSending(key Key) {
	b := c.getBucket(key)
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.inFlight) > 0 {
		return
	}

	b.inFlight = mergeBySeq(b.events, b.actions)
	b.events = nil
	b.actions = nil

	b.snapshot = append([]entry(nil), b.inFlight...)
}

// HasDataForSending reports whether the session has in-flight records
// waiting to be chunked.
func (c *Cache) HasDataForSending(key Key) bool {
	b := c.getBucket(key)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inFlight) > 0
}

// NextChunk builds the next transmission chunk for the session:
// chunkPrefix, then in-flight records each preceded by delimiter,
// appending whole records only and stopping before the chunk would
// exceed maxSize bytes. Consumed records leave the in-flight set (and
// the cache's size accounting). Returns the empty string when no
// in-flight data remains; the transmission snapshot is released at
// that point.
//
// A record that cannot fit even as the sole record of a chunk can
// never be transmitted; it is dropped with a warning rather than
// wedging the session.
func (c *Cache) NextChunk(key Key, chunkPrefix string, maxSize int, delimiter byte) string {
	b := c.getBucket(key)
	if b == nil {
		return ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.inFlight) == 0 {
		b.snapshot = nil
		return ""
	}

	// Drop in-flight records that exceed maxSize on their own.
	for len(b.inFlight) > 0 {
		oversize := len(chunkPrefix) + 1 + len(b.inFlight[0].record.Data)
		if oversize <= maxSize {
			break
		}
		dropped := b.inFlight[0]
		b.inFlight = b.inFlight[1:]
		c.size.Add(-dropped.record.Size())
		c.logger.Warn("dropping record larger than max beacon size",
			"beacon_id", key.BeaconID,
			"record_bytes", len(dropped.record.Data),
			"max_size", maxSize,
		)
	}
	if len(b.inFlight) == 0 {
		b.snapshot = nil
		return ""
	}

	var chunk strings.Builder
	chunk.WriteString(chunkPrefix)

	consumed := 0
	var consumedSize int64
	for _, e := range b.inFlight {
		if chunk.Len()+1+len(e.record.Data) > maxSize {
			break
		}
		chunk.WriteByte(delimiter)
		chunk.WriteString(e.record.Data)
		consumed++
		consumedSize += e.record.Size()
	}
	b.inFlight = b.inFlight[consumed:]
	c.size.Add(-consumedSize)

	return chunk.String()
}

// ResetChunkedData restores the session's in-flight set from the
// snapshot taken by PrepareDataForSending, undoing any chunk
// consumption since then. Called after a failed send so the records
// are retransmitted, in order, on the next attempt. The snapshot
// stays valid for further resets until the transmission completes.
func (c *Cache) ResetChunkedData(key Key) {
	b := c.getBucket(key)
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot == nil {
		return
	}

	currentSize := entriesSize(b.inFlight)
	restoredSize := entriesSize(b.snapshot)
	b.inFlight = append([]entry(nil), b.snapshot...)
	c.size.Add(restoredSize - currentSize)
}

// DeleteEntry removes the session's bucket and subtracts its accounted
// size. No-op for unknown keys.
func (c *Cache) DeleteEntry(key Key) {
	c.mu.Lock()
	b, ok := c.buckets[key]
	if ok {
		delete(c.buckets, key)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	b.mu.Lock()
	total := entriesSize(b.events) + entriesSize(b.actions) + entriesSize(b.inFlight)
	b.events, b.actions, b.inFlight, b.snapshot = nil, nil, nil, nil
	b.mu.Unlock()

	c.size.Add(-total)
}

// EvictRecordsByAge removes from the head of the session's event and
// action sequences every record whose timestamp is strictly less than
// minTimestampMillis, and returns the number removed. In-flight
// records are never touched.
func (c *Cache) EvictRecordsByAge(key Key, minTimestampMillis int64) int {
	b := c.getBucket(key)
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	var removedSize int64
	trim := func(entries []entry) []entry {
		for len(entries) > 0 && entries[0].record.TimestampMillis < minTimestampMillis {
			removedSize += entries[0].record.Size()
			entries = entries[1:]
			removed++
		}
		return entries
	}
	b.events = trim(b.events)
	b.actions = trim(b.actions)

	c.size.Add(-removedSize)
	return removed
}

// EvictRecordsByNumber removes up to n records from the head of the
// session's sequences, draining events before actions, and returns
// the number actually removed. In-flight records are never touched.
func (c *Cache) EvictRecordsByNumber(key Key, n int) int {
	b := c.getBucket(key)
	if b == nil || n <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	var removedSize int64
	for removed < n && len(b.events) > 0 {
		removedSize += b.events[0].record.Size()
		b.events = b.events[1:]
		removed++
	}
	for removed < n && len(b.actions) > 0 {
		removedSize += b.actions[0].record.Size()
		b.actions = b.actions[1:]
		removed++
	}

	c.size.Add(-removedSize)
	return removed
}

// NumBytes returns the accounted size of all records in the cache,
// in-flight records included.
func (c *Cache) NumBytes() int64 {
	return c.size.Load()
}

// Keys returns a snapshot of the current session keys. Iteration over
// the snapshot does not hold any cache lock.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]Key, 0, len(c.buckets))
	for key := range c.buckets {
		keys = append(keys, key)
	}
	return keys
}

// Notify returns the channel signaled (at most once per crossing)
// when an insert pushes the cache size above the upper bound. The
// evictor selects on it alongside its periodic timeout.
func (c *Cache) Notify() <-chan struct{} {
	return c.notify
}

func (c *Cache) getBucket(key Key) *bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets[key]
}

func (c *Cache) getOrCreateBucket(key Key) *bucket {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[key]
	if !ok {
		b = &bucket{}
		c.buckets[key] = b
	}
	return b
}

// mergeBySeq merges two sequences that are each ordered by insertion
// sequence into one sequence ordered by insertion sequence.
func mergeBySeq(a, b []entry) []entry {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make([]entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].seq < b[j].seq {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
