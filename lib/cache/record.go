// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package cache

// Key identifies one session's beacon instance. Keys are never reused
// within a process lifetime: the SDK hands out monotonically
// increasing beacon IDs and never recycles one after the session's
// cache entry is removed.
type Key struct {
	// BeaconID is the session's beacon number.
	BeaconID uint32

	// SequenceNumber distinguishes successive beacon instances of the
	// same logical session (session splitting). Zero for the first
	// instance.
	SequenceNumber uint32
}

// RecordOverheadBytes is the fixed per-record accounting overhead
// added to the serialized length. It approximates the bookkeeping cost
// of a cached record so that the memory bounds reflect actual usage
// rather than payload bytes alone.
const RecordOverheadBytes = 24

// Record is an immutable timestamped beacon fragment: an
// ampersand-joined sequence of key=value pairs with URL-encoded
// values, produced by the instrumentation layer.
type Record struct {
	// TimestampMillis is the wall-clock capture time in Unix
	// milliseconds. Age-based eviction compares against it.
	TimestampMillis int64

	// Data is the pre-encoded key=value fragment. It is sent verbatim;
	// the cache never parses it.
	Data string
}

// Size returns the accounted byte size of the record: serialized
// length plus RecordOverheadBytes.
func (r Record) Size() int64 {
	return int64(len(r.Data)) + RecordOverheadBytes
}

// entry is a Record plus its bucket-local insertion sequence. The
// sequence orders events and actions relative to each other when they
// are merged into the in-flight set.
type entry struct {
	record Record
	seq    uint64
}

func entriesSize(entries []entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.record.Size()
	}
	return total
}
