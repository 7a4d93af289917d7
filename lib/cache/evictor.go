// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/beaconkit/beaconkit/lib/clock"
)

// evictionCheckInterval is the evictor's wake-up timeout. Even without
// a size signal the evictor runs the age-based trim this often.
const evictionCheckInterval = 1 * time.Second

// EvictorConfig holds construction parameters for an Evictor.
type EvictorConfig struct {
	// MaxRecordAge is how long a record may sit in the cache before
	// the age-based strategy removes it. Must be positive.
	MaxRecordAge time.Duration

	// LowerBound and UpperBound are the two thresholds of the
	// space-based strategy: eviction starts when the cache exceeds
	// UpperBound and stops once it is at or below LowerBound.
	LowerBound int64
	UpperBound int64

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Evictor trims the cache on a background goroutine. It wakes on the
// cache's size signal or on a periodic timeout, applies the age-based
// trim, and then sheds the oldest records round-robin across sessions
// while the cache is over its bounds. In-flight records are never
// evicted.
type Evictor struct {
	cache  *Cache
	config EvictorConfig
	clock  clock.Clock
	logger *slog.Logger

	// Load-shedding counters, readable concurrently for diagnostics.
	evictedByAge   atomic.Uint64
	evictedBySpace atomic.Uint64
}

// NewEvictor creates an Evictor for the given cache. Run must be
// called to start eviction.
func NewEvictor(cache *Cache, config EvictorConfig) *Evictor {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Evictor{
		cache:  cache,
		config: config,
		clock:  clk,
		logger: logger,
	}
}

// Run executes the eviction loop until ctx is cancelled. It is meant
// to be called on its own goroutine; it returns cleanly on shutdown.
func (e *Evictor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.cache.Notify():
		case <-e.clock.After(evictionCheckInterval):
		}
		if ctx.Err() != nil {
			return
		}

		e.evictByAge()
		e.evictBySpace(ctx)
	}
}

// EvictedByAge returns the total number of records removed by the
// age-based strategy since creation.
func (e *Evictor) EvictedByAge() uint64 { return e.evictedByAge.Load() }

// EvictedBySpace returns the total number of records removed by the
// space-based strategy since creation.
func (e *Evictor) EvictedBySpace() uint64 { return e.evictedBySpace.Load() }

// evictByAge removes records older than MaxRecordAge from every
// session.
func (e *Evictor) evictByAge() {
	cutoff := e.clock.NowMillis() - e.config.MaxRecordAge.Milliseconds()

	removed := 0
	for _, key := range e.cache.Keys() {
		removed += e.cache.EvictRecordsByAge(key, cutoff)
	}
	if removed > 0 {
		e.evictedByAge.Add(uint64(removed))
		e.logger.Warn("evicted expired records",
			"removed", removed,
			"max_age", e.config.MaxRecordAge,
		)
	}
}

// sortedKeys snapshots the cache's session keys in ascending
// (BeaconID, SequenceNumber) order.
func sortedKeys(c *Cache) []Key {
	keys := c.Keys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].BeaconID != keys[j].BeaconID {
			return keys[i].BeaconID < keys[j].BeaconID
		}
		return keys[i].SequenceNumber < keys[j].SequenceNumber
	})
	return keys
}

// evictBySpace sheds the oldest record of each session round-robin
// until the cache size is at or below the lower bound. Sessions are
// visited in key order so the shedding is deterministic, not at the
// mercy of map iteration. A full pass that removes nothing means only
// in-flight data remains; the pass is abandoned rather than spinning.
func (e *Evictor) evictBySpace(ctx context.Context) {
	if e.cache.NumBytes() <= e.config.UpperBound {
		return
	}

	removed := 0
	for e.cache.NumBytes() > e.config.LowerBound {
		if ctx.Err() != nil {
			break
		}
		removedThisPass := 0
		for _, key := range sortedKeys(e.cache) {
			removedThisPass += e.cache.EvictRecordsByNumber(key, 1)
			if e.cache.NumBytes() <= e.config.LowerBound {
				break
			}
		}
		if removedThisPass == 0 {
			break
		}
		removed += removedThisPass
	}

	if removed > 0 {
		e.evictedBySpace.Add(uint64(removed))
		e.logger.Warn("cache over memory bound, shed oldest records",
			"removed", removed,
			"size_bytes", e.cache.NumBytes(),
			"lower_bound", e.config.LowerBound,
			"upper_bound", e.config.UpperBound,
		)
	}
}
