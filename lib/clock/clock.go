// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock provides the time operations the SDK performs. The beacon
// protocol works in wall-clock milliseconds, so NowMillis is offered
// alongside Now to keep call sites free of conversion noise.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NowMillis returns the current time as milliseconds since the
	// Unix epoch.
	NowMillis() int64

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the current goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NowMillis() int64 { return time.Now().UnixMilli() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
