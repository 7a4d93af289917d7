// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the SDK. Production code injects
// Real(); tests inject Fake() and drive time deterministically with
// Advance. No production code in this module calls time.Now,
// time.After, or time.Sleep directly.
package clock
