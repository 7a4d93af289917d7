// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small helpers shared by the SDK's tests,
// mainly channel operations with a timeout safety valve so individual
// tests do not need their own time.After plumbing.
package testutil
