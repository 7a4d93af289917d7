// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Response body keys. The server answers every request with an
// ampersand-separated key=value body using these keys; unknown keys
// are ignored for forward compatibility.
const (
	keyCapture         = "cp" // capture on/off (1/0)
	keyCrashReporting  = "cr" // crash reporting on/off
	keyErrorReporting  = "er" // error reporting on/off
	keyMaxBeaconSizeKB = "bl" // max beacon size in kilobytes
	keySendIntervalSec = "si" // open-session send interval in seconds
	keyServerID        = "sr" // server id for subsequent requests
	keyMultiplicity    = "id" // sampling multiplicity
	keyCaptureLevel    = "cl" // capture detail level
)

// Status reports whether a server response parsed cleanly.
type Status int

const (
	// StatusOK means the response body was well formed.
	StatusOK Status = iota

	// StatusError means the body was malformed; the state machine
	// treats the cycle as if the server were unreachable.
	StatusError
)

// ServerConfig is the server-controlled sending configuration. A new
// instance is derived from each response body and atomically replaces
// the previous one in the sending context.
type ServerConfig struct {
	// Capture globally enables transmission. When false the SDK stops
	// sending and discards buffered payloads at shutdown.
	Capture bool

	// CrashReporting and ErrorReporting enable the respective record
	// categories.
	CrashReporting bool
	ErrorReporting bool

	// SendInterval is how often open-session beacons are sent.
	SendInterval time.Duration

	// MaxBeaconSizeBytes caps the body size of a single beacon chunk.
	MaxBeaconSizeBytes int

	// CaptureLevel is the server-selected capture detail level.
	CaptureLevel uint8

	// Multiplicity is the server-provided sampling factor.
	Multiplicity int

	// ServerID selects the server instance for subsequent requests.
	ServerID int

	// Status records whether the response parsed cleanly.
	Status Status
}

// DefaultServerConfig returns the configuration assumed before the
// first successful status request.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Capture:            true,
		CrashReporting:     true,
		ErrorReporting:     true,
		SendInterval:       120 * time.Second,
		MaxBeaconSizeBytes: 30 * 1024,
		CaptureLevel:       2,
		Multiplicity:       1,
		ServerID:           1,
		Status:             StatusOK,
	}
}

// ParseStatusResponse derives a ServerConfig from a response body.
// Keys missing from the body retain their value from previous; unknown
// keys are ignored. A malformed body (a pair without '=', or a
// non-numeric value for a numeric key) yields previous with Status set
// to StatusError so the caller treats the cycle as a transport
// failure. Parsing is pure: no logging, no side effects.
func ParseStatusResponse(body []byte, previous ServerConfig) ServerConfig {
	next := previous
	next.Status = StatusOK

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		previous.Status = StatusError
		return previous
	}

	for _, pair := range strings.Split(trimmed, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			previous.Status = StatusError
			return previous
		}
		if err := applyPair(&next, key, value); err != nil {
			previous.Status = StatusError
			return previous
		}
	}
	return next
}

func applyPair(config *ServerConfig, key, value string) error {
	switch key {
	case keyCapture:
		on, err := parseFlag(value)
		if err != nil {
			return err
		}
		config.Capture = on
	case keyCrashReporting:
		on, err := parseFlag(value)
		if err != nil {
			return err
		}
		config.CrashReporting = on
	case keyErrorReporting:
		on, err := parseFlag(value)
		if err != nil {
			return err
		}
		config.ErrorReporting = on
	case keyMaxBeaconSizeKB:
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		config.MaxBeaconSizeBytes = n * 1024
	case keySendIntervalSec:
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		config.SendInterval = time.Duration(n) * time.Second
	case keyServerID:
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		config.ServerID = n
	case keyMultiplicity:
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		config.Multiplicity = n
	case keyCaptureLevel:
		n, err := parseNonNegative(value)
		if err != nil {
			return err
		}
		if n > 255 {
			return fmt.Errorf("capture level %d out of range", n)
		}
		config.CaptureLevel = uint8(n)
	default:
		// Unknown key: ignore.
	}
	return nil
}

func parseFlag(value string) (bool, error) {
	switch value {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("flag value %q is not 0 or 1", value)
	}
}

func parseNonNegative(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("value %d is negative", n)
	}
	return n, nil
}

// Encode serializes the known keys back into the response body format.
// Mainly useful for tests and fakes standing in for the server.
func (c ServerConfig) Encode() string {
	flag := func(on bool) string {
		if on {
			return "1"
		}
		return "0"
	}
	pairs := []string{
		keyCapture + "=" + flag(c.Capture),
		keyCrashReporting + "=" + flag(c.CrashReporting),
		keyErrorReporting + "=" + flag(c.ErrorReporting),
		keyMaxBeaconSizeKB + "=" + strconv.Itoa(c.MaxBeaconSizeBytes/1024),
		keySendIntervalSec + "=" + strconv.Itoa(int(c.SendInterval/time.Second)),
		keyServerID + "=" + strconv.Itoa(c.ServerID),
		keyMultiplicity + "=" + strconv.Itoa(c.Multiplicity),
		keyCaptureLevel + "=" + strconv.Itoa(int(c.CaptureLevel)),
	}
	return strings.Join(pairs, "&")
}
