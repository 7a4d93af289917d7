// Copyright 2026 The BeaconKit Authors
// SPDX-License-Identifier: Apache-2.0

package beacon

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/beaconkit/beaconkit/lib/cache"
	"github.com/beaconkit/beaconkit/lib/config"
)

// ProtocolVersion is the beacon protocol version sent in the vv key.
const ProtocolVersion = 3

// Chunk prefix keys. The prefix carries session-immutable metadata
// and opens every transmitted chunk.
const (
	keyProtocolVersion    = "vv"
	keyAgentVersion       = "va"
	keyApplicationID      = "ap"
	keyApplicationName    = "an"
	keyApplicationVersion = "vn"
	keyVisitorID          = "vi"
	keySessionNumber      = "sn"
	keyOperatingSystem    = "os"
	keyManufacturer       = "mf"
	keyModelID            = "md"
	keyMultiplicity       = "mp"
)

// ChunkPrefix builds the metadata prefix for one session's chunks.
// agentVersion is the transport protocol version string;
// multiplicity is the server-assigned sampling factor at send time.
func ChunkPrefix(cfg config.Config, key cache.Key, agentVersion string, multiplicity int) string {
	pairs := []string{
		keyProtocolVersion + "=" + strconv.Itoa(ProtocolVersion),
		keyAgentVersion + "=" + url.QueryEscape(agentVersion),
		keyApplicationID + "=" + url.QueryEscape(cfg.ApplicationID),
	}
	if cfg.ApplicationName != "" {
		pairs = append(pairs, keyApplicationName+"="+url.QueryEscape(cfg.ApplicationName))
	}
	if cfg.ApplicationVersion != "" {
		pairs = append(pairs, keyApplicationVersion+"="+url.QueryEscape(cfg.ApplicationVersion))
	}
	pairs = append(pairs,
		keyVisitorID+"="+strconv.FormatInt(cfg.DeviceID, 10),
		keySessionNumber+"="+strconv.FormatUint(uint64(key.BeaconID), 10),
	)
	if cfg.OperatingSystem != "" {
		pairs = append(pairs, keyOperatingSystem+"="+url.QueryEscape(cfg.OperatingSystem))
	}
	if cfg.Manufacturer != "" {
		pairs = append(pairs, keyManufacturer+"="+url.QueryEscape(cfg.Manufacturer))
	}
	if cfg.ModelID != "" {
		pairs = append(pairs, keyModelID+"="+url.QueryEscape(cfg.ModelID))
	}
	pairs = append(pairs, keyMultiplicity+"="+strconv.Itoa(multiplicity))
	return strings.Join(pairs, "&")
}
