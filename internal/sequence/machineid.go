// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sequence

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/keygen-sh/machineid"
	"github.com/rs/zerolog/log"
)

const fingerprintFile = ".machine-id"

// ResolveMachineID returns configured when it is non-zero. Otherwise it
// derives a stable id from the host's machine id, persisting the
// fingerprint under configDir so restarts and image rebuilds agree.
func ResolveMachineID(configured uint32, appID, configDir string) uint32 {
	if configured != 0 {
		return configured
	}
	return uint32(xxhash.Sum64String(Fingerprint(appID, configDir)))
}

// Fingerprint returns the persisted host fingerprint, creating it on first
// use.
func Fingerprint(appID, configDir string) string {
	path := filepath.Join(configDir, fingerprintFile)
	if configDir != "" {
		if content, err := os.ReadFile(path); err == nil {
			if existing := strings.TrimSpace(string(content)); existing != "" {
				log.Trace().Str("path", path).Msg("using existing machine fingerprint")
				return existing
			}
		}
	}

	baseID, err := machineid.ProtectedID(appID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get machine ID, using fallback")
		baseID = fallbackMachineID()
	}
	fingerprint := fmt.Sprintf("%x", sha256.Sum256([]byte(appID+"-"+baseID)))

	if configDir == "" {
		return fingerprint
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to create fingerprint directory")
		return fingerprint
	}
	if err := os.WriteFile(path, []byte(fingerprint), 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to persist machine fingerprint")
		return fingerprint
	}
	log.Trace().Str("path", path).Msg("persisted new machine fingerprint")
	return fingerprint
}

func fallbackMachineID() string {
	hostInfo := runtime.GOOS + "-" + runtime.GOARCH
	if hostname, err := os.Hostname(); err == nil {
		hostInfo += "-" + hostname
	}
	hash := sha256.Sum256([]byte(hostInfo))
	return fmt.Sprintf("%x", hash)[:32]
}
