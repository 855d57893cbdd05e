// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo carries the values stamped in with -ldflags.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version = "0.0.0-dev"
	Commit  = ""
	Date    = ""
)

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func current() buildInfo {
	return buildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func String() string {
	i := current()
	return fmt.Sprintf("Version: %v\nCommit: %v\nBuild date: %s\nGo: %s %s\n", i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}

func JSON() ([]byte, error) {
	return json.Marshal(current())
}
