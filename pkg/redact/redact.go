// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact removes credentials from data source names, URLs and
// error text before they reach logs or CLI output.
package redact

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// sensitiveParams lists query parameter names that should be redacted (case-insensitive).
var sensitiveParams = []string{"password", "passwd", "pass", "sslpassword", "token", "apikey"}

// sensitiveParamRegex matches sensitive parameters in a string, both
// query style (password=x&...) and libpq keyword style (password=x ...).
var sensitiveParamRegex = regexp.MustCompile(`(?i)\b(password|passwd|pass|sslpassword|token|apikey)=([^&\s]*)`)

// userinfoPasswordRegex matches user:password@ patterns in URLs
var userinfoPasswordRegex = regexp.MustCompile(`(://[^/:@\s]+):([^@\s]+)@`)

// bareUserinfoRegex matches a leading user:password@ as used by mysql DSNs.
var bareUserinfoRegex = regexp.MustCompile(`^([^/:@\s]+):([^@\s]*)@`)

// URLString redacts userinfo passwords and sensitive query parameter
// values in a URL string. If parsing fails, it falls back to String.
func URLString(raw string) string {
	if raw == "" {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return String(raw)
	}

	modified := false

	// user:pass@host -> user:REDACTED@host
	if parsed.User != nil {
		if _, hasPass := parsed.User.Password(); hasPass {
			parsed.User = url.UserPassword(parsed.User.Username(), "REDACTED")
			modified = true
		}
	}

	query := parsed.Query()
	for _, param := range sensitiveParams {
		// url.Values keys are case-sensitive
		for key := range query {
			if strings.EqualFold(key, param) {
				query[key] = []string{"REDACTED"}
				modified = true
			}
		}
	}

	if !modified {
		return raw
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// DSN redacts a driver data source name of any supported shape: URL
// (postgres://, file:), mysql (user:pass@tcp(host)/db) or libpq keyword
// style (host=x password=y).
func DSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		return URLString(dsn)
	}
	result := bareUserinfoRegex.ReplaceAllString(dsn, "${1}:REDACTED@")
	return sensitiveParamRegex.ReplaceAllString(result, "${1}=REDACTED")
}

// URLError wraps a *url.Error (if present) with a redacted URL.
// Otherwise returns err unchanged.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: URLString(urlErr.URL),
			Err: urlErr.Err,
		}
	}

	return err
}

// String redacts sensitive parameter values and userinfo passwords in
// any string using regex. This is useful for sanitizing error messages
// that may contain a DSN.
func String(s string) string {
	if s == "" {
		return s
	}
	result := sensitiveParamRegex.ReplaceAllString(s, "${1}=REDACTED")
	return userinfoPasswordRegex.ReplaceAllString(result, "${1}:REDACTED@")
}

// BasicAuthUser redacts the password from a basic auth credential string.
// "user:password" -> "user:REDACTED"
func BasicAuthUser(cred string) string {
	if cred == "" {
		return cred
	}
	idx := strings.Index(cred, ":")
	if idx < 0 {
		return cred
	}
	return cred[:idx+1] + "REDACTED"
}
