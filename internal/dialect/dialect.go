// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dialect describes the per-product quirks the pooling layer needs:
// driver name, URL shape, boolean encoding, statement terminator,
// transaction start, placeholder style and session initialization.
//
// Descriptors are immutable once placed in a Table. Callers share them
// freely across goroutines.
package dialect

import (
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBusyTimeout is the per-statement timeout applied when a
// descriptor leaves BusyTimeout unset.
const DefaultBusyTimeout = 30 * time.Second

// PlaceholderStyle selects how bind parameters are written.
type PlaceholderStyle int

const (
	// Question uses positional "?" markers.
	Question PlaceholderStyle = iota
	// Dollar uses numbered "$1", "$2" markers.
	Dollar
)

// IsolationStyle selects where the isolation level is set relative to
// the transaction start.
type IsolationStyle int

const (
	// IsolationNone leaves isolation to InitStatements (sqlite pragmas).
	IsolationNone IsolationStyle = iota
	// IsolationAfterBegin issues SET TRANSACTION inside the transaction.
	IsolationAfterBegin
	// IsolationBeforeBegin issues SET TRANSACTION for the next transaction.
	IsolationBeforeBegin
)

// Descriptor is the immutable description of one database product.
type Descriptor struct {
	Name           string
	Driver         string
	URLPrefix      string
	Isolation      sql.IsolationLevel
	IsolationStyle IsolationStyle
	Begin          string
	NativeBool     bool
	BoolTrue       any
	BoolFalse      any
	Terminator     string
	BusyTimeout    time.Duration
	InitStatements []string
	Local          bool
	Placeholder    PlaceholderStyle
	Params         string
	// DSNFunc folds credentials into the driver DSN. Nil means the URL is
	// used as is.
	DSNFunc func(url, user, password string) (string, error)
}

// Normalize trims sql and applies the terminator rule: a required
// terminator is appended when missing, an empty terminator strips a
// trailing ";".
func (d *Descriptor) Normalize(query string) string {
	query = strings.TrimSpace(query)
	switch d.Terminator {
	case "":
		if strings.HasSuffix(query, ";") {
			return strings.TrimSpace(query[:len(query)-1])
		}
		return query
	default:
		if strings.HasSuffix(query, d.Terminator) {
			return query
		}
		return query + d.Terminator
	}
}

// StripTerminator removes one trailing ";" regardless of the dialect.
func StripTerminator(query string) string {
	query = strings.TrimSpace(query)
	if strings.HasSuffix(query, ";") {
		return strings.TrimSpace(query[:len(query)-1])
	}
	return query
}

// CheckURL prepends URLPrefix when url does not already carry it.
func (d *Descriptor) CheckURL(url string) string {
	url = strings.TrimSpace(url)
	if d.URLPrefix == "" || strings.HasPrefix(url, d.URLPrefix) {
		return url
	}
	if strings.HasSuffix(d.URLPrefix, "://") && strings.Contains(url, "://") {
		return url
	}
	return d.URLPrefix + url
}

// WithDriverParams appends the descriptor's driver parameters to url.
func (d *Descriptor) WithDriverParams(url string) string {
	if d.Params == "" {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + d.Params
}

// DSN builds the driver data source name for url and the credentials.
func (d *Descriptor) DSN(url, user, password string) (string, error) {
	url = d.CheckURL(url)
	if d.DSNFunc == nil {
		return url, nil
	}
	return d.DSNFunc(url, user, password)
}

// EncodeBool returns the bind value for b.
func (d *Descriptor) EncodeBool(b bool) any {
	if d.NativeBool {
		return b
	}
	if b {
		return d.BoolTrue
	}
	return d.BoolFalse
}

// Timeout returns BusyTimeout, or DefaultBusyTimeout when unset.
func (d *Descriptor) Timeout() time.Duration {
	if d.BusyTimeout > 0 {
		return d.BusyTimeout
	}
	return DefaultBusyTimeout
}

// BeginStatements returns the statements that open a transaction.
func (d *Descriptor) BeginStatements() []string {
	begin := d.Begin
	if begin == "" {
		begin = "BEGIN"
	}
	level := isolationSQL(d.Isolation)
	if level == "" {
		return []string{begin}
	}
	set := "SET TRANSACTION ISOLATION LEVEL " + level
	switch d.IsolationStyle {
	case IsolationAfterBegin:
		return []string{begin, set}
	case IsolationBeforeBegin:
		return []string{set, begin}
	default:
		return []string{begin}
	}
}

func isolationSQL(level sql.IsolationLevel) string {
	switch level {
	case sql.LevelReadUncommitted:
		return "READ UNCOMMITTED"
	case sql.LevelReadCommitted:
		return "READ COMMITTED"
	case sql.LevelRepeatableRead:
		return "REPEATABLE READ"
	case sql.LevelSerializable:
		return "SERIALIZABLE"
	default:
		return ""
	}
}

// CountPlaceholders reports how many bind positions query already uses.
// Markers inside quoted literals are ignored. For Dollar style the highest
// index wins.
func (d *Descriptor) CountPlaceholders(query string) int {
	count := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '?':
			if d.Placeholder == Question {
				count++
			}
		case '$':
			if d.Placeholder != Dollar {
				continue
			}
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j == i+1 {
				continue
			}
			if n, err := strconv.Atoi(query[i+1 : j]); err == nil && n > count {
				count = n
			}
			i = j - 1
		}
	}
	return count
}

// PaginationClause returns the LIMIT/OFFSET suffix for a query that
// already binds leading parameters.
func (d *Descriptor) PaginationClause(leading int) string {
	if d.Placeholder == Dollar {
		return " LIMIT $" + strconv.Itoa(leading+1) + " OFFSET $" + strconv.Itoa(leading+2)
	}
	return " LIMIT ? OFFSET ?"
}

// Table maps product names to descriptors. Lookups are case-insensitive
// and ignore surrounding whitespace.
type Table struct {
	mu    sync.RWMutex
	kinds map[string]*Descriptor
}

// NewTable returns a table holding descs.
func NewTable(descs ...*Descriptor) *Table {
	t := &Table{kinds: make(map[string]*Descriptor, len(descs))}
	for _, d := range descs {
		t.Add(d)
	}
	return t
}

// Add registers d under its Name, replacing an existing entry.
func (t *Table) Add(d *Descriptor) {
	t.mu.Lock()
	t.kinds[key(d.Name)] = d
	t.mu.Unlock()
}

// Lookup returns the descriptor for name.
func (t *Table) Lookup(name string) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.kinds[key(name)]
	return d, ok
}

// Names lists the registered product names.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.kinds))
	for _, d := range t.kinds {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
