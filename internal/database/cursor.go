// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maachang/origin-sub000/internal/dbinterface"
)

// Cursor walks a result set one row at a time. It stops after maxRows rows
// when maxRows is positive and closes itself once exhausted.
type Cursor struct {
	rows      dbinterface.Rows
	meta      *Meta
	maxRows   int
	fetchSize int
	count     int
	onClose   func()

	current []any
	err     error
	closed  bool
}

func newCursor(rows dbinterface.Rows, meta *Meta, maxRows, fetchSize int, onClose func()) *Cursor {
	if fetchSize <= 0 {
		fetchSize = MaxFetchSize
	}
	return &Cursor{
		rows:      rows,
		meta:      meta,
		maxRows:   maxRows,
		fetchSize: fetchSize,
		onClose:   onClose,
	}
}

func (c *Cursor) Meta() *Meta    { return c.meta }
func (c *Cursor) FetchSize() int { return c.fetchSize }

// Count is the number of rows read so far.
func (c *Cursor) Count() int { return c.count }

func (c *Cursor) Err() error { return c.err }

// Next reads the next row.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	if c.maxRows > 0 && c.count >= c.maxRows {
		c.Close()
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}

	values := make([]any, c.meta.Len())
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = err
		c.Close()
		return false
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
	}
	c.current = values
	c.count++
	return true
}

// Row returns the current row.
func (c *Cursor) Row() Row { return Row{meta: c.meta, values: c.current} }

// Values returns the current row's column values in order.
func (c *Cursor) Values() []any { return c.current }

// Map returns the current row keyed by column name.
func (c *Cursor) Map() map[string]any { return c.Row().Map() }

// Fetch reads up to FetchSize rows. An empty result with a nil error means
// the cursor is exhausted.
func (c *Cursor) Fetch() ([]Row, error) {
	out := make([]Row, 0, c.fetchSize)
	for len(out) < c.fetchSize && c.Next() {
		out = append(out, c.Row())
	}
	return out, c.err
}

// All reads every remaining row and closes the cursor.
func (c *Cursor) All() ([]Row, error) {
	var out []Row
	for c.Next() {
		out = append(out, c.Row())
	}
	return out, c.err
}

// Close releases the result set. It is idempotent.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rows.Close()
	if c.onClose != nil {
		c.onClose()
	}
	return err
}

// Row is one result row.
type Row struct {
	meta   *Meta
	values []any
}

func (r Row) Len() int { return len(r.values) }

// At returns the value of column i.
func (r Row) At(i int) any { return r.values[i] }

// Get returns the value of column, found case-insensitively by its name or
// camelCase form.
func (r Row) Get(column string) (any, bool) {
	i := r.meta.Index(column)
	if i < 0 || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

func (r Row) IsNull(column string) bool {
	v, ok := r.Get(column)
	return !ok || v == nil
}

func (r Row) String(column string) string {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func (r Row) Int64(column string) (int64, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func (r Row) Float64(column string) (float64, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool reads native booleans and the 1/0 and "true"/"false" encodings.
func (r Row) Bool(column string) (bool, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return false, false
	}
	switch x := v.(type) {
	case bool:
		return x, true
	case []byte:
		b, err := strconv.ParseBool(strings.TrimSpace(string(x)))
		return b, err == nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	if n, ok := r.Int64(column); ok {
		return n != 0, true
	}
	return false, false
}

func (r Row) Time(column string) (time.Time, bool) {
	v, ok := r.Get(column)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	}
	return time.Time{}, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	time.DateTime,
	time.DateOnly,
	time.TimeOnly,
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for i, v := range r.values {
		out[r.meta.Name(i)] = v
	}
	return out
}

// CamelMap returns the row keyed by camelCase column name.
func (r Row) CamelMap() map[string]any {
	out := make(map[string]any, len(r.values))
	for i, v := range r.values {
		out[r.meta.CamelName(i)] = v
	}
	return out
}

// Each is a convenience for callers that only need to visit rows.
func Each(ctx context.Context, c *Cursor, fn func(Row) error) error {
	defer c.Close()
	for c.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c.Row()); err != nil {
			return err
		}
	}
	return c.Err()
}
