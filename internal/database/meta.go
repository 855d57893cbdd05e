// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"strings"

	"github.com/maachang/origin-sub000/internal/dbinterface"
)

// Meta describes the columns of a result set. Lookups by name accept the
// column name in any case and its camelCase form.
type Meta struct {
	names []string
	camel []string
	types []string
	index map[string]int
}

func newMeta(rows dbinterface.Rows) (*Meta, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.TypeNames()
	if err != nil || len(types) != len(names) {
		types = make([]string, len(names))
	}
	return buildMeta(names, types), nil
}

func buildMeta(names, types []string) *Meta {
	m := &Meta{
		names: names,
		camel: make([]string, len(names)),
		types: types,
		index: make(map[string]int, len(names)*2),
	}
	for i, name := range names {
		m.camel[i] = ToCamel(name)
		lower := strings.ToLower(name)
		if _, dup := m.index[lower]; !dup {
			m.index[lower] = i
		}
	}
	for i, camel := range m.camel {
		lower := strings.ToLower(camel)
		if _, dup := m.index[lower]; !dup {
			m.index[lower] = i
		}
	}
	return m
}

func (m *Meta) Len() int { return len(m.names) }

func (m *Meta) Name(i int) string { return m.names[i] }

func (m *Meta) CamelName(i int) string { return m.camel[i] }

// Type returns the database type name of column i, upper case, or "" when
// the driver did not report one.
func (m *Meta) Type(i int) string { return strings.ToUpper(m.types[i]) }

func (m *Meta) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Index returns the position of column, or -1.
func (m *Meta) Index(column string) int {
	if i, ok := m.index[strings.ToLower(strings.TrimSpace(column))]; ok {
		return i
	}
	return -1
}
