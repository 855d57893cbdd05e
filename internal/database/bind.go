// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql/driver"
	"time"
)

// Date binds as a YYYY-MM-DD string.
type Date struct{ time.Time }

// TimeOfDay binds as an HH:MM:SS string.
type TimeOfDay struct{ time.Time }

func NewDate(t time.Time) Date           { return Date{t} }
func NewTimeOfDay(t time.Time) TimeOfDay { return TimeOfDay{t} }

func (d Date) Value() (driver.Value, error)      { return d.Format(time.DateOnly), nil }
func (t TimeOfDay) Value() (driver.Value, error) { return t.Format(time.TimeOnly), nil }

// bind coerces caller arguments for the session's dialect. Booleans follow
// the dialect's encoding; everything else database/sql already converts.
func (s *Session) bind(args []any) []any {
	out := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case bool:
			out[i] = s.dialect.EncodeBool(v)
		case *bool:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = s.dialect.EncodeBool(*v)
			}
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = *v
			}
		default:
			out[i] = arg
		}
	}
	return out
}
