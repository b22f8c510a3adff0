/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

// Day truncates t to UTC midnight of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts a plain date or an ISO timestamp and returns the date part.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidInput, s)
	}
	return t, nil
}

// FormatDate renders the date part of t.
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

func nextDay(t time.Time) time.Time {
	return t.AddDate(0, 0, 1)
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}

// Cursor is a position on a timeline: a calendar date plus the hours already elapsed that day.
type Cursor struct {
	Date   time.Time
	Offset float64
}

// NewCursor normalizes date to midnight UTC.
func NewCursor(date time.Time, offset float64) Cursor {
	return Cursor{Date: Day(date), Offset: offset}
}

// CursorAt converts a wall-clock instant back into a cursor.
func CursorAt(t time.Time) Cursor {
	d := Day(t)
	return Cursor{Date: d, Offset: t.Sub(d).Hours()}
}

// Instant anchors the cursor on the wall clock.
func (c Cursor) Instant() time.Time {
	return c.Date.Add(hoursToDuration(c.Offset))
}

// Advance returns the cursor moved forward by wall-clock hours.
func (c Cursor) Advance(hours float64) Cursor {
	return CursorAt(c.Instant().Add(hoursToDuration(hours)))
}

// Equal reports the same date and offsets closer than OffsetEpsilon.
func (c Cursor) Equal(o Cursor) bool {
	return c.Date.Equal(o.Date) && math.Abs(c.Offset-o.Offset) < OffsetEpsilon
}

// Before compares wall-clock instants.
func (c Cursor) Before(o Cursor) bool {
	return c.Instant().Before(o.Instant())
}

// Validate rejects zero dates and negative or non-finite offsets.
func (c Cursor) Validate() error {
	if c.Date.IsZero() {
		return fmt.Errorf("%w: missing start date", ErrInvalidInput)
	}
	if c.Offset < 0 || math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return fmt.Errorf("%w: hour offset %v", ErrInvalidInput, c.Offset)
	}
	return nil
}

func (c Cursor) String() string {
	return fmt.Sprintf("%s+%.2fh", FormatDate(c.Date), c.Offset)
}
