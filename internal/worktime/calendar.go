/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultCapacity applies to dates the calendar has no row for.
	DefaultCapacity = 8

	// BufferQuantum is the gap inserted after a conflicting job before the next candidate start.
	BufferQuantum = 0.25

	// OffsetEpsilon is the tolerance used when comparing two cursors on the same day.
	OffsetEpsilon = 0.01
)

// ValidCapacities lists the work hours a calendar day may carry.
var ValidCapacities = []int{0, 8, 12, 24}

// ValidCapacity reports whether hours is one of ValidCapacities.
func ValidCapacity(hours int) bool {
	for _, v := range ValidCapacities {
		if v == hours {
			return true
		}
	}
	return false
}

// CalendarSource looks up the work-hour capacity of a date.
// Implementations return DefaultCapacity for dates they hold no entry for.
type CalendarSource interface {
	CapacityForDate(ctx context.Context, date time.Time) (int, error)
}

// CalendarFunc adapts a plain function to CalendarSource.
type CalendarFunc func(ctx context.Context, date time.Time) (int, error)

// CapacityForDate calls f.
func (f CalendarFunc) CapacityForDate(ctx context.Context, date time.Time) (int, error) {
	return f(ctx, date)
}

// StaticCalendar is an in-memory CalendarSource.
type StaticCalendar struct {
	mu   sync.RWMutex
	days map[string]int
}

// NewStaticCalendar creates an empty calendar where every date has DefaultCapacity.
func NewStaticCalendar() *StaticCalendar {
	return &StaticCalendar{days: make(map[string]int)}
}

// Set stores the capacity for a date.
func (c *StaticCalendar) Set(date time.Time, hours int) error {
	if !ValidCapacity(hours) {
		return fmt.Errorf("%w: %d hours", ErrInvalidCapacity, hours)
	}
	c.mu.Lock()
	c.days[FormatDate(date)] = hours
	c.mu.Unlock()
	return nil
}

// CapacityForDate implements CalendarSource.
func (c *StaticCalendar) CapacityForDate(_ context.Context, date time.Time) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if hours, ok := c.days[FormatDate(date)]; ok {
		return hours, nil
	}
	return DefaultCapacity, nil
}

// Weekly returns a CalendarSource that closes the given weekdays and defers to base otherwise.
func Weekly(base CalendarSource, closed ...time.Weekday) CalendarSource {
	return CalendarFunc(func(ctx context.Context, date time.Time) (int, error) {
		for _, wd := range closed {
			if date.Weekday() == wd {
				return 0, nil
			}
		}
		return base.CapacityForDate(ctx, date)
	})
}
