/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMaxScanDays bounds the day walk of ComputeSchedule (about three years).
	DefaultMaxScanDays = 1096

	// DefaultWorkingDaySearchLimit bounds the search for the next day with capacity.
	DefaultWorkingDaySearchLimit = 30

	hoursTolerance = 1e-9
)

// Segment is one day's contribution to a job's duration.
type Segment struct {
	Date   time.Time `json:"date"`
	Hours  float64   `json:"hours"`
	Offset float64   `json:"offset"`
}

// Schedule is the day-by-day consumption of a job starting at Start.
type Schedule struct {
	Start      Cursor
	FinishDate time.Time
	Segments   []Segment
}

// Finish is the cursor right after the last hour of work.
func (s Schedule) Finish() Cursor {
	if len(s.Segments) == 0 {
		return s.Start
	}
	last := s.Segments[len(s.Segments)-1]
	return Cursor{Date: last.Date, Offset: last.Offset + last.Hours}
}

// Range anchors the first and last segments on the wall clock.
func (s Schedule) Range() OccupiedRange {
	if len(s.Segments) == 0 {
		at := s.Start.Instant()
		return OccupiedRange{Start: at, End: at}
	}
	first := s.Segments[0]
	return OccupiedRange{
		Start: Cursor{Date: first.Date, Offset: first.Offset}.Instant(),
		End:   s.Finish().Instant(),
	}
}

// TotalHours sums the hours of every segment.
func (s Schedule) TotalHours() float64 {
	var total float64
	for _, seg := range s.Segments {
		total += seg.Hours
	}
	return total
}

// Calculator turns durations into calendar-aware schedules.
type Calculator struct {
	calendar              CalendarSource
	maxScanDays           int
	workingDaySearchLimit int
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithMaxScanDays overrides DefaultMaxScanDays.
func WithMaxScanDays(days int) Option {
	return func(c *Calculator) {
		if days > 0 {
			c.maxScanDays = days
		}
	}
}

// WithWorkingDaySearchLimit overrides DefaultWorkingDaySearchLimit.
func WithWorkingDaySearchLimit(days int) Option {
	return func(c *Calculator) {
		if days > 0 {
			c.workingDaySearchLimit = days
		}
	}
}

// NewCalculator creates a calculator reading capacities from calendar.
func NewCalculator(calendar CalendarSource, opts ...Option) *Calculator {
	c := &Calculator{
		calendar:              calendar,
		maxScanDays:           DefaultMaxScanDays,
		workingDaySearchLimit: DefaultWorkingDaySearchLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calendar returns the underlying source.
func (c *Calculator) Calendar() CalendarSource {
	return c.calendar
}

// Capacity returns the validated capacity of date.
func (c *Calculator) Capacity(ctx context.Context, date time.Time) (int, error) {
	hours, err := c.calendar.CapacityForDate(ctx, Day(date))
	if err != nil {
		return 0, fmt.Errorf("calendar lookup %s: %w", FormatDate(date), err)
	}
	if !ValidCapacity(hours) {
		return 0, fmt.Errorf("%w: %d hours on %s", ErrInvalidCapacity, hours, FormatDate(date))
	}
	return hours, nil
}

// ValidateDuration rejects zero, negative and non-finite durations.
func ValidateDuration(hours float64) error {
	if !(hours > 0) || math.IsInf(hours, 0) {
		return fmt.Errorf("%w: duration %v hours", ErrInvalidInput, hours)
	}
	return nil
}

// ComputeSchedule walks forward from start consuming each day's remaining capacity until
// duration hours have been placed. Closed days emit no segment and keep the pending offset;
// a working day whose capacity is already used up by the offset resets it to zero.
func (c *Calculator) ComputeSchedule(ctx context.Context, start Cursor, duration float64) (Schedule, error) {
	if err := ValidateDuration(duration); err != nil {
		return Schedule{}, err
	}
	if err := start.Validate(); err != nil {
		return Schedule{}, err
	}

	start = NewCursor(start.Date, start.Offset)
	date, offset := start.Date, start.Offset
	remaining := duration
	segments := make([]Segment, 0, int(duration/DefaultCapacity)+1)

	for scanned := 0; remaining > hoursTolerance; scanned++ {
		if scanned >= c.maxScanDays {
			return Schedule{}, fmt.Errorf("%w: %.2fh left after %d days from %s",
				ErrScheduleUnreachable, remaining, c.maxScanDays, start)
		}
		if err := ctx.Err(); err != nil {
			return Schedule{}, err
		}

		capacity, err := c.Capacity(ctx, date)
		if err != nil {
			return Schedule{}, err
		}
		if capacity == 0 {
			date = nextDay(date)
			continue
		}

		available := float64(capacity) - offset
		if available <= hoursTolerance {
			date, offset = nextDay(date), 0
			continue
		}

		used := math.Min(available, remaining)
		segments = append(segments, Segment{Date: date, Hours: used, Offset: offset})
		remaining -= used
		date, offset = nextDay(date), 0
	}

	return Schedule{
		Start:      start,
		FinishDate: segments[len(segments)-1].Date,
		Segments:   segments,
	}, nil
}

// EnsureWorkingDay returns the first date from date onwards with capacity. When the search
// limit runs out the last scanned date is returned with degraded set.
func (c *Calculator) EnsureWorkingDay(ctx context.Context, date time.Time) (time.Time, bool, error) {
	date = Day(date)
	for i := 0; ; i++ {
		capacity, err := c.Capacity(ctx, date)
		if err != nil {
			return time.Time{}, false, err
		}
		if capacity > 0 {
			return date, false, nil
		}
		if i == c.workingDaySearchLimit {
			return date, true, nil
		}
		date = nextDay(date)
	}
}

// AdjustToWorkingTime snaps a cursor that sits on a closed day, or at or past the end of its
// day's capacity, to the start of the next working day.
func (c *Calculator) AdjustToWorkingTime(ctx context.Context, cur Cursor) (Cursor, bool, error) {
	if err := cur.Validate(); err != nil {
		return Cursor{}, false, err
	}
	cur = NewCursor(cur.Date, cur.Offset)

	capacity, err := c.Capacity(ctx, cur.Date)
	if err != nil {
		return Cursor{}, false, err
	}

	from := cur.Date
	switch {
	case capacity == 0:
	case float64(capacity)-cur.Offset <= hoursTolerance:
		from = nextDay(cur.Date)
	default:
		return cur, false, nil
	}

	date, degraded, err := c.EnsureWorkingDay(ctx, from)
	if err != nil {
		return Cursor{}, false, err
	}
	return Cursor{Date: date, Offset: 0}, degraded, nil
}

// WorkHoursBetween counts the working hours from one cursor up to another.
func (c *Calculator) WorkHoursBetween(ctx context.Context, from, to Cursor) (float64, error) {
	if err := from.Validate(); err != nil {
		return 0, err
	}
	if err := to.Validate(); err != nil {
		return 0, err
	}
	from, to = NewCursor(from.Date, from.Offset), NewCursor(to.Date, to.Offset)
	if !from.Before(to) {
		return 0, nil
	}
	if days := int(to.Date.Sub(from.Date).Hours() / 24); days > c.maxScanDays {
		return 0, fmt.Errorf("%w: span of %d days exceeds %d", ErrInvalidInput, days, c.maxScanDays)
	}

	var total float64
	for date := from.Date; !date.After(to.Date); date = nextDay(date) {
		capacity, err := c.Capacity(ctx, date)
		if err != nil {
			return 0, err
		}
		lo, hi := 0.0, float64(capacity)
		if date.Equal(from.Date) {
			lo = math.Min(from.Offset, hi)
		}
		if date.Equal(to.Date) {
			hi = math.Min(to.Offset, hi)
		}
		if hi > lo {
			total += hi - lo
		}
	}
	return total, nil
}
