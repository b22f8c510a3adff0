/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestComputeScheduleSingleDay(t *testing.T) {
	calc := NewCalculator(NewStaticCalendar())

	sched, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-01"), 0), 8)
	require.NoError(t, err)

	assert.Equal(t, date(t, "2024-01-01"), sched.FinishDate)
	require.Len(t, sched.Segments, 1)
	assert.Equal(t, Segment{Date: date(t, "2024-01-01"), Hours: 8, Offset: 0}, sched.Segments[0])
	assert.True(t, sched.Finish().Equal(NewCursor(date(t, "2024-01-01"), 8)))
}

func TestComputeScheduleSkipsClosedSunday(t *testing.T) {
	cal := NewStaticCalendar()
	require.NoError(t, cal.Set(date(t, "2024-01-07"), 0))
	calc := NewCalculator(cal)

	sched, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-06"), 4), 10)
	require.NoError(t, err)

	assert.Equal(t, date(t, "2024-01-08"), sched.FinishDate)
	assert.Equal(t, []Segment{
		{Date: date(t, "2024-01-06"), Hours: 4, Offset: 4},
		{Date: date(t, "2024-01-08"), Hours: 6, Offset: 0},
	}, sched.Segments)
}

func TestComputeScheduleOffsetBeyondCapacity(t *testing.T) {
	calc := NewCalculator(NewStaticCalendar())

	sched, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-03-04"), 10), 3)
	require.NoError(t, err)

	require.Len(t, sched.Segments, 1)
	assert.Equal(t, Segment{Date: date(t, "2024-03-05"), Hours: 3, Offset: 0}, sched.Segments[0])
}

func TestComputeScheduleOffsetCarriesOverClosedStartDay(t *testing.T) {
	cal := NewStaticCalendar()
	require.NoError(t, cal.Set(date(t, "2024-01-07"), 0))
	calc := NewCalculator(cal)

	sched, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-07"), 2), 4)
	require.NoError(t, err)

	require.Len(t, sched.Segments, 1)
	assert.Equal(t, Segment{Date: date(t, "2024-01-08"), Hours: 4, Offset: 2}, sched.Segments[0])
}

func TestComputeScheduleRejectsInvalidInput(t *testing.T) {
	calc := NewCalculator(NewStaticCalendar())
	ctx := context.Background()

	tests := []struct {
		name     string
		start    Cursor
		duration float64
	}{
		{"zero duration", NewCursor(date(t, "2024-01-01"), 0), 0},
		{"negative duration", NewCursor(date(t, "2024-01-01"), 0), -2},
		{"nan duration", NewCursor(date(t, "2024-01-01"), 0), math.NaN()},
		{"infinite duration", NewCursor(date(t, "2024-01-01"), 0), math.Inf(1)},
		{"negative offset", NewCursor(date(t, "2024-01-01"), -1), 4},
		{"missing date", Cursor{}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.ComputeSchedule(ctx, tt.start, tt.duration)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestComputeScheduleUnreachable(t *testing.T) {
	closed := CalendarFunc(func(context.Context, time.Time) (int, error) { return 0, nil })
	calc := NewCalculator(closed, WithMaxScanDays(60))

	_, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-01"), 0), 4)
	assert.ErrorIs(t, err, ErrScheduleUnreachable)
}

func TestComputeScheduleRejectsBadCapacity(t *testing.T) {
	odd := CalendarFunc(func(context.Context, time.Time) (int, error) { return 6, nil })
	calc := NewCalculator(odd)

	_, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-01"), 0), 4)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestComputeScheduleCalendarError(t *testing.T) {
	boom := errors.New("calendar offline")
	failing := CalendarFunc(func(context.Context, time.Time) (int, error) { return 0, boom })
	calc := NewCalculator(failing)

	_, err := calc.ComputeSchedule(context.Background(), NewCursor(date(t, "2024-01-01"), 0), 4)
	assert.ErrorIs(t, err, boom)
}

// mixedCalendar cycles through every valid capacity.
func mixedCalendar() CalendarSource {
	return CalendarFunc(func(_ context.Context, d time.Time) (int, error) {
		return ValidCapacities[d.YearDay()%len(ValidCapacities)], nil
	})
}

func TestComputeScheduleProperties(t *testing.T) {
	cal := mixedCalendar()
	calc := NewCalculator(cal)
	ctx := context.Background()
	start := date(t, "2024-02-01")

	for day := 0; day < 8; day++ {
		for _, offset := range []float64{0, 0.25, 3.5, 8, 11.75, 20} {
			for _, duration := range []float64{0.25, 1, 7.5, 8, 12, 30, 100.5} {
				cur := NewCursor(start.AddDate(0, 0, day), offset)
				sched, err := calc.ComputeSchedule(ctx, cur, duration)
				require.NoError(t, err)
				require.NotEmpty(t, sched.Segments)

				assert.InDelta(t, duration, sched.TotalHours(), 1e-6, "duration conservation %s %.2f", cur, duration)
				for i, seg := range sched.Segments {
					capacity, _ := cal.CapacityForDate(ctx, seg.Date)
					assert.NotZero(t, capacity, "segment on closed day %s", FormatDate(seg.Date))
					assert.LessOrEqual(t, seg.Offset+seg.Hours, float64(capacity)+1e-9)
					assert.Greater(t, seg.Hours, 0.0)
					if i > 0 {
						assert.Zero(t, seg.Offset)
						assert.True(t, seg.Date.After(sched.Segments[i-1].Date))
					}
				}
				assert.Equal(t, sched.Segments[len(sched.Segments)-1].Date, sched.FinishDate)
			}
		}
	}
}

func TestAdjustToWorkingTime(t *testing.T) {
	cal := NewStaticCalendar()
	require.NoError(t, cal.Set(date(t, "2024-01-06"), 0))
	require.NoError(t, cal.Set(date(t, "2024-01-07"), 0))
	require.NoError(t, cal.Set(date(t, "2024-01-10"), 12))
	calc := NewCalculator(cal)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Cursor
		want Cursor
	}{
		{"inside working day", NewCursor(date(t, "2024-01-02"), 3), NewCursor(date(t, "2024-01-02"), 3)},
		{"day full after buffer", NewCursor(date(t, "2024-01-01"), 8.25), NewCursor(date(t, "2024-01-02"), 0)},
		{"exactly at capacity", NewCursor(date(t, "2024-01-01"), 8), NewCursor(date(t, "2024-01-02"), 0)},
		{"friday full rolls past weekend", NewCursor(date(t, "2024-01-05"), 9), NewCursor(date(t, "2024-01-08"), 0)},
		{"closed saturday", NewCursor(date(t, "2024-01-06"), 2), NewCursor(date(t, "2024-01-08"), 0)},
		{"long day keeps offset", NewCursor(date(t, "2024-01-10"), 10), NewCursor(date(t, "2024-01-10"), 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, degraded, err := calc.AdjustToWorkingTime(ctx, tt.in)
			require.NoError(t, err)
			assert.False(t, degraded)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestEnsureWorkingDayDegrades(t *testing.T) {
	closed := CalendarFunc(func(context.Context, time.Time) (int, error) { return 0, nil })
	calc := NewCalculator(closed, WithWorkingDaySearchLimit(5))

	got, degraded, err := calc.EnsureWorkingDay(context.Background(), date(t, "2024-01-01"))
	require.NoError(t, err)
	assert.True(t, degraded)
	assert.Equal(t, date(t, "2024-01-06"), got)
}

func TestEnsureWorkingDayScansLimitDaysPastStart(t *testing.T) {
	cal := NewStaticCalendar()
	for d := 1; d <= 5; d++ {
		require.NoError(t, cal.Set(time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC), 0))
	}
	calc := NewCalculator(cal, WithWorkingDaySearchLimit(5))

	got, degraded, err := calc.EnsureWorkingDay(context.Background(), date(t, "2024-01-01"))
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, date(t, "2024-01-06"), got)
}

func TestWorkHoursBetween(t *testing.T) {
	cal := NewStaticCalendar()
	require.NoError(t, cal.Set(date(t, "2024-01-07"), 0))
	require.NoError(t, cal.Set(date(t, "2024-01-08"), 12))
	calc := NewCalculator(cal)
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to Cursor
		want     float64
	}{
		{"same day", NewCursor(date(t, "2024-01-02"), 2), NewCursor(date(t, "2024-01-02"), 6), 4},
		{"across closed sunday", NewCursor(date(t, "2024-01-06"), 4), NewCursor(date(t, "2024-01-08"), 6), 10},
		{"offset past capacity", NewCursor(date(t, "2024-01-02"), 10), NewCursor(date(t, "2024-01-03"), 1), 1},
		{"reversed", NewCursor(date(t, "2024-01-03"), 0), NewCursor(date(t, "2024-01-02"), 0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.WorkHoursBetween(ctx, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestWeeklyCalendar(t *testing.T) {
	cal := Weekly(NewStaticCalendar(), time.Sunday)
	ctx := context.Background()

	sunday, err := cal.CapacityForDate(ctx, date(t, "2024-01-07"))
	require.NoError(t, err)
	assert.Zero(t, sunday)

	monday, err := cal.CapacityForDate(ctx, date(t, "2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, monday)
}
