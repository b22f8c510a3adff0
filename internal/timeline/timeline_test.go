/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := worktime.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestExtendInsertsClosedDayPlaceholders(t *testing.T) {
	cal := worktime.Weekly(worktime.NewStaticCalendar(), time.Saturday, time.Sunday)
	calc := worktime.NewCalculator(cal)
	ctx := context.Background()

	sched, err := calc.ComputeSchedule(ctx, worktime.NewCursor(day(t, "2024-01-05"), 4), 10)
	require.NoError(t, err)

	got, err := Extend(ctx, calc, sched)
	require.NoError(t, err)
	assert.Equal(t, []worktime.Segment{
		{Date: day(t, "2024-01-05"), Hours: 4, Offset: 4},
		{Date: day(t, "2024-01-06")},
		{Date: day(t, "2024-01-07")},
		{Date: day(t, "2024-01-08"), Hours: 6, Offset: 0},
	}, got)
}

func TestUtilization(t *testing.T) {
	cal := worktime.Weekly(worktime.NewStaticCalendar(), time.Sunday)
	calc := worktime.NewCalculator(cal)
	jobs := []placement.JobPlacement{
		{ID: "A", EquipmentID: "E1", Start: worktime.NewCursor(day(t, "2024-01-06"), 4), DurationHours: 10},
		{ID: "B", EquipmentID: "E1", Start: worktime.NewCursor(day(t, "2024-01-09"), 0), DurationHours: 4},
		{ID: "C", EquipmentID: "E1", Start: worktime.NewCursor(day(t, "2024-02-01"), 0), DurationHours: 4},
	}

	report, err := Utilization(context.Background(), calc, jobs, day(t, "2024-01-06"), day(t, "2024-01-09"))
	require.NoError(t, err)

	require.Len(t, report.Days, 4)
	assert.Equal(t, []float64{4, 0, 6, 4}, []float64{
		report.Days[0].Booked, report.Days[1].Booked, report.Days[2].Booked, report.Days[3].Booked,
	})
	assert.Equal(t, 24.0, report.TotalCapacity)
	assert.Equal(t, 14.0, report.TotalBooked)
	assert.InDelta(t, 14.0/24.0, report.Utilization, 1e-9)

	_, err = Utilization(context.Background(), calc, jobs, day(t, "2024-01-09"), day(t, "2024-01-06"))
	assert.ErrorIs(t, err, worktime.ErrInvalidInput)
}
