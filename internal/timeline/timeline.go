/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timeline shapes computed schedules for display: closed-day placeholders and
// per-day equipment load.
package timeline

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// Extend returns the schedule's segments with a zero-hour placeholder for every closed day
// between the start date and the finish date.
func Extend(ctx context.Context, calc *worktime.Calculator, sched worktime.Schedule) ([]worktime.Segment, error) {
	if len(sched.Segments) == 0 {
		return nil, nil
	}

	byDate := make(map[string]worktime.Segment, len(sched.Segments))
	for _, seg := range sched.Segments {
		byDate[worktime.FormatDate(seg.Date)] = seg
	}

	out := make([]worktime.Segment, 0, len(sched.Segments)+2)
	for d := sched.Start.Date; !d.After(sched.FinishDate); d = d.AddDate(0, 0, 1) {
		if seg, ok := byDate[worktime.FormatDate(d)]; ok {
			out = append(out, seg)
			continue
		}
		capacity, err := calc.Capacity(ctx, d)
		if err != nil {
			return nil, err
		}
		if capacity == 0 {
			out = append(out, worktime.Segment{Date: d})
		}
	}
	return out, nil
}

// DayLoad is the booked and available hours of one equipment on one date.
type DayLoad struct {
	Date     time.Time `json:"date"`
	Capacity float64   `json:"capacity"`
	Booked   float64   `json:"booked"`
}

// Report summarizes equipment load over a date range.
type Report struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Days          []DayLoad `json:"days"`
	TotalCapacity float64   `json:"total_capacity"`
	TotalBooked   float64   `json:"total_booked"`
	Utilization   float64   `json:"utilization"`
}

// Utilization spreads each job's segments over the dates from..to inclusive.
func Utilization(ctx context.Context, calc *worktime.Calculator, jobs []placement.JobPlacement, from, to time.Time) (Report, error) {
	from, to = worktime.Day(from), worktime.Day(to)
	if to.Before(from) {
		return Report{}, fmt.Errorf("%w: range ends before it starts", worktime.ErrInvalidInput)
	}

	var days []DayLoad
	index := make(map[string]int)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		capacity, err := calc.Capacity(ctx, d)
		if err != nil {
			return Report{}, err
		}
		index[worktime.FormatDate(d)] = len(days)
		days = append(days, DayLoad{Date: d, Capacity: float64(capacity)})
	}

	for _, job := range jobs {
		if job.Start.Date.After(to) {
			continue
		}
		sched, err := calc.ComputeSchedule(ctx, job.Start, job.DurationHours)
		if err != nil {
			return Report{}, fmt.Errorf("schedule job %s: %w", job.ID, err)
		}
		for _, seg := range sched.Segments {
			if i, ok := index[worktime.FormatDate(seg.Date)]; ok {
				days[i].Booked += seg.Hours
			}
		}
	}

	capacity := make([]float64, len(days))
	booked := make([]float64, len(days))
	for i, d := range days {
		capacity[i], booked[i] = d.Capacity, d.Booked
	}

	report := Report{
		From:          from,
		To:            to,
		Days:          days,
		TotalCapacity: floats.Sum(capacity),
		TotalBooked:   floats.Sum(booked),
	}
	if report.TotalCapacity > 0 {
		report.Utilization = report.TotalBooked / report.TotalCapacity
	}
	return report, nil
}
