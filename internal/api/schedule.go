/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/shopfloor/internal/telemetry"
	"github.com/friendsincode/shopfloor/internal/timeline"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

type scheduleComputeRequest struct {
	StartDate      string  `json:"start_date"`
	HourOffset     float64 `json:"hour_offset"`
	DurationHours  float64 `json:"duration_hours"`
	WithClosedDays bool    `json:"with_closed_days"`
}

type segmentResponse struct {
	Date   string  `json:"date"`
	Hours  float64 `json:"hours"`
	Offset float64 `json:"offset"`
}

type scheduleResponse struct {
	StartDate    string            `json:"start_date"`
	HourOffset   float64           `json:"hour_offset"`
	FinishDate   string            `json:"finish_date"`
	FinishOffset float64           `json:"finish_offset"`
	TotalHours   float64           `json:"total_hours"`
	Segments     []segmentResponse `json:"segments"`
}

type cursorResponse struct {
	Date   string  `json:"date"`
	Offset float64 `json:"offset"`
}

func toCursorResponse(c worktime.Cursor) cursorResponse {
	return cursorResponse{Date: worktime.FormatDate(c.Date), Offset: c.Offset}
}

func parseCursor(date string, offset float64) (worktime.Cursor, error) {
	d, err := worktime.ParseDate(date)
	if err != nil {
		return worktime.Cursor{}, err
	}
	return worktime.NewCursor(d, offset), nil
}

func (a *API) handleScheduleCompute(w http.ResponseWriter, r *http.Request) {
	var req scheduleComputeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, err := parseCursor(req.StartDate, req.HourOffset)
	if err != nil {
		telemetry.ScheduleComputations.WithLabelValues("invalid").Inc()
		a.writeEngineError(w, r, err)
		return
	}

	sched, err := a.calc.ComputeSchedule(r.Context(), start, req.DurationHours)
	if err != nil {
		telemetry.ScheduleComputations.WithLabelValues(computeResult(err)).Inc()
		a.writeEngineError(w, r, err)
		return
	}
	telemetry.ScheduleComputations.WithLabelValues("ok").Inc()

	segments := sched.Segments
	if req.WithClosedDays {
		segments, err = timeline.Extend(r.Context(), a.calc, sched)
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
	}

	finish := sched.Finish()
	resp := scheduleResponse{
		StartDate:    worktime.FormatDate(sched.Start.Date),
		HourOffset:   sched.Start.Offset,
		FinishDate:   worktime.FormatDate(finish.Date),
		FinishOffset: finish.Offset,
		TotalHours:   sched.TotalHours(),
		Segments:     make([]segmentResponse, 0, len(segments)),
	}
	for _, seg := range segments {
		resp.Segments = append(resp.Segments, segmentResponse{
			Date:   worktime.FormatDate(seg.Date),
			Hours:  seg.Hours,
			Offset: seg.Offset,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func computeResult(err error) string {
	switch {
	case errors.Is(err, worktime.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, worktime.ErrScheduleUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
