/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/timeline"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

type calendarDayResponse struct {
	Date      string `json:"date"`
	WorkHours int    `json:"work_hours"`
	Working   bool   `json:"working"`
}

type calendarPutRequest struct {
	WorkHours int `json:"work_hours"`
}

func (a *API) handleCalendarGet(w http.ResponseWriter, r *http.Request) {
	date, err := worktime.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	hours, err := a.calc.Capacity(r.Context(), date)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarDayResponse{
		Date:      worktime.FormatDate(date),
		WorkHours: hours,
		Working:   hours > 0,
	})
}

func (a *API) handleCalendarPut(w http.ResponseWriter, r *http.Request) {
	date, err := worktime.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	var req calendarPutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.calendar.SetCapacity(r.Context(), date, req.WorkHours); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if a.invalidator != nil {
		if err := a.invalidator.Invalidate(r.Context(), date); err != nil {
			a.logger.Warn().Err(err).Str("date", worktime.FormatDate(date)).Msg("calendar cache invalidation failed")
		}
	}
	if a.bus != nil {
		a.bus.Publish(events.EventCalendarUpdated, events.Payload{
			"date":       worktime.FormatDate(date),
			"work_hours": req.WorkHours,
		})
	}

	writeJSON(w, http.StatusOK, calendarDayResponse{
		Date:      worktime.FormatDate(date),
		WorkHours: req.WorkHours,
		Working:   req.WorkHours > 0,
	})
}

type dayLoadResponse struct {
	Date     string  `json:"date"`
	Capacity float64 `json:"capacity"`
	Booked   float64 `json:"booked"`
}

type utilizationResponse struct {
	EquipmentID   string            `json:"equipment_id"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	Days          []dayLoadResponse `json:"days"`
	TotalCapacity float64           `json:"total_capacity"`
	TotalBooked   float64           `json:"total_booked"`
	Utilization   float64           `json:"utilization"`
}

func (a *API) handleEquipmentUtilization(w http.ResponseWriter, r *http.Request) {
	equipmentID := chi.URLParam(r, "equipmentID")

	from, to, err := utilizationRange(r)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	jobs, err := a.jobs.ListActiveByEquipment(r.Context(), equipmentID, "")
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	report, err := timeline.Utilization(r.Context(), a.calc, jobs, from, to)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	resp := utilizationResponse{
		EquipmentID:   equipmentID,
		From:          worktime.FormatDate(report.From),
		To:            worktime.FormatDate(report.To),
		Days:          make([]dayLoadResponse, 0, len(report.Days)),
		TotalCapacity: report.TotalCapacity,
		TotalBooked:   report.TotalBooked,
		Utilization:   report.Utilization,
	}
	for _, d := range report.Days {
		resp.Days = append(resp.Days, dayLoadResponse{
			Date:     worktime.FormatDate(d.Date),
			Capacity: d.Capacity,
			Booked:   d.Booked,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxUtilizationSpan = 366 * 24 * time.Hour

// utilizationRange defaults to the seven days starting today.
func utilizationRange(r *http.Request) (time.Time, time.Time, error) {
	from := worktime.Day(time.Now())
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := worktime.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = d
	}
	to := from.AddDate(0, 0, 6)
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := worktime.ParseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = d
	}
	if to.Sub(from) > maxUtilizationSpan {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: utilization range longer than a year", worktime.ErrInvalidInput)
	}
	return from, to, nil
}
