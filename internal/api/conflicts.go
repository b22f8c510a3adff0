/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

type conflictCheckRequest struct {
	EquipmentID   string  `json:"equipment_id"`
	JobID         string  `json:"job_id"`
	StartDate     string  `json:"start_date"`
	HourOffset    float64 `json:"hour_offset"`
	DurationHours float64 `json:"duration_hours"`
	OnlyCheck     bool    `json:"only_check"`
}

type moveResponse struct {
	JobID  string         `json:"job_id"`
	From   cursorResponse `json:"from"`
	To     cursorResponse `json:"to"`
	Finish cursorResponse `json:"finish"`
}

type outcomeResponse struct {
	HasConflicts    bool           `json:"has_conflicts"`
	AvailableDate   string         `json:"available_date"`
	AvailableOffset float64        `json:"available_offset"`
	Degraded        bool           `json:"degraded"`
	Iterations      int            `json:"iterations"`
	ConflictingJobs []string       `json:"conflicting_jobs"`
	Moves           []moveResponse `json:"moves"`
	StoppedAt       string         `json:"stopped_at,omitempty"`
	State           string         `json:"state"`
}

func toOutcomeResponse(out cascade.Outcome) outcomeResponse {
	available := toCursorResponse(out.Available.Start)
	resp := outcomeResponse{
		HasConflicts:    out.Conflict,
		AvailableDate:   available.Date,
		AvailableOffset: available.Offset,
		Degraded:        out.Available.Degraded,
		Iterations:      out.Available.Iterations,
		ConflictingJobs: out.Available.ConflictingJobs,
		Moves:           make([]moveResponse, 0, len(out.Moves)),
		StoppedAt:       out.StoppedAt,
		State:           string(out.State),
	}
	if resp.ConflictingJobs == nil {
		resp.ConflictingJobs = []string{}
	}
	for _, m := range out.Moves {
		resp.Moves = append(resp.Moves, moveResponse{
			JobID:  m.JobID,
			From:   toCursorResponse(m.From),
			To:     toCursorResponse(m.To),
			Finish: toCursorResponse(m.Finish),
		})
	}
	return resp
}

func (a *API) handleConflictsCheck(w http.ResponseWriter, r *http.Request) {
	var req conflictCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, err := parseCursor(req.StartDate, req.HourOffset)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	out, err := a.rescheduler.ResolveAndCascade(r.Context(), cascade.Request{
		EquipmentID:   req.EquipmentID,
		JobID:         req.JobID,
		Start:         start,
		DurationHours: req.DurationHours,
		DryRun:        req.OnlyCheck,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

type jobMoveRequest struct {
	StartDate  string  `json:"start_date"`
	HourOffset float64 `json:"hour_offset"`
}

func (a *API) handleJobMove(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var req jobMoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := parseCursor(req.StartDate, req.HourOffset)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	out, err := a.rescheduler.MoveJob(r.Context(), jobID, start)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

type snapResponse struct {
	JobID      string  `json:"job_id"`
	Direction  string  `json:"direction"`
	StartDate  string  `json:"start_date"`
	HourOffset float64 `json:"hour_offset"`
}

func (a *API) handleJobSnap(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	direction := strings.ToLower(chi.URLParam(r, "direction"))

	var snap func(ctx context.Context, jobID string) (worktime.Cursor, error)
	switch direction {
	case "previous", "prev":
		direction = "previous"
		snap = a.rescheduler.SnapToPrevious
	case "next":
		snap = a.rescheduler.SnapToNext
	default:
		writeError(w, http.StatusBadRequest, "invalid_direction")
		return
	}

	at, err := snap(r.Context(), jobID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapResponse{
		JobID:      jobID,
		Direction:  direction,
		StartDate:  worktime.FormatDate(at.Date),
		HourOffset: at.Offset,
	})
}
