/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/locking"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// CalendarWriter persists calendar capacity overrides.
type CalendarWriter interface {
	SetCapacity(ctx context.Context, date time.Time, hours int) error
}

// CalendarInvalidator drops cached capacities after a write.
type CalendarInvalidator interface {
	Invalidate(ctx context.Context, dates ...time.Time) error
}

// API exposes HTTP handlers.
type API struct {
	calc         *worktime.Calculator
	detector     *conflict.Detector
	rescheduler  *cascade.Rescheduler
	jobs         placement.Reader
	calendar     CalendarWriter
	invalidator  CalendarInvalidator
	integritySvc IntegrityService
	auditSvc     AuditQuerier
	bus          events.Publisher
	logger       zerolog.Logger
}

// New creates the API router wrapper. invalidator, integritySvc, auditSvc and bus may be nil.
func New(detector *conflict.Detector, rescheduler *cascade.Rescheduler, jobs placement.Reader, calendar CalendarWriter, invalidator CalendarInvalidator, integritySvc IntegrityService, auditSvc AuditQuerier, bus events.Publisher, logger zerolog.Logger) *API {
	return &API{
		calc:         detector.Calculator(),
		detector:     detector,
		rescheduler:  rescheduler,
		jobs:         jobs,
		calendar:     calendar,
		invalidator:  invalidator,
		integritySvc: integritySvc,
		auditSvc:     auditSvc,
		bus:          bus,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/schedule/compute", a.handleScheduleCompute)
		r.Post("/conflicts/check", a.handleConflictsCheck)

		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Post("/move", a.handleJobMove)
			r.Post("/snap/{direction}", a.handleJobSnap)
			r.Get("/history", a.handleJobHistory)
		})

		r.Get("/calendar/{date}", a.handleCalendarGet)
		r.Put("/calendar/{date}", a.handleCalendarPut)

		r.Get("/equipment/{equipmentID}/utilization", a.handleEquipmentUtilization)

		r.Get("/integrity", a.handleIntegrityReport)
		r.Post("/integrity/repair", a.handleIntegrityRepair)

		r.Get("/audit", a.handleAuditList)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps scheduling errors onto HTTP statuses.
func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, worktime.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, worktime.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity")
	case errors.Is(err, placement.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, cascade.ErrNoNeighbour):
		writeError(w, http.StatusNotFound, "no_neighbour")
	case errors.Is(err, cascade.ErrLockedPlacement):
		writeError(w, http.StatusConflict, "locked_placement")
	case errors.Is(err, cascade.ErrEquipmentChanged), errors.Is(err, locking.ErrLeaseLost):
		writeError(w, http.StatusConflict, "concurrent_change")
	case errors.Is(err, worktime.ErrScheduleUnreachable):
		writeError(w, http.StatusUnprocessableEntity, "schedule_unreachable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout")
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
