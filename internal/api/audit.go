/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/shopfloor/internal/audit"
	"github.com/friendsincode/shopfloor/internal/models"
)

// AuditQuerier reads the recorded placement history.
type AuditQuerier interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error)
}

type auditEntryResponse struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	EquipmentID  *string        `json:"equipment_id,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters, ok := auditFilters(w, r)
	if !ok {
		return
	}
	a.writeAudit(w, r, filters)
}

func (a *API) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	filters, ok := auditFilters(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	filters.ResourceID = &jobID
	a.writeAudit(w, r, filters)
}

func (a *API) writeAudit(w http.ResponseWriter, r *http.Request, filters audit.QueryFilters) {
	if a.auditSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_service_unavailable")
		return
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit log")
		writeError(w, http.StatusInternalServerError, "audit_query_failed")
		return
	}

	entries := make([]auditEntryResponse, len(logs))
	for i, l := range logs {
		entries[i] = auditEntryResponse{
			ID:           l.ID,
			Timestamp:    l.Timestamp,
			Action:       string(l.Action),
			EquipmentID:  l.EquipmentID,
			ResourceType: l.ResourceType,
			ResourceID:   l.ResourceID,
			Details:      l.Details,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"entries": entries,
	})
}

func auditFilters(w http.ResponseWriter, r *http.Request) (audit.QueryFilters, bool) {
	q := r.URL.Query()
	var f audit.QueryFilters

	if v := q.Get("equipment_id"); v != "" {
		f.EquipmentID = &v
	}
	if v := q.Get("resource_id"); v != "" {
		f.ResourceID = &v
	}
	if v := q.Get("action"); v != "" {
		action := models.AuditAction(v)
		f.Action = &action
	}
	for key, dest := range map[string]**time.Time{"since": &f.StartTime, "until": &f.EndTime} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+key)
			return f, false
		}
		*dest = &t
	}
	for key, dest := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+key)
			return f, false
		}
		*dest = n
	}
	if f.Limit > maxAuditPage {
		f.Limit = maxAuditPage
	}
	return f, true
}

const maxAuditPage = 500
