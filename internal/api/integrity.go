/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/friendsincode/shopfloor/internal/integrity"
)

// IntegrityService scans stored placements and repairs findings.
type IntegrityService interface {
	Scan(ctx context.Context) (*integrity.Report, error)
	Repair(ctx context.Context, input integrity.RepairInput) (integrity.RepairResult, error)
}

type integrityFindingResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Summary     string         `json:"summary"`
	EquipmentID string         `json:"equipment_id,omitempty"`
	ResourceID  string         `json:"resource_id,omitempty"`
	Repairable  bool           `json:"repairable"`
	Details     map[string]any `json:"details,omitempty"`
}

type integrityRepairRequest struct {
	Type       string `json:"type"`
	ResourceID string `json:"resource_id"`
}

func (a *API) handleIntegrityReport(w http.ResponseWriter, r *http.Request) {
	if a.integritySvc == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_service_unavailable")
		return
	}

	report, err := a.integritySvc.Scan(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to run integrity scan")
		writeError(w, http.StatusInternalServerError, "scan_failed")
		return
	}

	findings := make([]integrityFindingResponse, len(report.Findings))
	for i, finding := range report.Findings {
		findings[i] = integrityFindingResponse{
			ID:          finding.ID,
			Type:        string(finding.Type),
			Severity:    finding.Severity,
			Summary:     finding.Summary,
			EquipmentID: finding.EquipmentID,
			ResourceID:  finding.ResourceID,
			Repairable:  finding.Repairable,
			Details:     finding.Details,
		}
	}

	byType := make(map[string]int, len(report.ByType))
	for k, v := range report.ByType {
		byType[string(k)] = v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": report.GeneratedAt,
		"total":        report.Total,
		"by_type":      byType,
		"findings":     findings,
	})
}

func (a *API) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	if a.integritySvc == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_service_unavailable")
		return
	}

	var req integrityRepairRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" || req.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "type_and_resource_id_required")
		return
	}

	result, err := a.integritySvc.Repair(r.Context(), integrity.RepairInput{
		Type:       integrity.FindingType(req.Type),
		ResourceID: req.ResourceID,
	})
	if errors.Is(err, integrity.ErrUnsupportedFinding) {
		writeError(w, http.StatusBadRequest, "unsupported_finding")
		return
	}
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("type", req.Type).
			Str("resource_id", req.ResourceID).
			Msg("integrity repair failed")
		a.writeEngineError(w, r, err)
		return
	}

	a.logger.Info().
		Str("type", req.Type).
		Str("resource_id", req.ResourceID).
		Bool("changed", result.Changed).
		Msg("integrity repair applied")

	writeJSON(w, http.StatusOK, map[string]any{
		"changed": result.Changed,
		"message": result.Message,
		"details": result.Details,
	})
}
