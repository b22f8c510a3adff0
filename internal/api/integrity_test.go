/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/integrity"
	"github.com/friendsincode/shopfloor/internal/store"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

type fakeIntegrity struct {
	report   *integrity.Report
	repaired []integrity.RepairInput
}

func (f *fakeIntegrity) Scan(context.Context) (*integrity.Report, error) {
	return f.report, nil
}

func (f *fakeIntegrity) Repair(_ context.Context, input integrity.RepairInput) (integrity.RepairResult, error) {
	f.repaired = append(f.repaired, input)
	switch input.Type {
	case integrity.FindingClosedDayStart:
		return integrity.RepairResult{Changed: true, Message: "snapped start to working time"}, nil
	case integrity.FindingOverlappingJobs:
		return integrity.RepairResult{}, fmt.Errorf("move: %w", cascade.ErrLockedPlacement)
	default:
		return integrity.RepairResult{}, fmt.Errorf("%w: %s", integrity.ErrUnsupportedFinding, input.Type)
	}
}

func newIntegrityServer(svc IntegrityService) testServer {
	cal := worktime.NewStaticCalendar()
	mem := store.NewMemoryStore()
	det := conflict.NewDetector(worktime.NewCalculator(cal), mem, zerolog.Nop())
	resch := cascade.NewRescheduler(det, mem, nil, nil, zerolog.Nop())

	r := chi.NewRouter()
	New(det, resch, mem, staticWriter{cal: cal}, nil, svc, nil, nil, zerolog.Nop()).Routes(r)
	return testServer{router: r, mem: mem}
}

func TestIntegrityUnavailable(t *testing.T) {
	s := newTestServer(t)
	rr, body := s.do(t, http.MethodGet, "/api/v1/integrity", nil)
	if rr.Code != http.StatusServiceUnavailable || body["error"] != "integrity_service_unavailable" {
		t.Fatalf("unexpected response %d %v", rr.Code, body)
	}
}

func TestIntegrityReport(t *testing.T) {
	svc := &fakeIntegrity{report: &integrity.Report{
		GeneratedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Total:       1,
		ByType:      map[integrity.FindingType]int{integrity.FindingOverlappingJobs: 1},
		Findings: []integrity.Finding{{
			ID:          "overlapping_jobs|E1|J2",
			Type:        integrity.FindingOverlappingJobs,
			Severity:    "high",
			EquipmentID: "E1",
			ResourceID:  "J2",
			Repairable:  true,
		}},
	}}
	s := newIntegrityServer(svc)

	rr, body := s.do(t, http.MethodGet, "/api/v1/integrity", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("integrity returned %d: %v", rr.Code, body)
	}
	if body["total"] != float64(1) {
		t.Fatalf("total=%v", body["total"])
	}
	findings := body["findings"].([]any)
	first := findings[0].(map[string]any)
	if first["resource_id"] != "J2" || first["equipment_id"] != "E1" || first["repairable"] != true {
		t.Fatalf("unexpected finding %v", first)
	}
}

func TestIntegrityRepair(t *testing.T) {
	svc := &fakeIntegrity{}
	s := newIntegrityServer(svc)

	tests := []struct {
		name string
		body map[string]string
		code int
		err  string
	}{
		{"missing fields", map[string]string{"type": "closed_day_start"}, http.StatusBadRequest, "type_and_resource_id_required"},
		{"unsupported", map[string]string{"type": "orphan_job", "resource_id": "J9"}, http.StatusBadRequest, "unsupported_finding"},
		{"locked", map[string]string{"type": "overlapping_jobs", "resource_id": "J2"}, http.StatusConflict, "locked_placement"},
		{"repaired", map[string]string{"type": "closed_day_start", "resource_id": "J3"}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := s.do(t, http.MethodPost, "/api/v1/integrity/repair", tt.body)
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d: %v", rr.Code, tt.code, body)
			}
			if tt.err != "" && body["error"] != tt.err {
				t.Fatalf("error=%v want %s", body["error"], tt.err)
			}
			if tt.err == "" && body["changed"] != true {
				t.Fatalf("expected changed repair, got %v", body)
			}
		})
	}
	if len(svc.repaired) != 3 {
		t.Fatalf("expected 3 repairs to reach the service, got %d", len(svc.repaired))
	}
}
