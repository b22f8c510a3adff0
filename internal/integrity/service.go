/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package integrity scans stored job placements for states the engine tolerates but
// should not persist, and repairs the ones it can.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/models"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// ErrUnsupportedFinding is returned by Repair for finding types it cannot fix.
var ErrUnsupportedFinding = errors.New("unsupported finding type")

type FindingType string

const (
	FindingOrphanJob        FindingType = "orphan_job"
	FindingInvalidPlacement FindingType = "invalid_placement"
	FindingClosedDayStart   FindingType = "closed_day_start"
	FindingOverlappingJobs  FindingType = "overlapping_jobs"
)

type Finding struct {
	ID          string
	Type        FindingType
	Severity    string
	Summary     string
	EquipmentID string
	ResourceID  string
	Repairable  bool
	Details     map[string]any
}

type Report struct {
	GeneratedAt time.Time
	Total       int
	ByType      map[FindingType]int
	Findings    []Finding
}

type RepairInput struct {
	Type       FindingType
	ResourceID string
}

type RepairResult struct {
	Changed bool
	Message string
	Details map[string]any
}

type Service struct {
	db          *gorm.DB
	detector    *conflict.Detector
	rescheduler *cascade.Rescheduler
	logger      zerolog.Logger
}

func NewService(db *gorm.DB, detector *conflict.Detector, rescheduler *cascade.Rescheduler, logger zerolog.Logger) *Service {
	return &Service{
		db:          db,
		detector:    detector,
		rescheduler: rescheduler,
		logger:      logger.With().Str("component", "integrity").Logger(),
	}
}

func (s *Service) Scan(ctx context.Context) (*Report, error) {
	findings := make([]Finding, 0, 32)

	added, err := s.scanOrphanJobs(ctx)
	if err != nil {
		return nil, err
	}
	findings = append(findings, added...)

	jobs, err := s.activeJobs(ctx)
	if err != nil {
		return nil, err
	}

	valid, added := scanInvalidPlacements(jobs)
	findings = append(findings, added...)

	added, err = s.scanClosedDayStarts(ctx, valid)
	if err != nil {
		return nil, err
	}
	findings = append(findings, added...)

	added, err = s.scanOverlaps(ctx, valid)
	if err != nil {
		return nil, err
	}
	findings = append(findings, added...)

	byType := make(map[FindingType]int)
	for _, f := range findings {
		byType[f.Type]++
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Total:       len(findings),
		ByType:      byType,
		Findings:    findings,
	}

	if report.Total > 0 {
		s.logger.Warn().Int("total_findings", report.Total).Interface("by_type", byType).Msg("integrity scan completed with findings")
	} else {
		s.logger.Info().Msg("integrity scan completed with no findings")
	}

	return report, nil
}

func (s *Service) Repair(ctx context.Context, input RepairInput) (RepairResult, error) {
	switch input.Type {
	case FindingClosedDayStart:
		return s.repairClosedDayStart(ctx, input)
	case FindingOverlappingJobs:
		return s.repairOverlap(ctx, input)
	default:
		return RepairResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFinding, input.Type)
	}
}

// storedJob is an active job row together with its parsed start, when it parses.
type storedJob struct {
	row   models.Job
	start worktime.Cursor
}

func (s *Service) activeJobs(ctx context.Context) ([]models.Job, error) {
	var rows []models.Job
	if err := s.db.WithContext(ctx).
		Where("status <> ?", models.JobStatusCompleted).
		Order("equipment_id, start_date, hour_offset").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) scanOrphanJobs(ctx context.Context) ([]Finding, error) {
	type row struct {
		ID          string
		EquipmentID string
	}
	var rows []row
	if err := s.db.WithContext(ctx).
		Table("jobs").
		Select("jobs.id, jobs.equipment_id").
		Joins("LEFT JOIN equipment ON equipment.id = jobs.equipment_id").
		Where("equipment.id IS NULL").
		Where("jobs.status <> ?", models.JobStatusCompleted).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(rows))
	for _, r := range rows {
		findings = append(findings, Finding{
			ID:          findingID(FindingOrphanJob, r.EquipmentID, r.ID),
			Type:        FindingOrphanJob,
			Severity:    "high",
			Summary:     "Job references equipment that does not exist",
			EquipmentID: r.EquipmentID,
			ResourceID:  r.ID,
		})
	}
	return findings, nil
}

func scanInvalidPlacements(rows []models.Job) ([]storedJob, []Finding) {
	valid := make([]storedJob, 0, len(rows))
	var findings []Finding
	for _, r := range rows {
		date, err := worktime.ParseDate(r.StartDate)
		if err == nil {
			err = worktime.ValidateDuration(r.DurationHours)
		}
		start := worktime.NewCursor(date, r.HourOffset)
		if err == nil {
			err = start.Validate()
		}
		if err != nil {
			findings = append(findings, Finding{
				ID:          findingID(FindingInvalidPlacement, r.EquipmentID, r.ID),
				Type:        FindingInvalidPlacement,
				Severity:    "high",
				Summary:     "Job placement cannot be scheduled and is ignored by conflict checks",
				EquipmentID: r.EquipmentID,
				ResourceID:  r.ID,
				Details: map[string]any{
					"start_date":     r.StartDate,
					"hour_offset":    r.HourOffset,
					"duration_hours": r.DurationHours,
					"error":          err.Error(),
				},
			})
			continue
		}
		valid = append(valid, storedJob{row: r, start: start})
	}
	return valid, findings
}

func (s *Service) scanClosedDayStarts(ctx context.Context, jobs []storedJob) ([]Finding, error) {
	calc := s.detector.Calculator()

	var findings []Finding
	for _, j := range jobs {
		adjusted, _, err := calc.AdjustToWorkingTime(ctx, j.start)
		if err != nil {
			return nil, fmt.Errorf("adjust job %s: %w", j.row.ID, err)
		}
		if adjusted.Equal(j.start) {
			continue
		}
		findings = append(findings, Finding{
			ID:          findingID(FindingClosedDayStart, j.row.EquipmentID, j.row.ID),
			Type:        FindingClosedDayStart,
			Severity:    "medium",
			Summary:     "Job starts outside working time",
			EquipmentID: j.row.EquipmentID,
			ResourceID:  j.row.ID,
			Repairable:  !j.row.IsLocked,
			Details: map[string]any{
				"start":    j.start.String(),
				"snaps_to": adjusted.String(),
			},
		})
	}
	return findings, nil
}

func (s *Service) scanOverlaps(ctx context.Context, jobs []storedJob) ([]Finding, error) {
	calc := s.detector.Calculator()

	type span struct {
		job storedJob
		rng worktime.OccupiedRange
	}
	byEquipment := make(map[string][]span)
	for _, j := range jobs {
		sched, err := calc.ComputeSchedule(ctx, j.start, j.row.DurationHours)
		if err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", j.row.ID, err)
		}
		byEquipment[j.row.EquipmentID] = append(byEquipment[j.row.EquipmentID], span{job: j, rng: sched.Range()})
	}

	equipmentIDs := make([]string, 0, len(byEquipment))
	for id := range byEquipment {
		equipmentIDs = append(equipmentIDs, id)
	}
	sort.Strings(equipmentIDs)

	var findings []Finding
	for _, equipmentID := range equipmentIDs {
		spans := byEquipment[equipmentID]
		sort.SliceStable(spans, func(i, j int) bool { return spans[i].rng.Start.Before(spans[j].rng.Start) })

		for i := 1; i < len(spans); i++ {
			later := spans[i]
			for _, earlier := range spans[:i] {
				if !earlier.rng.Overlaps(later.rng) {
					continue
				}
				findings = append(findings, Finding{
					ID:          findingID(FindingOverlappingJobs, equipmentID, later.job.row.ID),
					Type:        FindingOverlappingJobs,
					Severity:    "high",
					Summary:     "Job overlaps an earlier job on the same equipment",
					EquipmentID: equipmentID,
					ResourceID:  later.job.row.ID,
					Repairable:  !later.job.row.IsLocked,
					Details: map[string]any{
						"overlaps_job": earlier.job.row.ID,
						"start":        later.job.start.String(),
					},
				})
				break
			}
		}
	}
	return findings, nil
}

func (s *Service) loadJob(ctx context.Context, id string) (*storedJob, *RepairResult, error) {
	var row models.Job
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &RepairResult{Changed: false, Message: "job not found (already removed)"}, nil
		}
		return nil, nil, err
	}
	if row.IsLocked {
		return nil, &RepairResult{Changed: false, Message: "job is locked"}, nil
	}
	date, err := worktime.ParseDate(row.StartDate)
	if err != nil {
		return nil, nil, err
	}
	return &storedJob{row: row, start: worktime.NewCursor(date, row.HourOffset)}, nil, nil
}

func (s *Service) repairClosedDayStart(ctx context.Context, input RepairInput) (RepairResult, error) {
	job, skip, err := s.loadJob(ctx, input.ResourceID)
	if err != nil || skip != nil {
		return deref(skip), err
	}

	adjusted, _, err := s.detector.Calculator().AdjustToWorkingTime(ctx, job.start)
	if err != nil {
		return RepairResult{}, err
	}
	if adjusted.Equal(job.start) {
		return RepairResult{Changed: false, Message: "job already starts in working time"}, nil
	}
	return s.move(ctx, job, adjusted, "snapped start to working time")
}

func (s *Service) repairOverlap(ctx context.Context, input RepairInput) (RepairResult, error) {
	job, skip, err := s.loadJob(ctx, input.ResourceID)
	if err != nil || skip != nil {
		return deref(skip), err
	}

	slot, err := s.detector.FindAvailableSlot(ctx, conflict.Request{
		EquipmentID:   job.row.EquipmentID,
		ExcludeJobID:  job.row.ID,
		Start:         job.start,
		DurationHours: job.row.DurationHours,
	})
	if err != nil {
		return RepairResult{}, err
	}
	if slot.Start.Equal(job.start) {
		return RepairResult{Changed: false, Message: "job no longer overlaps"}, nil
	}
	return s.move(ctx, job, slot.Start, "moved job to earliest free slot")
}

func (s *Service) move(ctx context.Context, job *storedJob, to worktime.Cursor, message string) (RepairResult, error) {
	out, err := s.rescheduler.MoveJob(ctx, job.row.ID, to)
	if err != nil {
		return RepairResult{}, err
	}
	return RepairResult{
		Changed: true,
		Message: message,
		Details: map[string]any{
			"from":  job.start.String(),
			"to":    to.String(),
			"moved": len(out.Moves),
		},
	}, nil
}

func deref(r *RepairResult) RepairResult {
	if r == nil {
		return RepairResult{}
	}
	return *r
}

func findingID(t FindingType, equipmentID, resourceID string) string {
	return fmt.Sprintf("%s|%s|%s", t, equipmentID, resourceID)
}
