/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists jobs and calendar days and exposes them to the scheduling engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/shopfloor/internal/models"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// GormStore implements worktime.CalendarSource and placement.Repository on a gorm database.
type GormStore struct {
	db     *gorm.DB
	inTx   bool
	logger zerolog.Logger
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB, logger zerolog.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// DB returns the underlying handle.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// CapacityForDate implements worktime.CalendarSource.
func (s *GormStore) CapacityForDate(ctx context.Context, date time.Time) (int, error) {
	var day models.CalendarDay
	err := s.conn(ctx).Where("date = ?", worktime.FormatDate(date)).Take(&day).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return worktime.DefaultCapacity, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load calendar day: %w", err)
	}
	return day.WorkHours, nil
}

// SetCapacity upserts the work hours of a date.
func (s *GormStore) SetCapacity(ctx context.Context, date time.Time, hours int) error {
	if !worktime.ValidCapacity(hours) {
		return fmt.Errorf("%w: %d hours", worktime.ErrInvalidCapacity, hours)
	}
	day := models.CalendarDay{Date: worktime.FormatDate(date), WorkHours: hours, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"work_hours", "updated_at"}),
	}).Create(&day).Error
	if err != nil {
		return fmt.Errorf("save calendar day: %w", err)
	}
	return nil
}

// CloseWeekday sets every given weekday of a month to zero capacity and returns the dates touched.
func (s *GormStore) CloseWeekday(ctx context.Context, year int, month time.Month, weekday time.Weekday) ([]time.Time, error) {
	var closed []time.Time
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &GormStore{db: tx, inTx: true, logger: s.logger}
		for d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC); d.Month() == month; d = d.AddDate(0, 0, 1) {
			if d.Weekday() != weekday {
				continue
			}
			if err := txStore.SetCapacity(ctx, d, 0); err != nil {
				return err
			}
			closed = append(closed, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// CalendarRange lists stored overrides between from and to inclusive.
func (s *GormStore) CalendarRange(ctx context.Context, from, to time.Time) ([]models.CalendarDay, error) {
	var days []models.CalendarDay
	err := s.conn(ctx).
		Where("date >= ? AND date <= ?", worktime.FormatDate(from), worktime.FormatDate(to)).
		Order("date").
		Find(&days).Error
	if err != nil {
		return nil, fmt.Errorf("list calendar: %w", err)
	}
	return days, nil
}

// ListActiveByEquipment implements placement.Reader. Inside a transaction on a backend that
// supports it the rows are locked until commit.
func (s *GormStore) ListActiveByEquipment(ctx context.Context, equipmentID, excludeID string) ([]placement.JobPlacement, error) {
	q := s.db.WithContext(ctx).
		Where("equipment_id = ? AND status IN ?", equipmentID, []models.JobStatus{models.JobStatusPlanned, models.JobStatusStarted})
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if s.inTx && s.db.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var jobs []models.Job
	if err := q.Order("start_date, hour_offset, id").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	out := make([]placement.JobPlacement, 0, len(jobs))
	for _, job := range jobs {
		p, err := toPlacement(job)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("skipping job with unparseable start date")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get implements placement.Reader.
func (s *GormStore) Get(ctx context.Context, id string) (placement.JobPlacement, error) {
	var job models.Job
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return placement.JobPlacement{}, placement.ErrNotFound
	}
	if err != nil {
		return placement.JobPlacement{}, fmt.Errorf("load job: %w", err)
	}
	return toPlacement(job)
}

// UpdatePlacement implements placement.Repository.
func (s *GormStore) UpdatePlacement(ctx context.Context, jobID string, start worktime.Cursor) error {
	res := s.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"start_date":  worktime.FormatDate(start.Date),
		"hour_offset": start.Offset,
		"updated_at":  time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("update job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update job %s: %w", jobID, placement.ErrNotFound)
	}
	return nil
}

// InTransaction implements placement.Repository. Nested calls reuse the open transaction.
// Calendar reads made with the context handed to fn go through the transaction too, so a
// pool of one connection (sqlite) cannot deadlock on them.
func (s *GormStore) InTransaction(ctx context.Context, fn func(ctx context.Context, tx placement.Repository) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx), &GormStore{db: tx, inTx: true, logger: s.logger})
	})
}

type txKey struct{}

// conn returns the transaction carried by ctx, if any, or the store's own handle.
func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && !s.inTx {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// CreateJob inserts a job row.
func (s *GormStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status == "" {
		job.Status = models.JobStatusPlanned
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateEquipment inserts an equipment row.
func (s *GormStore) CreateEquipment(ctx context.Context, eq *models.Equipment) error {
	if err := s.db.WithContext(ctx).Create(eq).Error; err != nil {
		return fmt.Errorf("create equipment: %w", err)
	}
	return nil
}

func toPlacement(job models.Job) (placement.JobPlacement, error) {
	date, err := worktime.ParseDate(job.StartDate)
	if err != nil {
		return placement.JobPlacement{}, err
	}
	return placement.JobPlacement{
		ID:            job.ID,
		EquipmentID:   job.EquipmentID,
		Start:         worktime.NewCursor(date, job.HourOffset),
		DurationHours: job.DurationHours,
		Status:        placement.Status(job.Status),
		Locked:        job.IsLocked,
	}, nil
}
