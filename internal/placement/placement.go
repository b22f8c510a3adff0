/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package placement defines where jobs sit on an equipment timeline and the
// repository contracts the scheduling engine reads and writes them through.
package placement

import (
	"context"
	"errors"
	"sort"

	"github.com/friendsincode/shopfloor/internal/worktime"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

// IsActive reports whether jobs in this state still occupy their equipment.
func (s Status) IsActive() bool {
	return s == StatusPlanned || s == StatusStarted
}

// ActiveStatuses lists the states that take part in conflict checks.
var ActiveStatuses = []Status{StatusPlanned, StatusStarted}

// JobPlacement is a job's position on one equipment timeline.
type JobPlacement struct {
	ID            string
	EquipmentID   string
	Start         worktime.Cursor
	DurationHours float64
	Status        Status
	Locked        bool
}

// Reader lists placements.
type Reader interface {
	// ListActiveByEquipment returns planned and started jobs on equipmentID ordered by
	// (start date, hour offset). A non-empty excludeID is left out.
	ListActiveByEquipment(ctx context.Context, equipmentID, excludeID string) ([]JobPlacement, error)
	Get(ctx context.Context, id string) (JobPlacement, error)
}

// Repository is a Reader that can move jobs atomically.
type Repository interface {
	Reader
	UpdatePlacement(ctx context.Context, jobID string, start worktime.Cursor) error
	// InTransaction runs fn against a transactional view. Any error returned by fn
	// discards every UpdatePlacement made through that view. fn receives a context that
	// reads made on its behalf must use.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// SortByStart orders placements by start date then hour offset, ties broken by id.
func SortByStart(jobs []JobPlacement) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i].Start, jobs[j].Start
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return jobs[i].ID < jobs[j].ID
	})
}
