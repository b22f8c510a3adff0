/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// ErrNoNeighbour is returned when a job has no adjacent job in the requested direction.
var ErrNoNeighbour = errors.New("no adjacent job")

// SnapToPrevious proposes a start for jobID right where the job before it on the same
// equipment finishes. Nothing is persisted.
func (r *Rescheduler) SnapToPrevious(ctx context.Context, jobID string) (worktime.Cursor, error) {
	job, prev, _, err := r.neighbours(ctx, jobID)
	if err != nil {
		return worktime.Cursor{}, err
	}
	if prev == nil {
		return worktime.Cursor{}, fmt.Errorf("%w: nothing before job %s", ErrNoNeighbour, job.ID)
	}

	finish, err := r.finish(ctx, prev.Start, prev.DurationHours)
	if err != nil {
		return worktime.Cursor{}, err
	}
	start, _, err := r.detector.Calculator().AdjustToWorkingTime(ctx, finish)
	return start, err
}

// SnapToNext proposes a start for jobID that makes it finish right where the next job on
// the same equipment starts. Nothing is persisted.
func (r *Rescheduler) SnapToNext(ctx context.Context, jobID string) (worktime.Cursor, error) {
	job, _, next, err := r.neighbours(ctx, jobID)
	if err != nil {
		return worktime.Cursor{}, err
	}
	if next == nil {
		return worktime.Cursor{}, fmt.Errorf("%w: nothing after job %s", ErrNoNeighbour, job.ID)
	}

	calc := r.detector.Calculator()
	finish, err := r.finish(ctx, job.Start, job.DurationHours)
	if err != nil {
		return worktime.Cursor{}, err
	}
	gap, err := calc.WorkHoursBetween(ctx, finish, next.Start)
	if err != nil {
		return worktime.Cursor{}, err
	}
	if gap <= worktime.OffsetEpsilon {
		return job.Start, nil
	}

	shifted, err := r.finish(ctx, job.Start, gap)
	if err != nil {
		return worktime.Cursor{}, err
	}
	start, _, err := calc.AdjustToWorkingTime(ctx, shifted)
	return start, err
}

func (r *Rescheduler) neighbours(ctx context.Context, jobID string) (placement.JobPlacement, *placement.JobPlacement, *placement.JobPlacement, error) {
	job, err := r.repo.Get(ctx, jobID)
	if err != nil {
		return placement.JobPlacement{}, nil, nil, err
	}
	others, err := r.repo.ListActiveByEquipment(ctx, job.EquipmentID, job.ID)
	if err != nil {
		return placement.JobPlacement{}, nil, nil, fmt.Errorf("list jobs on %s: %w", job.EquipmentID, err)
	}
	placement.SortByStart(others)

	var prev, next *placement.JobPlacement
	at := job.Start.Instant()
	for i := range others {
		other := &others[i]
		switch {
		case other.Start.Instant().Before(at):
			prev = other
		case other.Start.Instant().After(at) && next == nil:
			next = other
		}
	}
	return job, prev, next, nil
}
