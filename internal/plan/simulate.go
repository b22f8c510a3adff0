/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package plan

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/locking"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/store"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// StepResult is what one simulated step did. Err is set when the step was rejected; the
// timeline is then unchanged and the simulation goes on with the next step.
type StepResult struct {
	Step    int
	JobID   string
	Outcome cascade.Outcome
	Err     error
}

// Result is the outcome of a simulation.
type Result struct {
	Steps []StepResult
	Final []placement.JobPlacement
}

// Simulate replays the plan's steps against an in-memory copy of its jobs. Nothing is persisted.
func Simulate(ctx context.Context, p *Plan, publisher events.Publisher, logger zerolog.Logger, opts ...worktime.Option) (Result, error) {
	cal, err := p.BuildCalendar()
	if err != nil {
		return Result{}, err
	}
	jobs, err := p.Placements()
	if err != nil {
		return Result{}, err
	}

	mem := store.NewMemoryStore(jobs...)
	det := conflict.NewDetector(worktime.NewCalculator(cal, opts...), mem, logger)
	resch := cascade.NewRescheduler(det, mem, locking.NewLocalLocker(), publisher, logger)

	var res Result
	for i, step := range p.Steps {
		start, err := step.start()
		if err != nil {
			return Result{}, fmt.Errorf("step %d: %w", i+1, err)
		}

		sr := StepResult{Step: i + 1, JobID: step.Job}
		if _, err := mem.Get(ctx, step.Job); err == nil && !step.OnlyCheck {
			sr.Outcome, sr.Err = resch.MoveJob(ctx, step.Job, start)
		} else {
			sr.Outcome, sr.Err = propose(ctx, resch, mem, step, i+1, start)
			if sr.JobID == "" {
				sr.JobID = proposedID(i + 1)
			}
		}
		if sr.Err != nil {
			logger.Warn().Err(sr.Err).Int("step", sr.Step).Str("job_id", sr.JobID).Msg("simulation step rejected")
		}
		res.Steps = append(res.Steps, sr)
	}

	res.Final = mem.All()
	return res, nil
}

// propose checks a placement and, unless the step only checks, cascades and then places it.
// A step that only checks an existing job reads its equipment and duration from the job.
func propose(ctx context.Context, resch *cascade.Rescheduler, mem *store.MemoryStore, step StepSpec, n int, start worktime.Cursor) (cascade.Outcome, error) {
	req := cascade.Request{
		EquipmentID:   step.Equipment,
		JobID:         step.Job,
		Start:         start,
		DurationHours: step.DurationHours,
		DryRun:        step.OnlyCheck,
	}
	if existing, err := mem.Get(ctx, step.Job); err == nil {
		req.EquipmentID, req.DurationHours = existing.EquipmentID, existing.DurationHours
	}
	if req.JobID == "" {
		req.JobID = proposedID(n)
	}

	out, err := resch.ResolveAndCascade(ctx, req)
	if err != nil || step.OnlyCheck {
		return out, err
	}
	mem.Put(placement.JobPlacement{
		ID:            req.JobID,
		EquipmentID:   req.EquipmentID,
		Start:         start,
		DurationHours: req.DurationHours,
	})
	return out, nil
}

func proposedID(step int) string {
	return fmt.Sprintf("step-%d", step)
}
