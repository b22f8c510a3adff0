/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/locking"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/telemetry"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

var (
	// ErrLockedPlacement is returned when a cascade would have to move a locked job.
	ErrLockedPlacement  = errors.New("locked job blocks cascade")
	// ErrEquipmentChanged is returned when a job left its equipment while a move waited for the lock.
	ErrEquipmentChanged = errors.New("job changed equipment")
)

// State traces how far a cascade run got.
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateNoConflict State = "no_conflict"
	StateCascading  State = "cascading"
	StateDone       State = "done"
)

// Request asks for a placement to be checked and, unless DryRun, for downstream jobs to make room.
type Request struct {
	EquipmentID   string
	JobID         string
	Start         worktime.Cursor
	DurationHours float64
	DryRun        bool
}

func (r Request) detection() conflict.Request {
	return conflict.Request{
		EquipmentID:   r.EquipmentID,
		ExcludeJobID:  r.JobID,
		Start:         r.Start,
		DurationHours: r.DurationHours,
	}
}

// Move records one job shifted by a cascade.
type Move struct {
	JobID  string
	From   worktime.Cursor
	To     worktime.Cursor
	Finish worktime.Cursor
}

// Outcome is the result of ResolveAndCascade and MoveJob.
type Outcome struct {
	Conflict  bool
	Available conflict.Slot
	Moves     []Move
	// StoppedAt is the first downstream job that already cleared the frontier, if any.
	StoppedAt string
	State     State
}

// Rescheduler keeps an equipment timeline free of overlaps by pushing later jobs forward.
type Rescheduler struct {
	detector  *conflict.Detector
	repo      placement.Repository
	locker    locking.Locker
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewRescheduler creates a cascade rescheduler. The detector's reader is replaced by the
// transactional view of repo while a cascade runs.
func NewRescheduler(detector *conflict.Detector, repo placement.Repository, locker locking.Locker, publisher events.Publisher, logger zerolog.Logger) *Rescheduler {
	if locker == nil {
		locker = locking.NewLocalLocker()
	}
	return &Rescheduler{
		detector:  detector,
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		logger:    logger.With().Str("component", "cascade").Logger(),
	}
}

// ResolveAndCascade checks req against the equipment timeline. A dry run only reports the
// conflict. Otherwise, when the requested placement overlaps, every downstream job that
// starts before the new frontier is moved to it, the frontier advancing to each moved
// job's finish plus worktime.BufferQuantum, until a job already clears it. All moves are
// persisted in one transaction; the initiating job itself is not written.
func (r *Rescheduler) ResolveAndCascade(ctx context.Context, req Request) (Outcome, error) {
	if err := req.detection().Validate(); err != nil {
		return Outcome{}, err
	}

	if req.DryRun {
		hasConflict, slot, err := r.detector.HasConflict(ctx, req.detection())
		if err != nil {
			return Outcome{}, err
		}
		telemetry.CascadeRuns.WithLabelValues("dry_run").Inc()
		out := Outcome{Conflict: hasConflict, Available: slot, State: StateDone}
		if !hasConflict {
			out.State = StateNoConflict
		}
		return out, nil
	}

	return r.run(ctx, req, "cascade.ResolveAndCascade", func(ctx context.Context, tx placement.Repository) (Outcome, error) {
		return r.resolve(ctx, tx, req)
	})
}

// MoveJob places an existing job at start and cascades the jobs after it, all in one transaction.
// A start outside working time is stored snapped to the next working time. The job is read
// again once the equipment lock is held, so its lock flag and origin are current.
func (r *Rescheduler) MoveJob(ctx context.Context, jobID string, start worktime.Cursor) (Outcome, error) {
	if err := start.Validate(); err != nil {
		return Outcome{}, err
	}
	job, err := r.repo.Get(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}

	req := Request{EquipmentID: job.EquipmentID, JobID: job.ID, Start: start, DurationHours: job.DurationHours}
	return r.run(ctx, req, "cascade.MoveJob", func(ctx context.Context, tx placement.Repository) (Outcome, error) {
		current, err := tx.Get(ctx, jobID)
		if err != nil {
			return Outcome{}, err
		}
		if current.EquipmentID != req.EquipmentID {
			return Outcome{}, fmt.Errorf("%w: job %s now on %s", ErrEquipmentChanged, jobID, current.EquipmentID)
		}
		if current.Locked {
			return Outcome{}, fmt.Errorf("%w: job %s", ErrLockedPlacement, jobID)
		}

		placed, _, err := r.detector.Calculator().AdjustToWorkingTime(ctx, start)
		if err != nil {
			return Outcome{}, err
		}
		out, err := r.resolve(ctx, tx, Request{
			EquipmentID:   current.EquipmentID,
			JobID:         current.ID,
			Start:         placed,
			DurationHours: current.DurationHours,
		})
		if err != nil {
			return Outcome{}, err
		}
		if err := tx.UpdatePlacement(ctx, current.ID, placed); err != nil {
			return Outcome{}, err
		}
		finish, err := r.finish(ctx, placed, current.DurationHours)
		if err != nil {
			return Outcome{}, err
		}
		out.Moves = append([]Move{{JobID: current.ID, From: current.Start, To: placed, Finish: finish}}, out.Moves...)
		return out, nil
	})
}

type txFunc func(ctx context.Context, tx placement.Repository) (Outcome, error)

func (r *Rescheduler) run(ctx context.Context, req Request, spanName string, fn txFunc) (Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName,
		attribute.String("equipment_id", req.EquipmentID),
		attribute.String("job_id", req.JobID),
	)
	defer span.End()

	held, unlock, err := r.locker.Lock(ctx, req.EquipmentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return Outcome{}, fmt.Errorf("lock equipment %s: %w", req.EquipmentID, err)
	}
	defer unlock()

	started := time.Now()
	var out Outcome
	err = r.repo.InTransaction(held, func(ctx context.Context, tx placement.Repository) error {
		var err error
		if out, err = fn(ctx, tx); err != nil {
			return err
		}
		// Canceled with ErrLeaseLost when the equipment lock expired mid-transaction.
		if ctx.Err() != nil {
			return fmt.Errorf("equipment %s: %w", req.EquipmentID, context.Cause(ctx))
		}
		return nil
	})
	telemetry.CascadeDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		telemetry.CascadeRuns.WithLabelValues("rolled_back").Inc()
		telemetry.RecordError(span, err)
		r.logger.Warn().Err(err).
			Str("equipment_id", req.EquipmentID).
			Str("job_id", req.JobID).
			Msg("cascade rolled back")
		return Outcome{}, err
	}

	span.SetAttributes(attribute.Int("moved", len(out.Moves)), attribute.Bool("conflict", out.Conflict))
	r.publish(req, out)
	return out, nil
}

func (r *Rescheduler) resolve(ctx context.Context, tx placement.Repository, req Request) (Outcome, error) {
	out := Outcome{State: StateDetecting}

	hasConflict, slot, err := r.detector.WithReader(tx).HasConflict(ctx, req.detection())
	if err != nil {
		return Outcome{}, err
	}
	out.Conflict, out.Available = hasConflict, slot
	if !hasConflict {
		out.State = StateNoConflict
		telemetry.CascadeRuns.WithLabelValues("no_conflict").Inc()
		return out, nil
	}

	out.State = StateCascading
	moves, stoppedAt, err := r.shiftDownstream(ctx, tx, req)
	if err != nil {
		return Outcome{}, err
	}
	out.Moves, out.StoppedAt, out.State = moves, stoppedAt, StateDone

	telemetry.CascadeRuns.WithLabelValues("applied").Inc()
	telemetry.CascadeMovedJobs.Observe(float64(len(moves)))
	return out, nil
}

func (r *Rescheduler) shiftDownstream(ctx context.Context, tx placement.Repository, req Request) ([]Move, string, error) {
	calc := r.detector.Calculator()

	frontier, err := r.nextStart(ctx, req.Start, req.DurationHours)
	if err != nil {
		return nil, "", err
	}

	jobs, err := tx.ListActiveByEquipment(ctx, req.EquipmentID, req.JobID)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs on %s: %w", req.EquipmentID, err)
	}
	placement.SortByStart(jobs)

	threshold := worktime.NewCursor(req.Start.Date, req.Start.Offset).Instant()
	var moves []Move
	for _, job := range jobs {
		sched, err := calc.ComputeSchedule(ctx, job.Start, job.DurationHours)
		if errors.Is(err, worktime.ErrInvalidInput) {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("skipping job with invalid placement")
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("schedule job %s: %w", job.ID, err)
		}
		if !sched.Range().End.After(threshold) {
			continue
		}

		if !job.Start.Instant().Before(frontier.Instant()) {
			return moves, job.ID, nil
		}
		if job.Locked {
			return nil, "", fmt.Errorf("%w: job %s", ErrLockedPlacement, job.ID)
		}

		if err := tx.UpdatePlacement(ctx, job.ID, frontier); err != nil {
			return nil, "", err
		}
		finish, err := r.finish(ctx, frontier, job.DurationHours)
		if err != nil {
			return nil, "", err
		}
		moves = append(moves, Move{JobID: job.ID, From: job.Start, To: frontier, Finish: finish})

		r.logger.Debug().
			Str("job_id", job.ID).
			Str("from", job.Start.String()).
			Str("to", frontier.String()).
			Msg("job shifted")

		frontier, err = r.nextStart(ctx, frontier, job.DurationHours)
		if err != nil {
			return nil, "", err
		}
	}
	return moves, "", nil
}

// nextStart is the first valid start after a job placed at start finishes, one buffer later.
func (r *Rescheduler) nextStart(ctx context.Context, start worktime.Cursor, duration float64) (worktime.Cursor, error) {
	finish, err := r.finish(ctx, start, duration)
	if err != nil {
		return worktime.Cursor{}, err
	}
	next, _, err := r.detector.Calculator().AdjustToWorkingTime(ctx, finish.Advance(worktime.BufferQuantum))
	return next, err
}

func (r *Rescheduler) finish(ctx context.Context, start worktime.Cursor, duration float64) (worktime.Cursor, error) {
	sched, err := r.detector.Calculator().ComputeSchedule(ctx, start, duration)
	if err != nil {
		return worktime.Cursor{}, err
	}
	return sched.Finish(), nil
}

func (r *Rescheduler) publish(req Request, out Outcome) {
	if r.publisher == nil {
		return
	}
	if out.Conflict {
		r.publisher.Publish(events.EventConflictDetected, events.Payload{
			"equipment_id":     req.EquipmentID,
			"job_id":           req.JobID,
			"requested":        req.Start.String(),
			"available":        out.Available.Start.String(),
			"degraded":         out.Available.Degraded,
			"conflicting_jobs": out.Available.ConflictingJobs,
		})
	}
	for _, m := range out.Moves {
		r.publisher.Publish(events.EventPlacementMoved, events.Payload{
			"equipment_id": req.EquipmentID,
			"job_id":       m.JobID,
			"start_date":   worktime.FormatDate(m.To.Date),
			"hour_offset":  m.To.Offset,
			"from":         m.From.String(),
			"finish":       m.Finish.String(),
		})
	}
	if len(out.Moves) > 0 {
		r.publisher.Publish(events.EventCascadeCompleted, events.Payload{
			"equipment_id": req.EquipmentID,
			"job_id":       req.JobID,
			"moved":        len(out.Moves),
			"stopped_at":   out.StoppedAt,
		})
	}
}
