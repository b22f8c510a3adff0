/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/telemetry"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// DefaultMaxIterations caps the candidates tried by one slot search.
const DefaultMaxIterations = 100

// Request describes a proposed placement on one equipment.
type Request struct {
	EquipmentID   string
	ExcludeJobID  string
	Start         worktime.Cursor
	DurationHours float64
}

// Validate rejects requests the calculator cannot place.
func (r Request) Validate() error {
	if strings.TrimSpace(r.EquipmentID) == "" {
		return fmt.Errorf("%w: equipment id required", worktime.ErrInvalidInput)
	}
	if err := worktime.ValidateDuration(r.DurationHours); err != nil {
		return err
	}
	return r.Start.Validate()
}

// Slot is the result of a slot search.
type Slot struct {
	Start      worktime.Cursor
	Iterations int
	// Degraded is set when the search ran out of iterations, or no working day was found
	// within the search limit, and Start is a best-effort candidate.
	Degraded bool
	// ConflictingJobs lists the jobs the search collided with, in the order met.
	ConflictingJobs []string
}

type occupied struct {
	jobID string
	rng   worktime.OccupiedRange
}

// Detector finds overlaps between a proposed placement and the jobs already on its equipment.
type Detector struct {
	calc          *worktime.Calculator
	reader        placement.Reader
	maxIterations int
	logger        zerolog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithMaxIterations overrides DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxIterations = n
		}
	}
}

// NewDetector creates a conflict detector.
func NewDetector(calc *worktime.Calculator, reader placement.Reader, logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		calc:          calc,
		reader:        reader,
		maxIterations: DefaultMaxIterations,
		logger:        logger.With().Str("component", "conflict_detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithReader returns a copy of the detector reading placements from r.
func (d *Detector) WithReader(r placement.Reader) *Detector {
	cp := *d
	cp.reader = r
	return &cp
}

// Calculator exposes the schedule calculator the detector uses.
func (d *Detector) Calculator() *worktime.Calculator {
	return d.calc
}

// FindAvailableSlot returns the earliest start at or after req.Start whose occupied range
// clears every active job on the equipment, each collision pushing the candidate to the
// colliding job's end plus worktime.BufferQuantum.
func (d *Detector) FindAvailableSlot(ctx context.Context, req Request) (Slot, error) {
	if err := req.Validate(); err != nil {
		return Slot{}, err
	}

	ctx, span := telemetry.StartSpan(ctx, "conflict.FindAvailableSlot",
		attribute.String("equipment_id", req.EquipmentID),
		attribute.Float64("duration_hours", req.DurationHours),
	)
	defer span.End()

	existing, err := d.occupiedRanges(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return Slot{}, err
	}

	slot, err := d.search(ctx, req, existing)
	if err != nil {
		telemetry.RecordError(span, err)
		return Slot{}, err
	}

	span.SetAttributes(
		attribute.Int("iterations", slot.Iterations),
		attribute.Bool("degraded", slot.Degraded),
	)
	telemetry.SlotSearchIterations.Observe(float64(slot.Iterations))
	if slot.Degraded {
		telemetry.SlotSearchDegraded.Inc()
		d.logger.Warn().
			Str("equipment_id", req.EquipmentID).
			Str("requested", req.Start.String()).
			Str("candidate", slot.Start.String()).
			Int("iterations", slot.Iterations).
			Msg("slot search exhausted, returning best-effort candidate")
	}
	return slot, nil
}

// HasConflict reports whether the requested start has to move to become valid.
func (d *Detector) HasConflict(ctx context.Context, req Request) (bool, Slot, error) {
	slot, err := d.FindAvailableSlot(ctx, req)
	if err != nil {
		return false, Slot{}, err
	}
	requested := worktime.NewCursor(req.Start.Date, req.Start.Offset)
	conflict := !slot.Start.Equal(requested)
	if conflict {
		telemetry.ConflictsDetected.WithLabelValues(req.EquipmentID).Inc()
	}
	return conflict, slot, nil
}

func (d *Detector) occupiedRanges(ctx context.Context, req Request) ([]occupied, error) {
	jobs, err := d.reader.ListActiveByEquipment(ctx, req.EquipmentID, req.ExcludeJobID)
	if err != nil {
		return nil, fmt.Errorf("list jobs on %s: %w", req.EquipmentID, err)
	}
	placement.SortByStart(jobs)

	out := make([]occupied, 0, len(jobs))
	for _, job := range jobs {
		sched, err := d.calc.ComputeSchedule(ctx, job.Start, job.DurationHours)
		if errors.Is(err, worktime.ErrInvalidInput) {
			d.logger.Warn().Err(err).Str("job_id", job.ID).Msg("skipping job with invalid placement")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("schedule job %s: %w", job.ID, err)
		}
		out = append(out, occupied{jobID: job.ID, rng: sched.Range()})
	}
	return out, nil
}

func (d *Detector) search(ctx context.Context, req Request, existing []occupied) (Slot, error) {
	var slot Slot
	candidate := req.Start

	for slot.Iterations < d.maxIterations {
		slot.Iterations++

		adjusted, degraded, err := d.calc.AdjustToWorkingTime(ctx, candidate)
		if err != nil {
			return Slot{}, err
		}
		sched, err := d.calc.ComputeSchedule(ctx, adjusted, req.DurationHours)
		if err != nil {
			return Slot{}, err
		}

		hit, found := firstOverlap(existing, sched.Range())
		if !found {
			slot.Start = adjusted
			slot.Degraded = degraded
			return slot, nil
		}

		d.logger.Debug().
			Str("equipment_id", req.EquipmentID).
			Str("candidate", adjusted.String()).
			Str("conflict_job_id", hit.jobID).
			Msg("candidate overlaps existing job")

		slot.Start = adjusted
		slot.ConflictingJobs = append(slot.ConflictingJobs, hit.jobID)
		candidate = worktime.CursorAt(hit.rng.End).Advance(worktime.BufferQuantum)
	}

	// Out of iterations: the last candidate evaluated is the best effort.
	slot.Degraded = true
	return slot, nil
}

func firstOverlap(existing []occupied, rng worktime.OccupiedRange) (occupied, bool) {
	for _, o := range existing {
		if o.rng.Overlaps(rng) {
			return o, true
		}
	}
	return occupied{}, false
}
