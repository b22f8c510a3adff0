/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/shopfloor/internal/conflict"
	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/locking"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/store"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

func at(t *testing.T, day string, offset float64) worktime.Cursor {
	t.Helper()
	d, err := worktime.ParseDate(day)
	require.NoError(t, err)
	return worktime.NewCursor(d, offset)
}

func job(id string, start worktime.Cursor, hours float64) placement.JobPlacement {
	return placement.JobPlacement{ID: id, EquipmentID: "E1", Start: start, DurationHours: hours}
}

type fixture struct {
	calc  *worktime.Calculator
	mem   *store.MemoryStore
	bus   *events.Bus
	resch *Rescheduler
}

func newFixture(cal worktime.CalendarSource, repo func(*store.MemoryStore) placement.Repository, jobs ...placement.JobPlacement) fixture {
	calc := worktime.NewCalculator(cal)
	mem := store.NewMemoryStore(jobs...)
	var r placement.Repository = mem
	if repo != nil {
		r = repo(mem)
	}
	bus := events.NewBus()
	det := conflict.NewDetector(calc, r, zerolog.Nop())
	return fixture{
		calc:  calc,
		mem:   mem,
		bus:   bus,
		resch: NewRescheduler(det, r, locking.NewLocalLocker(), bus, zerolog.Nop()),
	}
}

func (f fixture) start(t *testing.T, id string) worktime.Cursor {
	t.Helper()
	j, err := f.mem.Get(context.Background(), id)
	require.NoError(t, err)
	return j.Start
}

// assertNoOverlap checks every pair of active jobs on E1.
func (f fixture) assertNoOverlap(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	jobs, err := f.mem.ListActiveByEquipment(ctx, "E1", "")
	require.NoError(t, err)

	ranges := make([]worktime.OccupiedRange, len(jobs))
	for i, j := range jobs {
		sched, err := f.calc.ComputeSchedule(ctx, j.Start, j.DurationHours)
		require.NoError(t, err)
		ranges[i] = sched.Range()
	}
	for i := range ranges {
		for k := i + 1; k < len(ranges); k++ {
			assert.False(t, ranges[i].Overlaps(ranges[k]), "%s overlaps %s", jobs[i].ID, jobs[k].ID)
		}
	}
}

func chain(t *testing.T) []placement.JobPlacement {
	return []placement.JobPlacement{
		job("J1", at(t, "2024-01-01", 0), 8),
		job("J2", at(t, "2024-01-02", 0), 8),
		job("J3", at(t, "2024-01-03", 0), 8),
		job("J4", at(t, "2024-01-10", 0), 8),
	}
}

func TestMoveJobCascadesChain(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil, chain(t)...)
	moved := f.bus.Subscribe(events.EventPlacementMoved)
	done := f.bus.Subscribe(events.EventCascadeCompleted)

	out, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 4))
	require.NoError(t, err)

	assert.True(t, out.Conflict)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, "J4", out.StoppedAt)
	require.Len(t, out.Moves, 3)
	assert.Equal(t, []string{"J1", "J2", "J3"}, []string{out.Moves[0].JobID, out.Moves[1].JobID, out.Moves[2].JobID})

	assert.True(t, f.start(t, "J1").Equal(at(t, "2024-01-01", 4)))
	assert.True(t, f.start(t, "J2").Equal(at(t, "2024-01-02", 4.25)), "J2 at %s", f.start(t, "J2"))
	assert.True(t, f.start(t, "J3").Equal(at(t, "2024-01-03", 4.5)), "J3 at %s", f.start(t, "J3"))
	assert.True(t, f.start(t, "J4").Equal(at(t, "2024-01-10", 0)), "J4 must not move")
	assert.True(t, out.Moves[2].Finish.Equal(at(t, "2024-01-04", 4.5)))
	f.assertNoOverlap(t)

	assert.Len(t, moved, 3)
	assert.Len(t, done, 1)
}

func TestResolveAndCascadeLeavesInitiatingJobToCaller(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil, chain(t)...)

	out, err := f.resch.ResolveAndCascade(context.Background(), Request{
		EquipmentID:   "E1",
		JobID:         "J1",
		Start:         at(t, "2024-01-01", 4),
		DurationHours: 8,
	})
	require.NoError(t, err)

	assert.True(t, out.Conflict)
	require.Len(t, out.Moves, 2)
	assert.True(t, f.start(t, "J1").Equal(at(t, "2024-01-01", 0)), "initiating job is not written")
	assert.True(t, f.start(t, "J2").Equal(at(t, "2024-01-02", 4.25)))
}

func TestResolveAndCascadeNewJobPushesOverlappedJob(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil, job("A", at(t, "2024-01-01", 0), 8))

	out, err := f.resch.ResolveAndCascade(context.Background(), Request{
		EquipmentID:   "E1",
		Start:         at(t, "2024-01-01", 0),
		DurationHours: 4,
	})
	require.NoError(t, err)

	assert.True(t, out.Conflict)
	assert.True(t, out.Available.Start.Equal(at(t, "2024-01-02", 0)))
	require.Len(t, out.Moves, 1)
	assert.True(t, f.start(t, "A").Equal(at(t, "2024-01-01", 4.25)))
}

func TestResolveAndCascadeDryRunDoesNotMutate(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil, chain(t)...)
	before := f.mem.All()

	out, err := f.resch.ResolveAndCascade(context.Background(), Request{
		EquipmentID:   "E1",
		JobID:         "J1",
		Start:         at(t, "2024-01-01", 4),
		DurationHours: 8,
		DryRun:        true,
	})
	require.NoError(t, err)

	assert.True(t, out.Conflict)
	assert.Empty(t, out.Moves)
	assert.True(t, out.Available.Start.Equal(at(t, "2024-01-04", 0)), "got %s", out.Available.Start)
	assert.Equal(t, before, f.mem.All())
}

func TestResolveAndCascadeNoConflict(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil, chain(t)...)

	out, err := f.resch.ResolveAndCascade(context.Background(), Request{
		EquipmentID:   "E1",
		Start:         at(t, "2024-01-05", 0),
		DurationHours: 8,
	})
	require.NoError(t, err)

	assert.False(t, out.Conflict)
	assert.Equal(t, StateNoConflict, out.State)
	assert.Empty(t, out.Moves)
}

func TestCascadeStopsAtFirstClearJob(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil,
		job("J1", at(t, "2024-01-01", 0), 4),
		job("J2", at(t, "2024-01-01", 4), 1.5),
		job("J3", at(t, "2024-01-02", 0), 8),
	)

	out, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 2))
	require.NoError(t, err)

	require.Len(t, out.Moves, 2)
	assert.Equal(t, "J3", out.StoppedAt)
	assert.True(t, f.start(t, "J2").Equal(at(t, "2024-01-01", 6.25)))
	assert.True(t, f.start(t, "J3").Equal(at(t, "2024-01-02", 0)))
	f.assertNoOverlap(t)
}

func TestCascadeRespectsClosedDays(t *testing.T) {
	cal := worktime.Weekly(worktime.NewStaticCalendar(), time.Saturday, time.Sunday)
	f := newFixture(cal, nil,
		job("J1", at(t, "2024-01-04", 0), 8),
		job("J2", at(t, "2024-01-05", 0), 8),
		job("J3", at(t, "2024-01-08", 0), 8),
	)

	_, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-04", 6))
	require.NoError(t, err)

	assert.True(t, f.start(t, "J2").Equal(at(t, "2024-01-05", 6.25)), "J2 at %s", f.start(t, "J2"))
	assert.True(t, f.start(t, "J3").Equal(at(t, "2024-01-08", 6.5)), "J3 at %s", f.start(t, "J3"))
	f.assertNoOverlap(t)
}

func TestCascadeLockedJobRollsBack(t *testing.T) {
	jobs := chain(t)
	jobs[2].Locked = true
	f := newFixture(worktime.NewStaticCalendar(), nil, jobs...)
	before := f.mem.All()

	_, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 4))
	require.ErrorIs(t, err, ErrLockedPlacement)
	assert.Equal(t, before, f.mem.All())
}

type failingRepo struct {
	placement.Repository
	failAfter int
	calls     *int
}

var errDiskFull = errors.New("disk full")

func (f failingRepo) UpdatePlacement(ctx context.Context, id string, start worktime.Cursor) error {
	*f.calls++
	if *f.calls > f.failAfter {
		return errDiskFull
	}
	return f.Repository.UpdatePlacement(ctx, id, start)
}

func (f failingRepo) InTransaction(ctx context.Context, fn func(context.Context, placement.Repository) error) error {
	return f.Repository.InTransaction(ctx, func(ctx context.Context, tx placement.Repository) error {
		return fn(ctx, failingRepo{Repository: tx, failAfter: f.failAfter, calls: f.calls})
	})
}

func TestCascadePersistenceFailureRollsBack(t *testing.T) {
	calls := 0
	f := newFixture(worktime.NewStaticCalendar(), func(m *store.MemoryStore) placement.Repository {
		return failingRepo{Repository: m, failAfter: 1, calls: &calls}
	}, chain(t)...)
	before := f.mem.All()
	moved := f.bus.Subscribe(events.EventPlacementMoved)

	_, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 4))
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, before, f.mem.All())
	assert.Empty(t, moved, "no events for a rolled back cascade")
}

func TestMoveJobRejectsLockedInitiator(t *testing.T) {
	jobs := chain(t)
	jobs[0].Locked = true
	f := newFixture(worktime.NewStaticCalendar(), nil, jobs...)

	_, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 4))
	assert.ErrorIs(t, err, ErrLockedPlacement)

	_, err = f.resch.MoveJob(context.Background(), "missing", at(t, "2024-01-01", 4))
	assert.ErrorIs(t, err, placement.ErrNotFound)
}

// hookLocker runs beforeAcquire once ahead of taking the lock, and can hand out a lock
// context whose lease is already gone.
type hookLocker struct {
	locking.Locker
	beforeAcquire func()
	loseLease     bool
}

func (h *hookLocker) Lock(ctx context.Context, equipmentID string) (context.Context, locking.Unlock, error) {
	if h.beforeAcquire != nil {
		h.beforeAcquire()
		h.beforeAcquire = nil
	}
	held, unlock, err := h.Locker.Lock(ctx, equipmentID)
	if err != nil || !h.loseLease {
		return held, unlock, err
	}
	lost, cancel := context.WithCancelCause(held)
	cancel(locking.ErrLeaseLost)
	return lost, unlock, nil
}

func newHookedFixture(cal worktime.CalendarSource, hook *hookLocker, jobs ...placement.JobPlacement) fixture {
	f := newFixture(cal, nil, jobs...)
	hook.Locker = locking.NewLocalLocker()
	det := conflict.NewDetector(f.calc, f.mem, zerolog.Nop())
	f.resch = NewRescheduler(det, f.mem, hook, f.bus, zerolog.Nop())
	return f
}

// otherInstance is a second rescheduler over the same store, as another request would be.
func (f fixture) otherInstance() *Rescheduler {
	det := conflict.NewDetector(f.calc, f.mem, zerolog.Nop())
	return NewRescheduler(det, f.mem, locking.NewLocalLocker(), nil, zerolog.Nop())
}

func TestMoveJobRechecksLockUnderEquipmentLock(t *testing.T) {
	hook := &hookLocker{}
	f := newHookedFixture(worktime.NewStaticCalendar(), hook, chain(t)...)
	ctx := context.Background()

	hook.beforeAcquire = func() {
		_, err := f.otherInstance().MoveJob(ctx, "J1", at(t, "2024-01-01", 4))
		require.NoError(t, err)
		j2, err := f.mem.Get(ctx, "J2")
		require.NoError(t, err)
		j2.Locked = true
		f.mem.Put(j2)
	}

	_, err := f.resch.MoveJob(ctx, "J2", at(t, "2024-01-05", 0))
	require.ErrorIs(t, err, ErrLockedPlacement)
	assert.True(t, f.start(t, "J2").Equal(at(t, "2024-01-02", 4.25)), "locked job moved to %s", f.start(t, "J2"))
}

func TestMoveJobRecordsOriginReadUnderEquipmentLock(t *testing.T) {
	hook := &hookLocker{}
	f := newHookedFixture(worktime.NewStaticCalendar(), hook, chain(t)...)
	ctx := context.Background()
	moved := f.bus.Subscribe(events.EventPlacementMoved)

	hook.beforeAcquire = func() {
		_, err := f.otherInstance().MoveJob(ctx, "J1", at(t, "2024-01-01", 4))
		require.NoError(t, err)
	}

	out, err := f.resch.MoveJob(ctx, "J2", at(t, "2024-01-05", 0))
	require.NoError(t, err)
	require.NotEmpty(t, out.Moves)
	assert.True(t, out.Moves[0].From.Equal(at(t, "2024-01-02", 4.25)), "from %s", out.Moves[0].From)

	evt := <-moved
	assert.Equal(t, "2024-01-02+4.25h", evt["from"])
}

func TestMoveJobStoresStartSnappedToWorkingTime(t *testing.T) {
	cal := worktime.Weekly(worktime.NewStaticCalendar(), time.Saturday, time.Sunday)

	tests := []struct {
		name string
		to   worktime.Cursor
		want worktime.Cursor
	}{
		{"closed day", at(t, "2024-01-06", 2), at(t, "2024-01-08", 0)},
		{"past day capacity", at(t, "2024-01-03", 8), at(t, "2024-01-04", 0)},
		{"inside working time", at(t, "2024-01-03", 2), at(t, "2024-01-03", 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(cal, nil, job("J1", at(t, "2024-01-02", 0), 4), job("J2", at(t, "2024-01-15", 0), 4))

			out, err := f.resch.MoveJob(context.Background(), "J1", tt.to)
			require.NoError(t, err)

			assert.True(t, f.start(t, "J1").Equal(tt.want), "stored %s", f.start(t, "J1"))
			require.NotEmpty(t, out.Moves)
			assert.True(t, out.Moves[0].To.Equal(tt.want), "reported %s", out.Moves[0].To)

			adjusted, _, err := f.calc.AdjustToWorkingTime(context.Background(), f.start(t, "J1"))
			require.NoError(t, err)
			assert.True(t, adjusted.Equal(f.start(t, "J1")), "stored start is not on working time")
		})
	}
}

func TestCascadeRollsBackWhenLeaseLost(t *testing.T) {
	hook := &hookLocker{loseLease: true}
	f := newHookedFixture(worktime.NewStaticCalendar(), hook, chain(t)...)
	before := f.mem.All()
	moved := f.bus.Subscribe(events.EventPlacementMoved)

	_, err := f.resch.MoveJob(context.Background(), "J1", at(t, "2024-01-01", 4))
	require.ErrorIs(t, err, locking.ErrLeaseLost)

	assert.Equal(t, before, f.mem.All())
	assert.Empty(t, moved)
}

func TestResolveAndCascadeRejectsInvalidInput(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil)

	_, err := f.resch.ResolveAndCascade(context.Background(), Request{EquipmentID: "E1", Start: at(t, "2024-01-01", 0)})
	assert.ErrorIs(t, err, worktime.ErrInvalidInput)
}

func TestSnapToNeighbours(t *testing.T) {
	f := newFixture(worktime.NewStaticCalendar(), nil,
		job("J1", at(t, "2024-01-01", 0), 4),
		job("J2", at(t, "2024-01-03", 2), 4),
	)
	ctx := context.Background()

	prev, err := f.resch.SnapToPrevious(ctx, "J2")
	require.NoError(t, err)
	assert.True(t, prev.Equal(at(t, "2024-01-01", 4)), "got %s", prev)

	next, err := f.resch.SnapToNext(ctx, "J1")
	require.NoError(t, err)
	assert.True(t, next.Equal(at(t, "2024-01-02", 6)), "got %s", next)

	_, err = f.resch.SnapToPrevious(ctx, "J1")
	assert.ErrorIs(t, err, ErrNoNeighbour)
	_, err = f.resch.SnapToNext(ctx, "J2")
	assert.ErrorIs(t, err, ErrNoNeighbour)

	assert.True(t, f.start(t, "J1").Equal(at(t, "2024-01-01", 0)), "snapping only proposes")
}
