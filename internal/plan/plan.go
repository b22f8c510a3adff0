/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package plan reads YAML production plans used to seed a database or to simulate moves
// without touching one.
package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/shopfloor/internal/models"
	"github.com/friendsincode/shopfloor/internal/placement"
	"github.com/friendsincode/shopfloor/internal/recurrence"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// Plan is the YAML document.
type Plan struct {
	Calendar  CalendarSpec    `yaml:"calendar"`
	Equipment []EquipmentSpec `yaml:"equipment"`
	Jobs      []JobSpec       `yaml:"jobs"`
	Steps     []StepSpec      `yaml:"steps"`
}

// CalendarSpec lists closed weekdays, RRULE closures and per-date capacity overrides.
type CalendarSpec struct {
	ClosedWeekdays []string       `yaml:"closed_weekdays"`
	Closures       []string       `yaml:"closures"`
	Days           map[string]int `yaml:"days"`
}

// EquipmentSpec declares one machine.
type EquipmentSpec struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// JobSpec places one job.
type JobSpec struct {
	ID            string  `yaml:"id"`
	Equipment     string  `yaml:"equipment"`
	StartDate     string  `yaml:"start_date"`
	HourOffset    float64 `yaml:"hour_offset"`
	DurationHours float64 `yaml:"duration_hours"`
	Status        string  `yaml:"status"`
	Locked        bool    `yaml:"locked"`
}

// StepSpec is one simulated action. A step naming a known job moves it; any other step
// proposes a new job of DurationHours on Equipment.
type StepSpec struct {
	Job           string  `yaml:"job"`
	Equipment     string  `yaml:"equipment"`
	StartDate     string  `yaml:"start_date"`
	HourOffset    float64 `yaml:"hour_offset"`
	DurationHours float64 `yaml:"duration_hours"`
	OnlyCheck     bool    `yaml:"only_check"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a plan.
func Parse(r io.Reader) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks references, dates and capacities.
func (p *Plan) Validate() error {
	if _, err := p.closedWeekdays(); err != nil {
		return err
	}
	for _, c := range p.Calendar.Closures {
		if _, err := recurrence.Parse(c); err != nil {
			return err
		}
	}
	for date, hours := range p.Calendar.Days {
		if _, err := worktime.ParseDate(date); err != nil {
			return fmt.Errorf("calendar day %q: %w", date, err)
		}
		if !worktime.ValidCapacity(hours) {
			return fmt.Errorf("calendar day %s: %w: %d hours", date, worktime.ErrInvalidCapacity, hours)
		}
	}

	equipment := make(map[string]bool, len(p.Equipment))
	for _, eq := range p.Equipment {
		if eq.ID == "" {
			return fmt.Errorf("%w: equipment without id", worktime.ErrInvalidInput)
		}
		equipment[eq.ID] = true
	}

	jobs := make(map[string]bool, len(p.Jobs))
	for _, job := range p.Jobs {
		if job.ID == "" {
			return fmt.Errorf("%w: job without id", worktime.ErrInvalidInput)
		}
		if jobs[job.ID] {
			return fmt.Errorf("%w: duplicate job %s", worktime.ErrInvalidInput, job.ID)
		}
		jobs[job.ID] = true
		if !equipment[job.Equipment] {
			return fmt.Errorf("%w: job %s references unknown equipment %q", worktime.ErrInvalidInput, job.ID, job.Equipment)
		}
		if _, err := job.placement(); err != nil {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
	}

	for i, step := range p.Steps {
		if _, err := step.start(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if jobs[step.Job] {
			continue
		}
		if !equipment[step.Equipment] {
			return fmt.Errorf("%w: step %d references unknown equipment %q", worktime.ErrInvalidInput, i+1, step.Equipment)
		}
		if err := worktime.ValidateDuration(step.DurationHours); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// BuildCalendar builds an in-memory calendar from the plan.
func (p *Plan) BuildCalendar() (worktime.CalendarSource, error) {
	cal := worktime.NewStaticCalendar()
	for date, hours := range p.Calendar.Days {
		d, err := worktime.ParseDate(date)
		if err != nil {
			return nil, err
		}
		if err := cal.Set(d, hours); err != nil {
			return nil, err
		}
	}
	closed, err := p.closedWeekdays()
	if err != nil {
		return nil, err
	}

	var src worktime.CalendarSource = cal
	if len(closed) > 0 {
		src = worktime.Weekly(src, closed...)
	}
	if len(p.Calendar.Closures) > 0 {
		rules := make([]*rrule.RRule, 0, len(p.Calendar.Closures))
		for _, c := range p.Calendar.Closures {
			rr, err := recurrence.Parse(c)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rr)
		}
		src = recurrence.Closed(src, rules...)
	}
	return src, nil
}

// Placements returns the plan's jobs as engine placements.
func (p *Plan) Placements() ([]placement.JobPlacement, error) {
	out := make([]placement.JobPlacement, 0, len(p.Jobs))
	for _, job := range p.Jobs {
		jp, err := job.placement()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.ID, err)
		}
		out = append(out, jp)
	}
	return out, nil
}

func (p *Plan) closedWeekdays() ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(p.Calendar.ClosedWeekdays))
	for _, name := range p.Calendar.ClosedWeekdays {
		wd, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday resolves a weekday name or three-letter abbreviation.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", worktime.ErrInvalidInput, name)
	}
	return wd, nil
}

func (j JobSpec) placement() (placement.JobPlacement, error) {
	date, err := worktime.ParseDate(j.StartDate)
	if err != nil {
		return placement.JobPlacement{}, err
	}
	status := placement.Status(strings.ToLower(j.Status))
	switch status {
	case "":
		status = placement.StatusPlanned
	case placement.StatusPlanned, placement.StatusStarted, placement.StatusCompleted:
	default:
		return placement.JobPlacement{}, fmt.Errorf("%w: unknown status %q", worktime.ErrInvalidInput, j.Status)
	}
	jp := placement.JobPlacement{
		ID:            j.ID,
		EquipmentID:   j.Equipment,
		Start:         worktime.NewCursor(date, j.HourOffset),
		DurationHours: j.DurationHours,
		Status:        status,
		Locked:        j.Locked,
	}
	if err := jp.Start.Validate(); err != nil {
		return placement.JobPlacement{}, err
	}
	if err := worktime.ValidateDuration(jp.DurationHours); err != nil {
		return placement.JobPlacement{}, err
	}
	return jp, nil
}

func (s StepSpec) start() (worktime.Cursor, error) {
	date, err := worktime.ParseDate(s.StartDate)
	if err != nil {
		return worktime.Cursor{}, err
	}
	c := worktime.NewCursor(date, s.HourOffset)
	return c, c.Validate()
}

// Seeder is the write side of a store a plan can be loaded into.
type Seeder interface {
	SetCapacity(ctx context.Context, date time.Time, hours int) error
	CreateEquipment(ctx context.Context, eq *models.Equipment) error
	CreateJob(ctx context.Context, job *models.Job) error
}

// SeedResult maps plan identifiers to the row ids written.
type SeedResult struct {
	Equipment map[string]string
	Jobs      map[string]string
	Days      int
}

// RowID maps a plan identifier to a stable UUID, keeping identifiers that already are one.
func RowID(kind, id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("shopfloor:"+kind+":"+id)).String()
}

// Seed writes the plan's calendar overrides, equipment and jobs. Closed weekdays are not
// expanded; use the calendar commands for recurring closures.
func Seed(ctx context.Context, s Seeder, p *Plan) (SeedResult, error) {
	res := SeedResult{Equipment: make(map[string]string), Jobs: make(map[string]string)}

	for date, hours := range p.Calendar.Days {
		d, err := worktime.ParseDate(date)
		if err != nil {
			return res, err
		}
		if err := s.SetCapacity(ctx, d, hours); err != nil {
			return res, fmt.Errorf("seed calendar %s: %w", date, err)
		}
		res.Days++
	}

	for _, eq := range p.Equipment {
		id := RowID("equipment", eq.ID)
		name := eq.Name
		if name == "" {
			name = eq.ID
		}
		if err := s.CreateEquipment(ctx, &models.Equipment{ID: id, Name: name}); err != nil {
			return res, err
		}
		res.Equipment[eq.ID] = id
	}

	for _, job := range p.Jobs {
		jp, err := job.placement()
		if err != nil {
			return res, fmt.Errorf("job %s: %w", job.ID, err)
		}
		id := RowID("job", job.ID)
		row := &models.Job{
			ID:            id,
			EquipmentID:   res.Equipment[job.Equipment],
			StartDate:     worktime.FormatDate(jp.Start.Date),
			HourOffset:    jp.Start.Offset,
			DurationHours: jp.DurationHours,
			Status:        models.JobStatus(jp.Status),
			IsLocked:      jp.Locked,
		}
		if err := s.CreateJob(ctx, row); err != nil {
			return res, err
		}
		res.Jobs[job.ID] = id
	}
	return res, nil
}
