/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package recurrence expands RRULE closures (plant holidays, maintenance weekends) into
// the working calendar.
package recurrence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/friendsincode/shopfloor/internal/worktime"
)

// Anchor is the DTSTART used for rules that do not carry one.
var Anchor = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Parse reads an RRULE such as "FREQ=WEEKLY;BYDAY=SA,SU". An "RRULE:" prefix is accepted.
func Parse(rule string) (*rrule.RRule, error) {
	rule = strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:")
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: rrule %q: %v", worktime.ErrInvalidInput, rule, err)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = Anchor
	}
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: rrule %q: %v", worktime.ErrInvalidInput, rule, err)
	}
	return rr, nil
}

// Occurrences lists the distinct dates in [from, until] the rule falls on.
func Occurrences(rr *rrule.RRule, from, until time.Time) []time.Time {
	from, until = worktime.Day(from), worktime.Day(until)
	if until.Before(from) {
		return nil
	}

	var out []time.Time
	seen := make(map[string]bool)
	for _, occ := range rr.Between(from, until.AddDate(0, 0, 1).Add(-time.Nanosecond), true) {
		day := worktime.Day(occ)
		key := worktime.FormatDate(day)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, day)
	}
	return out
}

// Closed returns a CalendarSource reporting zero hours on every date one of the rules
// falls on, deferring to base otherwise.
func Closed(base worktime.CalendarSource, rules ...*rrule.RRule) worktime.CalendarSource {
	c := &closedCalendar{base: base, rules: rules}
	return worktime.CalendarFunc(c.capacityForDate)
}

type closedCalendar struct {
	base  worktime.CalendarSource
	rules []*rrule.RRule
	// hits memoizes rule lookups by date; rrule evaluation walks from DTSTART.
	hits sync.Map
}

func (c *closedCalendar) capacityForDate(ctx context.Context, date time.Time) (int, error) {
	if c.closed(date) {
		return 0, nil
	}
	return c.base.CapacityForDate(ctx, date)
}

func (c *closedCalendar) closed(date time.Time) bool {
	day := worktime.Day(date)
	key := worktime.FormatDate(day)
	if v, ok := c.hits.Load(key); ok {
		return v.(bool)
	}

	hit := false
	for _, rr := range c.rules {
		if len(Occurrences(rr, day, day)) > 0 {
			hit = true
			break
		}
	}
	c.hits.Store(key, hit)
	return hit
}
