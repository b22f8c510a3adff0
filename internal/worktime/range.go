/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import "time"

// OccupiedRange is the half-open interval [Start, End) a placement holds on its equipment.
type OccupiedRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals share any instant.
// Touching ranges do not overlap and empty ranges never overlap anything.
func (r OccupiedRange) Overlaps(o OccupiedRange) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Contains reports whether t lies in [Start, End).
func (r OccupiedRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Empty reports a zero-length range.
func (r OccupiedRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Hours is the wall-clock length of the range.
func (r OccupiedRange) Hours() float64 {
	return r.End.Sub(r.Start).Hours()
}
