/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import "errors"

var (
	// ErrInvalidInput is returned for non-positive durations, negative offsets and zero dates.
	ErrInvalidInput = errors.New("invalid input")

	// ErrScheduleUnreachable is returned when the calendar has no capacity left within the scan bound.
	ErrScheduleUnreachable = errors.New("schedule unreachable")

	// ErrInvalidCapacity is returned when a calendar source reports hours outside {0, 8, 12, 24}.
	ErrInvalidCapacity = errors.New("invalid calendar capacity")
)
