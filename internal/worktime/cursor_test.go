/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package worktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateAcceptsTimestamps(t *testing.T) {
	for _, in := range []string{"2024-01-06", "2024-01-06T00:00:00", " 2024-01-06T13:30:00Z"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), got)
	}

	_, err := ParseDate("06/01/2024")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCursorAdvanceCrossesMidnight(t *testing.T) {
	c := NewCursor(date(t, "2024-01-01"), 23.5)

	next := c.Advance(BufferQuantum * 4)
	assert.Equal(t, date(t, "2024-01-02"), next.Date)
	assert.InDelta(t, 0.5, next.Offset, 1e-9)
	assert.True(t, c.Before(next))
}

func TestCursorEqualUsesEpsilon(t *testing.T) {
	a := NewCursor(date(t, "2024-01-01"), 4)

	assert.True(t, a.Equal(NewCursor(date(t, "2024-01-01"), 4.005)))
	assert.False(t, a.Equal(NewCursor(date(t, "2024-01-01"), 4.02)))
	assert.False(t, a.Equal(NewCursor(date(t, "2024-01-02"), 4)))
}

func TestOccupiedRangeHalfOpen(t *testing.T) {
	at := func(h float64) time.Time { return NewCursor(date(t, "2024-01-01"), h).Instant() }

	tests := []struct {
		name string
		a, b OccupiedRange
		want bool
	}{
		{"disjoint", OccupiedRange{at(0), at(2)}, OccupiedRange{at(3), at(4)}, false},
		{"touching end to start", OccupiedRange{at(0), at(2)}, OccupiedRange{at(2), at(4)}, false},
		{"partial", OccupiedRange{at(0), at(3)}, OccupiedRange{at(2), at(4)}, true},
		{"contained", OccupiedRange{at(0), at(8)}, OccupiedRange{at(2), at(4)}, true},
		{"identical", OccupiedRange{at(1), at(5)}, OccupiedRange{at(1), at(5)}, true},
		{"empty placeholder", OccupiedRange{at(2), at(2)}, OccupiedRange{at(0), at(8)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}
