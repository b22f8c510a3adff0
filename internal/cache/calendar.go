/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package cache

import (
	"context"
	"time"

	"github.com/friendsincode/shopfloor/internal/telemetry"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

// CalendarCache is a read-through worktime.CalendarSource in front of another source.
// Redis failures fall through to the source.
type CalendarCache struct {
	cache  *Cache
	source worktime.CalendarSource
}

// NewCalendarCache wraps source.
func NewCalendarCache(c *Cache, source worktime.CalendarSource) *CalendarCache {
	return &CalendarCache{cache: c, source: source}
}

// CapacityForDate implements worktime.CalendarSource.
func (cc *CalendarCache) CapacityForDate(ctx context.Context, date time.Time) (int, error) {
	if !cc.cache.IsAvailable() {
		telemetry.CalendarCacheRequests.WithLabelValues("bypass").Inc()
		return cc.source.CapacityForDate(ctx, date)
	}

	key := KeyCalendarDay + worktime.FormatDate(date)
	var hours int
	if found, _ := cc.cache.get(ctx, key, &hours); found {
		telemetry.CalendarCacheRequests.WithLabelValues("hit").Inc()
		return hours, nil
	}

	telemetry.CalendarCacheRequests.WithLabelValues("miss").Inc()
	hours, err := cc.source.CapacityForDate(ctx, date)
	if err != nil {
		return 0, err
	}
	_ = cc.cache.set(ctx, key, hours, cc.cache.config.CalendarTTL)
	return hours, nil
}

// Invalidate drops the cached capacity of the given dates.
func (cc *CalendarCache) Invalidate(ctx context.Context, dates ...time.Time) error {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, KeyCalendarDay+worktime.FormatDate(d))
	}
	return cc.cache.delete(ctx, keys...)
}
