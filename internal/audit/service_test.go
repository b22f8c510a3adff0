/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/models"
)

func newAuditService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.AuditLog{}))

	bus := events.NewBus()
	return NewService(db, bus, zerolog.Nop()), bus
}

func TestServiceRecordsLocalEvents(t *testing.T) {
	svc, bus := newAuditService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := svc.Start(ctx)

	bus.Publish(events.EventCalendarUpdated, events.Payload{"date": "2024-01-01", "work_hours": 0})
	bus.Publish(events.EventPlacementMoved, events.Payload{
		"equipment_id": "E1",
		"job_id":       "J1",
		"start_date":   "2024-01-03",
		"hour_offset":  0.0,
	})
	bus.Publish(events.EventPlacementMoved, events.Payload{
		"equipment_id":       "E1",
		"job_id":             "J2",
		events.OriginNodeKey: "peer",
	})
	bus.Publish(events.EventCascadeCompleted, events.Payload{"equipment_id": "E1", "job_id": "NEW", "moved": 1})

	cancel()
	<-done

	job := "J1"
	logs, total, err := svc.Query(context.Background(), QueryFilters{ResourceID: &job})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, models.AuditActionPlacementMoved, logs[0].Action)
	assert.Equal(t, "job", logs[0].ResourceType)
	require.NotNil(t, logs[0].EquipmentID)
	assert.Equal(t, "E1", *logs[0].EquipmentID)
	assert.Equal(t, "2024-01-03", logs[0].Details["start_date"])

	remote := "J2"
	_, total, err = svc.Query(context.Background(), QueryFilters{ResourceID: &remote})
	require.NoError(t, err)
	assert.Zero(t, total, "relayed events belong to the publishing instance")

	action := models.AuditActionCascadeCompleted
	_, total, err = svc.Query(context.Background(), QueryFilters{Action: &action})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	day := "2024-01-01"
	logs, total, err = svc.Query(context.Background(), QueryFilters{ResourceID: &day})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "calendar", logs[0].ResourceType)
	assert.Nil(t, logs[0].EquipmentID)
}

func TestQueryFiltersAndPaging(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	e1, e2 := "E1", "E2"
	for i := 0; i < 5; i++ {
		equipment := &e1
		if i%2 == 1 {
			equipment = &e2
		}
		require.NoError(t, svc.Log(ctx, &models.AuditLog{
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			EquipmentID:  equipment,
			Action:       models.AuditActionPlacementMoved,
			ResourceType: "job",
			ResourceID:   "J1",
		}))
	}

	logs, total, err := svc.Query(ctx, QueryFilters{EquipmentID: &e1, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Timestamp.After(logs[1].Timestamp), "most recent first")

	from := base.Add(2 * time.Hour)
	logs, total, err = svc.Query(ctx, QueryFilters{StartTime: &from, Offset: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 2)
}
