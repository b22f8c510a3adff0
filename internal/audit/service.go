/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

var auditedEvents = map[events.EventType]models.AuditAction{
	events.EventConflictDetected: models.AuditActionConflictDetected,
	events.EventPlacementMoved:   models.AuditActionPlacementMoved,
	events.EventCascadeCompleted: models.AuditActionCascadeCompleted,
	events.EventCalendarUpdated:  models.AuditActionCalendarUpdated,
}

// Start subscribes to engine events and returns once subscribed. Entries are written in
// the background until ctx is done; the returned channel is closed after the buffered
// events have been flushed. Events relayed from other instances are skipped; their
// publisher records them.
func (s *Service) Start(ctx context.Context) <-chan struct{} {
	s.logger.Info().Msg("audit service starting")

	conflictDetected := s.bus.Subscribe(events.EventConflictDetected)
	placementMoved := s.bus.Subscribe(events.EventPlacementMoved)
	cascadeCompleted := s.bus.Subscribe(events.EventCascadeCompleted)
	calendarUpdated := s.bus.Subscribe(events.EventCalendarUpdated)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			s.bus.Unsubscribe(events.EventConflictDetected, conflictDetected)
			s.bus.Unsubscribe(events.EventPlacementMoved, placementMoved)
			s.bus.Unsubscribe(events.EventCascadeCompleted, cascadeCompleted)
			s.bus.Unsubscribe(events.EventCalendarUpdated, calendarUpdated)
		}()

		// Writes outlive cancellation of the subscription loop.
		writeCtx := context.WithoutCancel(ctx)

		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(writeCtx, 5*time.Second)
				s.drain(flushCtx, events.EventConflictDetected, conflictDetected)
				s.drain(flushCtx, events.EventPlacementMoved, placementMoved)
				s.drain(flushCtx, events.EventCascadeCompleted, cascadeCompleted)
				s.drain(flushCtx, events.EventCalendarUpdated, calendarUpdated)
				cancel()
				s.logger.Info().Msg("audit service stopping")
				return

			case payload := <-conflictDetected:
				s.logAuditEntry(writeCtx, events.EventConflictDetected, payload)

			case payload := <-placementMoved:
				s.logAuditEntry(writeCtx, events.EventPlacementMoved, payload)

			case payload := <-cascadeCompleted:
				s.logAuditEntry(writeCtx, events.EventCascadeCompleted, payload)

			case payload := <-calendarUpdated:
				s.logAuditEntry(writeCtx, events.EventCalendarUpdated, payload)
			}
		}
	}()

	s.logger.Info().Msg("audit service started")
	return done
}

func (s *Service) drain(ctx context.Context, eventType events.EventType, sub events.Subscriber) {
	for {
		select {
		case payload := <-sub:
			s.logAuditEntry(ctx, eventType, payload)
		default:
			return
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, eventType events.EventType, payload events.Payload) {
	if payload.Remote() {
		return
	}

	action := auditedEvents[eventType]
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   make(map[string]any),
		CreatedAt: time.Now(),
	}

	if equipmentID, ok := payload["equipment_id"].(string); ok && equipmentID != "" {
		entry.EquipmentID = &equipmentID
	}

	switch eventType {
	case events.EventCalendarUpdated:
		entry.ResourceType = "calendar"
		entry.ResourceID, _ = payload["date"].(string)
	default:
		entry.ResourceType = "job"
		entry.ResourceID, _ = payload["job_id"].(string)
	}

	for k, v := range payload {
		switch k {
		case "equipment_id", "job_id":
			// Already extracted
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	EquipmentID *string
	ResourceID  *string
	Action      *models.AuditAction
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.EquipmentID != nil {
		query = query.Where("equipment_id = ?", *filters.EquipmentID)
	}
	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
