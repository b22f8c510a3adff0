/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit actions mirror the engine events they are recorded from.
const (
	AuditActionConflictDetected AuditAction = "conflict.detected"
	AuditActionPlacementMoved   AuditAction = "placement.moved"
	AuditActionCascadeCompleted AuditAction = "cascade.completed"
	AuditActionCalendarUpdated  AuditAction = "calendar.updated"
)

// AuditLog records placement and calendar changes.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	EquipmentID  *string        `gorm:"type:uuid;index:idx_audit_equipment"` // NULL for calendar changes
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "job" or "calendar"
	ResourceID   string         `gorm:"type:varchar(64);index:idx_audit_resource"`
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
