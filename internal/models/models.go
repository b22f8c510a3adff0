package models

import (
	"time"
)

// JobStatus enumerates the lifecycle of a job.
type JobStatus string

const (
	JobStatusPlanned   JobStatus = "planned"
	JobStatusStarted   JobStatus = "started"
	JobStatusCompleted JobStatus = "completed"
)

// EquipmentType groups interchangeable machines.
type EquipmentType struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Equipment is a shared resource jobs are placed on.
type Equipment struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	EquipmentTypeID string `gorm:"type:uuid;index"`
	Name            string `gorm:"uniqueIndex"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Order is the customer order a job belongs to.
type Order struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Number    string `gorm:"uniqueIndex"`
	Customer  string
	DueDate   string `gorm:"type:varchar(10)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is one unit of work placed on an equipment timeline.
// StartDate is stored as YYYY-MM-DD; HourOffset is hours into that day.
type Job struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	OrderID       string    `gorm:"type:uuid;index"`
	EquipmentID   string    `gorm:"type:uuid;index:idx_jobs_equipment_start,priority:1"`
	StartDate     string    `gorm:"type:varchar(10);index:idx_jobs_equipment_start,priority:2"`
	HourOffset    float64   `gorm:"index:idx_jobs_equipment_start,priority:3"`
	DurationHours float64
	Status        JobStatus `gorm:"type:varchar(16);index;default:planned"`
	IsLocked      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CalendarDay overrides the default capacity of one date.
type CalendarDay struct {
	Date      string `gorm:"type:varchar(10);primaryKey"`
	WorkHours int    `gorm:"default:8"`
	UpdatedAt time.Time
}

// TableName pins the calendar table name.
func (CalendarDay) TableName() string {
	return "calendar"
}
