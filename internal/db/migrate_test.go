/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"github.com/friendsincode/shopfloor/internal/config"
	"github.com/friendsincode/shopfloor/internal/models"
)

func TestConnectAndMigrateSQLite(t *testing.T) {
	database, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:", Environment: "test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = Close(database) })

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"equipment_types", "equipment", "orders", "jobs", "calendar", "audit_logs"} {
		if !database.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}

	// Running twice must be harmless.
	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrateNormalizesLegacyStartDates(t *testing.T) {
	database, err := Connect(&config.Config{DBBackend: config.DatabaseSQLite, DBDSN: ":memory:", Environment: "test"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = Close(database) })
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	job := models.Job{ID: "job-1", EquipmentID: "eq-1", StartDate: "2024-03-04T00:00:00Z", DurationHours: 2}
	if err := database.Create(&job).Error; err != nil {
		t.Fatalf("insert job: %v", err)
	}

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var got models.Job
	if err := database.First(&got, "id = ?", "job-1").Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.StartDate != "2024-03-04" {
		t.Fatalf("expected normalized start date, got %q", got.StartDate)
	}
	if got.Status != models.JobStatusPlanned {
		t.Fatalf("expected default status planned, got %q", got.Status)
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
