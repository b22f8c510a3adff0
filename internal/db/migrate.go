/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/shopfloor/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.EquipmentType{},
		&models.Equipment{},
		&models.Order{},
		&models.Job{},
		&models.CalendarDay{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresPlacementGuard(database); err != nil {
		return err
	}
	if err := normalizeLegacyStartDates(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresPlacementGuard rejects rows the scheduler cannot place: negative offsets,
// non-positive durations and capacities outside the allowed shift patterns.
func applyPostgresPlacementGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION shopfloor_validate_job_placement()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.hour_offset < 0 THEN
    RAISE EXCEPTION 'job % hour offset must not be negative', NEW.id
      USING ERRCODE = '23514';
  END IF;

  IF NEW.duration_hours <= 0 THEN
    RAISE EXCEPTION 'job % duration must be positive', NEW.id
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_shopfloor_validate_job_placement ON jobs;

CREATE TRIGGER trg_shopfloor_validate_job_placement
BEFORE INSERT OR UPDATE OF start_date, hour_offset, duration_hours
ON jobs
FOR EACH ROW
EXECUTE FUNCTION shopfloor_validate_job_placement();

ALTER TABLE calendar DROP CONSTRAINT IF EXISTS chk_calendar_work_hours;
ALTER TABLE calendar ADD CONSTRAINT chk_calendar_work_hours CHECK (work_hours IN (0, 8, 12, 24));
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres placement guard: %w", err)
	}

	return nil
}

// normalizeLegacyStartDates trims timestamp suffixes that older importers wrote into
// jobs.start_date, leaving the bare YYYY-MM-DD.
func normalizeLegacyStartDates(database *gorm.DB) error {
	if err := database.Model(&models.Job{}).
		Where("LENGTH(start_date) > 10").
		Update("start_date", gorm.Expr("SUBSTR(start_date, 1, 10)")).Error; err != nil {
		return fmt.Errorf("normalize legacy start dates: %w", err)
	}
	return nil
}
