/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// CatalogNotifyChannel is the default Postgres channel the tracks trigger notifies.
const CatalogNotifyChannel = "catalog_tracks"

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	return MigrateWithChannel(database, CatalogNotifyChannel)
}

// MigrateWithChannel migrates the schema and, on Postgres, installs the
// change-notification trigger on the tracks table using channel.
func MigrateWithChannel(database *gorm.DB, channel string) error {
	if err := database.AutoMigrate(models.AllModels()...); err != nil {
		return err
	}

	if err := applyPostgresCatalogNotifyTrigger(database, channel); err != nil {
		return err
	}

	return nil
}

// applyPostgresCatalogNotifyTrigger publishes row changes on approved tracks as
// {"eventType","old","new"} JSON on channel. Rows are pre-filtered server side:
// a change is sent when either side of it is approved.
func applyPostgresCatalogNotifyTrigger(database *gorm.DB, channel string) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := fmt.Sprintf(`
CREATE OR REPLACE FUNCTION notify_catalog_track_change()
RETURNS trigger
LANGUAGE plpgsql
AS $$
DECLARE
  payload json;
BEGIN
  IF TG_OP = 'INSERT' THEN
    IF NOT NEW.approved THEN RETURN NEW; END IF;
    payload := json_build_object('eventType', 'insert', 'new', row_to_json(NEW));
  ELSIF TG_OP = 'UPDATE' THEN
    IF NOT (NEW.approved OR OLD.approved) THEN RETURN NEW; END IF;
    payload := json_build_object('eventType', 'update', 'old', row_to_json(OLD), 'new', row_to_json(NEW));
  ELSE
    IF NOT OLD.approved THEN RETURN OLD; END IF;
    payload := json_build_object('eventType', 'delete', 'old', row_to_json(OLD));
  END IF;

  PERFORM pg_notify('%s', payload::text);
  IF TG_OP = 'DELETE' THEN RETURN OLD; END IF;
  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_notify_catalog_track_change ON tracks;

CREATE TRIGGER trg_notify_catalog_track_change
AFTER INSERT OR UPDATE OR DELETE
ON tracks
FOR EACH ROW
EXECUTE FUNCTION notify_catalog_track_change();
`, channel)

	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres catalog notify trigger: %w", err)
	}

	return nil
}
