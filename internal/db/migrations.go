package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS weighing_events (
		id              UUID PRIMARY KEY,
		weight          NUMERIC(12,3) NOT NULL,
		plate           TEXT,
		direction       TEXT,
		counterpart_id  UUID,
		document_id     UUID,
		voided          BOOLEAN NOT NULL DEFAULT FALSE,
		photos          JSONB,
		photo_category  TEXT NOT NULL DEFAULT 'UNCATEGORIZED',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_weighing_events_plate ON weighing_events(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_weighing_events_created_at ON weighing_events(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_weighing_events_unmatched
		ON weighing_events(plate, created_at)
		WHERE counterpart_id IS NULL AND document_id IS NULL AND voided = FALSE;`,
	`CREATE TABLE IF NOT EXISTS shipment_documents (
		id              UUID PRIMARY KEY,
		plate           TEXT NOT NULL,
		provider        TEXT,
		direction       TEXT NOT NULL,
		join_event_id   UUID NOT NULL REFERENCES weighing_events(id),
		out_event_id    UUID NOT NULL REFERENCES weighing_events(id),
		entry_time      TIMESTAMPTZ NOT NULL,
		exit_time       TIMESTAMPTZ NOT NULL,
		gross_weight    NUMERIC(12,3) NOT NULL,
		tare_weight     NUMERIC(12,3) NOT NULL,
		net_weight      NUMERIC(12,3) NOT NULL,
		status          TEXT NOT NULL,
		pushed_at       TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_shipment_documents_plate ON shipment_documents(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_shipment_documents_unpushed
		ON shipment_documents(created_at)
		WHERE status = 'COMPLETED' AND pushed_at IS NULL;`,
}

func RunMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
