package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the DDL for the scheduling tables. Every statement is
// idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS containers (
		id                       TEXT PRIMARY KEY,
		date                     TEXT NOT NULL,
		stage                    TEXT NOT NULL,
		seat_limit               INTEGER NOT NULL,
		manual_unlock_expires_at TEXT,
		rev                      INTEGER NOT NULL DEFAULT 0,
		created_at               TEXT NOT NULL,
		updated_at               TEXT NOT NULL,
		UNIQUE (stage, date)
	)`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id              TEXT PRIMARY KEY,
		customer_id     TEXT NOT NULL,
		container_id    TEXT NOT NULL REFERENCES containers(id),
		stage           TEXT NOT NULL,
		date            TEXT NOT NULL,
		kind            TEXT NOT NULL,
		pair_id         TEXT NOT NULL DEFAULT '',
		role_in_pair    INTEGER NOT NULL DEFAULT 1,
		card_status     TEXT NOT NULL DEFAULT 'ACTIVE',
		occupied_date   TEXT NOT NULL DEFAULT '',
		bypass          INTEGER NOT NULL DEFAULT 0,
		pending_handoff INTEGER NOT NULL DEFAULT 0,
		move_count      INTEGER NOT NULL DEFAULT 0,
		last_moved_at   TEXT,
		move_history    TEXT NOT NULL DEFAULT '[]',
		confirmed_at    TEXT,
		confirmed_by_id TEXT NOT NULL DEFAULT '',
		version         INTEGER NOT NULL DEFAULT 1,
		created_by_id   TEXT NOT NULL DEFAULT '',
		created_by_name TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS history (
		id                   TEXT PRIMARY KEY,
		event                TEXT NOT NULL,
		assignment_id        TEXT NOT NULL,
		customer_id          TEXT NOT NULL,
		stage                TEXT NOT NULL,
		date                 TEXT NOT NULL,
		kind                 TEXT NOT NULL,
		pair_id              TEXT NOT NULL DEFAULT '',
		occupied_date        TEXT NOT NULL DEFAULT '',
		bypass               INTEGER NOT NULL DEFAULT 0,
		reject_action        TEXT NOT NULL DEFAULT '',
		diksha_assignment_id TEXT NOT NULL DEFAULT '',
		actor_id             TEXT NOT NULL DEFAULT '',
		actor_name           TEXT NOT NULL DEFAULT '',
		commit_message       TEXT NOT NULL DEFAULT '',
		at                   TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_containers_unlock ON containers(manual_unlock_expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_container ON assignments(container_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_pair ON assignments(pair_id, role_in_pair)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_customer ON assignments(stage, customer_id)`,
	// Reservation lookups: MEETING rows by occupied date.
	`CREATE INDEX IF NOT EXISTS idx_assignments_reservation ON assignments(stage, occupied_date, bypass, card_status)`,
	`CREATE INDEX IF NOT EXISTS idx_history_stage_date ON history(stage, date, at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
