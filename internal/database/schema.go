package database

import "fmt"

// schemaStatements create the tables the service writes through to. The
// partial unique indexes mirror the in-memory ledger rules so a bad write
// can never leave two active holders of one seat in storage either.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seat_reservations (
		id            UUID PRIMARY KEY,
		bus_id        VARCHAR(32) NOT NULL,
		seat_number   VARCHAR(8) NOT NULL,
		student_id    VARCHAR(64) NOT NULL,
		status        VARCHAR(16) NOT NULL,
		qr_data       TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		cancelled_at  TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS seat_reservations_active_seat
		ON seat_reservations (bus_id, seat_number) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS seat_reservations_active_student
		ON seat_reservations (student_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS sos_alerts (
		id           UUID PRIMARY KEY,
		user_id      VARCHAR(64) NOT NULL,
		user_type    VARCHAR(16) NOT NULL,
		bus_id       VARCHAR(32) NOT NULL DEFAULT '',
		latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
		address      TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		status       VARCHAR(16) NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		resolved_by  VARCHAR(64),
		resolved_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS sos_alerts_status ON sos_alerts (status, created_at DESC)`,
}

// EnsureSchema creates missing tables and indexes
func EnsureSchema(db DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
