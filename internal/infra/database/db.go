package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// schema creates the two tables owned by the recommender. Statements are
// idempotent so Migrate runs on every start.
const schema = `
CREATE TABLE IF NOT EXISTS patients (
    reference         VARCHAR(255) PRIMARY KEY,
    organization_code VARCHAR(16)  NOT NULL DEFAULT '',
    par_day           INTEGER      NOT NULL DEFAULT 0 CHECK (par_day >= 0),
    status            BOOLEAN      NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
    id                   UUID         PRIMARY KEY,
    patient_reference    VARCHAR(255) NOT NULL REFERENCES patients (reference) ON DELETE CASCADE,
    message              TEXT         NOT NULL,
    receiver_device_type VARCHAR(16)  NOT NULL,
    kind                 VARCHAR(32)  NOT NULL,
    read                 BOOLEAN      NOT NULL DEFAULT FALSE,
    date_sent            TIMESTAMPTZ  NOT NULL,
    date_read            TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS notifications_patient_sent_idx
    ON notifications (patient_reference, date_sent);
`

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
