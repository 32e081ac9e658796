package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and runs migrations.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id               UUID PRIMARY KEY,
		name             TEXT NOT NULL,
		email            TEXT UNIQUE NOT NULL,
		password_hash    TEXT NOT NULL,
		role             TEXT NOT NULL DEFAULT 'user',
		face_template_id TEXT,
		is_active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_sessions (
		id                   UUID PRIMARY KEY,
		user_id              UUID NOT NULL REFERENCES users(id),
		check_in_time        TIMESTAMPTZ NOT NULL,
		check_in_day         DATE NOT NULL,
		check_out_time       TIMESTAMPTZ,
		status               TEXT NOT NULL DEFAULT 'present',
		verification_method  TEXT NOT NULL DEFAULT 'face',
		verification_success BOOLEAN NOT NULL DEFAULT FALSE,
		latitude             DOUBLE PRECISION,
		longitude            DOUBLE PRECISION,
		note                 TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- One session per user per calendar day. The pre-insert existence check in
	-- the service is a fast path only; this index is the actual guard against
	-- concurrent check-ins.
	CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_user_day
		ON attendance_sessions (user_id, check_in_day);

	CREATE INDEX IF NOT EXISTS attendance_sessions_check_in
		ON attendance_sessions (check_in_time);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
