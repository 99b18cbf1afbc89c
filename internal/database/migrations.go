package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// migrationLockID is an arbitrary advisory-lock id guarding concurrent
// schema migration, as the teacher's RunMigrations does.
const migrationLockID = 987654321

// RunMigrations creates the groups/jars schema this core needs. It is
// idempotent and safe to run on every startup.
func RunMigrations(db *sql.DB, log *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := db.Exec("SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.WithError(err).Warn("failed to release migration lock")
		}
	}()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS group_members (
			group_name TEXT NOT NULL,
			username   TEXT NOT NULL,
			joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_name, username)
		)`,
		`CREATE TABLE IF NOT EXISTS jars (
			group_name    TEXT NOT NULL,
			name          TEXT NOT NULL,
			version       TEXT NOT NULL,
			deployed_by   TEXT NOT NULL,
			deployed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			sha1_checksum TEXT NOT NULL,
			is_snapshot   BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (group_name, name, version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jars_group_name ON jars (group_name, name)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}

	log.Info("database migrations complete")
	return nil
}
