package sqlstore

import (
	"context"
	"fmt"
)

const tableName = "cron_job_log"

var schemas = map[string][]string{
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS cron_job_log (
			id          TEXT PRIMARY KEY,
			job_code    TEXT NOT NULL,
			start_time  TIMESTAMPTZ NOT NULL,
			end_time    TIMESTAMPTZ NULL,
			is_success  BOOLEAN NULL,
			ran_at_time TIMESTAMPTZ NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			UNIQUE (job_code, ran_at_time)
		)`,
		`CREATE INDEX IF NOT EXISTS cron_job_log_code_start_idx
			ON cron_job_log (job_code, start_time DESC)`,
	},
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS cron_job_log (
			id          TEXT PRIMARY KEY,
			job_code    TEXT NOT NULL,
			start_time  DATETIME NOT NULL,
			end_time    DATETIME NULL,
			is_success  BOOLEAN NULL,
			ran_at_time DATETIME NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			UNIQUE (job_code, ran_at_time)
		)`,
		`CREATE INDEX IF NOT EXISTS cron_job_log_code_start_idx
			ON cron_job_log (job_code, start_time DESC)`,
	},
}

// Migrate creates the run-log table and its indexes if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, ok := schemas[s.db.DriverName()]
	if !ok {
		return fmt.Errorf("migrate: unsupported driver %q", s.db.DriverName())
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", tableName, err)
		}
	}
	return nil
}
