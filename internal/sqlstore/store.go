// Package sqlstore persists the run log in PostgreSQL or SQLite through sqlx.
// A unique (job_code, ran_at_time) constraint makes slot claims atomic.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/openjobspec/ojs-cron/internal/runlog"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 10

	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5

	// DefaultConnMaxLifetime is the default maximum lifetime of a connection
	DefaultConnMaxLifetime = 5 * time.Minute

	// DefaultPingTimeout is the default timeout for pinging the database
	DefaultPingTimeout = 5 * time.Second
)

const selectColumns = `id, job_code, start_time, end_time, is_success, ran_at_time, message`

// Store implements runlog.Store on a SQL database.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database. The caller runs Migrate when the table may be
// missing.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ runlog.Store = (*Store)(nil)

// Open connects to the database, configures the pool and migrates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// row is the database shape of a run-log entry.
type row struct {
	ID        string       `db:"id"`
	JobCode   string       `db:"job_code"`
	StartTime time.Time    `db:"start_time"`
	EndTime   sql.NullTime `db:"end_time"`
	IsSuccess sql.NullBool `db:"is_success"`
	RanAtTime time.Time    `db:"ran_at_time"`
	Message   string       `db:"message"`
}

func (r *row) entry() *runlog.Entry {
	e := &runlog.Entry{
		ID:        r.ID,
		JobCode:   r.JobCode,
		StartTime: r.StartTime.UTC(),
		RanAtTime: r.RanAtTime.UTC(),
		Message:   r.Message,
	}
	if r.EndTime.Valid {
		end := r.EndTime.Time.UTC()
		e.EndTime = &end
	}
	if r.IsSuccess.Valid {
		ok := r.IsSuccess.Bool
		e.IsSuccess = &ok
	}
	return e
}

func (s *Store) FindLatest(ctx context.Context, code string) (*runlog.Entry, error) {
	return s.findLatest(ctx, code, "")
}

func (s *Store) FindLatestSuccess(ctx context.Context, code string) (*runlog.Entry, error) {
	return s.findLatest(ctx, code, " AND is_success")
}

func (s *Store) findLatest(ctx context.Context, code, filter string) (*runlog.Entry, error) {
	var r row
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM cron_job_log
		WHERE job_code = ?` + filter + `
		ORDER BY start_time DESC, ran_at_time DESC
		LIMIT 1`)

	if err := s.db.GetContext(ctx, &r, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find latest entry: %w", err)
	}
	return r.entry(), nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, e *runlog.Entry) (bool, error) {
	query := s.db.Rebind(`INSERT INTO cron_job_log
		(id, job_code, start_time, end_time, is_success, ran_at_time, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_code, ran_at_time) DO NOTHING`)

	var end sql.NullTime
	if e.EndTime != nil {
		end = sql.NullTime{Time: e.EndTime.UTC(), Valid: true}
	}
	var success sql.NullBool
	if e.IsSuccess != nil {
		success = sql.NullBool{Bool: *e.IsSuccess, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		e.ID, e.JobCode, e.StartTime.UTC(), end, success, e.RanAtTime.UTC(), e.Message)
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}
	return n == 1, nil
}

func (s *Store) Finalize(ctx context.Context, id string, end time.Time, success bool, message string) error {
	query := s.db.Rebind(`UPDATE cron_job_log
		SET end_time = ?, is_success = ?, message = ?
		WHERE id = ? AND is_success IS NULL`)

	res, err := s.db.ExecContext(ctx, query, end.UTC(), success, message, id)
	if err != nil {
		return fmt.Errorf("failed to finalize entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize entry: %w", err)
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM cron_job_log WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to finalize entry: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("finalize %s: %w", id, runlog.ErrEntryNotFound)
	}
	return fmt.Errorf("finalize %s: %w", id, runlog.ErrAlreadyFinalized)
}

func (s *Store) List(ctx context.Context, code string, limit int) ([]*runlog.Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM cron_job_log
		WHERE job_code = ?
		ORDER BY start_time DESC, ran_at_time DESC`
	args := []any{code}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	entries := make([]*runlog.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].entry())
	}
	return entries, nil
}
