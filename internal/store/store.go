// Package store persists users, signals and audit events through
// database/sql. The same queries serve SQLite and PostgreSQL; placeholders
// are rebound per driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/database"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// UserStore is the identity store.
type UserStore interface {
	FindByHandle(ctx context.Context, username string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	Create(ctx context.Context, user models.User) (models.User, error)
}

// SignalStore holds signal records.
type SignalStore interface {
	Create(ctx context.Context, signal models.Signal) (models.Signal, error)
	Get(ctx context.Context, id string) (models.Signal, error)
	List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error)
	Update(ctx context.Context, signal models.Signal) error
	UpdateStatus(ctx context.Context, id string, status models.SignalStatus, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status models.SignalStatus) (int, error)
}

// EventStore holds the audit trail.
type EventStore interface {
	Create(ctx context.Context, event models.Event) error
	Recent(ctx context.Context, limit int) ([]models.Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

var (
	_ UserStore   = (*UserRepository)(nil)
	_ SignalStore = (*SignalRepository)(nil)
	_ EventStore  = (*EventRepository)(nil)
)

// Store bundles the SQL-backed repositories over one connection pool.
type Store struct {
	db     *sql.DB
	driver database.Driver
}

// New wraps an open, migrated database.
func New(db *sql.DB, driver database.Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Users returns the identity store.
func (s *Store) Users() *UserRepository { return &UserRepository{s} }

// Signals returns the signal store.
func (s *Store) Signals() *SignalRepository { return &SignalRepository{s} }

// Events returns the audit event store.
func (s *Store) Events() *EventRepository { return &EventRepository{s} }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", apperr.ErrStore, err)
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != database.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// classify maps driver errors onto the apperr taxonomy.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
	default:
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrStore, err)
	}
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// expectAffected turns a zero-row write into ErrNotFound.
func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}

// timestamp normalises times to what both backends round-trip exactly.
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
