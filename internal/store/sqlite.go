package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/workcal/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
//
// All mutations run under mu so that the insert/update/delete and the
// version bump commit together and a concurrent Snapshot sees either none
// or all of them.
type SQLiteStore struct {
	db    *sqlx.DB
	mu    sync.RWMutex
	newID IDGenerator
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Writes are serialized by the store; one connection also keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, newID: buildOptions(opts).newID}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite db: %w", err)
	}
	return nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Create inserts a new open record with a fresh id.
func (s *SQLiteStore) Create(ctx context.Context, date, content string) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.Record{Date: date, Content: content}
	err := retryBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			for attempt := 0; ; attempt++ {
				if attempt == maxIDAttempts {
					return errIDExhausted
				}
				rec.ID = s.newID()
				_, err := tx.ExecContext(ctx,
					"INSERT INTO records (id, date, content, completed) VALUES (?, ?, ?, 0)",
					rec.ID, rec.Date, rec.Content,
				)
				if err == nil {
					break
				}
				if !isUniqueViolation(err) {
					return fmt.Errorf("inserting record: %w", err)
				}
			}
			return bumpVersion(ctx, tx)
		})
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("creating record: %w", err)
	}
	return rec, nil
}

// Update sets the completion flag of an existing record.
func (s *SQLiteStore) Update(ctx context.Context, id string, completed bool) (bool, error) {
	return s.mutate(ctx, "updating record "+id,
		"UPDATE records SET completed = ? WHERE id = ?", boolToInt(completed), id)
}

// Delete removes a record by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	return s.mutate(ctx, "deleting record "+id,
		"DELETE FROM records WHERE id = ?", id)
}

// mutate runs a single-row statement and bumps the version only when a row
// was affected.
func (s *SQLiteStore) mutate(ctx context.Context, what, query string, args ...any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found bool
	err := retryBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("reading rows affected: %w", err)
			}
			found = rows > 0
			if !found {
				return nil
			}
			return bumpVersion(ctx, tx)
		})
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return found, nil
}

// Snapshot reads the version and all records inside one read transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context, order model.SortOrder) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, date, content, completed FROM records " + orderClause(order)

	var snap model.Snapshot
	err := retryBusy(ctx, func() error {
		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			if err := tx.GetContext(ctx, &snap.Version,
				"SELECT version FROM store_meta WHERE id = 1"); err != nil {
				return fmt.Errorf("reading store version: %w", err)
			}
			records := []model.Record{}
			if err := tx.SelectContext(ctx, &records, query); err != nil {
				return fmt.Errorf("querying records: %w", err)
			}
			snap.Records = records
			return nil
		})
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("taking snapshot: %w", err)
	}
	return snap, nil
}

// inTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func bumpVersion(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE store_meta SET version = version + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("bumping store version: %w", err)
	}
	return nil
}

func orderClause(order model.SortOrder) string {
	switch order {
	case model.OrderNewestFirst:
		return "ORDER BY seq DESC"
	case model.OrderByDate:
		return "ORDER BY date ASC, seq ASC"
	default:
		return "ORDER BY seq ASC"
	}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
