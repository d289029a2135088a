package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"inboxsweep/internal/model"
	"inboxsweep/internal/util"
)

// SQLiteStore implements AllowList backed by a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ AllowList = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at the given path,
// enables WAL mode and runs any pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps the pragmas below
	// in effect for every query.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies outstanding migrations in order.
func (s *SQLiteStore) migrate() error {
	current := 0

	var tables int
	err := s.db.Get(&tables,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) IsWhitelisted(ctx context.Context, email string) (bool, error) {
	key := util.NormalizeEmail(email)
	if key == "" {
		return false, nil
	}
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM whitelist WHERE sender_email = ?", key)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Add(ctx context.Context, email, name string) (bool, error) {
	key := util.NormalizeEmail(email)
	if key == "" {
		return false, fmt.Errorf("add to whitelist: empty sender email")
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO whitelist (sender_email, sender_name, added_at) VALUES (?, ?, ?) ON CONFLICT(sender_email) DO NOTHING",
		key, name, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("add %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, email string) (bool, error) {
	key := util.NormalizeEmail(email)
	res, err := s.db.ExecContext(ctx, "DELETE FROM whitelist WHERE sender_email = ?", key)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every entry, most recently added first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.AllowEntry, error) {
	var entries []model.AllowEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT sender_email, sender_name, added_at FROM whitelist ORDER BY added_at DESC, sender_email")
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	return entries, nil
}

// Clear removes every entry and reports how many were deleted.
func (s *SQLiteStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM whitelist")
	if err != nil {
		return 0, fmt.Errorf("clear whitelist: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM whitelist")
	return count, err
}
