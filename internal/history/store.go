// Package history keeps an append-only journal of committed updates in
// SQLite. It is an audit trail for the CLI and the status endpoint; the
// freshness state itself stays memory-resident and is never restored from
// this database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lifesign/internal/update"
)

// Store implements update.Journal over SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS updates (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		attachment_url TEXT NOT NULL,
		sent_at        DATETIME NOT NULL,
		committed_at   DATETIME NOT NULL,
		image_path     TEXT NOT NULL,
		thumb_path     TEXT NOT NULL,
		trigger_kind   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_updates_committed ON updates(committed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one committed update to the journal.
func (s *Store) Record(ctx context.Context, e update.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (attachment_url, sent_at, committed_at, image_path, thumb_path, trigger_kind)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.AttachmentURL, e.SentAt, e.CommittedAt, e.ImagePath, e.ThumbnailPath, e.Trigger,
	)
	return err
}

// Entry is one journal row.
type Entry struct {
	ID            int64
	AttachmentURL string
	SentAt        time.Time
	CommittedAt   time.Time
	ImagePath     string
	ThumbnailPath string
	Trigger       string
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attachment_url, sent_at, committed_at, image_path, thumb_path, trigger_kind
		 FROM updates ORDER BY committed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AttachmentURL, &e.SentAt, &e.CommittedAt,
			&e.ImagePath, &e.ThumbnailPath, &e.Trigger); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
