// Package notes persists the local note-taking feature: transcripts and
// translations a user chose to keep.
package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// ErrEmptyNote is returned when saving a note with no content.
var ErrEmptyNote = errors.New("notes: empty note not saved")

type Note struct {
	ID        int64
	CreatedAt time.Time
	Content   string
}

// Store is a SQLite-backed note store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the notes database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("notes: open db: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("notes: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("notes: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("notes: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS notes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT    NOT NULL,
		content    TEXT    NOT NULL CHECK(length(content) > 0)
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save stores a new note. Empty content is rejected.
func (s *Store) Save(ctx context.Context, content string) (*Note, error) {
	if content == "" {
		return nil, ErrEmptyNote
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO notes (created_at, content) VALUES (?, ?)",
		now.Format(dbTimeLayout), content,
	)
	if err != nil {
		return nil, fmt.Errorf("notes: save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("notes: save id: %w", err)
	}
	return &Note{ID: id, CreatedAt: now, Content: content}, nil
}

// List returns all notes, oldest first.
func (s *Store) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, content FROM notes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("notes: list: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		var created string
		if err := rows.Scan(&n.ID, &created, &n.Content); err != nil {
			return nil, fmt.Errorf("notes: scan: %w", err)
		}
		if t, err := time.Parse(dbTimeLayout, created); err == nil {
			n.CreatedAt = t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Delete removes a note by id. Deleting a missing note is a no-op.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("notes: delete: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
