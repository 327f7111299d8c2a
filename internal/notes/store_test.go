package notes

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "notes.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Save(ctx, "hello world")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.ID == 0 || first.Content != "hello world" {
		t.Fatalf("unexpected note: %+v", first)
	}
	if _, err := s.Save(ctx, "second note"); err != nil {
		t.Fatalf("save second: %v", err)
	}

	notes, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if notes[0].Content != "hello world" || notes[1].Content != "second note" {
		t.Fatalf("unexpected order: %v", notes)
	}
	if notes[0].CreatedAt.IsZero() {
		t.Fatal("created_at not round-tripped")
	}
}

func TestEmptyNoteRejected(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Save(context.Background(), ""); !errors.Is(err, ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.Save(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	notes, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("note not deleted: %v", notes)
	}

	// Deleting again is a no-op.
	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Save(ctx, "durable"); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	notes, err := s2.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "durable" {
		t.Fatalf("note lost across reopen: %v", notes)
	}
}
