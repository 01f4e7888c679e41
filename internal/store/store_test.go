package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/iqdecay/chat-while-watching/internal/directory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, ok, err := s.GetSetting("name"); err != nil || ok {
		t.Fatalf("expected missing setting, got ok=%v err=%v", ok, err)
	}
	if err := s.SetSetting("name", "movie night"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	val, ok, err := s.GetSetting("name")
	if err != nil || !ok || val != "movie night" {
		t.Fatalf("got (%q, %v, %v)", val, ok, err)
	}
	if err := s.SetSetting("name", "updated"); err != nil {
		t.Fatalf("SetSetting update: %v", err)
	}
	val, _, _ = s.GetSetting("name")
	if val != "updated" {
		t.Fatalf("got %q, want updated", val)
	}
}

func TestMovieCatalogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	m := directory.Movie{Title: "Matrix", IPv4: [4]byte{10, 0, 0, 1}, Port: 9000}
	if err := s.UpsertMovie(m); err != nil {
		t.Fatalf("UpsertMovie: %v", err)
	}
	movies, err := s.ListMovies()
	if err != nil {
		t.Fatalf("ListMovies: %v", err)
	}
	if len(movies) != 1 || movies[0] != m {
		t.Fatalf("got %+v, want [%+v]", movies, m)
	}
}

func TestUpsertMovieReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	s.UpsertMovie(directory.Movie{Title: "Matrix", IPv4: [4]byte{1, 1, 1, 1}, Port: 9000})
	s.UpsertMovie(directory.Movie{Title: "Matrix", IPv4: [4]byte{2, 2, 2, 2}, Port: 9001})
	movies, _ := s.ListMovies()
	if len(movies) != 1 || movies[0].Port != 9001 {
		t.Fatalf("got %+v", movies)
	}
}

func TestDeleteMovie(t *testing.T) {
	s := newTestStore(t)
	s.UpsertMovie(directory.Movie{Title: "Matrix", Port: 9000})
	if err := s.DeleteMovie("Matrix"); err != nil {
		t.Fatalf("DeleteMovie: %v", err)
	}
	if err := s.DeleteMovie("Matrix"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows for repeat delete, got %v", err)
	}
}

func TestMigrationsAreIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s1, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1.Close()

	s2, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.ListMovies(); err != nil {
		t.Fatalf("expected movies table to exist after reopen, got %v", err)
	}
}
