// Package store provides the one piece of persisted server state this
// protocol allows: the movie catalog, plus a small settings table for the
// server's own display name. No per-user or per-session state is kept —
// sessions surviving a process restart is an explicit Non-goal — so
// restarting the server always starts with zero connected users but the
// same movies.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a
// new string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/iqdecay/chat-while-watching/internal/directory"
)

// migrations holds the ordered list of DDL statements that bring the
// schema up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — settings key/value store
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v2 — movie catalog
	`CREATE TABLE IF NOT EXISTS movies (
		title TEXT PRIMARY KEY,
		ipv4  TEXT NOT NULL,
		port  INTEGER NOT NULL
	)`,
	// v3 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes the movie catalog and
// settings operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.Printf("[store] WAL mode: %v (non-fatal)", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[store] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema_migrations table (if absent) and applies any
// migrations whose version number exceeds the current maximum.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[store] applied migration v%d", v)
	}
	return nil
}

// GetSetting returns the value stored under key. The second return value
// is false when the key does not exist; an error is only returned for
// real I/O failures.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow(
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetSetting upserts key -> value in the settings table.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// UpsertMovie adds or replaces a catalog entry.
func (s *Store) UpsertMovie(m directory.Movie) error {
	_, err := s.db.Exec(
		`INSERT INTO movies(title, ipv4, port) VALUES(?, ?, ?)
		 ON CONFLICT(title) DO UPDATE SET ipv4 = excluded.ipv4, port = excluded.port`,
		m.Title, ipv4String(m.IPv4), m.Port,
	)
	return err
}

// DeleteMovie removes title from the catalog. Returns sql.ErrNoRows if no
// such movie exists.
func (s *Store) DeleteMovie(title string) error {
	res, err := s.db.Exec(`DELETE FROM movies WHERE title = ?`, title)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMovies returns every persisted movie, ordered by title.
func (s *Store) ListMovies() ([]directory.Movie, error) {
	rows, err := s.db.Query(`SELECT title, ipv4, port FROM movies ORDER BY title ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movies []directory.Movie
	for rows.Next() {
		var title, ipv4 string
		var port int
		if err := rows.Scan(&title, &ipv4, &port); err != nil {
			return nil, err
		}
		ip, err := parseIPv4(ipv4)
		if err != nil {
			return nil, fmt.Errorf("movie %q: %w", title, err)
		}
		movies = append(movies, directory.Movie{Title: title, IPv4: ip, Port: uint16(port)})
	}
	return movies, rows.Err()
}

func ipv4String(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

func parseIPv4(s string) ([4]byte, error) {
	var a, b, c, d int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return [4]byte{}, fmt.Errorf("parse ipv4 %q: %w", s, err)
	}
	return [4]byte{byte(a), byte(b), byte(c), byte(d)}, nil
}
