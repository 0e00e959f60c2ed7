// Package devices resolves free-text queries to canonical device names stored
// in a SQLite catalog.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store provides read-only access to the devices table.
type Store struct {
	db *sql.DB
}

// Open opens the device database read-only.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open device database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping device database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the device the query refers to, or "" when none matches.
// An exact case-insensitive match wins. Otherwise the longest device name
// contained in the query is used, and failing that the shortest device name
// that contains the query.
func (s *Store) Lookup(ctx context.Context, query string) (string, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return "", nil
	}

	steps := []struct {
		name string
		sql  string
		arg  string
	}{
		{"exact", `SELECT DEVICE FROM devices WHERE DEVICE = ? COLLATE NOCASE LIMIT 1`, query},
		{"contained", `SELECT DEVICE FROM devices WHERE instr(lower(?), lower(DEVICE)) > 0 ORDER BY length(DEVICE) DESC, DEVICE LIMIT 1`, query},
		{"containing", `SELECT DEVICE FROM devices WHERE DEVICE LIKE ? ESCAPE '\' ORDER BY length(DEVICE), DEVICE LIMIT 1`, "%" + escapeLike(query) + "%"},
	}

	for _, step := range steps {
		var name string
		err := s.db.QueryRowContext(ctx, step.sql, step.arg).Scan(&name)
		switch {
		case err == nil:
			return name, nil
		case errors.Is(err, sql.ErrNoRows):
			continue
		default:
			return "", fmt.Errorf("%s device lookup: %w", step.name, err)
		}
	}
	return "", nil
}

// Count returns the number of devices in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count devices: %w", err)
	}
	return n, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
