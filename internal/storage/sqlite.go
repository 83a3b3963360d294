package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FoodEntry is one persisted food log row. It mirrors the entry shape the
// mobile app keeps in its on-device log, so the server-side journal and the
// device stay interchangeable.
type FoodEntry struct {
	ID       string    `json:"id"`
	Food     string    `json:"food"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit"`
	Calories int       `json:"calories"`
	LoggedAt time.Time `json:"ts"`
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS food_entries (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        food TEXT NOT NULL,
        quantity REAL NOT NULL,
        unit TEXT NOT NULL,
        calories INTEGER NOT NULL,
        day TEXT NOT NULL,
        logged_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_food_entries_session_day ON food_entries(session_id, day);
    CREATE INDEX IF NOT EXISTS idx_food_entries_logged_at ON food_entries(logged_at);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) AppendEntry(sessionID, day string, entry FoodEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO food_entries (id, session_id, food, quantity, unit, calories, day, logged_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		sessionID,
		entry.Food,
		entry.Quantity,
		entry.Unit,
		entry.Calories,
		day,
		entry.LoggedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert food entry: %w", err)
	}
	return nil
}

// DeleteByFood removes every entry for the given day whose food name matches
// case-insensitively. Returns the number of rows removed.
func (s *Store) DeleteByFood(sessionID, day, food string) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM food_entries
         WHERE session_id = ? AND day = ? AND LOWER(food) = LOWER(?)`,
		sessionID,
		day,
		strings.TrimSpace(food),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete food entries: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) ClearDay(sessionID, day string) error {
	if _, err := s.db.Exec(
		`DELETE FROM food_entries WHERE session_id = ? AND day = ?`,
		sessionID,
		day,
	); err != nil {
		return fmt.Errorf("failed to clear day: %w", err)
	}
	return nil
}

func (s *Store) EntriesForDay(sessionID, day string) ([]FoodEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, food, quantity, unit, calories, logged_at
         FROM food_entries
         WHERE session_id = ? AND day = ?
         ORDER BY logged_at ASC, id ASC`,
		sessionID,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query food entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentEntries returns entries across all days, most recent first.
func (s *Store) RecentEntries(sessionID string, limit int) ([]FoodEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, food, quantity, unit, calories, logged_at
         FROM food_entries
         WHERE session_id = ?
         ORDER BY logged_at DESC, id DESC
         LIMIT ?`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query food entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]FoodEntry, error) {
	entries := make([]FoodEntry, 0)
	for rows.Next() {
		entry := FoodEntry{}
		var loggedAtRaw string
		if err := rows.Scan(
			&entry.ID,
			&entry.Food,
			&entry.Quantity,
			&entry.Unit,
			&entry.Calories,
			&loggedAtRaw,
		); err != nil {
			return nil, fmt.Errorf("failed to scan food entry: %w", err)
		}
		loggedAt, err := time.Parse(time.RFC3339, loggedAtRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse logged_at: %w", err)
		}
		entry.LoggedAt = loggedAt
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
