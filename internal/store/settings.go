package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SettingsStore is the ordinary durable mirror: a single-table SQLite
// database next to the executable. It carries the non-secret fields and
// redundant copies of the trial markers.
type SettingsStore struct {
	db *sql.DB
}

// OpenSettingsStore opens or creates the settings database at path
func OpenSettingsStore(path string) (*SettingsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}

	// Single writer; the engine serializes access anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &SettingsStore{db: db}, nil
}

// Name identifies the store in reconciliation logs
func (s *SettingsStore) Name() string { return "settings" }

// Get returns the value for key if present
func (s *SettingsStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return "", false
	}
	return value, value != ""
}

// Set stores a value, replacing any existing one
func (s *SettingsStore) Set(key, value string) bool {
	if value == "" {
		_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
		return err == nil
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err == nil
}

// Delete removes a key
func (s *SettingsStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// Close closes the underlying database
func (s *SettingsStore) Close() error {
	return s.db.Close()
}
