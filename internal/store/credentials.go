package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveCredential upserts a secret. The database directory is created 0700.
func (s *Store) SaveCredential(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save credential %q: %w", key, err)
	}
	return nil
}

// LoadCredential returns "" with no error when key was never saved.
func (s *Store) LoadCredential(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load credential %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
