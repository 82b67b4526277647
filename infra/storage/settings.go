package storage

import (
	"context"
	"fmt"
)

// LoadAllSettings returns every stored merchant setting override
func (s *SQLiteStorage) LoadAllSettings(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings map[string]string
	err := s.retryOperation(func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM merchant_settings ORDER BY key`)
		if err != nil {
			return fmt.Errorf("failed to query merchant settings: %w", err)
		}
		defer rows.Close()

		settings = make(map[string]string)
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}
			settings[key] = value
		}
		return rows.Err()
	}, 3)

	return settings, err
}

// SaveSetting inserts or replaces a merchant setting override
func (s *SQLiteStorage) SaveSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		query := `
		INSERT INTO merchant_settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key)
		DO UPDATE SET value = excluded.value
		`
		if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
			return fmt.Errorf("failed to save setting: %w", err)
		}
		return nil
	}, 3)
}

// DeleteSetting removes a merchant setting override. Deleting a missing key is not an error.
func (s *SQLiteStorage) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM merchant_settings WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete setting: %w", err)
		}
		return nil
	}, 3)
}
