package store

import (
	"fmt"
	"strconv"
)

const (
	SettingRefreshInterval = "refresh_interval"
	SettingLaunchAtLogin   = "launch_at_login"
)

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// LaunchAtLogin reads the persisted flag. Only the preference is stored;
// registering with the OS is left to the packaging.
func (s *Store) LaunchAtLogin() (bool, error) {
	v, err := s.GetSetting(SettingLaunchAtLogin)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", SettingLaunchAtLogin, err)
	}
	return b, nil
}

func (s *Store) SetLaunchAtLogin(on bool) error {
	return s.SetSetting(SettingLaunchAtLogin, strconv.FormatBool(on))
}
