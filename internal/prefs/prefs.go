// Package prefs is the typed preference store backing the backup subsystem.
// Preferences live in one small YAML file managed through viper.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Automatic backup interval policies.
const (
	IntervalOff        = "off"
	Interval6H         = "6h"
	Interval12H        = "12h"
	IntervalDaily      = "daily"
	IntervalEvery2Days = "2days"
	IntervalWeekly     = "weekly"
)

const (
	keyLastAutoBackup      = "backup.last_run"
	keyInterval            = "backup.interval"
	keyMaxFiles            = "backup.max_files"
	keyPerCategorySettings = "library.per_category_settings"
)

type Store struct {
	v    *viper.Viper
	path string
}

// Open loads the preference file at path, creating defaults in memory when
// the file does not exist yet. The file itself is written on first Set.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyLastAutoBackup, int64(0))
	v.SetDefault(keyInterval, IntervalOff)
	v.SetDefault(keyMaxFiles, 2)
	v.SetDefault(keyPerCategorySettings, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read preferences %s: %w", path, err)
		}
	}
	return &Store{v: v, path: path}, nil
}

func (s *Store) LastAutoBackup() int64 {
	return s.v.GetInt64(keyLastAutoBackup)
}

func (s *Store) SetLastAutoBackup(ts int64) error {
	s.v.Set(keyLastAutoBackup, ts)
	return s.save()
}

func (s *Store) IntervalPolicy() string {
	return s.v.GetString(keyInterval)
}

func (s *Store) SetIntervalPolicy(policy string) error {
	if _, ok := intervalDurations[policy]; !ok {
		return fmt.Errorf("unknown backup interval policy %q", policy)
	}
	s.v.Set(keyInterval, policy)
	return s.save()
}

// AutoBackupInterval resolves the configured policy to a duration; 0 means
// automatic backups are off. An unknown value on disk also reads as off.
func (s *Store) AutoBackupInterval() time.Duration {
	return intervalDurations[s.IntervalPolicy()]
}

func (s *Store) DisableAutoBackup() error {
	return s.SetIntervalPolicy(IntervalOff)
}

func (s *Store) MaxAutoBackupFiles() int {
	n := s.v.GetInt(keyMaxFiles)
	if n < 1 {
		return 1
	}
	return n
}

func (s *Store) SetMaxAutoBackupFiles(n int) error {
	if n < 1 {
		return fmt.Errorf("retention count must be at least 1, got %d", n)
	}
	s.v.Set(keyMaxFiles, n)
	return s.save()
}

func (s *Store) PerCategorySettings() bool {
	return s.v.GetBool(keyPerCategorySettings)
}

func (s *Store) EnablePerCategorySettings() error {
	s.v.Set(keyPerCategorySettings, true)
	return s.save()
}

func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create preferences directory: %w", err)
		}
	}
	return s.v.WriteConfigAs(s.path)
}

var intervalDurations = map[string]time.Duration{
	IntervalOff:        0,
	Interval6H:         6 * time.Hour,
	Interval12H:        12 * time.Hour,
	IntervalDaily:      24 * time.Hour,
	IntervalEvery2Days: 48 * time.Hour,
	IntervalWeekly:     7 * 24 * time.Hour,
}
