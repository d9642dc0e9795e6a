package backup

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Storage is the opaque snapshot file sink/source. Implementations decide
// where bytes live (local disk, content provider, cloud) and whether they
// are compressed.
type Storage interface {
	Write(name string, data []byte) error
	Read(name string) ([]byte, error)
	List() ([]FileInfo, error)
	Remove(name string) error
}

// FileInfo describes one stored snapshot file.
type FileInfo struct {
	Name    string
	ModTime time.Time
}

// SchedulerPrefs is the slice of the preference store the scheduler needs.
// An interval of 0 means automatic backups are off.
type SchedulerPrefs interface {
	LastAutoBackup() int64
	SetLastAutoBackup(ts int64) error
	AutoBackupInterval() time.Duration
	DisableAutoBackup() error
	MaxAutoBackupFiles() int
}

// Scheduler decides when to build a new snapshot and prunes old files
// beyond the retention count. It provides no mutual exclusion of its own;
// the caller must not overlap MaybeRun calls.
type Scheduler struct {
	Builder *Builder
	Storage Storage
	Prefs   SchedulerPrefs

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

// MaybeRun builds and writes a snapshot if force is set or the configured
// interval has elapsed since the last successful run. Any failure disables
// automatic backups (the policy is forced to off) and is returned as a
// notice so a single bad run does not retry forever silently.
func (s *Scheduler) MaybeRun(ctx context.Context, force bool) (bool, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	if !force {
		interval := s.Prefs.AutoBackupInterval()
		if interval <= 0 {
			return false, nil
		}
		last := time.UnixMilli(s.Prefs.LastAutoBackup())
		if now.Sub(last) <= interval {
			return false, nil
		}
	}

	if err := s.run(ctx, now); err != nil {
		if derr := s.Prefs.DisableAutoBackup(); derr != nil {
			err = fmt.Errorf("%w (and disabling automatic backups failed: %v)", err, derr)
		}
		return false, fmt.Errorf("automatic backup failed and has been disabled: %w", err)
	}

	// The timestamp advances only on success so a failed run is retried
	// once the user re-enables the policy.
	if err := s.Prefs.SetLastAutoBackup(now.UnixMilli()); err != nil {
		return true, fmt.Errorf("automatic backup succeeded but recording the run failed: %w", err)
	}
	return true, nil
}

func (s *Scheduler) run(ctx context.Context, now time.Time) error {
	if err := s.prune(); err != nil {
		return fmt.Errorf("prune old snapshots: %w", err)
	}

	snap, err := s.Builder.Build(ctx, nil)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	name := fmt.Sprintf("hondana_%d.bkp.gz", now.UnixMilli())
	if err := s.Storage.Write(name, Encode(snap)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	// Sanity check: the file that was just written must decode again.
	data, err := s.Storage.Read(name)
	if err != nil {
		return fmt.Errorf("re-read %s: %w", name, err)
	}
	if _, err := LoadDump(data); err != nil {
		return fmt.Errorf("validate %s: %w", name, err)
	}
	return nil
}

// prune deletes the oldest snapshot files so that after the new one is
// written at most MaxAutoBackupFiles remain.
func (s *Scheduler) prune() error {
	keep := s.Prefs.MaxAutoBackupFiles()
	if keep < 1 {
		keep = 1
	}

	files, err := s.Storage.List()
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })

	excess := len(files) - (keep - 1)
	for i := 0; i < excess; i++ {
		if err := s.Storage.Remove(files[i].Name); err != nil {
			return err
		}
	}
	return nil
}
