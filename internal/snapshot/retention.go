package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Retention removes day directories older than a number of days.
type Retention struct {
	Dir  string
	Days int
}

// Sweep deletes day directories whose date is more than Days days before
// now's UTC day. Entries that are not day directories are left alone. A
// non-positive Days disables the sweep.
func (r Retention) Sweep(now time.Time) ([]string, error) {
	if r.Days <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshot dir: %w", err)
	}

	today := now.UTC().Truncate(24 * time.Hour)
	cutoff := today.AddDate(0, 0, -r.Days)

	var removed []string
	var firstErr error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		day, err := time.Parse(dayLayout, e.Name())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(r.Dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove %s: %w", path, err)
			}
			continue
		}
		removed = append(removed, path)
	}
	return removed, firstErr
}
