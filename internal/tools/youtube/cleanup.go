package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// CacheLimits bound the size of the audio cache.
type CacheLimits struct {
	// Trigger is the size in bytes above which pruning starts.
	Trigger int64

	// Target is the size in bytes pruning brings the cache down to.
	Target int64
}

// Prune deletes the oldest files in dir until it holds at most
// limits.Target bytes, but only once it holds more than limits.Trigger.
// Files that cannot be removed are skipped. It returns the number of files
// removed.
func Prune(dir string, limits CacheLimits) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("youtube: prune: %w", err)
	}

	type file struct {
		path string
		size int64
		mod  time.Time
	}
	var (
		files []file
		total int64
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{filepath.Join(dir, e.Name()), info.Size(), info.ModTime()})
		total += info.Size()
	}
	if total <= limits.Trigger {
		return 0, nil
	}
	slices.SortFunc(files, func(a, b file) int { return a.mod.Compare(b.mod) })

	removed := 0
	var errs []error
	for _, f := range files {
		if total <= limits.Target {
			break
		}
		if err := os.Remove(f.path); err != nil {
			errs = append(errs, err)
			continue
		}
		total -= f.size
		removed++
		slog.Debug("youtube: pruned cached file", "path", f.path, "size", f.size)
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("youtube: prune: %w", err)
	}
	return removed, nil
}

// DefaultCleanupInterval is used when RunCleanup is given no interval.
const DefaultCleanupInterval = 15 * time.Minute

// RunCleanup prunes dir immediately and then every interval until ctx is
// done. Failures are logged and never stop the loop.
func RunCleanup(ctx context.Context, dir string, limits CacheLimits, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		n, err := Prune(dir, limits)
		if err != nil {
			slog.Warn("youtube: cache cleanup failed", "dir", dir, "err", err)
		}
		if n > 0 {
			slog.Info("youtube: cache pruned", "dir", dir, "removed", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
