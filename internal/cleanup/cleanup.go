package cleanup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/media_downloader/internal/logctx"
)

// RemoveStale deletes top-level entries of dir that keep rejects and that were
// last modified more than olderThan ago. It returns how many entries it removed.
// A missing dir is not an error.
func RemoveStale(ctx context.Context, dir string, olderThan time.Duration, keep func(name string) bool) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	var (
		removed int
		errs    []error
	)

	for _, entry := range entries {
		if keep != nil && keep(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat file", "file", path, "err", err)
			errs = append(errs, err)

			continue
		}

		if now.Sub(info.ModTime()) < olderThan {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			logger.Error("failed to delete stale file", "file", path, "err", err)
			errs = append(errs, err)

			continue
		}

		removed++

		logger.Info("deleted stale file", "file", path)
	}

	return removed, errors.Join(errs...)
}
