package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// RetentionError reports a failure to delete an over-limit archive. It is
// non-fatal to the backup that triggered rotation, but must be surfaced
// because the retention invariant is broken until the file goes away.
type RetentionError struct {
	Path string
	Err  error
}

func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention: failed to delete %s: %v", e.Path, e.Err)
}

func (e *RetentionError) Unwrap() error {
	return e.Err
}

// Rotate enforces the retention limit on one family: the limit newest
// archives are kept, everything older is deleted together with its sidecars
// and metadata snapshot directory. Sidecar deletion is best-effort; a failed
// primary deletion is collected into the returned error.
//
// Rotation runs only after a successful backup of the same family, never as a
// side effect of restore or browsing.
func Rotate(ctx context.Context, logger *logging.Logger, family []*types.ArchiveInfo, limit int) (int, error) {
	if limit < 1 {
		return 0, fmt.Errorf("retention limit must be >= 1, got %d", limit)
	}
	if len(family) <= limit {
		logger.Debug("Retention: %d archive(s) within limit %d, nothing to rotate", len(family), limit)
		return 0, nil
	}

	var firstErr error
	deleted := 0
	for _, info := range family[limit:] {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		logger.Info("Retention: deleting %s (beyond limit %d)", filepath.Base(info.Path), limit)
		if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
			logger.Error("Retention: failed to delete archive %s: %v", info.Path, err)
			if firstErr == nil {
				firstErr = &RetentionError{Path: info.Path, Err: err}
			}
			// Leave the sidecars with their archive; they must not outlive it,
			// and it is still here.
			continue
		}
		deleted++

		removeSidecar(logger, info.Path+".sha256")
		removeSidecar(logger, info.Path+".sig")

		if reports := ReportsDir(info.Path); reports != "" {
			if err := os.RemoveAll(reports); err != nil {
				logger.Warning("Retention: failed to delete reports dir %s: %v", reports, err)
			}
		}
	}

	return deleted, firstErr
}

// removeSidecar deletes a sidecar file best-effort. A missing sidecar is not
// an error.
func removeSidecar(logger *logging.Logger, path string) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return
		}
		logger.Warning("Retention: failed to delete sidecar %s: %v", path, err)
	}
}
