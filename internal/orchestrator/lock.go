package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// lockFileName lives directly under the backup root. Backup and restore take
// the lock; browsing and verification do not.
const lockFileName = ".blocksave.lock"

// staleLockAge bounds how long a lock from a dead process is honored. No
// single device image should stream longer than this.
const staleLockAge = 24 * time.Hour

type lockHandle struct {
	path string
}

// acquireLock takes the advisory cross-process lock for the backup root.
// A lock older than staleLockAge is assumed to belong to a dead process and
// is broken with a warning.
func acquireLock(logger *logging.Logger, backupRoot string) (*lockHandle, error) {
	path := filepath.Join(backupRoot, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
		if err == nil {
			fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
			f.Close()
			logger.Debug("Acquired backup root lock: %s", path)
			return &lockHandle{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file %s: %w", path, err)
		}

		holder, age, readErr := readLock(path)
		if readErr != nil {
			// Lock vanished between the failed create and the read: retry.
			if os.IsNotExist(readErr) {
				continue
			}
			return nil, fmt.Errorf("backup root is locked (%s) and the lock is unreadable: %w", path, readErr)
		}
		if age < staleLockAge {
			return nil, fmt.Errorf("backup root is locked by %s (held %s); concurrent operations on the same backup root are not supported", holder, age.Round(time.Second))
		}

		logger.Warning("Breaking stale lock %s held by %s for %s", path, holder, age.Round(time.Second))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("failed to acquire lock %s after breaking a stale one", path)
}

func readLock(path string) (holder string, age time.Duration, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}
	holder = "unknown"
	created := time.Time{}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "pid="); ok {
			holder = "pid " + v
		}
		if v, ok := strings.CutPrefix(line, "time="); ok {
			if t, perr := time.Parse(time.RFC3339, v); perr == nil {
				created = t
			}
		}
	}
	if created.IsZero() {
		if info, serr := os.Stat(path); serr == nil {
			created = info.ModTime()
		}
	}
	return holder, time.Since(created), nil
}

// release removes the lock file. Failure to release only warns: the stale
// lock handling covers the pathological cases.
func (l *lockHandle) release(logger *logging.Logger) {
	if l == nil {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logger.Warning("Failed to release lock %s: %v", l.path, err)
	}
}

// lockError wraps lock acquisition failures with the dedicated exit code.
func lockError(err error) *OperationError {
	return &OperationError{Phase: "lock", Err: err, Code: types.ExitLockError}
}
