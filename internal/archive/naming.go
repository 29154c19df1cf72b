// Package archive implements archive naming, family listing, and retention
// for the backup root layout: partition archives directly under the root,
// whole-disk archives under the disk_backup subdirectory.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/types"
)

// TimestampFormat orders lexically the same as chronologically, at second
// resolution.
const TimestampFormat = "2006-01-02_15-04-05"

// ReportsSuffix names the metadata snapshot directory next to a whole-disk
// archive.
const ReportsSuffix = "_reports"

// SanitizeDeviceID turns a device path into a filename-safe family identifier.
// "/dev/sda1" becomes "dev_sda1".
func SanitizeDeviceID(devicePath string) string {
	id := strings.TrimPrefix(devicePath, "/")
	id = strings.ReplaceAll(id, "/", "_")
	return id
}

// Basename derives the archive basename from a sanitized device identifier
// and a timestamp. It is a pure function of its inputs.
func Basename(sanitizedID string, ts time.Time) string {
	return fmt.Sprintf("%s-%s", sanitizedID, ts.Format(TimestampFormat))
}

// FamilyDir returns the directory holding one family's archives.
func FamilyDir(backupRoot string, kind types.DeviceKind) string {
	if kind == types.DeviceWholeDisk {
		return filepath.Join(backupRoot, "disk_backup")
	}
	return backupRoot
}

// FamilyLogPath returns the per-family operation log file, living alongside
// the family's archives.
func FamilyLogPath(backupRoot string, kind types.DeviceKind, sanitizedID string) string {
	return filepath.Join(FamilyDir(backupRoot, kind), sanitizedID+".log")
}

// NextBasename returns a basename for a new archive of the family, appending
// a disambiguating counter when the second-resolution timestamp collides with
// an existing archive (same-second runs, clock rollback).
func NextBasename(dir, sanitizedID string, ts time.Time) string {
	base := Basename(sanitizedID, ts)
	if !basenameTaken(dir, base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !basenameTaken(dir, candidate) {
			return candidate
		}
	}
}

func basenameTaken(dir, base string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, base+".img.*"))
	if err != nil {
		return false
	}
	return len(matches) > 0
}

// archiveNameRe matches "{id}-{timestamp}[-counter].img.{ext}" after any
// encryption suffix has been stripped.
var archiveNameRe = regexp.MustCompile(`^(.+)-(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})(?:-\d+)?\.img\.[a-z0-9]+$`)

// ParseArchiveName extracts the sanitized device identifier and creation time
// from an archive filename. Returns an error for names this package did not
// produce.
func ParseArchiveName(filename string) (sanitizedID string, ts time.Time, err error) {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, codec.EncryptedSuffix)

	m := archiveNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, fmt.Errorf("not an archive name: %s", filename)
	}

	ts, err = time.ParseInLocation(TimestampFormat, m[2], time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("bad timestamp in archive name %s: %w", filename, err)
	}
	return m[1], ts, nil
}

// ReportsDir returns the metadata snapshot directory for an archive path.
func ReportsDir(archivePath string) string {
	name := filepath.Base(archivePath)
	name = strings.TrimSuffix(name, codec.EncryptedSuffix)
	idx := strings.Index(name, ".img.")
	if idx < 0 {
		return ""
	}
	return filepath.Join(filepath.Dir(archivePath), name[:idx]+ReportsSuffix)
}

// EnsureDir creates the family directory if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	return nil
}
