package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// List returns one family's archives, newest first. Listing is read-only and
// never deletes anything; retention runs separately after successful backups.
func List(logger *logging.Logger, backupRoot string, kind types.DeviceKind, sanitizedID string) ([]*types.ArchiveInfo, error) {
	dir := FamilyDir(backupRoot, kind)
	matches, err := filepath.Glob(filepath.Join(dir, sanitizedID+"-*.img.*"))
	if err != nil {
		return nil, fmt.Errorf("list archives in %s: %w", dir, err)
	}

	var archives []*types.ArchiveInfo
	for _, match := range matches {
		// Sidecars share the archive's prefix; skip them here.
		if strings.HasSuffix(match, ".sha256") || strings.HasSuffix(match, ".sig") {
			continue
		}

		id, ts, err := ParseArchiveName(match)
		if err != nil {
			logger.Debug("Skipping non-archive file %s: %v", filepath.Base(match), err)
			continue
		}
		if id != sanitizedID {
			continue
		}

		info := &types.ArchiveInfo{
			Path:         match,
			CreatedAt:    ts,
			SourceDevice: id,
			Encrypted:    codec.IsEncrypted(match),
		}

		if algo, err := codec.ForExtension(match); err == nil {
			info.Compression = algo
		} else {
			logger.Debug("Archive %s has unknown codec extension", filepath.Base(match))
		}

		if stat, err := os.Stat(match); err == nil {
			info.SizeBytes = stat.Size()
		} else {
			logger.Warning("Failed to stat archive %s: %v", match, err)
		}

		if _, err := os.Stat(match + ".sha256"); err == nil {
			info.ChecksumPath = match + ".sha256"
		}
		if _, err := os.Stat(match + ".sig"); err == nil {
			info.SignaturePath = match + ".sig"
		}
		if reports := ReportsDir(match); reports != "" {
			if stat, err := os.Stat(reports); err == nil && stat.IsDir() {
				info.ReportsDir = reports
			}
		}

		archives = append(archives, info)
	}

	// Newest first; same-second collision counters break the tie by name.
	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Path > archives[j].Path
	})

	return archives, nil
}

// ListAll returns every archive under the backup root for a device kind,
// across all families, newest first. Used by the restore picker.
func ListAll(logger *logging.Logger, backupRoot string, kind types.DeviceKind) ([]*types.ArchiveInfo, error) {
	dir := FamilyDir(backupRoot, kind)
	matches, err := filepath.Glob(filepath.Join(dir, "*.img.*"))
	if err != nil {
		return nil, fmt.Errorf("list archives in %s: %w", dir, err)
	}

	seen := make(map[string]struct{})
	var archives []*types.ArchiveInfo
	for _, match := range matches {
		if strings.HasSuffix(match, ".sha256") || strings.HasSuffix(match, ".sig") {
			continue
		}
		id, _, err := ParseArchiveName(match)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		family, err := List(logger, backupRoot, kind, id)
		if err != nil {
			return nil, err
		}
		archives = append(archives, family...)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].CreatedAt.After(archives[j].CreatedAt)
	})
	return archives, nil
}
