package orchestrator

import (
	"context"

	"github.com/tis24dev/blocksave/internal/archive"
	"github.com/tis24dev/blocksave/internal/types"
)

// Verify checks an archive's digest and, when signing is enabled, its
// signature without restoring anything. It takes no lock: verification only
// reads.
func (o *Orchestrator) Verify(ctx context.Context, archivePath string) error {
	return o.verifyArchive(ctx, archivePath)
}

// List returns every archive of the given kind under the backup root,
// newest-first within each family. Browsing takes no lock.
func (o *Orchestrator) List(kind types.DeviceKind) ([]*types.ArchiveInfo, error) {
	return archive.ListAll(o.logger, o.cfg.BackupRoot, kind)
}

// ListFamily returns the archives of one device's family, newest-first.
func (o *Orchestrator) ListFamily(devicePath string, kind types.DeviceKind) ([]*types.ArchiveInfo, error) {
	return archive.List(o.logger, o.cfg.BackupRoot, kind, archive.SanitizeDeviceID(devicePath))
}
