package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/tis24dev/blocksave/internal/archive"
	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/config"
	"github.com/tis24dev/blocksave/internal/device"
	"github.com/tis24dev/blocksave/internal/integrity"
	"github.com/tis24dev/blocksave/internal/pipeline"
	"github.com/tis24dev/blocksave/internal/types"
)

// Backup images dev into a new archive of its family. The source is only
// read, so no confirmation gate applies to partitions; whole-disk backups
// are gated because full-disk reads are long-running and intentional.
func (o *Orchestrator) Backup(ctx context.Context, dev types.DeviceRef) (*BackupStats, error) {
	runID := o.newRunID()

	// Pre-flight: configuration and transform, before any device I/O.
	if err := o.cfg.Validate(); err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}
	transform, err := o.preflightTransform(o.cfg.Spec())
	if err != nil {
		return nil, err
	}
	recipients, err := parseRecipients(o.cfg)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}

	// Pre-flight: source device re-validation at use time.
	if err := device.ValidateSource(&dev); err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitDeviceError}
	}
	if dev.SizeBytes == 0 {
		size, err := device.QuerySize(dev.Path)
		if err != nil {
			return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitDeviceError}
		}
		dev.SizeBytes = size
	}
	if mounts, err := device.Mountpoints(dev.Path); err == nil && len(mounts) > 0 {
		o.logger.Warning("Source %s is mounted at %s; the image may be inconsistent unless the filesystem is quiesced",
			dev.Path, strings.Join(mounts, ", "))
	}

	familyDir := archive.FamilyDir(o.cfg.BackupRoot, dev.Kind)
	if err := archive.EnsureDir(familyDir); err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitPermissionError}
	}

	lock, err := acquireLock(o.logger, o.cfg.BackupRoot)
	if err != nil {
		return nil, lockError(err)
	}
	defer lock.release(o.logger)

	// Whole-disk backups gate on re-typing the disk path before streaming.
	if dev.Kind == types.DeviceWholeDisk {
		if o.confirmer == nil {
			return nil, &OperationError{Phase: "confirm", Err: fmt.Errorf("whole-disk backup requires a confirmation collaborator"), Code: types.ExitAbortedError}
		}
		if err := o.confirmer.ConfirmDevicePath(ctx, dev.Path); err != nil {
			return nil, &OperationError{Phase: "confirm", Err: err, Code: types.ExitAbortedError}
		}
	}

	sanitizedID := archive.SanitizeDeviceID(dev.Path)
	ext, err := codec.ResolveExtension(o.cfg.Algorithm)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}
	base := archive.NextBasename(familyDir, sanitizedID, o.now())
	archivePath := filepath.Join(familyDir, base+"."+ext)
	if len(recipients) > 0 {
		archivePath += codec.EncryptedSuffix
	}

	logPath := archive.FamilyLogPath(o.cfg.BackupRoot, dev.Kind, sanitizedID)
	appendFamilyLog(o.logger, logPath, runID, "BACKUP START device=%s size=%d archive=%s", dev.Path, dev.SizeBytes, filepath.Base(archivePath))

	stats := &BackupStats{RunID: runID}

	// Metadata snapshots are captured before the long streaming phase so the
	// layout matches what is about to be imaged.
	if dev.Kind == types.DeviceWholeDisk {
		summary, err := o.collector.Collect(ctx, dev, archive.ReportsDir(archivePath))
		if err != nil {
			o.cleanupPartial(archivePath)
			appendFamilyLog(o.logger, logPath, runID, "BACKUP FAILED device=%s error=%v", dev.Path, err)
			return nil, &OperationError{Phase: "stream", Err: err, Code: abortCode(err)}
		}
		stats.Metadata = summary
	}

	o.logger.Step("Backing up %s (%d bytes) to %s", dev.Path, dev.SizeBytes, archivePath)
	result, err := pipeline.Backup(ctx, o.logger, pipeline.BackupOptions{
		SourcePath:  dev.Path,
		SourceSize:  dev.SizeBytes,
		BlockSize:   device.BlockSize(dev.Kind),
		Transform:   transform,
		ArchivePath: archivePath,
		Recipients:  recipients,
		Progress:    o.progress,
	})
	if err != nil {
		// A partial archive must never survive with sidecars or reports
		// implying completeness.
		o.cleanupPartial(archivePath)
		appendFamilyLog(o.logger, logPath, runID, "BACKUP FAILED device=%s error=%v", dev.Path, err)
		return nil, &OperationError{Phase: "stream", Err: err, Code: abortCode(err)}
	}

	// Finalizing: digest is mandatory, signature best-effort.
	o.logger.Step("Finalizing %s", filepath.Base(archivePath))
	checksumPath, err := integrity.WriteChecksum(ctx, o.logger, archivePath)
	if err != nil {
		o.cleanupPartial(archivePath)
		appendFamilyLog(o.logger, logPath, runID, "BACKUP FAILED device=%s error=%v", dev.Path, err)
		return nil, &OperationError{Phase: "finalize", Err: err, Code: types.ExitIntegrityError}
	}

	signaturePath := ""
	if o.cfg.SigningEnabled && o.signer != nil {
		sigPath, err := o.signer.Sign(ctx, archivePath)
		if err != nil {
			o.logger.Warning("Signing failed (%s): %v. Backup remains valid without a signature.", o.signer.Name(), err)
		} else {
			signaturePath = sigPath
		}
	}

	stats.Archive = types.ArchiveInfo{
		Path:          archivePath,
		SizeBytes:     result.BytesWritten,
		CreatedAt:     o.now(),
		SourceDevice:  sanitizedID,
		Compression:   o.cfg.Algorithm,
		Encrypted:     len(recipients) > 0,
		ChecksumPath:  checksumPath,
		SignaturePath: signaturePath,
	}
	if dev.Kind == types.DeviceWholeDisk {
		stats.Archive.ReportsDir = archive.ReportsDir(archivePath)
	}
	stats.BytesRead = result.BytesRead
	stats.BytesWritten = result.BytesWritten
	stats.Duration = result.Duration
	stats.RatioPercent = result.Ratio()

	// Rotation runs only after a successful backup of this same family.
	family, err := archive.List(o.logger, o.cfg.BackupRoot, dev.Kind, sanitizedID)
	if err != nil {
		o.logger.Warning("Skipping rotation: failed to list family %s: %v", sanitizedID, err)
	} else {
		deleted, err := archive.Rotate(ctx, o.logger, family, o.cfg.RetentionLimit)
		stats.Rotated = deleted
		if err != nil {
			o.logger.Warning("Rotation incomplete for family %s: %v. Over-limit archives remain on disk.", sanitizedID, err)
		}
	}

	appendFamilyLog(o.logger, logPath, runID, "BACKUP SUCCESS device=%s archive=%s bytes=%d ratio=%.2f%%",
		dev.Path, filepath.Base(archivePath), result.BytesWritten, stats.RatioPercent)
	o.logger.Info("Backup of %s completed: %s (%.2f%% of source, %s)",
		dev.Path, archivePath, stats.RatioPercent, result.Duration.Round(time.Millisecond))
	return stats, nil
}

// cleanupPartial removes a failed backup's partial archive and its reports
// directory. Sidecars cannot exist yet: they are only written after the
// pipeline succeeds.
func (o *Orchestrator) cleanupPartial(archivePath string) {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		o.logger.Warning("Failed to remove partial archive %s: %v", archivePath, err)
	}
	if reports := archive.ReportsDir(archivePath); reports != "" {
		if err := os.RemoveAll(reports); err != nil {
			o.logger.Warning("Failed to remove reports directory %s: %v", reports, err)
		}
	}
}

// parseRecipients resolves the configured age recipients. Empty when
// encryption is disabled.
func parseRecipients(cfg *config.Config) ([]age.Recipient, error) {
	if !cfg.EncryptEnabled {
		return nil, nil
	}
	recipients := make([]age.Recipient, 0, len(cfg.AgeRecipients))
	for _, r := range cfg.AgeRecipients {
		rec, err := age.ParseX25519Recipient(r)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %q: %w", r, err)
		}
		recipients = append(recipients, rec)
	}
	return recipients, nil
}
