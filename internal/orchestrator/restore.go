package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"filippo.io/age"

	"github.com/tis24dev/blocksave/internal/archive"
	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/device"
	"github.com/tis24dev/blocksave/internal/integrity"
	"github.com/tis24dev/blocksave/internal/pipeline"
	"github.com/tis24dev/blocksave/internal/types"
)

// Restore writes archivePath back onto dev. The integrity chain is strictly
// sequential: digest check, then signature check, then the destructive
// confirmation gate and countdown. No device write happens before all three
// pass.
func (o *Orchestrator) Restore(ctx context.Context, archivePath string, dev types.DeviceRef) (*RestoreStats, error) {
	runID := o.newRunID()

	if err := o.cfg.Validate(); err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: fmt.Errorf("archive not accessible: %w", err), Code: types.ExitGenericError}
	}

	algo, err := codec.ForExtension(archivePath)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}
	transform, opErr := o.preflightTransform(types.CompressionSpec{Algorithm: algo, Preset: o.cfg.Preset})
	if opErr != nil {
		return nil, opErr
	}

	identities, err := o.loadIdentities(ctx, archivePath)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}

	if err := device.ValidateTarget(&dev); err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitDeviceError}
	}

	lock, err := acquireLock(o.logger, o.cfg.BackupRoot)
	if err != nil {
		return nil, lockError(err)
	}
	defer lock.release(o.logger)

	sanitizedID, _, parseErr := archive.ParseArchiveName(archivePath)
	logPath := ""
	if parseErr == nil {
		logPath = archive.FamilyLogPath(o.cfg.BackupRoot, dev.Kind, sanitizedID)
		appendFamilyLog(o.logger, logPath, runID, "RESTORE START archive=%s target=%s", filepath.Base(archivePath), dev.Path)
	}

	// Verifying.
	o.logger.Step("Verifying archive %s", filepath.Base(archivePath))
	if err := o.verifyArchive(ctx, archivePath); err != nil {
		if logPath != "" {
			appendFamilyLog(o.logger, logPath, runID, "RESTORE FAILED archive=%s error=%v", filepath.Base(archivePath), err)
		}
		return nil, err
	}

	// Confirming: the operator re-types the target device path, then gets a
	// final countdown window to abort before the first destructive write.
	if o.confirmer == nil {
		return nil, &OperationError{Phase: "confirm", Err: fmt.Errorf("restore requires a confirmation collaborator"), Code: types.ExitAbortedError}
	}
	if err := o.confirmer.ConfirmDevicePath(ctx, dev.Path); err != nil {
		return nil, &OperationError{Phase: "confirm", Err: err, Code: types.ExitAbortedError}
	}
	if err := o.countdown(ctx, o.cfg.RestoreDelaySeconds); err != nil {
		return nil, &OperationError{Phase: "confirm", Err: err, Code: types.ExitAbortedError}
	}

	o.logger.Step("Restoring %s onto %s", archivePath, dev.Path)
	result, err := pipeline.Restore(ctx, o.logger, pipeline.RestoreOptions{
		ArchivePath: archivePath,
		ArchiveSize: info.Size(),
		Transform:   transform,
		TargetPath:  dev.Path,
		Identities:  identities,
		Progress:    o.progress,
		SyncAll:     dev.Kind == types.DeviceWholeDisk,
	})
	if err != nil {
		if logPath != "" {
			appendFamilyLog(o.logger, logPath, runID, "RESTORE FAILED archive=%s target=%s error=%v", filepath.Base(archivePath), dev.Path, err)
		}
		return nil, &OperationError{Phase: "stream", Err: err, Code: abortCode(err)}
	}

	if logPath != "" {
		appendFamilyLog(o.logger, logPath, runID, "RESTORE SUCCESS archive=%s target=%s bytes=%d", filepath.Base(archivePath), dev.Path, result.BytesWritten)
	}
	o.logger.Info("Restore of %s completed: %d bytes written in %s", dev.Path, result.BytesWritten, result.Duration.Round(time.Millisecond))
	return &RestoreStats{
		RunID:        runID,
		ArchivePath:  archivePath,
		TargetPath:   dev.Path,
		BytesWritten: result.BytesWritten,
		Duration:     result.Duration,
	}, nil
}

// verifyArchive runs the pre-restore integrity chain: digest first, then
// signature. Digest absence is a warning; a bad digest, or a bad or missing
// signature when signing is enabled, is fatal.
func (o *Orchestrator) verifyArchive(ctx context.Context, archivePath string) error {
	checksumPath := archivePath + integrity.ChecksumSuffix
	if _, err := os.Stat(checksumPath); err != nil {
		if !os.IsNotExist(err) {
			return &OperationError{Phase: "integrity", Err: err, Code: types.ExitIntegrityError}
		}
		o.logger.Warning("No digest sidecar for %s; restoring without integrity verification", archivePath)
	} else {
		if err := integrity.VerifyChecksum(ctx, o.logger, archivePath, checksumPath); err != nil {
			return &OperationError{Phase: "integrity", Err: err, Code: types.ExitIntegrityError}
		}
		o.logger.Info("Digest verification passed: %s", filepath.Base(checksumPath))
	}

	if o.cfg.SigningEnabled {
		if o.signer == nil {
			return &OperationError{Phase: "integrity", Err: fmt.Errorf("signing is enabled but no signer is configured"), Code: types.ExitIntegrityError}
		}
		sigPath := archivePath + integrity.SignatureSuffix
		if _, err := os.Stat(sigPath); err != nil {
			return &OperationError{Phase: "integrity", Err: fmt.Errorf("%w: %s", integrity.ErrSignatureMissing, sigPath), Code: types.ExitIntegrityError}
		}
		if err := o.signer.Verify(ctx, archivePath, sigPath); err != nil {
			return &OperationError{Phase: "integrity", Err: err, Code: types.ExitIntegrityError}
		}
		o.logger.Info("Signature verification passed (%s): %s", o.signer.Name(), filepath.Base(sigPath))
	}
	return nil
}

// loadIdentities resolves decryption identities for an encrypted archive:
// the configured age identity file, or a prompted passphrase (scrypt
// identity) when none is configured.
func (o *Orchestrator) loadIdentities(ctx context.Context, archivePath string) ([]age.Identity, error) {
	if !codec.IsEncrypted(archivePath) {
		return nil, nil
	}
	if o.cfg.AgeIdentity == "" {
		if o.passphrase == nil {
			return nil, fmt.Errorf("archive %s is encrypted but age_identity is not configured", filepath.Base(archivePath))
		}
		pass, err := o.passphrase(ctx)
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		id, err := age.NewScryptIdentity(pass)
		if err != nil {
			return nil, fmt.Errorf("build passphrase identity: %w", err)
		}
		return []age.Identity{id}, nil
	}
	f, err := os.Open(o.cfg.AgeIdentity)
	if err != nil {
		return nil, fmt.Errorf("open age identity file: %w", err)
	}
	defer f.Close()
	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identity file %s: %w", o.cfg.AgeIdentity, err)
	}
	return identities, nil
}
