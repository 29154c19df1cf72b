// Package pipeline wires the streaming data path for backup and restore:
// device read, progress metering, compression or decompression, and the
// destination write. Stages run concurrently connected by pipes, so device
// I/O and CPU-bound compression overlap; back-pressure comes from blocking
// pipe writes and nothing buffers unboundedly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"filippo.io/age"

	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/device"
	"github.com/tis24dev/blocksave/internal/logging"
)

// errCompressAborted is injected into the read pipe when the compress stage
// fails on its own, so the unblocked reader does not report a read failure.
var errCompressAborted = errors.New("compress stage aborted")

// StageError identifies which pipeline stage failed. Any stage failure aborts
// the whole pipeline; there is no partial success.
type StageError struct {
	Stage string // "read", "compress", "decompress", "decrypt", "write", "flush"
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result summarizes a completed pipeline run.
type Result struct {
	BytesRead    int64
	BytesWritten int64
	Duration     time.Duration
}

// Ratio returns the output/input size ratio in percent (e.g. 42.17 for an
// archive 42.17% the size of the source extent).
func (r *Result) Ratio() float64 {
	if r.BytesRead == 0 {
		return 0
	}
	return float64(r.BytesWritten) / float64(r.BytesRead) * 100
}

// BackupOptions configures one backup pipeline run.
type BackupOptions struct {
	SourcePath  string
	SourceSize  int64 // full declared extent; reads never truncate
	BlockSize   int
	Transform   codec.StreamTransform
	ArchivePath string
	Recipients  []age.Recipient // non-empty enables streaming encryption
	Progress    Progress
}

// Backup runs the backup direction: read(device) -> meter -> compress ->
// write(archive). The archive file is fsynced before success is reported.
// On any stage failure the partial archive is left for the caller to discard.
func Backup(ctx context.Context, logger *logging.Logger, opts BackupOptions) (result *Result, err error) {
	start := time.Now()

	src, err := os.Open(opts.SourcePath)
	if err != nil {
		return nil, &StageError{Stage: "read", Err: err}
	}
	defer src.Close()

	out, err := os.OpenFile(opts.ArchivePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, &StageError{Stage: "write", Err: err}
	}
	defer out.Close()

	counted := &countingWriter{w: out}
	var dest io.Writer = counted
	finalize := func() error { return nil }
	if len(opts.Recipients) > 0 {
		encWriter, encErr := age.Encrypt(counted, opts.Recipients...)
		if encErr != nil {
			return nil, &StageError{Stage: "write", Err: fmt.Errorf("initialize age encryption: %w", encErr)}
		}
		logger.Debug("Encrypting archive via age (streaming)")
		dest = encWriter
		finalize = encWriter.Close
	}

	// Read stage: pump the full declared extent through a pipe in fixed-size
	// blocks. CloseWithError propagates a read failure to the compressor.
	pr, pw := io.Pipe()
	readErr := make(chan error, 1)
	go func() {
		defer close(readErr)
		buf := make([]byte, opts.BlockSize)
		n, err := io.CopyBuffer(pw, io.LimitReader(src, opts.SourceSize), buf)
		if err == nil && n < opts.SourceSize {
			err = fmt.Errorf("short read: %d of %d bytes", n, opts.SourceSize)
		}
		if err != nil {
			pw.CloseWithError(err)
			readErr <- err
			return
		}
		pw.Close()
		readErr <- nil
	}()

	meter := NewMeter(pr, opts.SourceSize, opts.Progress)

	compressErr := opts.Transform.Compress(ctx, meter, dest)
	if compressErr != nil {
		// Unblock the read stage; its pipe writes fail once pr is closed.
		// The sentinel marks the close as compressor-induced so the reader's
		// resulting write error is not mistaken for a device read failure.
		pr.CloseWithError(errCompressAborted)
	}

	// Join the read stage before reporting, so no goroutine outlives the
	// pipeline. A device read failure is the root cause when both stages
	// error: the compressor only sees its echo through the pipe.
	rErr := <-readErr
	if errors.Is(rErr, errCompressAborted) {
		rErr = nil
	}
	if finErr := finalize(); finErr != nil && compressErr == nil && rErr == nil {
		return nil, &StageError{Stage: "write", Err: fmt.Errorf("finalize encrypted archive: %w", finErr)}
	}
	if rErr != nil {
		return nil, &StageError{Stage: "read", Err: rErr}
	}
	if compressErr != nil {
		return nil, &StageError{Stage: "compress", Err: compressErr}
	}

	if err := out.Sync(); err != nil {
		return nil, &StageError{Stage: "flush", Err: err}
	}

	return &Result{
		BytesRead:    meter.Transferred(),
		BytesWritten: counted.n.Load(),
		Duration:     time.Since(start),
	}, nil
}

// RestoreOptions configures one restore pipeline run.
type RestoreOptions struct {
	ArchivePath string
	ArchiveSize int64
	Transform   codec.StreamTransform
	TargetPath  string
	Identities  []age.Identity // required when the archive is encrypted
	Progress    Progress
	SyncAll     bool // whole-disk restores request a global storage sync
}

// Restore runs the restore direction: read(archive) -> meter -> [decrypt] ->
// decompress -> write(device), followed by an explicit durability flush of
// the target before success is reported.
func Restore(ctx context.Context, logger *logging.Logger, opts RestoreOptions) (*Result, error) {
	start := time.Now()

	in, err := os.Open(opts.ArchivePath)
	if err != nil {
		return nil, &StageError{Stage: "read", Err: err}
	}
	defer in.Close()

	meter := NewMeter(in, opts.ArchiveSize, opts.Progress)

	var stream io.Reader = meter
	if codec.IsEncrypted(opts.ArchivePath) {
		if len(opts.Identities) == 0 {
			return nil, &StageError{Stage: "decrypt", Err: fmt.Errorf("archive is encrypted but no identity is configured")}
		}
		decrypted, decErr := age.Decrypt(meter, opts.Identities...)
		if decErr != nil {
			return nil, &StageError{Stage: "decrypt", Err: decErr}
		}
		logger.Debug("Decrypting archive via age (streaming)")
		stream = decrypted
	}

	dst, err := os.OpenFile(opts.TargetPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, &StageError{Stage: "write", Err: err}
	}
	defer dst.Close()

	counted := &countingWriter{w: dst}
	if err := opts.Transform.Decompress(ctx, stream, counted); err != nil {
		return nil, &StageError{Stage: "decompress", Err: err}
	}

	// All written blocks must hit stable storage before success.
	if err := device.Flush(dst); err != nil {
		return nil, &StageError{Stage: "flush", Err: err}
	}
	if opts.SyncAll {
		logger.Debug("Requesting global storage sync")
		device.SyncAll()
	}

	return &Result{
		BytesRead:    meter.Transferred(),
		BytesWritten: counted.n.Load(),
		Duration:     time.Since(start),
	}, nil
}
