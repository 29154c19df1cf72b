// Package orchestrator drives backup, restore, and verify operations as a
// state machine: pre-flight validation, destructive-action confirmation,
// streaming, and finalization. Fatal failures at any phase return to idle
// without partially-applied side effects.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tis24dev/blocksave/internal/codec"
	"github.com/tis24dev/blocksave/internal/config"
	"github.com/tis24dev/blocksave/internal/input"
	"github.com/tis24dev/blocksave/internal/integrity"
	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/metadata"
	"github.com/tis24dev/blocksave/internal/pipeline"
	"github.com/tis24dev/blocksave/internal/types"
)

// OperationError represents an operation failure with its phase and exit code.
type OperationError struct {
	Phase string         // "preflight", "lock", "confirm", "stream", "integrity", "finalize"
	Err   error          // Underlying error
	Code  types.ExitCode // Specific exit code
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Confirmer gates destructive operations on operator input. The core never
// reads free-form text itself; it receives a typed verdict.
type Confirmer interface {
	// ConfirmDevicePath requires the operator to re-enter the exact device
	// path. A nil return means confirmed; input.ErrConfirmationMismatch or
	// input.ErrInputAborted mean the operation must not proceed.
	ConfirmDevicePath(ctx context.Context, devicePath string) error
}

// BackupStats summarizes one completed backup operation.
type BackupStats struct {
	RunID        string
	Archive      types.ArchiveInfo
	BytesRead    int64
	BytesWritten int64
	Duration     time.Duration
	RatioPercent float64
	Rotated      int
	Metadata     metadata.Summary
}

// RestoreStats summarizes one completed restore operation.
type RestoreStats struct {
	RunID        string
	ArchivePath  string
	TargetPath   string
	BytesWritten int64
	Duration     time.Duration
}

// Options configures collaborators the orchestrator cannot construct itself.
type Options struct {
	// Confirmer gates whole-disk backups and all restores. Required unless
	// every operation run is non-destructive (verify, list).
	Confirmer Confirmer

	// Signer is used when the configuration enables signing.
	Signer integrity.Signer

	// Progress receives transfer updates during streaming (optional).
	Progress pipeline.Progress

	// Passphrase supplies a decryption passphrase for restoring
	// passphrase-encrypted archives when no identity file is configured.
	Passphrase func(ctx context.Context) (string, error)

	// Stdout receives countdown and prompt output. Defaults to os.Stdout.
	Stdout io.Writer
}

// Orchestrator runs one logical operation at a time against a backup root.
type Orchestrator struct {
	logger     *logging.Logger
	cfg        *config.Config
	confirmer  Confirmer
	signer     integrity.Signer
	collector  *metadata.Collector
	progress   pipeline.Progress
	passphrase func(ctx context.Context) (string, error)
	stdout     io.Writer

	// indirections for tests
	now          func() time.Time
	newRunID     func() string
	countdown    func(ctx context.Context, seconds int) error
	newTransform func(spec types.CompressionSpec) (codec.StreamTransform, error)
}

// New builds an orchestrator over the given configuration.
func New(logger *logging.Logger, cfg *config.Config, opts Options) *Orchestrator {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	o := &Orchestrator{
		logger:     logger,
		cfg:        cfg,
		confirmer:  opts.Confirmer,
		signer:     opts.Signer,
		collector:  metadata.NewCollector(logger),
		progress:   opts.Progress,
		passphrase: opts.Passphrase,
		stdout:     stdout,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	o.countdown = func(ctx context.Context, seconds int) error {
		return input.Countdown(ctx, o.stdout, seconds)
	}
	o.newTransform = func(spec types.CompressionSpec) (codec.StreamTransform, error) {
		return codec.NewExecTransform(logger, spec)
	}
	return o
}

// preflightTransform resolves and probes the compression transform. Runs
// before any device I/O.
func (o *Orchestrator) preflightTransform(spec types.CompressionSpec) (codec.StreamTransform, error) {
	transform, err := o.newTransform(spec)
	if err != nil {
		return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
	}
	if probe, ok := transform.(interface{ Available() error }); ok {
		if err := probe.Available(); err != nil {
			return nil, &OperationError{Phase: "preflight", Err: err, Code: types.ExitConfigError}
		}
	}
	return transform, nil
}

// abortCode distinguishes operator aborts from stream failures.
func abortCode(err error) types.ExitCode {
	if input.IsAborted(err) {
		return types.ExitAbortedError
	}
	return types.ExitStreamError
}
