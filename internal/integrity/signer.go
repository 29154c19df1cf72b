package integrity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/crypto/ssh"

	"github.com/tis24dev/blocksave/internal/logging"
)

// ErrSignatureInvalid is returned when a signature fails verification.
var ErrSignatureInvalid = errors.New("signature verification failed")

// ErrSignatureMissing is returned when signing is enabled but no signature
// sidecar exists for the archive being restored.
var ErrSignatureMissing = errors.New("signature sidecar missing")

// Signer produces and verifies detached signatures over archive files.
type Signer interface {
	// Name identifies the signer implementation for logs.
	Name() string

	// Sign writes a detached signature sidecar for archivePath and returns
	// the sidecar path.
	Sign(ctx context.Context, archivePath string) (string, error)

	// Verify checks the detached signature at sigPath against archivePath.
	// A bad signature wraps ErrSignatureInvalid.
	Verify(ctx context.Context, archivePath, sigPath string) error
}

// GPGSigner shells out to gpg for detached binary signatures.
type GPGSigner struct {
	logger *logging.Logger
	keyID  string

	// commandContext is an indirection for tests.
	commandContext func(context.Context, string, ...string) *exec.Cmd
}

// NewGPGSigner builds a signer using the given GPG key id.
func NewGPGSigner(logger *logging.Logger, keyID string) *GPGSigner {
	return &GPGSigner{
		logger:         logger,
		keyID:          keyID,
		commandContext: exec.CommandContext,
	}
}

// Name implements Signer.
func (s *GPGSigner) Name() string { return "gpg" }

// SetCommandContext overrides process creation (for tests).
func (s *GPGSigner) SetCommandContext(fn func(context.Context, string, ...string) *exec.Cmd) {
	s.commandContext = fn
}

// Sign implements Signer.
func (s *GPGSigner) Sign(ctx context.Context, archivePath string) (string, error) {
	sigPath := archivePath + SignatureSuffix
	cmd := s.commandContext(ctx, "gpg",
		"--batch", "--yes",
		"--local-user", s.keyID,
		"--output", sigPath,
		"--detach-sign", archivePath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("gpg detach-sign failed: %w (output: %s)", err, bytes.TrimSpace(output))
	}
	s.logger.Debug("Signature sidecar written: %s", sigPath)
	return sigPath, nil
}

// Verify implements Signer.
func (s *GPGSigner) Verify(ctx context.Context, archivePath, sigPath string) error {
	cmd := s.commandContext(ctx, "gpg", "--batch", "--verify", sigPath, archivePath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: gpg: %s", ErrSignatureInvalid, bytes.TrimSpace(output))
	}
	s.logger.Debug("Signature verification passed (gpg)")
	return nil
}

// SSHSigner signs the archive's SHA256 digest with an SSH private key. The
// sidecar holds the SSH wire-format signature. Verification reuses the same
// key file, so it works on the host that made the backup without a keyring.
type SSHSigner struct {
	logger  *logging.Logger
	keyPath string
}

// NewSSHSigner builds a signer backed by an (unencrypted) SSH private key file.
func NewSSHSigner(logger *logging.Logger, keyPath string) *SSHSigner {
	return &SSHSigner{logger: logger, keyPath: keyPath}
}

// Name implements Signer.
func (s *SSHSigner) Name() string { return "ssh" }

func (s *SSHSigner) loadKey() (ssh.Signer, error) {
	pem, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key %s: %w", s.keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key %s: %w", s.keyPath, err)
	}
	return signer, nil
}

func (s *SSHSigner) digestFor(ctx context.Context, archivePath string) ([]byte, error) {
	digest, err := ComputeDigest(ctx, s.logger, archivePath)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(digest))
	return sum[:], nil
}

// Sign implements Signer.
func (s *SSHSigner) Sign(ctx context.Context, archivePath string) (string, error) {
	key, err := s.loadKey()
	if err != nil {
		return "", err
	}

	payload, err := s.digestFor(ctx, archivePath)
	if err != nil {
		return "", err
	}

	sig, err := key.Sign(rand.Reader, payload)
	if err != nil {
		return "", fmt.Errorf("ssh sign failed: %w", err)
	}

	sigPath := archivePath + SignatureSuffix
	if err := os.WriteFile(sigPath, ssh.Marshal(sig), 0640); err != nil {
		return "", fmt.Errorf("failed to write signature sidecar: %w", err)
	}
	s.logger.Debug("Signature sidecar written: %s", sigPath)
	return sigPath, nil
}

// Verify implements Signer.
func (s *SSHSigner) Verify(ctx context.Context, archivePath, sigPath string) error {
	key, err := s.loadKey()
	if err != nil {
		return err
	}

	payload, err := s.digestFor(ctx, archivePath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("read signature sidecar %s: %w", sigPath, err)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(raw, &sig); err != nil {
		return fmt.Errorf("%w: malformed signature: %v", ErrSignatureInvalid, err)
	}

	if err := key.PublicKey().Verify(payload, &sig); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	s.logger.Debug("Signature verification passed (ssh)")
	return nil
}
