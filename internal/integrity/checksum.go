// Package integrity computes and verifies archive digests and detached
// signatures. The digest sidecar is mandatory after every backup; the
// signature sidecar is optional and controlled by configuration.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tis24dev/blocksave/internal/logging"
)

// ChecksumSuffix is appended to the archive path for the digest sidecar.
const ChecksumSuffix = ".sha256"

// SignatureSuffix is appended to the archive path for the signature sidecar.
const SignatureSuffix = ".sig"

// ErrChecksumMismatch is returned when a recomputed digest differs from the
// sidecar. Restore must not proceed past it.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ComputeDigest calculates the SHA256 digest of a file, streaming in chunks
// with context checking.
func ComputeDigest(ctx context.Context, logger *logging.Logger, filePath string) (string, error) {
	logger.Debug("Generating SHA256 checksum for: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := file.Read(buf)
		if n > 0 {
			if _, err := hash.Write(buf[:n]); err != nil {
				return "", fmt.Errorf("failed to write to hash: %w", err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	logger.Debug("Generated checksum: %s", digest)
	return digest, nil
}

// WriteChecksum computes the archive digest and persists it as a sidecar in
// standard sha256sum format. Returns the sidecar path.
func WriteChecksum(ctx context.Context, logger *logging.Logger, archivePath string) (string, error) {
	digest, err := ComputeDigest(ctx, logger, archivePath)
	if err != nil {
		return "", err
	}

	sidecarPath := archivePath + ChecksumSuffix
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(archivePath))
	if err := os.WriteFile(sidecarPath, []byte(line), 0640); err != nil {
		return "", fmt.Errorf("failed to write checksum sidecar: %w", err)
	}

	logger.Debug("Checksum sidecar written: %s", sidecarPath)
	return sidecarPath, nil
}

// ReadChecksum parses the digest from a sidecar file.
func ReadChecksum(sidecarPath string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", fmt.Errorf("failed to read checksum sidecar: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum sidecar: %s", sidecarPath)
	}
	digest := strings.ToLower(fields[0])
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("malformed digest in %s", sidecarPath)
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("malformed digest in %s", sidecarPath)
		}
	}
	return digest, nil
}

// VerifyChecksum recomputes the archive digest and requires an exact match
// against the sidecar. A mismatch wraps ErrChecksumMismatch.
func VerifyChecksum(ctx context.Context, logger *logging.Logger, archivePath, sidecarPath string) error {
	expected, err := ReadChecksum(sidecarPath)
	if err != nil {
		return err
	}

	actual, err := ComputeDigest(ctx, logger, archivePath)
	if err != nil {
		return fmt.Errorf("failed to recompute digest: %w", err)
	}

	if actual != expected {
		logger.Warning("Checksum mismatch! Expected: %s, Got: %s", expected, actual)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, filepath.Base(archivePath))
	}

	logger.Debug("Checksum verification passed")
	return nil
}
