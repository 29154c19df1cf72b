// Package codec maps compression algorithms to tool invocations and archive
// extensions, and exposes them as opaque stream filters so the pipeline stays
// algorithm-agnostic.
package codec

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tis24dev/blocksave/internal/types"
)

// EncryptedSuffix is appended to archive names when streaming encryption is on.
const EncryptedSuffix = ".age"

// StreamTransform is a bidirectional byte-stream filter. Implementations must
// consume r to EOF, write the transformed bytes to w, and return the first
// error encountered; they must never buffer unboundedly.
type StreamTransform interface {
	// Compress reads raw bytes from r and writes compressed bytes to w.
	Compress(ctx context.Context, r io.Reader, w io.Writer) error

	// Decompress reads compressed bytes from r and writes raw bytes to w.
	Decompress(ctx context.Context, r io.Reader, w io.Writer) error
}

// SpecError reports an algorithm/preset combination the registry cannot
// resolve. It is a configuration error: the operation must abort before any
// device I/O begins.
type SpecError struct {
	Spec types.CompressionSpec
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("unresolved compression spec: algorithm=%q preset=%q", e.Spec.Algorithm, e.Spec.Preset)
}

// compressArgs covers the full algorithm x preset cross product. A missing
// entry is a configuration error, never a silent fallback.
var compressArgs = map[types.CompressionSpec][]string{
	{Algorithm: types.CompressionZstd, Preset: types.PresetFast}:     {"-3", "-T0", "-q", "-c"},
	{Algorithm: types.CompressionZstd, Preset: types.PresetBalanced}: {"-10", "-T0", "-q", "-c"},
	{Algorithm: types.CompressionZstd, Preset: types.PresetMax}:      {"--ultra", "-22", "-T0", "-q", "-c"},

	{Algorithm: types.CompressionGzip, Preset: types.PresetFast}:     {"-1", "-c"},
	{Algorithm: types.CompressionGzip, Preset: types.PresetBalanced}: {"-6", "-c"},
	{Algorithm: types.CompressionGzip, Preset: types.PresetMax}:      {"-9", "-c"},

	{Algorithm: types.CompressionXZ, Preset: types.PresetFast}:     {"-1", "-T0", "-c"},
	{Algorithm: types.CompressionXZ, Preset: types.PresetBalanced}: {"-6", "-T0", "-c"},
	{Algorithm: types.CompressionXZ, Preset: types.PresetMax}:      {"-9", "--extreme", "-T0", "-c"},
}

var decompressArgs = map[types.CompressionType][]string{
	types.CompressionZstd: {"-d", "-q", "-c"},
	types.CompressionGzip: {"-d", "-c"},
	types.CompressionXZ:   {"-d", "-T0", "-c"},
}

var commands = map[types.CompressionType]string{
	types.CompressionZstd: "zstd",
	types.CompressionGzip: "gzip",
	types.CompressionXZ:   "xz",
}

var extensions = map[types.CompressionType]string{
	types.CompressionZstd: "img.zst",
	types.CompressionGzip: "img.gz",
	types.CompressionXZ:   "img.xz",
}

// ResolveArgs returns the compressor argument list for spec.
func ResolveArgs(spec types.CompressionSpec) ([]string, error) {
	args, ok := compressArgs[spec]
	if !ok {
		return nil, &SpecError{Spec: spec}
	}
	return append([]string(nil), args...), nil
}

// ResolveExtension returns the canonical archive extension for algo
// (without a leading dot, e.g. "img.zst").
func ResolveExtension(algo types.CompressionType) (string, error) {
	ext, ok := extensions[algo]
	if !ok {
		return "", &SpecError{Spec: types.CompressionSpec{Algorithm: algo}}
	}
	return ext, nil
}

// Command returns the external tool name for algo.
func Command(algo types.CompressionType) (string, error) {
	cmd, ok := commands[algo]
	if !ok {
		return "", &SpecError{Spec: types.CompressionSpec{Algorithm: algo}}
	}
	return cmd, nil
}

// ForExtension detects the compression algorithm from an archive path.
// A trailing encryption suffix is ignored. An unrecognized extension is a
// fatal pre-flight error: restore must not touch the destination device.
func ForExtension(path string) (types.CompressionType, error) {
	name := strings.TrimSuffix(path, EncryptedSuffix)
	for algo, ext := range extensions {
		if strings.HasSuffix(name, "."+ext) {
			return algo, nil
		}
	}
	return "", fmt.Errorf("no registered codec matches archive extension: %s", path)
}

// IsEncrypted reports whether the archive path carries the encryption suffix.
func IsEncrypted(path string) bool {
	return strings.HasSuffix(path, EncryptedSuffix)
}
