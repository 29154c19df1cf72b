package types

import "time"

// CompressionType represents the compression algorithm.
type CompressionType string

const (
	// CompressionZstd - zstd compression
	CompressionZstd CompressionType = "zstd"

	// CompressionGzip - gzip compression
	CompressionGzip CompressionType = "gzip"

	// CompressionXZ - xz compression (LZMA)
	CompressionXZ CompressionType = "xz"
)

// String returns the string representation of the compression type.
func (c CompressionType) String() string {
	return string(c)
}

// CompressionPreset selects the effort/speed trade-off of an algorithm.
type CompressionPreset string

const (
	// PresetFast - favor throughput over ratio
	PresetFast CompressionPreset = "fast"

	// PresetBalanced - default trade-off
	PresetBalanced CompressionPreset = "balanced"

	// PresetMax - favor ratio over throughput
	PresetMax CompressionPreset = "max"
)

// String returns the string representation of the preset.
func (p CompressionPreset) String() string {
	return string(p)
}

// CompressionSpec pairs an algorithm with a preset. Every valid pair resolves
// deterministically to one tool invocation and one file extension.
type CompressionSpec struct {
	Algorithm CompressionType
	Preset    CompressionPreset
}

// DeviceKind distinguishes partition backups from whole-disk backups.
// The two kinds form separate archive families and use different layouts.
type DeviceKind string

const (
	// DevicePartition - a single partition (e.g. /dev/sda2)
	DevicePartition DeviceKind = "partition"

	// DeviceWholeDisk - an entire disk including the partition table
	DeviceWholeDisk DeviceKind = "whole_disk"
)

// String returns the string representation of the device kind.
func (d DeviceKind) String() string {
	return string(d)
}

// DeviceRef identifies a source or target block device for one operation.
// It is immutable once obtained; device state is re-validated at use time
// because mount state and presence can change between selection and execution.
type DeviceRef struct {
	// Path is the absolute device node path (e.g. /dev/sda1)
	Path string

	// SizeBytes is the device extent in bytes (0 until queried)
	SizeBytes int64

	// Kind is partition or whole_disk
	Kind DeviceKind

	// Mountpoints lists current mountpoints, if any (informational)
	Mountpoints []string
}

// ArchiveInfo describes one completed backup archive and its sidecars.
type ArchiveInfo struct {
	// Path is the full path to the archive file
	Path string

	// SizeBytes is the archive file size
	SizeBytes int64

	// CreatedAt is the creation timestamp parsed from the basename
	CreatedAt time.Time

	// SourceDevice is the sanitized source device identifier
	SourceDevice string

	// Compression is the algorithm inferred from the extension
	Compression CompressionType

	// Encrypted reports whether the archive carries a trailing .age layer
	Encrypted bool

	// ChecksumPath is the .sha256 sidecar path ("" if absent)
	ChecksumPath string

	// SignaturePath is the .sig sidecar path ("" if absent)
	SignaturePath string

	// ReportsDir is the metadata snapshot directory ("" if absent)
	ReportsDir string
}

// HasChecksum reports whether a digest sidecar exists for this archive.
func (a *ArchiveInfo) HasChecksum() bool {
	return a.ChecksumPath != ""
}

// HasSignature reports whether a signature sidecar exists for this archive.
func (a *ArchiveInfo) HasSignature() bool {
	return a.SignaturePath != ""
}

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}
