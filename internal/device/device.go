// Package device validates block-device references and provides the low-level
// read/write plumbing the pipeline needs: extent queries, throughput block
// sizes, and durability flushes.
//
// Regular files are accepted everywhere a device is, so synthetic images can
// stand in for real devices in tests and dry runs.
package device

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/tis24dev/blocksave/internal/types"
)

const (
	// BlockSizePartition is the read block size for partition images.
	BlockSizePartition = 1 << 20 // 1 MiB

	// BlockSizeWholeDisk is the read block size for whole-disk images.
	BlockSizeWholeDisk = 16 << 20 // 16 MiB
)

// mountsPath is a variable so tests can point it at a fixture.
var mountsPath = "/proc/self/mounts"

// Error describes a device validation or access failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BlockSize returns the pipeline read block size for a device kind.
func BlockSize(kind types.DeviceKind) int {
	if kind == types.DeviceWholeDisk {
		return BlockSizeWholeDisk
	}
	return BlockSizePartition
}

// ValidateSource re-validates a device reference for reading. Device state can
// change between selection and execution, so this runs at use time.
func ValidateSource(ref *types.DeviceRef) error {
	info, err := os.Stat(ref.Path)
	if err != nil {
		return &Error{Op: "validate source", Path: ref.Path, Err: err}
	}
	if !info.Mode().IsRegular() && info.Mode()&os.ModeDevice == 0 {
		return &Error{Op: "validate source", Path: ref.Path, Err: fmt.Errorf("not a block device or regular file")}
	}

	f, err := os.Open(ref.Path)
	if err != nil {
		return &Error{Op: "validate source", Path: ref.Path, Err: fmt.Errorf("no read permission: %w", err)}
	}
	f.Close()
	return nil
}

// ValidateTarget re-validates a device reference for destructive writing.
func ValidateTarget(ref *types.DeviceRef) error {
	info, err := os.Stat(ref.Path)
	if err != nil {
		return &Error{Op: "validate target", Path: ref.Path, Err: err}
	}
	if !info.Mode().IsRegular() && info.Mode()&os.ModeDevice == 0 {
		return &Error{Op: "validate target", Path: ref.Path, Err: fmt.Errorf("not a block device or regular file")}
	}

	f, err := os.OpenFile(ref.Path, os.O_WRONLY, 0)
	if err != nil {
		return &Error{Op: "validate target", Path: ref.Path, Err: fmt.Errorf("no write permission: %w", err)}
	}
	f.Close()

	mounts, err := Mountpoints(ref.Path)
	if err == nil && len(mounts) > 0 {
		return &Error{Op: "validate target", Path: ref.Path,
			Err: fmt.Errorf("device is mounted at %s; unmount before restore", strings.Join(mounts, ", "))}
	}
	return nil
}

// QuerySize returns the byte extent of a device or image file.
func QuerySize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &Error{Op: "query size", Path: path, Err: err}
	}
	if info.Mode().IsRegular() {
		return info.Size(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, &Error{Op: "query size", Path: path, Err: err}
	}
	defer f.Close()

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, &Error{Op: "query size", Path: path, Err: fmt.Errorf("BLKGETSIZE64: %w", err)}
	}
	return int64(size), nil
}

// Mountpoints returns the current mountpoints of a device path, scanning the
// process mount table. A device with no entries returns an empty slice.
func Mountpoints(devicePath string) ([]string, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var mounts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] == devicePath {
			mounts = append(mounts, fields[1])
		}
	}
	return mounts, scanner.Err()
}

// Flush commits all written blocks of an open file to stable storage. Restore
// must call this before reporting success.
func Flush(f *os.File) error {
	if err := f.Sync(); err != nil {
		return &Error{Op: "flush", Path: f.Name(), Err: err}
	}
	return nil
}

// SyncAll requests a global storage sync. Whole-disk restores call this after
// the device flush, matching the durability contract of the final sync(2).
func SyncAll() {
	unix.Sync()
}
