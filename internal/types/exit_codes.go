// Package types defines shared application data types.
package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Execution completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitConfigError - Configuration error (unresolved algorithm/preset, bad retention limit).
	ExitConfigError ExitCode = 2

	// ExitDeviceError - Source or target device missing, busy, or not accessible.
	ExitDeviceError ExitCode = 3

	// ExitStreamError - Failure inside the streaming pipeline (read/compress/write).
	ExitStreamError ExitCode = 4

	// ExitIntegrityError - Checksum or signature verification failure.
	ExitIntegrityError ExitCode = 5

	// ExitPermissionError - Permission error.
	ExitPermissionError ExitCode = 6

	// ExitDiskSpaceError - Insufficient disk space in the backup root.
	ExitDiskSpaceError ExitCode = 7

	// ExitAbortedError - Operation aborted by the operator.
	ExitAbortedError ExitCode = 8

	// ExitLockError - Backup root is locked by another invocation.
	ExitLockError ExitCode = 9
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitDeviceError:
		return "device error"
	case ExitStreamError:
		return "stream error"
	case ExitIntegrityError:
		return "integrity error"
	case ExitPermissionError:
		return "permission error"
	case ExitDiskSpaceError:
		return "disk space error"
	case ExitAbortedError:
		return "aborted"
	case ExitLockError:
		return "lock error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an integer.
func (e ExitCode) Int() int {
	return int(e)
}
