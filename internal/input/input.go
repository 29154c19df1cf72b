// Package input provides cancellable interactive prompts. Reads from a
// terminal cannot be interrupted directly, so every helper runs the
// blocking read in a goroutine and races it against the context.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrInputAborted signals that interactive input was interrupted (typically via
// Ctrl+C causing context cancellation and/or stdin closure).
var ErrInputAborted = errors.New("input aborted")

// ErrConfirmationMismatch signals that the user typed something other than the
// value a destructive operation asked them to confirm.
var ErrConfirmationMismatch = errors.New("confirmation mismatch")

// IsAborted reports whether an operation was aborted by the user, by checking
// for ErrInputAborted and context cancellation.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInputAborted) || errors.Is(err, context.Canceled)
}

// MapInputError normalizes common stdin errors (EOF/closed fd) into ErrInputAborted.
func MapInputError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return ErrInputAborted
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "use of closed file") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed") {
		return ErrInputAborted
	}
	return err
}

// ReadLineWithContext reads a single line and supports cancellation. On ctx
// cancellation or stdin closure it returns ErrInputAborted. On ctx deadline it
// returns context.DeadlineExceeded.
func ReadLineWithContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: MapInputError(err)}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", context.DeadlineExceeded
		}
		return "", ErrInputAborted
	case res := <-ch:
		return res.line, res.err
	}
}

// ReadPasswordWithContext reads a password (no echo) and supports cancellation.
// The readPassword function is typically term.ReadPassword; it is injected so
// tests do not need a real terminal.
func ReadPasswordWithContext(ctx context.Context, readPassword func(int) ([]byte, error), fd int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if readPassword == nil {
		return nil, errors.New("readPassword function is nil")
	}
	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := readPassword(fd)
		ch <- result{b: b, err: MapInputError(err)}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, ErrInputAborted
	case res := <-ch:
		return res.b, res.err
	}
}

// ConfirmDevicePath asks the user to re-type devicePath before a destructive
// write. Surrounding whitespace is ignored; anything else must match exactly.
// A mismatch returns ErrConfirmationMismatch.
func ConfirmDevicePath(ctx context.Context, reader *bufio.Reader, w io.Writer, devicePath string) error {
	fmt.Fprintf(w, "Type the device path (%s) to confirm: ", devicePath)
	line, err := ReadLineWithContext(ctx, reader)
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != devicePath {
		return fmt.Errorf("%w: expected %q", ErrConfirmationMismatch, devicePath)
	}
	return nil
}

// Countdown prints a once-per-second countdown to w before returning. The
// delay gives a last chance to Ctrl+C out of a destructive restore; ctx
// cancellation aborts with ErrInputAborted.
func Countdown(ctx context.Context, w io.Writer, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for remaining := seconds; remaining > 0; {
		fmt.Fprintf(w, "\rStarting in %d... (Ctrl+C to abort)", remaining)
		select {
		case <-ctx.Done():
			fmt.Fprintln(w)
			return ErrInputAborted
		case <-ticker.C:
			remaining--
		}
	}
	fmt.Fprintln(w)
	return nil
}
