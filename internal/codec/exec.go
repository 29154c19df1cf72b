package codec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/types"
)

// Deps groups external process dependencies used by ExecTransform.
type Deps struct {
	LookPath       func(string) (string, error)
	CommandContext func(context.Context, string, ...string) *exec.Cmd
}

func defaultDeps() Deps {
	return Deps{
		LookPath:       exec.LookPath,
		CommandContext: exec.CommandContext,
	}
}

// CompressionError represents an external compressor/decompressor failure.
type CompressionError struct {
	Algorithm string
	Err       error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Algorithm, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// ExecTransform implements StreamTransform by shelling out to the algorithm's
// external tool (zstd/gzip/xz), letting it use all available parallelism.
type ExecTransform struct {
	logger *logging.Logger
	spec   types.CompressionSpec
	deps   Deps
}

// NewExecTransform builds a transform for spec. The spec is resolved up
// front so an unknown algorithm or preset fails before any stream starts.
func NewExecTransform(logger *logging.Logger, spec types.CompressionSpec) (*ExecTransform, error) {
	if _, err := ResolveArgs(spec); err != nil {
		return nil, err
	}
	return &ExecTransform{
		logger: logger,
		spec:   spec,
		deps:   defaultDeps(),
	}, nil
}

// SetDeps overrides process dependencies (for tests).
func (t *ExecTransform) SetDeps(deps Deps) {
	if deps.LookPath == nil {
		deps.LookPath = exec.LookPath
	}
	if deps.CommandContext == nil {
		deps.CommandContext = exec.CommandContext
	}
	t.deps = deps
}

// Available checks that the external tool exists on PATH.
func (t *ExecTransform) Available() error {
	name, err := Command(t.spec.Algorithm)
	if err != nil {
		return err
	}
	if _, err := t.deps.LookPath(name); err != nil {
		return fmt.Errorf("%s command not available: %w", name, err)
	}
	return nil
}

// Compress pipes r through the external compressor into w.
func (t *ExecTransform) Compress(ctx context.Context, r io.Reader, w io.Writer) error {
	args, err := ResolveArgs(t.spec)
	if err != nil {
		return err
	}
	return t.run(ctx, args, r, w)
}

// Decompress pipes r through the external decompressor into w.
func (t *ExecTransform) Decompress(ctx context.Context, r io.Reader, w io.Writer) error {
	args, ok := decompressArgs[t.spec.Algorithm]
	if !ok {
		return &SpecError{Spec: types.CompressionSpec{Algorithm: t.spec.Algorithm}}
	}
	return t.run(ctx, append([]string(nil), args...), r, w)
}

func (t *ExecTransform) run(ctx context.Context, args []string, r io.Reader, w io.Writer) error {
	name, err := Command(t.spec.Algorithm)
	if err != nil {
		return err
	}
	if _, err := t.deps.LookPath(name); err != nil {
		return fmt.Errorf("%s command not available: %w", name, err)
	}

	cmd := t.deps.CommandContext(ctx, name, args...)
	cmd.Stdin = r
	cmd.Stdout = w
	if err := t.attachStderrLogger(cmd, name); err != nil {
		return fmt.Errorf("capture %s output: %w", name, err)
	}

	t.logger.Debug("Running %s %s", name, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CompressionError{Algorithm: name, Err: err}
	}
	return nil
}

func (t *ExecTransform) attachStderrLogger(cmd *exec.Cmd, name string) error {
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	tag := strings.ToUpper(name)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			t.logger.Info("[%s] %s", tag, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			t.logger.Debug("[%s] stderr read error: %v", tag, err)
		}
	}()

	return nil
}
