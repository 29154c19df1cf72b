package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tis24dev/blocksave/internal/config"
	"github.com/tis24dev/blocksave/internal/input"
	"github.com/tis24dev/blocksave/internal/integrity"
	"github.com/tis24dev/blocksave/internal/logging"
	"github.com/tis24dev/blocksave/internal/orchestrator"
	"github.com/tis24dev/blocksave/internal/types"
	"github.com/tis24dev/blocksave/internal/version"
)

var (
	cfgFile   string
	noColor   bool
	debugLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "blocksave",
	Short: "Block-device backup and restore",
	Long: `blocksave images raw partitions and whole disks into compressed
archives with integrity sidecars, and restores them byte-for-byte.

Archives are rotated per device family; whole-disk backups additionally
capture partition-table and filesystem metadata snapshots.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "enable debug logging")
	rootCmd.AddCommand(backupCmd, restoreCmd, listCmd, verifyCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err).Int())
	}
}

// setup loads the configuration and builds the logger every subcommand uses.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	useColor := cfg.UseColor && !noColor && term.IsTerminal(int(os.Stdout.Fd()))
	logger := logging.New(cfg.DebugLevel, useColor)
	if debugLogs {
		logger.SetLevel(types.LogLevelDebug)
	}
	if cfg.LogPath != "" {
		if err := logger.OpenLogFile(cfg.LogPath); err != nil {
			logger.Warning("Cannot mirror log to %s: %v", cfg.LogPath, err)
		}
	}
	return cfg, logger, nil
}

// newOrchestrator wires the orchestrator with the CLI confirmation
// collaborator and a progress meter on stderr.
func newOrchestrator(cfg *config.Config, logger *logging.Logger) (*orchestrator.Orchestrator, error) {
	signer, err := buildSigner(cfg, logger)
	if err != nil {
		return nil, err
	}
	var progress func(transferred, total int64)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress = newProgressPrinter().update
	}
	return orchestrator.New(logger, cfg, orchestrator.Options{
		Confirmer:  &cliConfirmer{},
		Signer:     signer,
		Progress:   progress,
		Passphrase: promptPassphrase,
	}), nil
}

// promptPassphrase reads a decryption passphrase without echo. Used when an
// archive is passphrase-encrypted and no identity file is configured.
func promptPassphrase(ctx context.Context) (string, error) {
	fmt.Fprint(os.Stdout, "Archive passphrase: ")
	defer fmt.Fprintln(os.Stdout)
	pass, err := input.ReadPasswordWithContext(ctx, term.ReadPassword, int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

func buildSigner(cfg *config.Config, logger *logging.Logger) (integrity.Signer, error) {
	if !cfg.SigningEnabled {
		return nil, nil
	}
	switch cfg.Signer {
	case "gpg":
		return integrity.NewGPGSigner(logger, cfg.SigningKey), nil
	case "ssh":
		return integrity.NewSSHSigner(logger, cfg.SigningKey), nil
	default:
		return nil, fmt.Errorf("unknown signer: %q", cfg.Signer)
	}
}

// cliConfirmer gates destructive operations on the operator re-typing the
// device path at the terminal.
type cliConfirmer struct{}

func (c *cliConfirmer) ConfirmDevicePath(ctx context.Context, devicePath string) error {
	return input.ConfirmDevicePath(ctx, bufio.NewReader(os.Stdin), os.Stdout, devicePath)
}

// deviceKind maps the --whole-disk flag to the archive family kind.
func deviceKind(wholeDisk bool) types.DeviceKind {
	if wholeDisk {
		return types.DeviceWholeDisk
	}
	return types.DevicePartition
}

// printVerdict reports whether the operation finished clean, consulting the
// logger's warning/error counters.
func printVerdict(logger *logging.Logger) {
	switch {
	case logger.HasErrors():
		fmt.Println("Completed with errors.")
	case logger.HasWarnings():
		fmt.Println("Completed with warnings.")
	default:
		return
	}
	if path := logger.GetLogFilePath(); path != "" {
		fmt.Printf("Review the session log: %s\n", path)
	}
}

// exitCodeFor extracts the specific exit code from an operation error,
// falling back to the generic failure code.
func exitCodeFor(err error) types.ExitCode {
	var opErr *orchestrator.OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return types.ExitGenericError
}
