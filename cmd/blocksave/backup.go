package main

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/tis24dev/blocksave/internal/types"
	"github.com/tis24dev/blocksave/pkg/utils"
)

var backupWholeDisk bool

var backupCmd = &cobra.Command{
	Use:   "backup <device>",
	Short: "Image a partition or whole disk into a compressed archive",
	Long: `Backup streams the raw bytes of a block device through the configured
compressor into a new archive of the device's family, writes a SHA256
sidecar, optionally signs it, and rotates over-limit archives.

Whole-disk backups (--whole-disk) are stored separately, require
re-typing the device path, and capture partition-table metadata
snapshots alongside the image.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		o, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}

		dev := types.DeviceRef{Path: args[0], Kind: deviceKind(backupWholeDisk)}
		stats, err := o.Backup(cmd.Context(), dev)
		if err != nil {
			return err
		}

		fmt.Printf("\nBackup complete: %s\n", stats.Archive.Path)
		fmt.Printf("  Source read:  %s\n", utils.FormatBytes(stats.BytesRead))
		fmt.Printf("  Archive size: %s (%.2f%% of source)\n", utils.FormatBytes(stats.BytesWritten), stats.RatioPercent)
		fmt.Printf("  Duration:     %s (%s)\n", utils.FormatDuration(stats.Duration), utils.FormatThroughput(stats.BytesRead, stats.Duration))
		if stats.Archive.SignaturePath != "" {
			fmt.Printf("  Signature:    %s\n", stats.Archive.SignaturePath)
		}
		if stats.Rotated > 0 {
			fmt.Printf("  Rotated out:  %d archive(s)\n", stats.Rotated)
		}
		printVerdict(logger)
		return nil
	},
}

func init() {
	backupCmd.Flags().BoolVarP(&backupWholeDisk, "whole-disk", "d", false, "back up the entire disk including the partition table")
}

// progressPrinter renders a single in-place progress line on stderr. Updates
// arrive from the pipeline's metering stage; only whole-percent changes are
// drawn to keep the output cheap.
type progressPrinter struct {
	lastPercent atomic.Int64
}

func newProgressPrinter() *progressPrinter {
	p := &progressPrinter{}
	p.lastPercent.Store(-1)
	return p
}

func (p *progressPrinter) update(transferred, total int64) {
	if total <= 0 {
		return
	}
	percent := transferred * 100 / total
	if percent == p.lastPercent.Swap(percent) {
		return
	}
	fmt.Fprintf(os.Stderr, "\r%3d%% (%s / %s)", percent, utils.FormatBytes(transferred), utils.FormatBytes(total))
	if percent >= 100 {
		fmt.Fprintln(os.Stderr)
	}
}
