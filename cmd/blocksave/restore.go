package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tis24dev/blocksave/internal/tui"
	"github.com/tis24dev/blocksave/internal/types"
	"github.com/tis24dev/blocksave/pkg/utils"
)

var (
	restoreWholeDisk bool
	restoreArchive   string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <device>",
	Short: "Restore an archive onto a block device",
	Long: `Restore verifies an archive's digest and signature, then overwrites
the target device with the decompressed image.

Without --archive an interactive picker lists the device family's
archives, newest first. The restore is gated on re-typing the target
device path and a final countdown.`,
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

		devicePath := args[0]
		kind := deviceKind(restoreWholeDisk)

		archivePath := restoreArchive
		if archivePath != "" {
			archivePath, err = utils.AbsPath(archivePath)
			if err != nil {
				return fmt.Errorf("resolve archive path: %w", err)
			}
			if !utils.FileExists(archivePath) {
				return fmt.Errorf("archive not found: %s", archivePath)
			}
		} else {
			family, err := o.ListFamily(devicePath, kind)
			if err != nil {
				return err
			}
			if len(family) == 0 {
				return fmt.Errorf("no archives found for %s", devicePath)
			}
			picked, err := tui.PickArchive(tui.NewApp(), kind, family)
			if err != nil {
				return err
			}
			confirmed, err := tui.ConfirmRestore(tui.NewApp(), picked, devicePath)
			if err != nil {
				return err
			}
			if !confirmed {
				return fmt.Errorf("restore cancelled")
			}
			archivePath = picked.Path
		}

		stats, err := o.Restore(cmd.Context(), archivePath, types.DeviceRef{Path: devicePath, Kind: kind})
		if err != nil {
			return err
		}

		fmt.Printf("\nRestore complete: %s -> %s\n", stats.ArchivePath, stats.TargetPath)
		fmt.Printf("  Written:  %s\n", utils.FormatBytes(stats.BytesWritten))
		fmt.Printf("  Duration: %s (%s)\n", utils.FormatDuration(stats.Duration), utils.FormatThroughput(stats.BytesWritten, stats.Duration))
		printVerdict(logger)
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreWholeDisk, "whole-disk", "d", false, "restore a whole-disk archive")
	restoreCmd.Flags().StringVarP(&restoreArchive, "archive", "a", "", "archive path (skips the interactive picker)")
}
