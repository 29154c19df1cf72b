package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tis24dev/blocksave/internal/types"
	"github.com/tis24dev/blocksave/pkg/utils"
)

var listWholeDisk bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives under the backup root",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		o, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}

		if !utils.DirExists(cfg.BackupRoot) {
			fmt.Println("No archives found.")
			return nil
		}

		archives, err := o.List(deviceKind(listWholeDisk))
		if err != nil {
			return err
		}
		if len(archives) == 0 {
			fmt.Println("No archives found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ARCHIVE\tSIZE\tCREATED\tSIDECARS")
		for _, a := range archives {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				filepath.Base(a.Path),
				humanize.Bytes(uint64(a.SizeBytes)),
				humanize.Time(a.CreatedAt),
				sidecarSummary(a))
		}
		return w.Flush()
	},
}

func sidecarSummary(a *types.ArchiveInfo) string {
	s := "-"
	if a.HasChecksum() {
		s = "sha256"
	}
	if a.HasSignature() {
		s += "+sig"
	}
	if a.Encrypted {
		s += " (age)"
	}
	return s
}

func init() {
	listCmd.Flags().BoolVarP(&listWholeDisk, "whole-disk", "d", false, "list whole-disk archives")
}
