package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Verify an archive's digest and signature without restoring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		o, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}

		if err := o.Verify(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("OK: %s\n", args[0])
		printVerdict(logger)
		return nil
	},
}
