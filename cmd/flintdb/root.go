package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/table"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flintdb",
		Short: "embedded relational storage engine",
		Long:  "Open, query, and administer FlintDB data files.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				table.SetDebug(true)
			}
			return nil
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	if err := cmd.PersistentFlags().MarkHidden("debug"); err != nil {
		logrus.Panic(err.Error())
	}

	cmd.AddCommand(
		newCreateCmd(),
		newQueryCmd(),
		newWalDumpCmd(),
		newCheckpointCmd(),
		newShellCmd(),
		newRepairCmd(),
	)
	return cmd
}
