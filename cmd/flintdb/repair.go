package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/internal/meta"
)

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <path>",
		Short: "reconstruct a minimal schema from a heap file's row headers",
		Long:  "A diagnostic of last resort for a missing or corrupt .desc sidecar; see meta.Recover.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := meta.Recover(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), meta.Serialize(schema))
			return nil
		},
	}
}
