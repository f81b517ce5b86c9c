package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/internal/wal"
	"github.com/flintdb/flintdb/table"
)

func newCheckpointCmd() *cobra.Command {
	var truncate bool

	cmd := &cobra.Command{
		Use:   "checkpoint <path>",
		Short: "flush a table's heap/indexes and mark the WAL durable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := table.Open(args[0], table.RDWR, nil, nil)
			if err != nil {
				return err
			}
			defer tbl.Close()

			mode := wal.CheckpointLog
			if truncate {
				mode = wal.CheckpointTruncate
			}
			if err := tbl.Checkpoint(mode); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "checkpoint complete")
			return nil
		},
	}

	cmd.Flags().BoolVar(&truncate, "truncate", false, "discard WAL records preceding the checkpoint")
	return cmd
}
