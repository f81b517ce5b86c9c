package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/internal/wal"
)

func newWalDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wal-dump <path>",
		Short: "print the committed write-ahead log records for a table",
		Long:  "Replays <path>.wal the same way table.Open's crash recovery does, printing each record instead of applying it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return wal.Recover(args[0]+".wal", func(r wal.Record) error {
				fmt.Fprintf(out, "%s\ttable=%s\trowid=%d\tnew=%dB\told=%dB\n",
					r.Type, r.Table, r.RowID, len(r.NewImage), len(r.OldImage))
				return nil
			})
		},
	}
}
