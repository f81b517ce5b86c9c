package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/table"
)

func newQueryCmd() *cobra.Command {
	var where string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "query <path>",
		Short: "scan a table, optionally filtered by a WHERE clause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := table.Open(args[0], table.RDONLY, nil, nil)
			if err != nil {
				return err
			}
			defer tbl.Close()

			cur, err := tbl.Find(where, limit, offset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for {
				rowID, ok := cur.Next()
				if !ok {
					break
				}
				r, err := tbl.ReadStream(rowID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, formatRow(r))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "WHERE clause compiled via internal/filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows to print (0 = unbounded)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip before printing")
	return cmd
}
