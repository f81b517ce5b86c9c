package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/table"
)

func newShellCmd() *cobra.Command {
	var rdonly bool

	cmd := &cobra.Command{
		Use:   "shell <path>",
		Short: "interactive probe console over an open table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := table.RDWR
			if rdonly {
				mode = table.RDONLY
			}
			tbl, err := table.Open(args[0], mode, nil, nil)
			if err != nil {
				return err
			}
			defer tbl.Close()
			return (&shell{tbl: tbl, out: cmd.OutOrStdout()}).run()
		},
	}

	cmd.Flags().BoolVar(&rdonly, "readonly", false, "open the table read-only (rejects put/del)")
	return cmd
}

// shell is FlintDB's interactive probe console, grounded on the
// teacher's own slotcache REPL: a liner.State for readline-style
// editing and history, dispatching on the first whitespace-separated
// token of each line.
type shell struct {
	tbl *table.Table
	out io.Writer
	ln  *liner.State
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".flintdb_history")
}

func (s *shell) run() error {
	s.ln = liner.NewLiner()
	defer s.ln.Close()
	s.ln.SetCtrlCAborts(true)

	if f, err := os.Open(historyPath()); err == nil {
		s.ln.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(s.out, "flintdb shell — table %q, type 'help' for commands\n", s.tbl.Schema().Name)
	for {
		line, err := s.ln.Prompt("flintdb> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Fprintln(s.out, "bye")
				break
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.ln.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, argv := strings.ToLower(parts[0]), parts[1:]
		switch cmd {
		case "exit", "quit", "q":
			fmt.Fprintln(s.out, "bye")
			s.saveHistory()
			return nil
		case "help", "?":
			s.printHelp()
		case "get":
			s.cmdGet(argv)
		case "put":
			s.cmdPut(argv)
		case "del", "delete":
			s.cmdDel(argv)
		case "scan":
			s.cmdScan(argv)
		case "schema":
			fmt.Fprintln(s.out, s.tbl.Schema().Name)
		default:
			fmt.Fprintf(s.out, "unknown command %q (try 'help')\n", cmd)
		}
	}
	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	path := historyPath()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		s.ln.WriteHistory(f)
		f.Close()
	}
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, "commands:")
	fmt.Fprintln(s.out, "  get <primary key fields...>     fetch a row by its primary index")
	fmt.Fprintln(s.out, "  put <column values...>          insert or upsert a row")
	fmt.Fprintln(s.out, "  del <primary key fields...>     delete a row by its primary index")
	fmt.Fprintln(s.out, "  scan [where clause...]           print every row matching an optional filter")
	fmt.Fprintln(s.out, "  schema                           print the table name")
	fmt.Fprintln(s.out, "  help / exit")
}

func (s *shell) cmdGet(argv []string) {
	r, err := s.tbl.One("primary", argv)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintln(s.out, formatRow(r))
}

func (s *shell) cmdPut(argv []string) {
	values, err := s.tbl.ParseRowValues(argv)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	rowID, err := s.tbl.Apply(values, true)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintf(s.out, "ok rowid=%d\n", rowID)
}

func (s *shell) cmdDel(argv []string) {
	r, err := s.tbl.One("primary", argv)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	if err := s.tbl.DeleteAt(r.RowID); err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	fmt.Fprintln(s.out, "ok")
}

func (s *shell) cmdScan(argv []string) {
	where := strings.Join(argv, " ")
	cur, err := s.tbl.Find(where, 0, 0)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return
	}
	for {
		rowID, ok := cur.Next()
		if !ok {
			return
		}
		r, err := s.tbl.ReadStream(rowID)
		if err != nil {
			fmt.Fprintln(s.out, "error:", err)
			return
		}
		fmt.Fprintln(s.out, formatRow(r))
	}
}
