package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flintdb/flintdb/config"
	"github.com/flintdb/flintdb/internal/meta"
	"github.com/flintdb/flintdb/table"
)

func newCreateCmd() *cobra.Command {
	var schemaPath, configPath string

	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "create a table from a CREATE TABLE schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := os.ReadFile(schemaPath)
			if err != nil {
				return err
			}
			schema, err := meta.Parse(string(ddl))
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			tbl, err := table.Open(args[0], table.RDWR, schema, cfg)
			if err != nil {
				return err
			}
			defer tbl.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", args[0], schema.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a CREATE TABLE schema file")
	cmd.Flags().StringVar(&configPath, "config", "", "path to an engine config file (HuJSON)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func loadConfig(path string) (*config.EngineConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
