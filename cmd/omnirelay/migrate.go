package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnirelay/omnirelay/internal/config"
	"github.com/omnirelay/omnirelay/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.Migrate(cfg.Postgres.DSN()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}
