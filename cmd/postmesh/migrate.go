package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/store/pg"
	migrations "github.com/dropDatabas3/postmesh/migrations/postgres"
)

func newMigrateCmd(cfg configFunc) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the embedded PostgreSQL migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if !strings.EqualFold(c.Storage.Driver, "postgres") {
				return fmt.Errorf("migrate: storage.driver is %q, migrations need postgres", c.Storage.Driver)
			}
			direction := "up"
			if len(args) == 1 {
				direction = strings.ToLower(args[0])
			}
			if direction != "up" && direction != "down" {
				return fmt.Errorf("migrate: unknown direction %q (up|down)", direction)
			}

			s, err := pg.New(cmd.Context(), c.Storage.DSN, pg.Options{MaxConns: 2, ConnMaxLifetime: config.Dur(c.Storage.Postgres.ConnMaxLifetime)})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Migrate(cmd.Context(), migrations.FS, direction, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d migration(s) applied\n", direction, n)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply or revert (0 = all)")
	return cmd
}
