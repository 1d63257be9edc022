// Command postmesh runs the post, search and media services and their operator tools.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// configFunc returns the configuration loaded by the root command.
type configFunc func() *config.Config

func newRootCmd() *cobra.Command {
	var (
		configPath = envOr("POSTMESH_CONFIG", "")
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "postmesh",
		Short:         "Post, search and media services kept consistent over a message fabric",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if c.App.Version == "" {
				c.App.Version = version
			}
			logger.Init(logger.Config{
				Env:         c.App.Env,
				Level:       c.Log.Level,
				ServiceName: "postmesh",
				Version:     c.App.Version,
			})
			cfg = c
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Path to the YAML config (env POSTMESH_CONFIG)")

	get := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(get),
		newMigrateCmd(get),
		newPublishCmd(get),
	)
	return root
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
