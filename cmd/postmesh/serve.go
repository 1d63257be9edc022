package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/postmesh/internal/app"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

func newServeCmd(cfg configFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [post|search|media|all]...",
		Short: "Serve one or more services (default: all in one process)",
		Example: `  postmesh serve post
  postmesh serve search --config configs/search.yaml
  postmesh serve all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := app.ParseServices(args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg(), services, app.Options{})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.L().Warn("close failed", logger.Err(err))
				}
			}()
			return a.Run(ctx)
		},
	}
}

