package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/postmesh/internal/app"
	"github.com/dropDatabas3/postmesh/internal/infra/fabricfactory"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

func newPublishCmd(cfg configFunc) *cobra.Command {
	var (
		key     string
		payload string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "publish --key <routing-key> --payload <json|@file>",
		Short: "Re-emit an event on the scoped exchange",
		Long: `Publishes one event exactly as the post service would, and waits for the broker
to accept it. Use it to repair projections after an event was lost: consumers are
idempotent, so re-emitting an event that already arrived changes nothing.`,
		Example: `  postmesh publish --key post.deleted --payload '{"postId":"p1","userId":"u1","mediaIds":["m1"]}'
  postmesh publish --key post.created --payload @event.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" || payload == "" {
				return fmt.Errorf("publish: --key and --payload are required")
			}
			body := []byte(payload)
			if strings.HasPrefix(payload, "@") {
				b, err := os.ReadFile(strings.TrimPrefix(payload, "@"))
				if err != nil {
					return fmt.Errorf("publish: read payload: %w", err)
				}
				body = b
			}

			c := cfg()
			if strings.EqualFold(c.Fabric.Driver, "memory") {
				logger.L().Warn("memory fabric has no consumers outside this process; the event goes nowhere")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			fab, err := fabricfactory.Open(ctx, c, nil)
			if err != nil {
				return err
			}
			defer fab.Close()

			if err := app.Reemit(ctx, fab, key, body, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Routing key, e.g. post.created")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object payload, or @path to read it from a file")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the broker")
	return cmd
}
