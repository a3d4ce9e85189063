package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"zhenghe/internal/app"
	"zhenghe/internal/version"
)

func newServeCmd(c *cli) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the conversation over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				c.cfg.Server.Port = port
			}

			slog.Info("starting zhenghe",
				"version", version.Version,
				"commit", version.Commit,
				"build_date", version.Date,
			)

			a, err := app.New(cmd.Context(), c.cfg, app.Options{})
			if err != nil {
				return err
			}

			if c.cfg.Server.MasterKey == "" {
				slog.Warn("ZHENGHE_MASTER_KEY not set, /v1 routes are unauthenticated")
			}

			stopped := make(chan error, 1)
			go func() {
				stopped <- a.Start(":" + c.cfg.Server.Port)
			}()

			var startErr error
			select {
			case startErr = <-stopped:
			case <-cmd.Context().Done():
				slog.Info("shutting down server...")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Shutdown(ctx); err != nil {
				slog.Error("shutdown error", "error", err)
				if startErr == nil {
					startErr = err
				}
			}
			return startErr
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default: configured server.port)")
	return cmd
}
