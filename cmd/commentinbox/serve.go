package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		refresh time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.loadConfig()
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("refresh") {
				cfg.Inbox.RefreshInterval = refresh
			}

			application, logger, err := opts.open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Serve(cmd.Context()); err != nil {
				logger.Error("console stopped", "error", err)
				return err
			}
			logger.Info("console stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "re-fetch comments on this interval (0 fetches once)")
	return cmd
}
