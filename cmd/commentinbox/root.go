package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"CommentInbox/internal/app"
	"CommentInbox/internal/config"
	"CommentInbox/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	dbDSN      string
	dbDriver   string
}

// loadConfig applies flag overrides on top of file and environment configuration.
func (o *rootOptions) loadConfig() config.Config {
	var cfg config.Config
	if o.configPath != "" {
		cfg = config.LoadFrom(o.configPath)
	} else {
		cfg = config.Load()
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.dbDSN != "" {
		cfg.Storage.DSN = o.dbDSN
	}
	if o.dbDriver != "" {
		cfg.Storage.Driver = o.dbDriver
	}
	return cfg
}

func (o *rootOptions) open(ctx context.Context, cfg config.Config) (*app.Application, *slog.Logger, error) {
	logger := logging.New(cfg.Logging.Level)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return nil, nil, err
	}
	return application, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "commentinbox",
		Short:         "Triage page comments with AI priorities and drafted replies",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file (defaults to $COMMENT_INBOX_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.dbDSN, "db", "", "credential database DSN")
	root.PersistentFlags().StringVar(&opts.dbDriver, "db-driver", "", "credential database driver: sqlite3 or postgres")

	root.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newReplyCmd(opts),
		newPagesCmd(opts),
		newSelectCmd(opts),
		newLogoutCmd(opts),
	)
	return root
}
