package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"chatcall/internal/auth"
	"chatcall/internal/calllog"
	"chatcall/internal/config"
	"chatcall/internal/directory"
	"chatcall/pkg/logger"
	"chatcall/pkg/utils"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chatcall",
		Short:         "Call signaling and recording service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newTokenCommand())
	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var withDirectory bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the call log tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, closeLog, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeLog()

			db, err := utils.OpenSQL(ctx, cfg.DB.Driver, cfg.DSN(), utils.PoolConfig{})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := calllog.NewSQLStore(db, calllog.Dialect(cfg.DB.Driver)).Migrate(ctx); err != nil {
				return err
			}
			if withDirectory {
				if cfg.DB.Driver != config.DriverSQLite {
					return fmt.Errorf("--with-directory is only supported for sqlite")
				}
				if err := directory.NewSQLDirectory(db).MigrateSQLite(ctx); err != nil {
					return err
				}
			}
			log.Info("migrations applied", "driver", cfg.DB.Driver)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDirectory, "with-directory", false, "Also create users and room membership tables (sqlite only)")
	return cmd
}

// newTokenCommand mints an access token for local testing.
func newTokenCommand() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access and refresh token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			cfg, _, closeLog, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeLog()

			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			pair, err := m.IssuePair(time.Now(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "user:    "+strconv.FormatInt(userID, 10))
			fmt.Fprintln(out, "access:  "+pair.AccessToken)
			fmt.Fprintln(out, "refresh: "+pair.RefreshToken)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id to issue the token for")
	return cmd
}

// bootstrap loads config and installs the process logger.
func bootstrap() (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	log, closer := logger.New(cfg.App.Env, logger.Options{File: cfg.Log.File, MaxSizeMB: cfg.Log.MaxSizeMB})
	slog.SetDefault(log)
	return cfg, log, func() { _ = closer.Close() }, nil
}
