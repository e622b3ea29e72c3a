package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snapsync/internal/account"
	"snapsync/internal/config"
	"snapsync/internal/daemon"
	"snapsync/internal/immich"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/notifications"
	"snapsync/internal/scan"
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the import daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays,
				filepath.Join(cfg.Paths.LogDir, "snapsync.log"))

			accounts, err := account.FromEnv(cfg.Accounts.EnvPrefix, cfg.Paths.WatchRoot)
			if err != nil {
				if errors.Is(err, account.ErrNoAccounts) {
					return fmt.Errorf("no accounts configured: set at least one %s<NAME> environment variable", cfg.Accounts.EnvPrefix)
				}
				return err
			}
			if err := account.EnsureDirs(accounts); err != nil {
				return err
			}
			logger.Info("accounts registered", logging.Any("accounts", account.Names(accounts)))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := ledger.Open(ctx, filepath.Join(cfg.Paths.LogDir, "ledger.db"))
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			orchestrator := buildOrchestrator(cfg, accounts, store, logger)
			d, err := daemon.New(cfg, orchestrator, logger)
			if err != nil {
				return err
			}
			if err := d.Start(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "snapsync running; watching %s for %d account(s)\n",
				cfg.Paths.WatchRoot, len(accounts))
			<-ctx.Done()
			d.Stop()
			logger.Info("shutdown complete")
			return nil
		},
	}
}

func buildOrchestrator(cfg *config.Config, accounts []account.Account, recorder scan.Recorder, logger *slog.Logger) *scan.Orchestrator {
	client := immich.NewClient(
		cfg.Immich.BaseURL,
		cfg.Immich.DeviceID,
		time.Duration(cfg.Immich.UploadTimeout)*time.Second,
		logger,
	)
	return scan.New(cfg, accounts, client, recorder, notifications.NewService(cfg), logger)
}
