package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"snapsync/internal/account"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
)

func newScanCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
			if err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}

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

			ctx := cmd.Context()
			store, err := ledger.Open(ctx, filepath.Join(cfg.Paths.LogDir, "ledger.db"))
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			orchestrator := buildOrchestrator(cfg, accounts, store, logger)
			if err := orchestrator.RunOnce(ctx); err != nil {
				return fmt.Errorf("scan cycle: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "scan cycle complete")
			return nil
		},
	}
}
