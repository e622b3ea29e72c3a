package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"snapsync/internal/ledger"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent scan cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := ledger.Open(cmd.Context(), filepath.Join(cfg.Paths.LogDir, "ledger.db"))
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			cycles, err := store.RecentCycles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cycles) == 0 {
				fmt.Fprintln(out, "No scan cycles recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(cycles))
			for _, cycle := range cycles {
				status := "ok"
				if cycle.Error != "" {
					status = "error: " + cycle.Error
				}
				rows = append(rows, []string{
					cycle.FinishedAt.Local().Format(time.DateTime),
					cycle.Account,
					strconv.Itoa(cycle.Uploaded),
					strconv.Itoa(cycle.Duplicates),
					strconv.Itoa(cycle.Failed),
					strconv.Itoa(cycle.Extracted),
					status,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Finished", "Account", "Uploaded", "Duplicates", "Failed", "Extracted", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of cycles to show")
	return cmd
}

func newHistoryCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent per-file import outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := ledger.Open(cmd.Context(), filepath.Join(cfg.Paths.LogDir, "ledger.db"))
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			outcomes, err := store.RecentOutcomes(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(outcomes) == 0 {
				fmt.Fprintln(out, "No import outcomes recorded yet.")
				return nil
			}

			rows := make([][]string, 0, len(outcomes))
			for _, outcome := range outcomes {
				rows = append(rows, []string{
					outcome.RecordedAt.Local().Format(time.DateTime),
					outcome.Account,
					filepath.Base(outcome.Path),
					outcome.Outcome,
					outcome.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Recorded", "Account", "File", "Outcome", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of outcomes to show")
	return cmd
}
