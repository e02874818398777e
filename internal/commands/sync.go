package commands

import (
	"github.com/spf13/cobra"

	"github.com/reconciled-dev/reconciled/internal/ledger"
	"github.com/reconciled-dev/reconciled/internal/notify"
	"github.com/reconciled-dev/reconciled/internal/runner"
)

func newSyncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account...]",
		Short: "Reconcile ledger balances against the real accounts",
		Long: `Fetches each account's real balance, compares it to the ledger, and writes
a reconciliation transaction when they differ. With no arguments every
configured account is reconciled, in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			log := newLogger(cfg)
			notifier := notify.NewPushover(cfg.Pushover, log)
			r := runner.New(cfg, ledger.NewClient(cfg.Ledger), notifier, log)

			return r.Run(cmd.Context(), args...)
		},
	}
}
