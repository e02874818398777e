package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/reconciled-dev/reconciled/internal/authflow"
	"github.com/reconciled-dev/reconciled/internal/notify"
)

func newLoginCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login <account>",
		Short: "Force a fresh interactive login for a brokerage account",
		Long: `Discards the account's cached token and runs the interactive authorization
flow: a login link is pushed to you, and the run waits for the browser's
redirect. Useful when a refresh token has been revoked upstream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			acct, err := cfg.Account(args[0])
			if err != nil {
				return err
			}
			if acct.Kind != "brokerage" {
				return fmt.Errorf("account %q does not use interactive login", acct.Name)
			}

			if err := os.Remove(acct.Brokerage.TokenCachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("discarding cached token: %w", err)
			}

			log := newLogger(cfg)
			notifier := notify.NewPushover(cfg.Pushover, log)
			flow := authflow.New(acct.Name, acct.Brokerage, notifier, log)

			if _, err := flow.AccessToken(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s; token cached at %s\n", acct.Name, acct.Brokerage.TokenCachePath)
			return nil
		},
	}
}
