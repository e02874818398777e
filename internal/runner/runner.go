// Package runner ties one reconciliation run together: fetch the real
// balance, read the ledger, decide, write. Errors are never retried; the
// first failure aborts the run, and the runner's only recovery action is a
// best-effort failure notification before the error propagates.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/ledger"
	"github.com/reconciled-dev/reconciled/internal/model"
	"github.com/reconciled-dev/reconciled/internal/notify"
	"github.com/reconciled-dev/reconciled/internal/reconcile"
	"github.com/reconciled-dev/reconciled/internal/runlog"
	"github.com/reconciled-dev/reconciled/internal/source"
)

// Ledger is the slice of the ledger client the runner uses.
type Ledger interface {
	GetAccount(ctx context.Context, accountID string) (*ledger.Account, error)
	LastTransaction(ctx context.Context, accountID string) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	AmendTransaction(ctx context.Context, txn *model.Transaction) error
}

// Runner reconciles configured accounts one at a time. Each account owns a
// distinct token cache file and ledger account, so sequential runs keep the
// one-writer-per-cache rule without any locking.
type Runner struct {
	cfg      *config.Config
	ledger   Ledger
	notifier notify.Notifier
	log      *slog.Logger

	logRoot     string // where logs/run-log.csv lives
	now         func() time.Time
	buildSource func(*config.AccountConfig) (source.Source, error)
}

// New builds a Runner over the real source implementations.
func New(cfg *config.Config, led Ledger, notifier notify.Notifier, log *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		ledger:   led,
		notifier: notifier,
		log:      log,
		logRoot:  ".",
		now:      time.Now,
		buildSource: func(acct *config.AccountConfig) (source.Source, error) {
			return source.Build(acct, notifier, log)
		},
	}
}

// Run reconciles the named accounts, or every configured account when names
// is empty. The first failing account aborts the run after a failure
// notification.
func (r *Runner) Run(ctx context.Context, names ...string) error {
	accounts := make([]*config.AccountConfig, 0, len(r.cfg.Accounts))
	if len(names) == 0 {
		for i := range r.cfg.Accounts {
			accounts = append(accounts, &r.cfg.Accounts[i])
		}
	} else {
		for _, name := range names {
			acct, err := r.cfg.Account(name)
			if err != nil {
				return err
			}
			accounts = append(accounts, acct)
		}
	}

	for _, acct := range accounts {
		if err := r.RunAccount(ctx, acct); err != nil {
			r.notifier.Send(ctx, notify.Notification{
				Title:   "Reconciliation failed",
				Message: fmt.Sprintf("Failed to reconcile %s: %s", acct.Name, err),
			})
			return err
		}
	}
	return nil
}

// RunAccount reconciles a single account: at most one ledger write, or no
// write and an error.
func (r *Runner) RunAccount(ctx context.Context, acct *config.AccountConfig) error {
	log := r.log.With("account", acct.Name)

	src, err := r.buildSource(acct)
	if err != nil {
		return err
	}

	observed, err := src.FetchBalance(ctx)
	if err != nil {
		return err
	}
	log.Info("fetched real balance", "balance", observed)

	account, err := r.ledger.GetAccount(ctx, acct.LedgerAccountID)
	if err != nil {
		return err
	}
	log.Info("fetched ledger balance", "balance", float64(account.Balance)/model.Scale)

	last, err := r.ledger.LastTransaction(ctx, acct.LedgerAccountID)
	if err != nil {
		return err
	}

	today := model.DateOf(r.now())
	decision := reconcile.Decide(observed, account.Balance, last, acct.ReconciliationPayeeID, acct.LedgerAccountID, today)
	log.Info("decision", "decision", decision.String())

	switch decision.Op {
	case reconcile.OpAmend:
		err = r.ledger.AmendTransaction(ctx, decision.Transaction)
	case reconcile.OpCreate:
		err = r.ledger.CreateTransaction(ctx, decision.Transaction)
	}
	if err != nil {
		return err
	}

	r.logRun(acct.Name, observed, account.Balance, decision)
	return nil
}

// logRun records the run in the CSV audit log. Best effort: a run that
// reconciled successfully does not fail because its audit row could not be
// written.
func (r *Runner) logRun(account string, observed float64, ledgerBalance int64, decision reconcile.Decision) {
	entry := runlog.Entry{
		Timestamp:     r.now(),
		Account:       account,
		Observed:      model.Milliunits(observed),
		LedgerBalance: ledgerBalance,
		Decision:      string(decision.Op),
	}
	if decision.Transaction != nil {
		entry.TransactionID = decision.Transaction.ID
	}
	if err := runlog.Append(r.logRoot, []runlog.Entry{entry}); err != nil {
		r.log.Warn("writing run log", "account", account, "err", err)
	}
}
