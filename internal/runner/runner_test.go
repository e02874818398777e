package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/ledger"
	"github.com/reconciled-dev/reconciled/internal/model"
	"github.com/reconciled-dev/reconciled/internal/notify"
	"github.com/reconciled-dev/reconciled/internal/runlog"
	"github.com/reconciled-dev/reconciled/internal/source"
)

type fakeLedger struct {
	balance int64
	last    *model.Transaction

	created *model.Transaction
	amended *model.Transaction

	getErr error
}

func (f *fakeLedger) GetAccount(_ context.Context, accountID string) (*ledger.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &ledger.Account{ID: accountID, Balance: f.balance}, nil
}

func (f *fakeLedger) LastTransaction(context.Context, string) (*model.Transaction, error) {
	return f.last, nil
}

func (f *fakeLedger) CreateTransaction(_ context.Context, txn *model.Transaction) error {
	f.created = txn
	return nil
}

func (f *fakeLedger) AmendTransaction(_ context.Context, txn *model.Transaction) error {
	f.amended = txn
	return nil
}

type fakeSource struct {
	acct    *config.AccountConfig
	balance float64
	err     error
}

func (f *fakeSource) Name() string                   { return f.acct.Name }
func (f *fakeSource) Account() *config.AccountConfig { return f.acct }
func (f *fakeSource) FetchBalance(context.Context) (float64, error) {
	return f.balance, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{
			BaseURL:     "https://ledger.example.com",
			BudgetID:    "budget-1",
			BearerToken: "tok",
		},
		Accounts: []config.AccountConfig{
			{
				Name:                  "brokerage",
				Kind:                  "brokerage",
				LedgerAccountID:       "acct-1",
				ReconciliationPayeeID: "payee-recon",
			},
		},
	}
}

func testRunner(t *testing.T, led *fakeLedger, rec *notify.Recorder, observed float64, fetchErr error) *Runner {
	t.Helper()
	cfg := testConfig()
	r := New(cfg, led, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.logRoot = t.TempDir()
	r.now = func() time.Time { return time.Date(2024, 3, 20, 6, 0, 0, 0, time.UTC) }
	r.buildSource = func(acct *config.AccountConfig) (source.Source, error) {
		return &fakeSource{acct: acct, balance: observed, err: fetchErr}, nil
	}
	return r
}

func TestRunCreatesTransaction(t *testing.T) {
	led := &fakeLedger{balance: 100000} // 100.00, observed 105.00
	rec := &notify.Recorder{}
	r := testRunner(t, led, rec, 105.00, nil)

	require.NoError(t, r.Run(context.Background()))

	require.NotNil(t, led.created)
	assert.Nil(t, led.amended)
	assert.Equal(t, int64(5000), led.created.Amount)
	assert.Equal(t, "payee-recon", led.created.PayeeID)
	assert.Empty(t, rec.Sent)

	entries, err := runlog.Read(r.logRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "create", entries[0].Decision)
	assert.Equal(t, int64(105000), entries[0].Observed)
}

func TestRunAmendsReconciliation(t *testing.T) {
	led := &fakeLedger{
		balance: 100000,
		last: &model.Transaction{
			ID:      "txn-last",
			Date:    model.NewDate(2024, time.March, 15),
			Amount:  2000,
			PayeeID: "payee-recon",
		},
	}
	r := testRunner(t, led, &notify.Recorder{}, 105.00, nil)

	require.NoError(t, r.Run(context.Background()))

	require.NotNil(t, led.amended)
	assert.Nil(t, led.created)
	assert.Equal(t, int64(7000), led.amended.Amount)
	assert.Equal(t, model.NewDate(2024, time.March, 20), led.amended.Date)
}

func TestRunNoOpWritesNothing(t *testing.T) {
	led := &fakeLedger{balance: 105000}
	r := testRunner(t, led, &notify.Recorder{}, 105.00, nil)

	require.NoError(t, r.Run(context.Background()))

	assert.Nil(t, led.created)
	assert.Nil(t, led.amended)

	entries, err := runlog.Read(r.logRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "none", entries[0].Decision)
}

func TestRunFetchFailureNotifiesAndAborts(t *testing.T) {
	led := &fakeLedger{balance: 100000}
	rec := &notify.Recorder{}
	fetchErr := errors.New("portal: no totals row")
	r := testRunner(t, led, rec, 0, fetchErr)

	err := r.Run(context.Background())
	require.ErrorIs(t, err, fetchErr)

	assert.Nil(t, led.created)
	assert.Nil(t, led.amended)
	require.Len(t, rec.Sent, 1)
	assert.Equal(t, "Reconciliation failed", rec.Sent[0].Title)
	assert.Contains(t, rec.Sent[0].Message, "brokerage")

	// A failed run writes no audit row either.
	entries, readErr := runlog.Read(r.logRoot)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestRunLedgerFailureNotifiesAndAborts(t *testing.T) {
	ledgerErr := &ledger.StatusError{Status: 503, Body: "maintenance"}
	led := &fakeLedger{getErr: ledgerErr}
	rec := &notify.Recorder{}
	r := testRunner(t, led, rec, 105.00, nil)

	err := r.Run(context.Background())
	require.ErrorIs(t, err, ledgerErr)
	require.Len(t, rec.Sent, 1)
}

func TestRunUnknownAccountName(t *testing.T) {
	r := testRunner(t, &fakeLedger{}, &notify.Recorder{}, 0, nil)
	err := r.Run(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
