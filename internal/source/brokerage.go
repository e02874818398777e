package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/reconciled-dev/reconciled/internal/authflow"
	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/notify"
)

// Brokerage reads the account's total value from a brokerage's balances
// endpoint, authenticating through the OAuth authorization flow.
type Brokerage struct {
	acct *config.AccountConfig
	flow *authflow.Flow
	http *http.Client
}

// NewBrokerage builds the source for one brokerage account.
func NewBrokerage(acct *config.AccountConfig, notifier notify.Notifier, log *slog.Logger) *Brokerage {
	return &Brokerage{
		acct: acct,
		flow: authflow.New(acct.Name, acct.Brokerage, notifier, log),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *Brokerage) Name() string                   { return b.acct.Name }
func (b *Brokerage) Account() *config.AccountConfig { return b.acct }

// FetchBalance obtains an access token (interactively if needed) and reads
// the account's total value.
func (b *Brokerage) FetchBalance(ctx context.Context) (float64, error) {
	token, err := b.flow.AccessToken(ctx)
	if err != nil {
		return 0, err
	}

	url := strings.TrimRight(b.acct.Brokerage.APIURL, "/") + "/port/v1/balances/me"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("source %s: building balance request: %w", b.acct.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("source %s: fetching balance: %w", b.acct.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("source %s: balance endpoint returned %s: %s", b.acct.Name, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var out struct {
		TotalValue float64 `json:"TotalValue"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("source %s: parsing balance response: %w", b.acct.Name, err)
	}
	return out.TotalValue, nil
}
