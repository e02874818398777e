// Package ledger is the REST client for the budgeting service that owns the
// recorded balance and transaction history.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/model"
)

// StatusError is a non-2xx API response. Any one of these is fatal for the
// run; nothing is retried.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger: API returned %d: %s", e.Status, e.Body)
}

// Account is the slice of the API's account record the engine needs.
type Account struct {
	ID      string `json:"id"`
	Balance int64  `json:"balance"` // minor units
}

// Client calls the budgeting service with bearer-token auth. All methods are
// plain request-response; a failed call aborts the run.
type Client struct {
	baseURL  string
	budgetID string
	token    string
	http     *http.Client
}

// NewClient builds a Client from ledger config.
func NewClient(cfg config.LedgerConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		budgetID: cfg.BudgetID,
		token:    cfg.BearerToken,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAccount fetches the account's current recorded balance.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var out struct {
		Data struct {
			Account Account `json:"account"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/budgets/%s/accounts/%s", c.budgetID, accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data.Account, nil
}

// ListTransactions fetches the account's transaction history in API order,
// most recent last.
func (c *Client) ListTransactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	var out struct {
		Data struct {
			Transactions []model.Transaction `json:"transactions"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/budgets/%s/accounts/%s/transactions", c.budgetID, accountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data.Transactions, nil
}

// LastTransaction returns the most recent transaction, or nil for an account
// with no history.
func (c *Client) LastTransaction(ctx context.Context, accountID string) (*model.Transaction, error) {
	txns, err := c.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return &txns[len(txns)-1], nil
}

// transactionWrapper is the request envelope the API expects for writes.
type transactionWrapper struct {
	Transaction *model.Transaction `json:"transaction"`
}

// CreateTransaction posts a new transaction.
func (c *Client) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	path := fmt.Sprintf("/budgets/%s/transactions", c.budgetID)
	return c.do(ctx, http.MethodPost, path, transactionWrapper{txn}, nil)
}

// AmendTransaction replaces an existing transaction by id. The caller is
// responsible for sending every field back, not just the changed ones.
func (c *Client) AmendTransaction(ctx context.Context, txn *model.Transaction) error {
	if txn.ID == "" {
		return fmt.Errorf("ledger: amending a transaction without an id")
	}
	path := fmt.Sprintf("/budgets/%s/transactions/%s", c.budgetID, txn.ID)
	return c.do(ctx, http.MethodPut, path, transactionWrapper{txn}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ledger: parsing %s %s response: %w", method, path, err)
		}
	}
	return nil
}
