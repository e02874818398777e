package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/model"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(config.LedgerConfig{
		BaseURL:     srv.URL,
		BudgetID:    "budget-1",
		BearerToken: "tok",
	})
}

func TestGetAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets/budget-1/accounts/acct-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"account":{"id":"acct-1","balance":100000,"name":"Brokerage"}}}`))
	}))
	defer srv.Close()

	acct, err := testClient(srv).GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", acct.ID)
	assert.Equal(t, int64(100000), acct.Balance)
}

func TestLastTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/budgets/budget-1/accounts/acct-1/transactions", r.URL.Path)
		w.Write([]byte(`{"data":{"transactions":[
			{"id":"t1","date":"2024-03-01","amount":100,"payee_id":"p1"},
			{"id":"t2","date":"2024-03-15","amount":2000,"payee_id":"p2","memo":"note"}
		]}}`))
	}))
	defer srv.Close()

	last, err := testClient(srv).LastTransaction(context.Background(), "acct-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "t2", last.ID)
	assert.Equal(t, int64(2000), last.Amount)
	assert.JSONEq(t, `"note"`, string(last.Extra["memo"]))
}

func TestLastTransactionEmptyHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"transactions":[]}}`))
	}))
	defer srv.Close()

	last, err := testClient(srv).LastTransaction(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestCreateTransaction(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	txn := &model.Transaction{
		Date:    model.NewDate(2024, time.March, 20),
		Amount:  5000,
		PayeeID: "payee-recon",
		Extra: map[string]json.RawMessage{
			"account_id": json.RawMessage(`"acct-1"`),
		},
	}
	require.NoError(t, testClient(srv).CreateTransaction(context.Background(), txn))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/budgets/budget-1/transactions", gotPath)
	assert.JSONEq(t, `{"transaction":{
		"date":"2024-03-20","amount":5000,"payee_id":"payee-recon","account_id":"acct-1"
	}}`, string(gotBody))
}

func TestAmendTransactionRoundTripsFields(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	txn := &model.Transaction{
		ID:      "t2",
		Date:    model.NewDate(2024, time.March, 20),
		Amount:  7000,
		PayeeID: "payee-recon",
		Extra: map[string]json.RawMessage{
			"memo":    json.RawMessage(`"note"`),
			"cleared": json.RawMessage(`"reconciled"`),
		},
	}
	require.NoError(t, testClient(srv).AmendTransaction(context.Background(), txn))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/budgets/budget-1/transactions/t2", gotPath)
	assert.JSONEq(t, `{"transaction":{
		"id":"t2","date":"2024-03-20","amount":7000,"payee_id":"payee-recon",
		"memo":"note","cleared":"reconciled"
	}}`, string(gotBody))
}

func TestAmendTransactionMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	err := testClient(srv).AmendTransaction(context.Background(), &model.Transaction{})
	require.Error(t, err)
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"id":"401"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv).GetAccount(context.Background(), "acct-1")
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Contains(t, statusErr.Body, "401")
}
