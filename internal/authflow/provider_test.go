package authflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconciled-dev/reconciled/internal/config"
)

func providerConfig(tokenURL string) *config.BrokerageConfig {
	return &config.BrokerageConfig{
		ClientID:     "client-1",
		ClientSecret: "shh",
		RedirectURI:  "http://localhost:9999/",
		AuthorizeURL: "https://idp.example.com/authorize",
		TokenURL:     tokenURL,
	}
}

func TestAuthorizeURL(t *testing.T) {
	p := NewProvider(providerConfig("https://idp.example.com/token"))

	u, err := url.Parse(p.AuthorizeURL())
	require.NoError(t, err)

	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "0", q.Get("state"))
	assert.Equal(t, "http://localhost:9999/", q.Get("redirect_uri"))
}

func TestExchangeCode(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","expires_in":1200,"refresh_token":"rt","refresh_token_expires_in":3600}`))
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	tok, err := p.ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "abc123", form.Get("code"))
	assert.Equal(t, "client-1", form.Get("client_id"))
	assert.Equal(t, "shh", form.Get("client_secret"))
	assert.Equal(t, "http://localhost:9999/", form.Get("redirect_uri"))

	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, int64(3600), tok.RefreshTokenExpiresIn)
}

func TestRefresh(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at2","expires_in":1200,"refresh_token":"rt2","refresh_token_expires_in":3600}`))
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	tok, err := p.Refresh(context.Background(), "seed-rt")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "seed-rt", form.Get("refresh_token"))
	assert.Equal(t, "at2", tok.AccessToken)
}

func TestTokenEndpointRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	_, err := p.Refresh(context.Background(), "stale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestTokenResponseMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expires_in":1200}`))
	}))
	defer srv.Close()

	p := NewProvider(providerConfig(srv.URL))
	_, err := p.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token fields")
}
