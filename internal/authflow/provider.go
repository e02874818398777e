package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/model"
)

// Provider talks to an identity provider's authorize and token endpoints for
// one brokerage account.
type Provider struct {
	cfg    *config.BrokerageConfig
	client *http.Client
}

// NewProvider builds a Provider from account settings.
func NewProvider(cfg *config.BrokerageConfig) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthorizeURL is the interactive login URL delivered to the user. The state
// value is fixed: the receiver accepts exactly one redirect on a loopback
// port, so there is no cross-request state to correlate.
func (p *Provider) AuthorizeURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("state", "0")
	q.Set("redirect_uri", p.cfg.RedirectURI)
	return p.cfg.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*model.CachedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	return p.token(ctx, form)
}

// Refresh trades a refresh token for a new token pair.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*model.CachedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return p.token(ctx, form)
}

func (p *Provider) token(ctx context.Context, form url.Values) (*model.CachedToken, error) {
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("redirect_uri", p.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("authflow: building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authflow: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("authflow: token endpoint returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var tok model.CachedToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("authflow: parsing token response: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, fmt.Errorf("authflow: token response missing token fields")
	}
	return &tok, nil
}
