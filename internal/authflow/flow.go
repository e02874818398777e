// Package authflow implements the OAuth authorization-code lifecycle used to
// reach balance sources behind interactive login: cached refresh seed, local
// redirect receiver, code exchange, and the per-run refresh rotation.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/model"
	"github.com/reconciled-dev/reconciled/internal/notify"
	"github.com/reconciled-dev/reconciled/internal/tokencache"
)

// Flow drives one account's authorization. It never retries: the first
// failing step aborts with its error.
type Flow struct {
	account  string
	cfg      *config.BrokerageConfig
	provider *Provider
	notifier notify.Notifier
	log      *slog.Logger
}

// New builds a Flow for one brokerage account.
func New(account string, cfg *config.BrokerageConfig, notifier notify.Notifier, log *slog.Logger) *Flow {
	return &Flow{
		account:  account,
		cfg:      cfg,
		provider: NewProvider(cfg),
		notifier: notifier,
		log:      log.With("account", account),
	}
}

// AccessToken returns a usable access token. A cached pair is only ever the
// refresh seed: refresh tokens outlive access tokens by a wide margin, so the
// pair is always refreshed before use and the refreshed pair replaces the
// cache. When no valid seed exists, the interactive login path runs first.
func (f *Flow) AccessToken(ctx context.Context) (string, error) {
	seed, ok := tokencache.Load(f.cfg.TokenCachePath)
	if !ok {
		f.log.Info("no valid cached token, starting interactive login")
		var err error
		seed, err = f.interactiveLogin(ctx)
		if err != nil {
			return "", err
		}
	}

	fresh, err := f.provider.Refresh(ctx, seed.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refreshing token for %s: %w", f.account, err)
	}
	if err := tokencache.Save(f.cfg.TokenCachePath, fresh); err != nil {
		return "", fmt.Errorf("caching refreshed token for %s: %w", f.account, err)
	}
	f.log.Debug("token refreshed and cached")
	return fresh.AccessToken, nil
}

// interactiveLogin sends the user the login link, waits for the browser's
// redirect, and exchanges the code it carries for a token pair.
func (f *Flow) interactiveLogin(ctx context.Context) (*model.CachedToken, error) {
	loginURL := f.provider.AuthorizeURL()

	f.notifier.Send(ctx, notify.Notification{
		Title:    fmt.Sprintf("Log in to %s", f.account),
		Message:  fmt.Sprintf("Interactive login needed to reconcile %s", f.account),
		URL:      loginURL,
		URLTitle: "Login link",
	})
	f.log.Info("login link sent, waiting for redirect", "listen_addr", f.cfg.ListenAddr)

	waitCtx := ctx
	if timeout := time.Duration(f.cfg.LoginWaitTimeout); timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	code, err := AwaitCode(waitCtx, f.cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	tok, err := f.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for %s: %w", f.account, err)
	}
	if err := tokencache.Save(f.cfg.TokenCachePath, tok); err != nil {
		return nil, fmt.Errorf("caching token for %s: %w", f.account, err)
	}
	return tok, nil
}
