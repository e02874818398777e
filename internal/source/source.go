// Package source supplies the current real-world balance for configured
// accounts. Each source kind owns its entire login mechanism behind the same
// interface: the brokerage source runs an OAuth flow, the portal source logs
// in with stored credentials.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reconciled-dev/reconciled/internal/config"
	"github.com/reconciled-dev/reconciled/internal/notify"
)

// Source fetches one account's true balance in major currency units.
type Source interface {
	Name() string
	Account() *config.AccountConfig
	FetchBalance(ctx context.Context) (float64, error)
}

// Build constructs the Source for an account. Config validation has already
// rejected unknown kinds, so hitting the default branch means a Build call on
// an unvalidated config.
func Build(acct *config.AccountConfig, notifier notify.Notifier, log *slog.Logger) (Source, error) {
	switch acct.Kind {
	case "brokerage":
		return NewBrokerage(acct, notifier, log), nil
	case "portal":
		return NewPortal(acct)
	default:
		return nil, fmt.Errorf("source: unknown account kind %q", acct.Kind)
	}
}
