// Package notify delivers out-of-band push notifications: the interactive
// login link during authorization, and top-level run failures. Delivery is
// fire-and-forget; a notification that cannot be sent is logged and dropped.
package notify

import (
	"context"
	"log/slog"

	"github.com/gregdel/pushover"

	"github.com/reconciled-dev/reconciled/internal/config"
)

// Notification is one push message. URL, when set, is rendered as a clickable
// link titled URLTitle.
type Notification struct {
	Title    string
	Message  string
	URL      string
	URLTitle string
}

// Notifier sends a notification without reporting delivery failure to the
// caller.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}

// Pushover sends notifications through the Pushover API.
type Pushover struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
	log       *slog.Logger
}

// NewPushover builds a Pushover notifier from config. When no keys are
// configured it returns a Nop so callers never have to branch.
func NewPushover(cfg config.PushoverConfig, log *slog.Logger) Notifier {
	if cfg.APIKey == "" || cfg.UserKey == "" {
		log.Debug("pushover keys not configured, notifications disabled")
		return Nop{}
	}
	return &Pushover{
		app:       pushover.New(cfg.APIKey),
		recipient: pushover.NewRecipient(cfg.UserKey),
		log:       log,
	}
}

func (p *Pushover) Send(ctx context.Context, n Notification) {
	msg := &pushover.Message{
		Title:    n.Title,
		Message:  n.Message,
		URL:      n.URL,
		URLTitle: n.URLTitle,
	}
	if _, err := p.app.SendMessage(msg, p.recipient); err != nil {
		p.log.Error("sending push notification", "title", n.Title, "err", err)
		return
	}
	p.log.Debug("push notification sent", "title", n.Title)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Send(context.Context, Notification) {}

// Recorder captures notifications for tests.
type Recorder struct {
	Sent []Notification
}

func (r *Recorder) Send(_ context.Context, n Notification) {
	r.Sent = append(r.Sent, n)
}
