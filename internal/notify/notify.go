// Package notify delivers templated notices to group members and portal
// subscribers. Callers only see the Dispatcher interface; the concrete
// provider is chosen from configuration at startup.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Notice types.
const (
	TypeDeposit  = "deposit"
	TypeFailure  = "failure"
	TypeReminder = "reminder"
)

// ErrNotConfigured is returned by providers that are missing credentials.
var ErrNotConfigured = errors.New("notify: provider not configured")

// Notice is one outbound message. Amount is preformatted ("KES 50").
type Notice struct {
	To      string
	Name    string
	Amount  string
	Date    time.Time
	Type    string
	Subject string
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notice) error
}

// Render fills the subject and plain text body for a notice.
func Render(n Notice) (subject, body string) {
	subject = n.Subject
	date := n.Date.Format("2006-01-02 15:04")
	switch n.Type {
	case TypeDeposit:
		if subject == "" {
			subject = "Deposit received"
		}
		body = fmt.Sprintf("Hello %s,\n\nWe received your deposit of %s on %s.\n", n.Name, n.Amount, date)
	case TypeFailure:
		if subject == "" {
			subject = "Deposit failed"
		}
		body = fmt.Sprintf("Hello %s,\n\nYour deposit of %s on %s could not be processed.\n", n.Name, n.Amount, date)
	case TypeReminder:
		if subject == "" {
			subject = "Daily deposit reminder"
		}
		body = fmt.Sprintf("Hello %s,\n\nThis is a reminder to make your deposit of %s today (%s).\n", n.Name, n.Amount, n.Date.Format("2006-01-02"))
	default:
		if subject == "" {
			subject = "Notification"
		}
		body = fmt.Sprintf("Hello %s,\n\n%s %s on %s.\n", n.Name, strings.TrimSpace(n.Type), n.Amount, date)
	}
	return subject, body
}

// Nop drops every notice.
type Nop struct{}

func (Nop) Dispatch(context.Context, Notice) error { return nil }

// Recorder keeps every dispatched notice in memory. Err, when set, is
// returned from Dispatch after the notice is recorded.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	Err     error
}

func (r *Recorder) Dispatch(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.Err
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Config selects and configures a provider.
type Config struct {
	Provider      string
	FromEmail     string
	FromName      string
	PostmarkToken string
	SendGridKey   string
}

// New builds the dispatcher named by cfg.Provider: postmark, sendgrid or none.
func New(cfg Config) (Dispatcher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return Nop{}, nil
	case "postmark":
		if cfg.PostmarkToken == "" {
			return nil, fmt.Errorf("postmark: %w", ErrNotConfigured)
		}
		return NewPostmark(cfg.PostmarkToken, cfg.FromEmail), nil
	case "sendgrid":
		if cfg.SendGridKey == "" {
			return nil, fmt.Errorf("sendgrid: %w", ErrNotConfigured)
		}
		return NewSendGrid(cfg.SendGridKey, cfg.FromEmail, cfg.FromName), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
