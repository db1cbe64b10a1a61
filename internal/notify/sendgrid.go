package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGrid struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGrid(apiKey, fromEmail, fromName string) *SendGrid {
	return &SendGrid{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Dispatch sends the notice through the SendGrid v3 mail API.
func (s *SendGrid) Dispatch(ctx context.Context, n Notice) error {
	if n.To == "" {
		return fmt.Errorf("sendgrid: notice has no recipient")
	}
	subject, text := Render(n)
	msg := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		subject,
		mail.NewEmail(n.Name, n.To),
		text,
		"<p>"+strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")+"</p>",
	)

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid API error: status %d", resp.StatusCode)
	}
	return nil
}
