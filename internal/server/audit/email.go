package audit

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/resend/resend-go/v3"
)

// EmailSender is the part of the Resend client the alert sink needs.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// NewResendSender returns the e-mail API of a Resend client.
func NewResendSender(apiKey string) EmailSender {
	return resend.NewClient(apiKey).Emails
}

// EmailAlertSink mails the security team about security events and ignores
// everything else.
type EmailAlertSink struct {
	sender  EmailSender
	from    string
	to      []string
	timeout time.Duration
	logger  logging.Logger
}

func NewEmailAlertSink(sender EmailSender, from string, to []string, l logging.Logger) *EmailAlertSink {
	return &EmailAlertSink{
		sender:  sender,
		from:    from,
		to:      to,
		timeout: 10 * time.Second,
		logger:  l.With("module", "audit_email"),
	}
}

func (s *EmailAlertSink) Emit(ctx context.Context, e Event) {
	if !e.Security() || len(s.to) == 0 {
		return
	}

	body := fmt.Sprintf(`<p>A refresh token was presented after it had already been rotated.</p>
<p>The whole session chain has been revoked and the user must sign in again.</p>
<ul>
<li>User: %s</li>
<li>Token: %s</li>
<li>IP: %s</li>
<li>Time: %s</li>
</ul>`,
		html.EscapeString(e.UserID), html.EscapeString(e.TokenID),
		html.EscapeString(e.IP), e.Timestamp.UTC().Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.sender.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      s.to,
		Subject: "[storefront] refresh token reuse detected",
		Html:    body,
	})
	if err != nil {
		s.logger.Error(ctx, "send security alert", "user_id", e.UserID, "error", err)
	}
}
