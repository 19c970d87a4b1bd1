// Package notify sends tracking-token receipts to named reporters.
package notify

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Config holds settings for composing and sending receipts.
type Config struct {
	FromAddress string
	FromName    string
	// BaseURL is the public portal URL used to build the tracking link.
	BaseURL string
	// SandboxMode when true prevents actual email delivery via SendGrid.
	SandboxMode    bool
	SendGridAPIKey string
}

// Sender is the interface for sending emails via SendGrid.
type Sender interface {
	Send(email *mail.SGMailV3) (*SendResult, error)
}

// SendResult contains the result of sending an email.
type SendResult struct {
	StatusCode int
	MessageID  string
}

// SendGridSender sends emails via the SendGrid API.
type SendGridSender struct {
	APIKey string
}

// Send dispatches an email through the SendGrid API.
func (s *SendGridSender) Send(email *mail.SGMailV3) (*SendResult, error) {
	client := sendgrid.NewSendClient(s.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return nil, fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	messageID := ""
	if ids, ok := resp.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	return &SendResult{
		StatusCode: resp.StatusCode,
		MessageID:  messageID,
	}, nil
}

// Receipt is what a reporter is told after submitting.
type Receipt struct {
	Name    string
	Contact string
	Title   string
	Token   string
}

// Notifier sends receipts. A Notifier without an API key or sender address
// is disabled and silently skips every receipt.
type Notifier struct {
	cfg    Config
	sender Sender
	logger *zap.Logger
}

// New returns a Notifier. A nil sender means SendGrid with cfg's API key.
func New(cfg Config, sender Sender, logger *zap.Logger) *Notifier {
	if sender == nil {
		sender = &SendGridSender{APIKey: cfg.SendGridAPIKey}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, sender: sender, logger: logger}
}

// Enabled reports whether receipts can be sent at all.
func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.SendGridAPIKey != "" && n.cfg.FromAddress != ""
}

// Send emails r to its contact when the contact is an email address. It
// reports whether a message went out.
func (n *Notifier) Send(_ context.Context, r Receipt) (bool, error) {
	if !n.Enabled() || r.Token == "" {
		return false, nil
	}
	addr, err := netmail.ParseAddress(strings.TrimSpace(r.Contact))
	if err != nil {
		return false, nil
	}

	res, err := n.sender.Send(ComposeReceipt(n.cfg, r, addr.Address))
	if err != nil {
		n.logger.Warn("receipt email failed", zap.String("token", r.Token), zap.Error(err))
		return false, err
	}
	n.logger.Info("receipt email sent",
		zap.String("token", r.Token),
		zap.String("message_id", res.MessageID),
	)
	return true, nil
}

// ComposeReceipt builds the receipt message for r addressed to addr.
func ComposeReceipt(cfg Config, r Receipt, addr string) *mail.SGMailV3 {
	from := mail.NewEmail(cfg.FromName, cfg.FromAddress)
	to := mail.NewEmail(r.Name, addr)

	title := r.Title
	if title == "" {
		title = "your report"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for reporting %q.\n\n", title)
	fmt.Fprintf(&b, "Your tracking token is: %s\n\n", r.Token)
	if cfg.BaseURL != "" {
		fmt.Fprintf(&b, "Check its progress at %s/track?token=%s\n\n", strings.TrimRight(cfg.BaseURL, "/"), r.Token)
	}
	b.WriteString("Keep this token private. Anyone holding it can see the status of your report.\n")

	subject := "Report received: " + r.Token
	message := mail.NewSingleEmail(from, subject, to, b.String(), "")
	if cfg.SandboxMode {
		settings := mail.NewMailSettings()
		settings.SetSandboxMode(mail.NewSetting(true))
		message.SetMailSettings(settings)
	}
	return message
}
