package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"

	"github.com/Awaisee01/fund-sub001/internal/config"
)

var ErrNotConfigured = errors.New("email delivery not configured")

type sendFunc func(req *resend.SendEmailRequest) error

// Mailer sends the operator notification through Resend.
type Mailer struct {
	send     sendFunc
	from     string
	to       string
	adminURL string
}

func NewMailer(cfg config.EmailConfig) *Mailer {
	m := &Mailer{
		from:     fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From),
		to:       cfg.OperatorEmail,
		adminURL: cfg.AdminURL,
	}
	if cfg.ResendAPIKey != "" {
		client := resend.NewClient(cfg.ResendAPIKey)
		m.send = func(req *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(req)
			return err
		}
	}
	return m
}

func (m *Mailer) SendLeadNotification(ctx context.Context, summary LeadSummary) error {
	if m.send == nil || m.to == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	html, text, err := render(summary, m.adminURL)
	if err != nil {
		return err
	}

	req := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{m.to},
		Subject: subjectFor(summary),
		Html:    html,
		Text:    text,
	}
	if summary.Email != "" {
		req.ReplyTo = summary.Email
	}
	if err := m.send(req); err != nil {
		return fmt.Errorf("send lead notification via resend: %w", err)
	}
	return nil
}
