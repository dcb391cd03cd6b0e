package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// SMTPNotifier delivers emails through an SMTP relay.
type SMTPNotifier struct {
	client    *mail.Client
	templates *Templates
	from      string
}

// NewSMTPNotifier configures the SMTP client. Authentication is enabled only when a username is set.
func NewSMTPNotifier(cfg config.NotificationConfig, templates *Templates) (*SMTPNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPNotifier{client: client, templates: templates, from: cfg.EmailFrom}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	rendered, err := n.templates.Render(msg.TemplateID, msg.Data)
	if err != nil {
		return err
	}
	m, err := buildMessage(n.from, msg.ToEmail, rendered)
	if err != nil {
		return err
	}
	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.TemplateID, msg.ToEmail, err)
	}
	return nil
}

func buildMessage(from, to string, rendered Rendered) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", to, err)
	}
	m.Subject(rendered.Subject)
	m.SetBodyString(mail.TypeTextPlain, rendered.Text)
	m.AddAlternativeString(mail.TypeTextHTML, rendered.HTML)
	return m, nil
}
