// Package notify delivers ticket emails and mirrors chatter posts.
package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Message is one templated email to a single recipient.
type Message struct {
	TemplateID string
	ToName     string
	ToEmail    string
	Data       TemplateData
}

// Notifier sends templated emails.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier renders the email and logs it instead of sending. Used when no SMTP host is configured.
type LogNotifier struct {
	templates *Templates
	from      string
	logger    *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(templates *Templates, from string, logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{templates: templates, from: from, logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	rendered, err := n.templates.Render(msg.TemplateID, msg.Data)
	if err != nil {
		return err
	}
	n.logger.Info("email notification",
		zap.String("template", msg.TemplateID),
		zap.String("from", n.from),
		zap.String("to", msg.ToEmail),
		zap.String("subject", rendered.Subject),
		zap.Int("body_bytes", len(strings.TrimSpace(rendered.Text))))
	return nil
}
