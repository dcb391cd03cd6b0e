package notify

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// SlackPoster is the part of *slack.Client used by SlackMirror.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackMirror persists chatter posts and copies them to a Slack channel.
// Slack errors are logged; the stored post is the record of truth.
type SlackMirror struct {
	repository.ActivityRepository
	poster  SlackPoster
	channel string
	logger  *zap.Logger
}

// NewSlackMirror wraps an activity repository.
func NewSlackMirror(inner repository.ActivityRepository, poster SlackPoster, channel string, logger *zap.Logger) *SlackMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackMirror{ActivityRepository: inner, poster: poster, channel: channel, logger: logger}
}

func (m *SlackMirror) Create(ctx context.Context, entry *domain.ActivityEntry) error {
	if err := m.ActivityRepository.Create(ctx, entry); err != nil {
		return err
	}
	text := "[" + entry.TicketID + "] " + slackText(entry.Body)
	if _, _, err := m.poster.PostMessageContext(ctx, m.channel, slack.MsgOptionText(text, false)); err != nil {
		m.logger.Warn("slack mirror failed",
			zap.String("ticket_id", entry.TicketID),
			zap.String("channel", m.channel),
			zap.Error(err))
	}
	return nil
}

var slackMarkup = strings.NewReplacer(
	"<b>", "*", "</b>", "*",
	"<br/>", "\n", "<br>", "\n",
)

func slackText(body string) string {
	return slackMarkup.Replace(body)
}
