package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Notification channels, used in NotificationFailure details.
const (
	ChannelEmail    = "email"
	ChannelLog      = "activity_log"
	ChannelActivity = "scheduled_activity"
)

const followUpNote = "Follow up on the newly started ticket."

type emailTarget int

const (
	emailNone emailTarget = iota
	emailCustomer
	emailAssignee
)

type logAudience int

const (
	logNone logAudience = iota
	logAssigneeContact
	logCreatorContact
)

// notificationRule is one row of the fixed event table. Log bodies are
// HTML, so every interpolated value must go through html.EscapeString.
type notificationRule struct {
	template string
	email    emailTarget
	log      logAudience
	body     func(p *parties, event events.Event) string
	followUp bool
}

var notificationTable = map[events.EventType]notificationRule{
	events.EventTicketCreated: {
		template: notify.TemplateTicketCreated,
		email:    emailCustomer,
	},
	events.EventTicketStarted: {
		template: notify.TemplateTicketStarted,
		email:    emailAssignee,
		log:      logAssigneeContact,
		body: func(p *parties, _ events.Event) string {
			return fmt.Sprintf("<b>Ticket is now in progress</b><br/>Assigned to: %s", html.EscapeString(p.assigneeName()))
		},
		followUp: true,
	},
	events.EventTicketWaiting: {
		log: logCreatorContact,
		body: func(p *parties, e events.Event) string {
			return fmt.Sprintf("<b>Notification:</b> Ticket %s was put on hold by %s. Awaiting validation from customer %s.",
				html.EscapeString(e.Ticket.Reference), html.EscapeString(p.assigneeName()), html.EscapeString(p.customerName()))
		},
	},
	events.EventTicketResolved: {
		template: notify.TemplateTicketResolved,
		email:    emailCustomer,
		log:      logCreatorContact,
		body: func(p *parties, e events.Event) string {
			return fmt.Sprintf("<b>Notification:</b> Ticket %s was resolved by %s.",
				html.EscapeString(e.Ticket.Reference), html.EscapeString(p.assigneeName()))
		},
	},
	events.EventTicketClosed: {
		template: notify.TemplateTicketClosed,
		email:    emailCustomer,
	},
	events.EventUnresolvedReminder: {
		template: notify.TemplateTicketUnresolved,
		email:    emailCustomer,
		log:      logAssigneeContact,
		body: func(_ *parties, e events.Event) string {
			return fmt.Sprintf("<b>Notification:</b> Ticket %s has been unresolved for %d days.",
				html.EscapeString(e.Ticket.Reference), reminderDays(e))
		},
	},
}

// NotificationService is the dispatcher: for each ticket event it sends the
// email, posts the chatter entry and schedules the follow-up that the event
// table calls for. Every channel is best effort and independent.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	users      repository.UserRepository
	contacts   repository.ContactRepository
	activities repository.ActivityRepository
	scheduled  repository.ScheduledActivityRepository
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for the dispatcher.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Notifier   notify.Notifier
	Users      repository.UserRepository
	Contacts   repository.ContactRepository
	Activities repository.ActivityRepository
	Scheduled  repository.ScheduledActivityRepository
	Logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		users:      deps.Users,
		contacts:   deps.Contacts,
		activities: deps.Activities,
		scheduled:  deps.Scheduled,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every event in the table.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for eventType := range notificationTable {
		n.dispatcher.Subscribe(eventType, n.Handle)
	}
}

// Handle dispatches one event. Channel failures are logged, never returned.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	rule, ok := notificationTable[event.Type]
	if !ok {
		return nil
	}
	ticket := event.Ticket
	p := n.resolveParties(ctx, &ticket, rule)

	if rule.email != emailNone && rule.template != "" {
		n.sendEmail(ctx, event, rule, p)
	}
	if rule.log != logNone && rule.body != nil {
		n.postLog(ctx, event, rule, p)
	}
	if rule.followUp {
		n.scheduleFollowUp(ctx, event)
	}
	return nil
}

func (n *NotificationService) sendEmail(ctx context.Context, event events.Event, rule notificationRule, p *parties) {
	var name, address string
	switch rule.email {
	case emailCustomer:
		if p.customer != nil {
			name, address = p.customer.Name, p.customer.Email
		}
	case emailAssignee:
		if p.assignee != nil {
			name, address = p.assignee.Name, p.assignee.Email
		}
	}
	if strings.TrimSpace(address) == "" {
		n.logger.Debug("email skipped: no recipient address",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return
	}

	ticket := event.Ticket
	err := n.notifier.Send(ctx, notify.Message{
		TemplateID: rule.template,
		ToName:     name,
		ToEmail:    address,
		Data: notify.TemplateData{
			RecipientName: name,
			Reference:     ticket.Reference,
			Subject:       ticket.Subject,
			Description:   ticket.Description,
			State:         string(ticket.State),
			Priority:      string(ticket.Priority),
			AssigneeName:  p.assigneeName(),
			ThresholdDays: reminderDays(event),
		},
	})
	if err != nil {
		n.channelFailed(event, ChannelEmail, err)
	}
}

func (n *NotificationService) postLog(ctx context.Context, event events.Event, rule notificationRule, p *parties) {
	var audience []string
	switch rule.log {
	case logAssigneeContact:
		if p.assignee != nil && p.assignee.ContactID != nil {
			audience = []string{*p.assignee.ContactID}
		}
	case logCreatorContact:
		if p.creator != nil && p.creator.ContactID != nil {
			audience = []string{*p.creator.ContactID}
		}
	}

	entry := &domain.ActivityEntry{
		TicketID:       event.TicketID,
		Body:           rule.body(p, event),
		NotifyContacts: audience,
	}
	if err := n.activities.Create(ctx, entry); err != nil {
		n.channelFailed(event, ChannelLog, err)
	}
}

func (n *NotificationService) scheduleFollowUp(ctx context.Context, event events.Event) {
	if event.Ticket.AssigneeID == nil {
		return
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	activity := &domain.ScheduledActivity{
		TicketID:   event.TicketID,
		AssigneeID: *event.Ticket.AssigneeID,
		Note:       followUpNote,
		DueDate:    at.AddDate(0, 0, 1),
	}
	if err := n.scheduled.Create(ctx, activity); err != nil {
		n.channelFailed(event, ChannelActivity, err)
	}
}

func (n *NotificationService) channelFailed(event events.Event, channel string, err error) {
	n.logger.Warn("notification channel failed",
		zap.String("channel", channel),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.Error(apperrors.NewNotificationFailure(channel, err)))
}

// parties holds the people an event may address. Missing people stay nil.
type parties struct {
	customer *domain.Contact
	assignee *domain.User
	creator  *domain.User
}

func (p *parties) assigneeName() string {
	if p.assignee == nil {
		return ""
	}
	return p.assignee.Name
}

func (p *parties) customerName() string {
	if p.customer == nil {
		return ""
	}
	return p.customer.Name
}

func (n *NotificationService) resolveParties(ctx context.Context, ticket *domain.Ticket, rule notificationRule) *parties {
	p := &parties{}
	if ticket.CustomerID != nil && (rule.email == emailCustomer || rule.body != nil) {
		contact, err := n.contacts.GetByID(ctx, *ticket.CustomerID)
		n.lookupFailed(ticket, "customer", err)
		p.customer = contact
	}
	if ticket.AssigneeID != nil {
		user, err := n.users.GetByID(ctx, *ticket.AssigneeID)
		n.lookupFailed(ticket, "assignee", err)
		p.assignee = user
	}
	if rule.log == logCreatorContact && ticket.CreatorID != "" {
		user, err := n.users.GetByID(ctx, ticket.CreatorID)
		n.lookupFailed(ticket, "creator", err)
		p.creator = user
	}
	return p
}

func (n *NotificationService) lookupFailed(ticket *domain.Ticket, role string, err error) {
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return
	}
	n.logger.Warn("notification recipient lookup failed",
		zap.String("role", role),
		zap.String("ticket_id", ticket.ID),
		zap.Error(err))
}

func reminderDays(event events.Event) int {
	switch payload := event.Payload.(type) {
	case events.ReminderPayload:
		return payload.ThresholdDays
	case *events.ReminderPayload:
		if payload != nil {
			return payload.ThresholdDays
		}
	}
	return 0
}
