package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lock"
	"github.com/spec-kit/helpdesk-service/internal/report"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sequence"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Transition names a state-changing ticket action.
type Transition string

const (
	TransitionStart   Transition = "start"
	TransitionWaiting Transition = "waiting"
	TransitionSolve   Transition = "solve"
	TransitionClose   Transition = "close"
	TransitionReset   Transition = "reset"
)

// Precondition rule names reported in PreconditionViolation details.
const (
	RuleState = "state"
	RuleActor = "actor"
)

type transitionRule struct {
	from         []domain.TicketState
	to           domain.TicketState
	assigneeOnly bool
	event        events.EventType
	stateMsg     string
	actorMsg     string
}

func (r transitionRule) allows(state domain.TicketState) bool {
	for _, s := range r.from {
		if s == state {
			return true
		}
	}
	return false
}

var transitionRules = map[Transition]transitionRule{
	TransitionStart: {
		from:     []domain.TicketState{domain.TicketStateNew, domain.TicketStateWaiting},
		to:       domain.TicketStateInProgress,
		event:    events.EventTicketStarted,
		stateMsg: "The ticket must be new or waiting to be started.",
	},
	TransitionWaiting: {
		from:         []domain.TicketState{domain.TicketStateInProgress},
		to:           domain.TicketStateWaiting,
		assigneeOnly: true,
		event:        events.EventTicketWaiting,
		stateMsg:     "The ticket must be in progress to be put on hold.",
		actorMsg:     "Only the assigned user can put the ticket on hold.",
	},
	TransitionSolve: {
		from:         []domain.TicketState{domain.TicketStateInProgress, domain.TicketStateWaiting},
		to:           domain.TicketStateSolved,
		assigneeOnly: true,
		event:        events.EventTicketResolved,
		stateMsg:     "The ticket must be in progress or waiting to be marked as solved.",
		actorMsg:     "Only the assigned user can mark the ticket as solved.",
	},
	TransitionClose: {
		from:     []domain.TicketState{domain.TicketStateSolved, domain.TicketStateWaiting},
		to:       domain.TicketStateClosed,
		event:    events.EventTicketClosed,
		stateMsg: "The ticket must be solved or waiting to be closed.",
	},
	TransitionReset: {
		from:     []domain.TicketState{domain.TicketStateClosed},
		to:       domain.TicketStateNew,
		event:    events.EventTicketReset,
		stateMsg: "The ticket must be closed to be reset to new.",
	},
}

// ParseTransition maps an action name to a Transition.
func ParseTransition(action string) (Transition, bool) {
	t := Transition(strings.ToLower(strings.TrimSpace(action)))
	_, ok := transitionRules[t]
	return t, ok
}

// DocumentRenderer produces printable ticket documents.
type DocumentRenderer interface {
	Render(ctx context.Context, sheet report.Sheet) (string, error)
}

// TicketService is the transition engine: it validates, applies and
// persists ticket state changes and publishes an event for each.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	contacts   repository.ContactRepository
	activities repository.ActivityRepository
	scheduled  repository.ScheduledActivityRepository
	history    repository.TicketHistoryRepository
	sequence   sequence.Generator
	locker     lock.Locker
	renderer   DocumentRenderer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	seqCode    string
	strict     bool
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store          *repository.Store
	Activities     repository.ActivityRepository
	Sequence       sequence.Generator
	SequenceCode   string
	SequenceStrict bool
	Locker         lock.Locker
	Renderer       DocumentRenderer
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Clock          func() time.Time
}

// NewTicketService constructs the service. Activities overrides the store's
// activity repository when set, e.g. with a Slack mirror.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:    deps.Store.Tickets,
		users:      deps.Store.Users,
		contacts:   deps.Store.Contacts,
		activities: deps.Store.Activities,
		scheduled:  deps.Store.Scheduled,
		history:    deps.Store.History,
		sequence:   deps.Sequence,
		locker:     deps.Locker,
		renderer:   deps.Renderer,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		seqCode:    deps.SequenceCode,
		strict:     deps.SequenceStrict,
		now:        deps.Clock,
	}
	if deps.Activities != nil {
		s.activities = deps.Activities
	}
	if s.locker == nil {
		s.locker = lock.NewKeyedMutex()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.seqCode == "" {
		s.seqCode = "helpdesk.ticket"
	}
	return s
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	CustomerID  *string
	AssigneeID  *string
	Priority    domain.TicketPriority
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	CustomerID *string
	AssigneeID *string
	CreatorID  *string
	States     []domain.TicketState
	Priorities []domain.TicketPriority
	SearchTerm *string
	OpenedFrom *time.Time
	OpenedTo   *time.Time
	Limit      int
	Offset     int
}

// Create opens a new ticket on behalf of creatorID.
func (s *TicketService) Create(ctx context.Context, creatorID string, input TicketCreateInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject is required", map[string]any{"field": "subject"})
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityNormal
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"field": "priority", "value": priority})
	}

	if input.CustomerID != nil {
		if err := s.ensureContact(ctx, *input.CustomerID); err != nil {
			return nil, err
		}
	}
	if input.AssigneeID != nil {
		if err := s.ensureAssignee(ctx, *input.AssigneeID); err != nil {
			return nil, err
		}
	}

	ticket := &domain.Ticket{
		Subject:     subject,
		Description: strings.TrimSpace(input.Description),
		CustomerID:  input.CustomerID,
		AssigneeID:  input.AssigneeID,
		CreatorID:   creatorID,
		Priority:    priority,
		State:       domain.TicketStateNew,
		OpenedAt:    s.now(),
	}
	if err := s.assignReference(ctx, ticket); err != nil {
		return nil, err
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("ticket reference already in use", map[string]any{"reference": ticket.Reference})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.EventTicketCreated, ticket, creatorID, events.StateChangedPayload{
		NewState: ticket.State,
	})
	return ticket, nil
}

func (s *TicketService) ensureAssignee(ctx context.Context, id string) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("assignee does not exist", map[string]any{"field": "assignee_id"})
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (s *TicketService) ensureContact(ctx context.Context, id string) error {
	if _, err := s.contacts.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError("customer does not exist", map[string]any{"field": "customer_id"})
		}
		return apperrors.NewInternalError(err)
	}
	return nil
}

// assignReference draws the reference exactly once. When the generator is
// unavailable a unique placeholder is issued unless strict mode is on.
func (s *TicketService) assignReference(ctx context.Context, ticket *domain.Ticket) error {
	var err error
	if s.sequence == nil {
		err = errors.New("no sequence generator configured")
	} else {
		ticket.Reference, err = s.sequence.Next(ctx, s.seqCode)
		if err == nil && strings.TrimSpace(ticket.Reference) == "" {
			err = errors.New("sequence generator returned an empty reference")
		}
	}
	if err == nil {
		return nil
	}
	if s.strict {
		return apperrors.NewUnavailable("ticket reference could not be generated", err)
	}
	ticket.Reference = placeholderReference()
	ticket.ReferencePending = true
	s.logger.Warn("sequence unavailable; issued placeholder reference",
		zap.String("sequence", s.seqCode),
		zap.String("reference", ticket.Reference),
		zap.Error(err))
	return nil
}

func placeholderReference() string {
	return "PENDING-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// StartProgress moves a new or waiting ticket to in progress.
func (s *TicketService) StartProgress(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionStart, ticketID, actorID)
}

// SetWaiting puts an in-progress ticket on hold. Only the assignee may do so.
func (s *TicketService) SetWaiting(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionWaiting, ticketID, actorID)
}

// SetSolved marks the ticket solved. Only the assignee may do so.
func (s *TicketService) SetSolved(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionSolve, ticketID, actorID)
}

// Close closes a solved or waiting ticket and stamps closed_at.
func (s *TicketService) Close(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionClose, ticketID, actorID)
}

// ResetToNew reopens a closed ticket. closed_at is left as is.
func (s *TicketService) ResetToNew(ctx context.Context, ticketID, actorID string) (*domain.Ticket, error) {
	return s.Apply(ctx, TransitionReset, ticketID, actorID)
}

// Apply runs one transition. The per-ticket lock covers load, check and
// persist and is released before the event is published.
func (s *TicketService) Apply(ctx context.Context, name Transition, ticketID, actorID string) (*domain.Ticket, error) {
	rule, ok := transitionRules[name]
	if !ok {
		return nil, apperrors.NewValidationError("unknown transition", map[string]any{"action": name})
	}

	unlock, err := s.locker.Lock(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewUnavailable("ticket is busy", err)
	}
	ticket, from, err := s.applyLocked(ctx, name, rule, ticketID, actorID)
	unlock()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, rule.event, ticket, actorID, events.StateChangedPayload{
		OldState: from,
		NewState: ticket.State,
	})
	return ticket, nil
}

func (s *TicketService) applyLocked(ctx context.Context, name Transition, rule transitionRule, ticketID, actorID string) (*domain.Ticket, domain.TicketState, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	if rule.assigneeOnly && !ticket.IsAssignee(actorID) {
		return nil, "", violation(name, RuleActor, rule.actorMsg, ticket)
	}
	if !rule.allows(ticket.State) {
		return nil, "", violation(name, RuleState, rule.stateMsg, ticket)
	}

	from := ticket.State
	ticket.State = rule.to
	if rule.to == domain.TicketStateClosed {
		closedAt := s.now()
		if closedAt.Before(ticket.OpenedAt) {
			closedAt = ticket.OpenedAt
		}
		ticket.ClosedAt = &closedAt
	}

	if err := s.tickets.Update(ctx, ticket, from); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return nil, "", apperrors.NewPreconditionViolation(
				"The ticket was changed by someone else. Reload it and try again.",
				map[string]any{"rule": RuleState, "transition": name, "ticket_id": ticketID})
		case errors.Is(err, repository.ErrNotFound):
			return nil, "", apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, "", apperrors.NewInternalError(err)
	}
	return ticket, from, nil
}

func violation(name Transition, rule, message string, ticket *domain.Ticket) error {
	return apperrors.NewPreconditionViolation(message, map[string]any{
		"rule":       rule,
		"transition": name,
		"ticket_id":  ticket.ID,
		"state":      ticket.State,
	})
}

// TransitionBatch applies one transition to several tickets in order. Each
// ticket is locked and notified on its own. It stops at the first failure
// and returns the tickets transitioned before it.
func (s *TicketService) TransitionBatch(ctx context.Context, name Transition, ticketIDs []string, actorID string) ([]domain.Ticket, error) {
	if _, ok := transitionRules[name]; !ok {
		return nil, apperrors.NewValidationError("unknown transition", map[string]any{"action": name})
	}
	if len(ticketIDs) == 0 {
		return nil, apperrors.NewValidationError("ticket_ids is required", map[string]any{"field": "ticket_ids"})
	}
	done := make([]domain.Ticket, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		ticket, err := s.Apply(ctx, name, id, actorID)
		if err != nil {
			return done, err
		}
		done = append(done, *ticket)
	}
	return done, nil
}

// Assign changes the assignee. Nil clears it.
func (s *TicketService) Assign(ctx context.Context, ticketID, actorID string, assigneeID *string) (*domain.Ticket, error) {
	if assigneeID != nil {
		if err := s.ensureAssignee(ctx, *assigneeID); err != nil {
			return nil, err
		}
	}

	var previous *string
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) {
		previous = t.AssigneeID
		t.AssigneeID = assigneeID
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventTicketAssigned, ticket, actorID, events.AssignedPayload{
		OldAssigneeID: previous,
		NewAssigneeID: assigneeID,
	})
	return ticket, nil
}

// UpdatePriority sets the priority. Priority has no transition rules.
func (s *TicketService) UpdatePriority(ctx context.Context, ticketID, actorID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"field": "priority", "value": priority})
	}
	var previous domain.TicketPriority
	ticket, err := s.mutate(ctx, ticketID, func(t *domain.Ticket) {
		previous = t.Priority
		t.Priority = priority
	})
	if err != nil {
		return nil, err
	}
	if previous != priority {
		s.publish(ctx, events.EventPriorityChanged, ticket, actorID, events.PriorityChangedPayload{
			OldPriority: previous,
			NewPriority: priority,
		})
	}
	return ticket, nil
}

// mutate applies a field change that leaves the state alone.
func (s *TicketService) mutate(ctx context.Context, ticketID string, change func(*domain.Ticket)) (*domain.Ticket, error) {
	unlock, err := s.locker.Lock(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewUnavailable("ticket is busy", err)
	}
	defer unlock()

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	change(ticket)
	if err := s.tickets.Update(ctx, ticket, ticket.State); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return nil, apperrors.NewPreconditionViolation(
				"The ticket was changed by someone else. Reload it and try again.",
				map[string]any{"rule": RuleState, "ticket_id": ticketID})
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

// NotifyAssignee schedules a "new ticket assigned" activity for the
// assignee, due today. Without an assignee nothing is scheduled.
func (s *TicketService) NotifyAssignee(ctx context.Context, ticketID string) (*domain.ScheduledActivity, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssigneeID == nil {
		return nil, nil
	}
	now := s.now()
	activity := &domain.ScheduledActivity{
		TicketID:   ticket.ID,
		AssigneeID: *ticket.AssigneeID,
		Note:       fmt.Sprintf("New ticket assigned: %s", ticket.Subject),
		DueDate:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}
	if err := s.scheduled.Create(ctx, activity); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return activity, nil
}

// PrintDocument renders the ticket sheet and returns the document handle.
func (s *TicketService) PrintDocument(ctx context.Context, ticketID string) (string, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if s.renderer == nil {
		return "", apperrors.NewUnavailable("document rendering is not configured", nil)
	}

	sheet := report.Sheet{Ticket: *ticket}
	if ticket.CustomerID != nil {
		if c, err := s.contacts.GetByID(ctx, *ticket.CustomerID); err == nil {
			sheet.CustomerName = c.Name
		}
	}
	if ticket.AssigneeID != nil {
		if u, err := s.users.GetByID(ctx, *ticket.AssigneeID); err == nil {
			sheet.AssigneeName = u.Name
		}
	}
	if u, err := s.users.GetByID(ctx, ticket.CreatorID); err == nil {
		sheet.CreatorName = u.Name
	}

	handle, err := s.renderer.Render(ctx, sheet)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return handle, nil
}

// Get loads a ticket by ID.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.load(ctx, ticketID)
}

// List returns tickets matching filter.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		CustomerID: filter.CustomerID,
		AssigneeID: filter.AssigneeID,
		CreatorID:  filter.CreatorID,
		States:     filter.States,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		OpenedFrom: filter.OpenedFrom,
		OpenedTo:   filter.OpenedTo,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// History returns the audit trail of a ticket.
func (s *TicketService) History(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

// Activities returns the chatter posts and scheduled follow-ups of a ticket.
func (s *TicketService) Activities(ctx context.Context, ticketID string) ([]domain.ActivityEntry, []domain.ScheduledActivity, error) {
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, nil, err
	}
	entries, err := s.activities.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	scheduled, err := s.scheduled.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(err)
	}
	return entries, scheduled, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket id is required", map[string]any{"field": "id"})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, actorID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		ActorID:   actorID,
		Timestamp: s.now(),
		Ticket:    *ticket.Clone(),
		Payload:   payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish ticket event",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	}
}
