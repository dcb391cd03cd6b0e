package service

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// HistoryRecorder writes the audit trail from published ticket events.
type HistoryRecorder struct {
	history repository.TicketHistoryRepository
}

// NewHistoryRecorder builds a recorder.
func NewHistoryRecorder(history repository.TicketHistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{history: history}
}

// RegisterHandlers subscribes to state, assignee and priority events.
func (h *HistoryRecorder) RegisterHandlers(dispatcher events.Dispatcher) {
	for _, eventType := range events.TransitionEvents {
		dispatcher.Subscribe(eventType, h.Handle)
	}
	dispatcher.Subscribe(events.EventTicketAssigned, h.Handle)
	dispatcher.Subscribe(events.EventPriorityChanged, h.Handle)
}

// Handle records one entry for the event, if it describes a change.
func (h *HistoryRecorder) Handle(ctx context.Context, event events.Event) error {
	entry := &domain.TicketHistory{TicketID: event.TicketID}
	if event.ActorID != "" {
		actor := event.ActorID
		entry.ChangedByID = &actor
	}

	switch payload := event.Payload.(type) {
	case events.StateChangedPayload:
		entry.ChangeType = domain.ChangeTypeState
		entry.OldValue = string(payload.OldState)
		entry.NewValue = string(payload.NewState)
	case events.AssignedPayload:
		entry.ChangeType = domain.ChangeTypeAssignee
		entry.OldValue = deref(payload.OldAssigneeID)
		entry.NewValue = deref(payload.NewAssigneeID)
	case events.PriorityChangedPayload:
		entry.ChangeType = domain.ChangeTypePriority
		entry.OldValue = string(payload.OldPriority)
		entry.NewValue = string(payload.NewPriority)
	default:
		return nil
	}
	return h.history.Create(ctx, entry)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
