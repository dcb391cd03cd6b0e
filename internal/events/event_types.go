package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "created"
	EventTicketStarted      EventType = "started"
	EventTicketWaiting      EventType = "waiting"
	EventTicketResolved     EventType = "resolved"
	EventTicketClosed       EventType = "closed"
	EventTicketReset        EventType = "reset"
	EventUnresolvedReminder EventType = "unresolved_reminder"
	EventTicketAssigned     EventType = "assigned"
	EventPriorityChanged    EventType = "priority_changed"
)

// TransitionEvents lists the events emitted by state transitions.
var TransitionEvents = []EventType{
	EventTicketCreated,
	EventTicketStarted,
	EventTicketWaiting,
	EventTicketResolved,
	EventTicketClosed,
	EventTicketReset,
}

// Event represents a ticket event emitted after a change has been persisted.
// Ticket is a snapshot taken at publication time.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	TicketID  string        `json:"ticket_id"`
	ActorID   string        `json:"actor_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Ticket    domain.Ticket `json:"ticket"`
	Payload   interface{}   `json:"payload,omitempty"`
}

// StateChangedPayload accompanies transition events.
type StateChangedPayload struct {
	OldState domain.TicketState `json:"old_state"`
	NewState domain.TicketState `json:"new_state"`
}

// ReminderPayload accompanies unresolved reminders.
type ReminderPayload struct {
	ThresholdDays int `json:"threshold_days"`
}

// AssignedPayload accompanies assignee changes.
type AssignedPayload struct {
	OldAssigneeID *string `json:"old_assignee_id,omitempty"`
	NewAssigneeID *string `json:"new_assignee_id,omitempty"`
}

// PriorityChangedPayload accompanies priority changes.
type PriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}
