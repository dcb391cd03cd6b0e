package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateNew        TicketState = "new"
	TicketStateInProgress TicketState = "in_progress"
	TicketStateWaiting    TicketState = "waiting"
	TicketStateSolved     TicketState = "solved"
	TicketStateClosed     TicketState = "closed"
)

// Valid reports whether s is a known state.
func (s TicketState) Valid() bool {
	switch s {
	case TicketStateNew, TicketStateInProgress, TicketStateWaiting, TicketStateSolved, TicketStateClosed:
		return true
	}
	return false
}

// Unresolved reports whether the ticket still needs work.
func (s TicketState) Unresolved() bool {
	return s != TicketStateSolved && s != TicketStateClosed
}

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
//
// ReferencePending is set when the reference could not be drawn from the
// sequence generator and a placeholder was issued instead.
type Ticket struct {
	ID               string
	Reference        string
	ReferencePending bool
	Subject          string
	Description      string
	CustomerID       *string
	AssigneeID       *string
	CreatorID        string
	Priority         TicketPriority
	State            TicketState
	OpenedAt         time.Time
	ClosedAt         *time.Time
	UpdatedAt        time.Time
}

// IsAssignee reports whether userID is the ticket's assignee.
func (t *Ticket) IsAssignee(userID string) bool {
	return t.AssigneeID != nil && userID != "" && *t.AssigneeID == userID
}

// Clone returns a deep copy safe to hand to other goroutines.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.CustomerID != nil {
		v := *t.CustomerID
		c.CustomerID = &v
	}
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		c.AssigneeID = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}
