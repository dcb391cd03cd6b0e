package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	CustomerID  *string               `json:"customer_id"`
	AssigneeID  *string               `json:"assignee_id"`
	Priority    domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest sets or clears the assignee. A null assignee_id unassigns.
type AssignTicketRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// BatchTransitionRequest applies one action to several tickets in order.
type BatchTransitionRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// TicketSummary response.
type TicketSummary struct {
	ID               string                `json:"id"`
	Reference        string                `json:"reference"`
	ReferencePending bool                  `json:"reference_pending"`
	Subject          string                `json:"subject"`
	CustomerID       *string               `json:"customer_id"`
	AssigneeID       *string               `json:"assignee_id"`
	CreatorID        string                `json:"creator_id"`
	State            domain.TicketState    `json:"state"`
	Priority         domain.TicketPriority `json:"priority"`
	OpenedAt         time.Time             `json:"opened_at"`
	ClosedAt         *time.Time            `json:"closed_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Description string                      `json:"description"`
	History     []TicketHistoryResponse     `json:"history"`
	Activities  []ActivityEntryResponse     `json:"activities"`
	Scheduled   []ScheduledActivityResponse `json:"scheduled_activities"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID *string                 `json:"changed_by_id"`
	OldValue    string                  `json:"old_value"`
	NewValue    string                  `json:"new_value"`
	CreatedAt   time.Time               `json:"created_at"`
}

// ActivityEntryResponse is one activity log post.
type ActivityEntryResponse struct {
	ID             string    `json:"id"`
	Body           string    `json:"body"`
	NotifyContacts []string  `json:"notify_contacts"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScheduledActivityResponse is a follow-up task.
type ScheduledActivityResponse struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AssigneeID string    `json:"assignee_id"`
	Note       string    `json:"note"`
	DueDate    time.Time `json:"due_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// BatchTransitionResponse lists the tickets transitioned before any failure.
type BatchTransitionResponse struct {
	Action       string          `json:"action"`
	Transitioned []TicketSummary `json:"transitioned"`
}

// DocumentResponse points at a rendered ticket sheet.
type DocumentResponse struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
}
