package domain

import "time"

// ActivityEntry is a chatter post on a ticket's internal log.
type ActivityEntry struct {
	ID             string
	TicketID       string
	Body           string
	NotifyContacts []string
	CreatedAt      time.Time
}

// ScheduledActivity is a follow-up task assigned to a user.
type ScheduledActivity struct {
	ID         string
	TicketID   string
	AssigneeID string
	Note       string
	DueDate    time.Time
	CreatedAt  time.Time
}
