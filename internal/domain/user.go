package domain

import "time"

// User is a helpdesk operator: an assignee or the support lead who opened a ticket.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	ContactID    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contact is an addressable party: a customer, or the contact linked to a user.
type Contact struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}
