package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned by TicketRepository.Update when the stored
	// state no longer matches the state the caller loaded.
	ErrStaleState = errors.New("ticket state changed concurrently")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
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

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update persists ticket only if its stored state still equals expected.
	Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketState) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByReference(ctx context.Context, reference string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListUnresolved returns tickets neither solved nor closed opened at or before cutoff.
	ListUnresolved(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
}

// UserRepository defines persistence access for helpdesk users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// ContactRepository stores customers and users' linked contacts.
type ContactRepository interface {
	Create(ctx context.Context, contact *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
}

// ActivityRepository stores chatter posts.
type ActivityRepository interface {
	Create(ctx context.Context, entry *domain.ActivityEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error)
}

// ScheduledActivityRepository stores follow-up tasks.
type ScheduledActivityRepository interface {
	Create(ctx context.Context, activity *domain.ScheduledActivity) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ScheduledActivity, error)
}

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

// Store bundles every repository a backend provides.
type Store struct {
	Tickets    TicketRepository
	Users      UserRepository
	Contacts   ContactRepository
	Activities ActivityRepository
	Scheduled  ScheduledActivityRepository
	History    TicketHistoryRepository
}
