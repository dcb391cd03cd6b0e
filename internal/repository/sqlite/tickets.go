package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

const ticketColumns = `id, reference, reference_pending, subject, description, customer_id, assignee_id,
	creator_id, priority, state, opened_at, closed_at, updated_at`

// TicketRepository implements repository.TicketRepository.
type TicketRepository struct {
	db *sql.DB
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	if ticket.OpenedAt.IsZero() {
		ticket.OpenedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, reference, reference_pending, subject, description, customer_id, assignee_id,
			creator_id, priority, state, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		ticket.Reference,
		ticket.ReferencePending,
		ticket.Subject,
		ticket.Description,
		nullString(ticket.CustomerID),
		nullString(ticket.AssigneeID),
		ticket.CreatorID,
		string(ticket.Priority),
		string(ticket.State),
		formatTime(ticket.OpenedAt),
		formatTime(now),
	)
	if err != nil {
		return mapError(err)
	}
	ticket.ID = id
	ticket.UpdatedAt = now
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketState) error {
	now := time.Now().UTC()
	var closedAt sql.NullString
	if ticket.ClosedAt != nil {
		closedAt = sql.NullString{String: formatTime(*ticket.ClosedAt), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET subject=?, description=?, customer_id=?, assignee_id=?,
			priority=?, state=?, closed_at=?, updated_at=?
		WHERE id=? AND state=?`,
		ticket.Subject,
		ticket.Description,
		nullString(ticket.CustomerID),
		nullString(ticket.AssigneeID),
		string(ticket.Priority),
		string(ticket.State),
		closedAt,
		formatTime(now),
		ticket.ID,
		string(expected),
	)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		ticket.UpdatedAt = now
		return nil
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tickets WHERE id=?`, ticket.ID).Scan(&exists); err != nil {
		return mapError(err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrStaleState
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
}

func (r *TicketRepository) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE reference=?`, reference)
}

func (r *TicketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapError(err)
	}
	return ticket, nil
}

func (r *TicketRepository) ListUnresolved(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE state NOT IN (?, ?) AND opened_at <= ?
		ORDER BY opened_at ASC`,
		string(domain.TicketStateClosed), string(domain.TicketStateSolved), formatTime(cutoff))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		clauses = append(clauses, "customer_id=?")
		args = append(args, *filter.CustomerID)
	}
	if filter.AssigneeID != nil {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, *filter.AssigneeID)
	}
	if filter.CreatorID != nil {
		clauses = append(clauses, "creator_id=?")
		args = append(args, *filter.CreatorID)
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(state))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			placeholders[i] = "?"
			args = append(args, string(pr))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenedFrom != nil {
		clauses = append(clauses, "opened_at >= ?")
		args = append(args, formatTime(*filter.OpenedFrom))
	}
	if filter.OpenedTo != nil {
		clauses = append(clauses, "opened_at <= ?")
		args = append(args, formatTime(*filter.OpenedTo))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		clauses = append(clauses, "(LOWER(subject) LIKE ? OR LOWER(description) LIKE ? OR LOWER(reference) LIKE ?)")
		args = append(args, search, search, search)
	}

	limit, offset := repository.NormalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY opened_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket                 domain.Ticket
		priority, state        string
		customerID, assigneeID sql.NullString
		openedAt, updatedAt    string
		closedAt               sql.NullString
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Reference,
		&ticket.ReferencePending,
		&ticket.Subject,
		&ticket.Description,
		&customerID,
		&assigneeID,
		&ticket.CreatorID,
		&priority,
		&state,
		&openedAt,
		&closedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	ticket.Priority = domain.TicketPriority(priority)
	ticket.State = domain.TicketState(state)
	ticket.CustomerID = stringPtr(customerID)
	ticket.AssigneeID = stringPtr(assigneeID)

	var err error
	if ticket.OpenedAt, err = parseTime(openedAt); err != nil {
		return nil, fmt.Errorf("sqlite store: opened_at: %w", err)
	}
	if ticket.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite store: updated_at: %w", err)
	}
	if closedAt.Valid {
		t, err := parseTime(closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: closed_at: %w", err)
		}
		ticket.ClosedAt = &t
	}
	return &ticket, nil
}

func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
