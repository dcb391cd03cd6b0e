package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const ticketColumns = `id, reference, reference_pending, subject, description, customer_id, assignee_id,
               creator_id, priority, state, opened_at, closed_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates a Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (reference, reference_pending, subject, description, customer_id, assignee_id,
            creator_id, priority, state, opened_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Reference,
		ticket.ReferencePending,
		ticket.Subject,
		ticket.Description,
		ticket.CustomerID,
		ticket.AssigneeID,
		ticket.CreatorID,
		ticket.Priority,
		ticket.State,
		ticket.OpenedAt,
	).Scan(&ticket.ID, &ticket.UpdatedAt)
	return mapPgError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expected domain.TicketState) error {
	const query = `
        UPDATE tickets SET subject=$1, description=$2, customer_id=$3, assignee_id=$4,
            priority=$5, state=$6, closed_at=$7, updated_at=NOW()
        WHERE id=$8 AND state=$9
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		ticket.CustomerID,
		ticket.AssigneeID,
		ticket.Priority,
		ticket.State,
		ticket.ClosedAt,
		ticket.ID,
		expected,
	).Scan(&ticket.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mapPgError(err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return mapPgError(err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleState
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reference=$1`
	return r.fetchSingle(ctx, query, reference)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapPgError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListUnresolved(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
             WHERE state NOT IN ($1, $2) AND opened_at <= $3
             ORDER BY opened_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.TicketStateClosed, domain.TicketStateSolved, cutoff)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenedFrom != nil {
		args = append(args, *filter.OpenedFrom)
		clauses = append(clauses, fmt.Sprintf("opened_at >= $%d", len(args)))
	}
	if filter.OpenedTo != nil {
		args = append(args, *filter.OpenedTo)
		clauses = append(clauses, fmt.Sprintf("opened_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s OR LOWER(reference) LIKE %s)", placeholder, placeholder, placeholder))
	}

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY opened_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

// NormalizePage clamps listing bounds to sane defaults.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Reference,
		&ticket.ReferencePending,
		&ticket.Subject,
		&ticket.Description,
		&ticket.CustomerID,
		&ticket.AssigneeID,
		&ticket.CreatorID,
		&ticket.Priority,
		&ticket.State,
		&ticket.OpenedAt,
		&ticket.ClosedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
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
