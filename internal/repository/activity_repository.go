package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository builds the chatter repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, entry *domain.ActivityEntry) error {
	const query = `
        INSERT INTO ticket_activity_entries (ticket_id, body, notify_contacts)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	notify := entry.NotifyContacts
	if notify == nil {
		notify = []string{}
	}
	err := r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Body,
		notify,
	).Scan(&entry.ID, &entry.CreatedAt)
	return mapPgError(err)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	const query = `
        SELECT id, ticket_id, body, notify_contacts, created_at
        FROM ticket_activity_entries WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var result []domain.ActivityEntry
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Body,
			&entry.NotifyContacts,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

type scheduledActivityRepository struct {
	pool *pgxpool.Pool
}

// NewScheduledActivityRepository builds the follow-up task repository.
func NewScheduledActivityRepository(pool *pgxpool.Pool) ScheduledActivityRepository {
	return &scheduledActivityRepository{pool: pool}
}

func (r *scheduledActivityRepository) Create(ctx context.Context, activity *domain.ScheduledActivity) error {
	const query = `
        INSERT INTO ticket_scheduled_activities (ticket_id, assignee_id, note, due_date)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		activity.TicketID,
		activity.AssigneeID,
		activity.Note,
		activity.DueDate,
	).Scan(&activity.ID, &activity.CreatedAt)
	return mapPgError(err)
}

func (r *scheduledActivityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ScheduledActivity, error) {
	const query = `
        SELECT id, ticket_id, assignee_id, note, due_date, created_at
        FROM ticket_scheduled_activities WHERE ticket_id=$1 ORDER BY due_date ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var result []domain.ScheduledActivity
	for rows.Next() {
		var activity domain.ScheduledActivity
		if err := rows.Scan(
			&activity.ID,
			&activity.TicketID,
			&activity.AssigneeID,
			&activity.Note,
			&activity.DueDate,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}
