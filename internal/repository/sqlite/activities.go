package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ActivityRepository implements repository.ActivityRepository.
// Notified contact IDs are stored comma separated.
type ActivityRepository struct {
	db *sql.DB
}

func (r *ActivityRepository) Create(ctx context.Context, entry *domain.ActivityEntry) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_activity_entries (id, ticket_id, body, notify_contacts, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, entry.TicketID, entry.Body, strings.Join(entry.NotifyContacts, ","), formatTime(now))
	if err != nil {
		return mapError(err)
	}
	entry.ID = id
	entry.CreatedAt = now
	return nil
}

func (r *ActivityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ActivityEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, body, notify_contacts, created_at
		FROM ticket_activity_entries WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.ActivityEntry
	for rows.Next() {
		var (
			entry             domain.ActivityEntry
			notify, createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.Body, &notify, &createdAt); err != nil {
			return nil, err
		}
		if notify != "" {
			entry.NotifyContacts = strings.Split(notify, ",")
		}
		entry.CreatedAt, _ = parseTime(createdAt)
		result = append(result, entry)
	}
	return result, rows.Err()
}

// ScheduledActivityRepository implements repository.ScheduledActivityRepository.
type ScheduledActivityRepository struct {
	db *sql.DB
}

func (r *ScheduledActivityRepository) Create(ctx context.Context, activity *domain.ScheduledActivity) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_scheduled_activities (id, ticket_id, assignee_id, note, due_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, activity.TicketID, activity.AssigneeID, activity.Note, formatTime(activity.DueDate), formatTime(now))
	if err != nil {
		return mapError(err)
	}
	activity.ID = id
	activity.CreatedAt = now
	return nil
}

func (r *ScheduledActivityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ScheduledActivity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, assignee_id, note, due_date, created_at
		FROM ticket_scheduled_activities WHERE ticket_id=? ORDER BY due_date ASC, created_at ASC`, ticketID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.ScheduledActivity
	for rows.Next() {
		var (
			activity           domain.ScheduledActivity
			dueDate, createdAt string
		)
		if err := rows.Scan(&activity.ID, &activity.TicketID, &activity.AssigneeID, &activity.Note, &dueDate, &createdAt); err != nil {
			return nil, err
		}
		activity.DueDate, _ = parseTime(dueDate)
		activity.CreatedAt, _ = parseTime(createdAt)
		result = append(result, activity)
	}
	return result, rows.Err()
}

// HistoryRepository implements repository.TicketHistoryRepository.
type HistoryRepository struct {
	db *sql.DB
}

func (r *HistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_history (id, ticket_id, changed_by_id, change_type, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, history.TicketID, nullString(history.ChangedByID), string(history.ChangeType),
		history.OldValue, history.NewValue, formatTime(now))
	if err != nil {
		return mapError(err)
	}
	history.ID = id
	history.CreatedAt = now
	return nil
}

func (r *HistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, changed_by_id, change_type, old_value, new_value, created_at
		FROM ticket_history WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history    domain.TicketHistory
			changedBy  sql.NullString
			changeType string
			createdAt  string
		)
		if err := rows.Scan(&history.ID, &history.TicketID, &changedBy, &changeType,
			&history.OldValue, &history.NewValue, &createdAt); err != nil {
			return nil, err
		}
		history.ChangedByID = stringPtr(changedBy)
		history.ChangeType = domain.TicketChangeType(changeType)
		history.CreatedAt, _ = parseTime(createdAt)
		result = append(result, history)
	}
	return result, rows.Err()
}
