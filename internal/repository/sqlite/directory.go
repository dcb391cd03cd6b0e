package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// UserRepository implements repository.UserRepository.
type UserRepository struct {
	db *sql.DB
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, contact_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, user.Name, user.Email, user.PasswordHash, nullString(user.ContactID), formatTime(now), formatTime(now))
	if err != nil {
		return mapError(err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT id, name, email, password_hash, contact_id, created_at, updated_at FROM users WHERE id=?`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT id, name, email, password_hash, contact_id, created_at, updated_at FROM users WHERE email=?`, email)
}

func (r *UserRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		user                 domain.User
		contactID            sql.NullString
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &contactID, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	user.ContactID = stringPtr(contactID)
	user.CreatedAt, _ = parseTime(createdAt)
	user.UpdatedAt, _ = parseTime(updatedAt)
	return &user, nil
}

// ContactRepository implements repository.ContactRepository.
type ContactRepository struct {
	db *sql.DB
}

func (r *ContactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `INSERT INTO contacts (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		id, contact.Name, contact.Email, formatTime(now))
	if err != nil {
		return mapError(err)
	}
	contact.ID = id
	contact.CreatedAt = now
	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	var (
		contact   domain.Contact
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email, created_at FROM contacts WHERE id=?`, id).Scan(
		&contact.ID, &contact.Name, &contact.Email, &createdAt)
	if err != nil {
		return nil, mapError(err)
	}
	contact.CreatedAt, _ = parseTime(createdAt)
	return &contact, nil
}
