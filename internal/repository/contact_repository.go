package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type contactRepository struct {
	pool *pgxpool.Pool
}

// NewContactRepository builds repository.
func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	const query = `
        INSERT INTO contacts (name, email)
        VALUES ($1, $2)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, contact.Name, contact.Email).Scan(&contact.ID, &contact.CreatedAt)
	return mapPgError(err)
}

func (r *contactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	const query = `SELECT id, name, email, created_at FROM contacts WHERE id=$1`
	var contact domain.Contact
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&contact.ID,
		&contact.Name,
		&contact.Email,
		&contact.CreatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &contact, nil
}
