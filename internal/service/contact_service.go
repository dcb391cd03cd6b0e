package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// ContactService manages customers that tickets are raised for.
type ContactService struct {
	contacts repository.ContactRepository
}

// NewContactService builds the service.
func NewContactService(contacts repository.ContactRepository) *ContactService {
	return &ContactService{contacts: contacts}
}

// Create registers a contact. The email is optional; without it the contact receives no email.
func (s *ContactService) Create(ctx context.Context, name, email string) (*domain.Contact, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
		}
	}
	contact := &domain.Contact{Name: name, Email: email}
	if err := s.contacts.Create(ctx, contact); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return contact, nil
}

// Get loads a contact.
func (s *ContactService) Get(ctx context.Context, id string) (*domain.Contact, error) {
	contact, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("contact", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return contact, nil
}
