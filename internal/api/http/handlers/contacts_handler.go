package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// ContactsHandler manages customer contacts.
type ContactsHandler struct {
	contacts *service.ContactService
}

// NewContactsHandler constructs handler.
func NewContactsHandler(contacts *service.ContactService) *ContactsHandler {
	return &ContactsHandler{contacts: contacts}
}

// CreateContact POST /contacts.
func (h *ContactsHandler) CreateContact(c *fiber.Ctx) error {
	var req dto.CreateContactRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	contact, err := h.contacts.Create(c.UserContext(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": contactResponse(contact)})
}

// GetContact GET /contacts/:id.
func (h *ContactsHandler) GetContact(c *fiber.Ctx) error {
	contact, err := h.contacts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": contactResponse(contact)})
}

func contactResponse(contact *domain.Contact) dto.ContactResponse {
	return dto.ContactResponse{
		ID:        contact.ID,
		Name:      contact.Name,
		Email:     contact.Email,
		CreatedAt: contact.CreatedAt,
	}
}
