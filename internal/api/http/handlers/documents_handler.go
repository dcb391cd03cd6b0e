package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/report"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// DocumentFetcher returns rendered documents by handle.
type DocumentFetcher interface {
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// DocumentsHandler serves printable ticket sheets.
type DocumentsHandler struct {
	documents DocumentFetcher
}

// NewDocumentsHandler constructs handler.
func NewDocumentsHandler(documents DocumentFetcher) *DocumentsHandler {
	return &DocumentsHandler{documents: documents}
}

// GetDocument GET /documents/:handle.
func (h *DocumentsHandler) GetDocument(c *fiber.Ctx) error {
	handle := c.Params("handle")
	body, err := h.documents.Fetch(c.UserContext(), handle)
	if err != nil {
		if errors.Is(err, report.ErrDocumentNotFound) {
			return apperrors.NewNotFound("document", map[string]any{"handle": handle})
		}
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(body)
}
