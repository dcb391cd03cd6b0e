package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Create(c.UserContext(), principal.ActorID(), service.TicketCreateInput{
		Subject:     req.Subject,
		Description: req.Description,
		CustomerID:  nonEmpty(req.CustomerID),
		AssigneeID:  nonEmpty(req.AssigneeID),
		Priority:    req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ticket, err := h.service.Get(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	history, err := h.service.History(ctx, ticket.ID)
	if err != nil {
		return err
	}
	entries, scheduled, err := h.service.Activities(ctx, ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, history, entries, scheduled)})
}

// Transition returns the handler for POST /tickets/:id/<action>.
func (h *TicketsHandler) Transition(name service.Transition) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := auth.PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("user required")
		}
		ticket, err := h.service.Apply(c.UserContext(), name, c.Params("id"), principal.ActorID())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
	}
}

// BatchTransition POST /tickets/batch/:action.
//
// Tickets are processed in request order. On failure the response carries
// both the tickets already transitioned and the error.
func (h *TicketsHandler) BatchTransition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	name, ok := service.ParseTransition(c.Params("action"))
	if !ok {
		return apperrors.NewValidationError("unknown action", map[string]any{"action": c.Params("action")})
	}
	var req dto.BatchTransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	done, err := h.service.TransitionBatch(c.UserContext(), name, req.TicketIDs, principal.ActorID())
	resp := dto.BatchTransitionResponse{Action: string(name), Transitioned: ticketSummaries(done)}
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"data": resp, "error": domainErr.Body()})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.Assign(c.UserContext(), c.Params("id"), principal.ActorID(), nonEmpty(req.AssigneeID))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// UpdatePriority POST /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), c.Params("id"), principal.ActorID(), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// NotifyAssignee POST /tickets/:id/notify-assignee.
func (h *TicketsHandler) NotifyAssignee(c *fiber.Ctx) error {
	activity, err := h.service.NotifyAssignee(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if activity == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": scheduledResponse(activity)})
}

// PrintTicket POST /tickets/:id/print.
func (h *TicketsHandler) PrintTicket(c *fiber.Ctx) error {
	handle, err := h.service.PrintDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.DocumentResponse{
		Handle: handle,
		URL:    "/documents/" + handle,
	}})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{
		CustomerID: optionalQuery(c, "customer_id"),
		AssigneeID: optionalQuery(c, "assignee_id"),
		CreatorID:  optionalQuery(c, "creator_id"),
		SearchTerm: optionalQuery(c, "q"),
	}
	for _, part := range splitList(c.Query("state")) {
		state := domain.TicketState(part)
		if !state.Valid() {
			return filter, apperrors.NewValidationError("invalid state filter", map[string]any{"value": part})
		}
		filter.States = append(filter.States, state)
	}
	for _, part := range splitList(c.Query("priority")) {
		priority := domain.TicketPriority(part)
		if !priority.Valid() {
			return filter, apperrors.NewValidationError("invalid priority filter", map[string]any{"value": part})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	var err error
	if filter.OpenedFrom, err = parseTime("opened_from", c.Query("opened_from")); err != nil {
		return filter, err
	}
	if filter.OpenedTo, err = parseTime("opened_to", c.Query("opened_to")); err != nil {
		return filter, err
	}

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func nonEmpty(val *string) *string {
	if val == nil || strings.TrimSpace(*val) == "" {
		return nil
	}
	v := strings.TrimSpace(*val)
	return &v
}

// parseTime reads an optional RFC 3339 timestamp.
func parseTime(field, val string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid timestamp, expected RFC 3339", map[string]any{"field": field, "value": val})
	}
	return &t, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:               ticket.ID,
		Reference:        ticket.Reference,
		ReferencePending: ticket.ReferencePending,
		Subject:          ticket.Subject,
		CustomerID:       ticket.CustomerID,
		AssigneeID:       ticket.AssigneeID,
		CreatorID:        ticket.CreatorID,
		State:            ticket.State,
		Priority:         ticket.Priority,
		OpenedAt:         ticket.OpenedAt,
		ClosedAt:         ticket.ClosedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketDetail(ticket *domain.Ticket, history []domain.TicketHistory, entries []domain.ActivityEntry, scheduled []domain.ScheduledActivity) dto.TicketDetailResponse {
	activities := make([]dto.ActivityEntryResponse, 0, len(entries))
	for _, entry := range entries {
		contacts := entry.NotifyContacts
		if contacts == nil {
			contacts = []string{}
		}
		activities = append(activities, dto.ActivityEntryResponse{
			ID:             entry.ID,
			Body:           entry.Body,
			NotifyContacts: contacts,
			CreatedAt:      entry.CreatedAt,
		})
	}
	followUps := make([]dto.ScheduledActivityResponse, 0, len(scheduled))
	for i := range scheduled {
		followUps = append(followUps, scheduledResponse(&scheduled[i]))
	}
	return dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Description:   ticket.Description,
		History:       historyResponses(history),
		Activities:    activities,
		Scheduled:     followUps,
	}
}

func scheduledResponse(activity *domain.ScheduledActivity) dto.ScheduledActivityResponse {
	return dto.ScheduledActivityResponse{
		ID:         activity.ID,
		TicketID:   activity.TicketID,
		AssigneeID: activity.AssigneeID,
		Note:       activity.Note,
		DueDate:    activity.DueDate,
		CreatedAt:  activity.CreatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}
