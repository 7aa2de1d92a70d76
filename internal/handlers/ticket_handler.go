package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"unipass/internal/status"
	"unipass/models"
	"unipass/monitoring"
	"unipass/services"
)

type TicketHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:     app,
		tickets: tickets,
	}
}

func (h *TicketHandler) Create(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req models.CreateTicketRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	// Issuer identity comes from the authenticated session, never the body.
	req.IssuedByName = e.Auth.GetString("name")
	req.IssuedByEmail = e.Auth.GetString("email")

	ticket, err := h.tickets.Create(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}

	monitoring.TrackIssued()

	return e.JSON(http.StatusCreated, map[string]any{"ticket": ticket})
}

func (h *TicketHandler) List(e *core.RequestEvent) error {
	tickets, err := h.tickets.List(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *TicketHandler) Get(e *core.RequestEvent) error {
	ticket, err := h.tickets.GetByID(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}

func (h *TicketHandler) Update(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req models.UpdateTicketRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, err := h.tickets.Update(e.Request.Context(), e.Request.PathValue("id"), req)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket": ticket})
}

func (h *TicketHandler) Delete(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	deleted, err := h.tickets.Delete(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}
	if !deleted {
		return apis.NewNotFoundError("Ticket not found", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"success": true, "message": "Ticket deleted"})
}

func (h *TicketHandler) Metrics(e *core.RequestEvent) error {
	metrics, err := h.tickets.Metrics(e.Request.Context())
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, metrics)
}

func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Ticket not found", nil)
	case errors.Is(err, status.ErrAllocation):
		return apis.NewApiError(http.StatusInternalServerError, "Unable to allocate ticket identifiers", nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Storage unavailable", nil)
	}
}
