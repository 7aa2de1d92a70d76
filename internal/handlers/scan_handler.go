package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"unipass/models"
	"unipass/monitoring"
	"unipass/services"
)

type ScanHandler struct {
	app     *pocketbase.PocketBase
	tickets *services.TicketService
}

func NewScanHandler(app *pocketbase.PocketBase, tickets *services.TicketService) *ScanHandler {
	return &ScanHandler{
		app:     app,
		tickets: tickets,
	}
}

// Scan redeems a ticket. Rejections (unknown number, already used) are
// regular 200 results so the scanner UI can render them; only malformed
// payloads and storage trouble become HTTP errors.
func (h *ScanHandler) Scan(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketNumber string `json:"ticket_number"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if len(strings.TrimSpace(req.TicketNumber)) < 3 {
		return e.JSON(http.StatusBadRequest, models.ScanResult{
			IsValid: false,
			Message: "Ticket number required",
		})
	}

	start := time.Now()
	result, err := h.tickets.Scan(e.Request.Context(), req.TicketNumber)
	if err != nil {
		monitoring.TrackScan("error", time.Since(start))
		return apis.NewApiError(http.StatusInternalServerError, "Scanner unavailable", nil)
	}

	label := "rejected"
	if result.IsValid {
		label = "accepted"
	}
	monitoring.TrackScan(label, time.Since(start))

	return e.JSON(http.StatusOK, result)
}
