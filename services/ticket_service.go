package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"unipass/internal/status"
	"unipass/models"
	"unipass/store"
)

// maxCreateAttempts bounds how often a create retries after losing the
// ticket-number race at insert time (the unique index fired despite the
// allocator's pre-check).
const maxCreateAttempts = 3

// TicketService owns the ticket lifecycle: issuance, lookups, whitelisted
// updates, deletion with serial renormalization, metrics and scanning.
type TicketService struct {
	store     store.TicketStore
	alloc     *Allocator
	qr        *QRGenerator
	timeout   time.Duration
	notifiers []Notifier
}

func NewTicketService(st store.TicketStore, alloc *Allocator, qr *QRGenerator, timeout time.Duration, notifiers ...Notifier) *TicketService {
	return &TicketService{
		store:     st,
		alloc:     alloc,
		qr:        qr,
		timeout:   timeout,
		notifiers: notifiers,
	}
}

func (s *TicketService) Create(ctx context.Context, req models.CreateTicketRequest) (*models.Ticket, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	req.Name = strings.TrimSpace(req.Name)
	req.Mail = strings.ToLower(strings.TrimSpace(req.Mail))
	req.UniversityID = strings.ToUpper(strings.TrimSpace(req.UniversityID))

	if err := validateCreate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrValidation, err)
	}

	serial, err := s.alloc.NextSerial(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		number, err := s.alloc.UniqueTicketNumber(ctx, req.Mail)
		if err != nil {
			return nil, err
		}

		qrPayload, err := s.qr.DataURL(number)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", status.ErrAllocation, err)
		}

		t := &models.Ticket{
			SerialNumber:  serial,
			TicketNumber:  number,
			Name:          req.Name,
			Mail:          req.Mail,
			UniversityID:  req.UniversityID,
			IssuedByName:  strings.TrimSpace(req.IssuedByName),
			IssuedByEmail: strings.ToLower(strings.TrimSpace(req.IssuedByEmail)),
			IsValid:       true,
			QRCode:        qrPayload,
		}

		err = s.store.Insert(ctx, t)
		if errors.Is(err, status.ErrTicketNumberTaken) {
			// Two creates raced onto the same candidate; the unique index
			// rejected this one atomically. Regenerate and retry.
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("ticket issued",
			"ticket_number", t.TicketNumber,
			"serial_number", t.SerialNumber,
			"issued_by", t.IssuedByEmail)

		for _, n := range s.notifiers {
			n.TicketCreated(ctx, t)
		}
		return t, nil
	}

	return nil, fmt.Errorf("%w: ticket number collisions exhausted %d retries", status.ErrAllocation, maxCreateAttempts)
}

func (s *TicketService) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.GetByID(ctx, id)
}

func (s *TicketService) GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.GetByNumber(ctx, ticketNumber)
}

// List returns a point-in-time snapshot of all tickets, newest first.
func (s *TicketService) List(ctx context.Context) ([]*models.Ticket, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.List(ctx)
}

// Update applies the whitelisted fields. Serial number, ticket number,
// creation time and id are not part of the payload type and can never
// change; unknown JSON keys are dropped on decode.
func (s *TicketService) Update(ctx context.Context, id string, req models.UpdateTicketRequest) (*models.Ticket, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if len(name) < 2 {
			return nil, fmt.Errorf("%w: name is too short", status.ErrValidation)
		}
		fields["name"] = name
	}

	if req.Mail != nil {
		mailAddr := strings.ToLower(strings.TrimSpace(*req.Mail))
		if err := validation.Validate(mailAddr, validation.Required, is.EmailFormat); err != nil {
			return nil, fmt.Errorf("%w: mail: %v", status.ErrValidation, err)
		}
		fields["mail"] = mailAddr
	}

	if req.UniversityID != nil {
		universityID := strings.ToUpper(strings.TrimSpace(*req.UniversityID))
		if universityID == "" {
			return nil, fmt.Errorf("%w: university id is required", status.ErrValidation)
		}
		fields["university_id"] = universityID
	}

	// Flipping the scan state through update is an issuer override, kept
	// apart from the scan protocol and logged as such.
	if req.IsValid != nil && *req.IsValid != current.IsValid {
		fields["is_valid"] = *req.IsValid
		if *req.IsValid {
			fields["scanned_at"] = nil
			slog.Info("scan state reset by issuer", "id", id, "ticket_number", current.TicketNumber)
		} else {
			fields["scanned_at"] = time.Now().UTC()
			slog.Info("ticket marked used by issuer", "id", id, "ticket_number", current.TicketNumber)
		}
	}

	if len(fields) == 0 {
		return current, nil
	}
	return s.store.Update(ctx, id, fields)
}

// Delete removes the ticket and renormalizes the survivors' serial numbers
// back to a dense 1..N, reseeding the counter so the next issue gets N+1.
// Reports false for an unknown id. A renormalization failure is logged but
// does not fail the call; the removal already happened.
func (s *TicketService) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	deleted, err := s.store.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	if err := s.renormalizeSerials(ctx); err != nil {
		// The delete itself stands, so the caller still sees success; density
		// is repaired on the next delete.
		slog.Error("serial renormalization failed", "error", err)
	}
	return true, nil
}

func (s *TicketService) renormalizeSerials(ctx context.Context) error {
	tickets, err := s.store.ListBySerial(ctx)
	if err != nil {
		return err
	}

	for i, t := range tickets {
		rank := int64(i + 1)
		if t.SerialNumber == rank {
			continue
		}
		if err := s.store.SetSerial(ctx, t.ID, rank); err != nil {
			return err
		}
	}
	return s.store.SeedSerial(ctx, int64(len(tickets)))
}

// Metrics counts by full scan; fine at this system's scale.
func (s *TicketService) Metrics(ctx context.Context) (models.TicketMetrics, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tickets, err := s.store.List(ctx)
	if err != nil {
		return models.TicketMetrics{}, err
	}

	m := models.TicketMetrics{Total: len(tickets)}
	for _, t := range tickets {
		if !t.IsValid {
			m.Scanned++
		}
	}
	m.Pending = m.Total - m.Scanned
	return m, nil
}

// Scan runs the redemption state machine. The decisive step is the store's
// conditional update: when scans race, exactly one caller transitions the
// ticket and every other lands on the already-used branch.
func (s *TicketService) Scan(ctx context.Context, ticketNumber string) (models.ScanResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ticketNumber = strings.TrimSpace(ticketNumber)

	t, err := s.store.GetByNumber(ctx, ticketNumber)
	if errors.Is(err, status.ErrNotFound) {
		return models.ScanResult{
			IsValid: false,
			Message: "Ticket not found. Please verify the number.",
		}, nil
	}
	if err != nil {
		return models.ScanResult{}, err
	}

	if !t.IsValid {
		return alreadyUsedResult(t), nil
	}

	now := time.Now().UTC()
	won, err := s.store.MarkScanned(ctx, ticketNumber, now)
	if err != nil {
		return models.ScanResult{}, err
	}

	// Re-read for the authoritative snapshot; on a lost race this carries the
	// winner's timestamp.
	fresh, err := s.store.GetByNumber(ctx, ticketNumber)
	if errors.Is(err, status.ErrNotFound) {
		// Deleted between the transition and the re-read.
		return models.ScanResult{
			IsValid: false,
			Message: "Ticket not found. Please verify the number.",
		}, nil
	}
	if err != nil {
		return models.ScanResult{}, err
	}

	if !won {
		return alreadyUsedResult(fresh), nil
	}

	slog.Info("ticket scanned", "ticket_number", fresh.TicketNumber, "serial_number", fresh.SerialNumber)

	for _, n := range s.notifiers {
		n.TicketScanned(ctx, fresh)
	}

	return models.ScanResult{
		IsValid: true,
		Ticket:  fresh,
		Message: "Ticket validated successfully.",
	}, nil
}

func (s *TicketService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func alreadyUsedResult(t *models.Ticket) models.ScanResult {
	message := "Ticket has already been used."
	if t.ScannedAt != nil {
		message = fmt.Sprintf("Ticket already used at %s.", t.ScannedAt.Format("Jan 2, 2006 15:04"))
	}
	return models.ScanResult{
		IsValid: false,
		Ticket:  t,
		Message: message,
	}
}

func validateCreate(req models.CreateTicketRequest) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required, validation.Length(2, 0)),
		validation.Field(&req.Mail, validation.Required, is.EmailFormat),
		validation.Field(&req.UniversityID, validation.Required),
	)
}
