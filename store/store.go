// Package store owns ticket persistence. The TicketStore interface is the
// contract the service layer programs against; PocketBase is the production
// adapter and Memory is the test fake. Both enforce the same rules: ticket
// numbers and serial numbers are unique, serial allocation is a single
// indivisible increment-and-fetch, and MarkScanned is a conditional update
// that exactly one concurrent caller can win.
package store

import (
	"context"
	"time"

	"unipass/models"
)

// SerialCounter names the single counter record backing serial allocation.
const SerialCounter = "ticket_serial"

type TicketStore interface {
	// Insert persists a new ticket, assigning its id and creation time.
	// Returns status.ErrTicketNumberTaken when the ticket number is already
	// in use.
	Insert(ctx context.Context, t *models.Ticket) error

	// GetByID and GetByNumber return status.ErrNotFound for missing records.
	GetByID(ctx context.Context, id string) (*models.Ticket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error)

	// List returns all tickets, most recently created first. Point-in-time
	// snapshot, not a live feed.
	List(ctx context.Context) ([]*models.Ticket, error)

	// ListBySerial returns all tickets ordered by serial number ascending.
	ListBySerial(ctx context.Context) ([]*models.Ticket, error)

	// Update applies the given column values to one record and returns the
	// resulting state. Returns status.ErrNotFound for missing records.
	Update(ctx context.Context, id string, fields map[string]any) (*models.Ticket, error)

	// Delete reports whether a record was actually removed; a missing id is
	// (false, nil), not an error.
	Delete(ctx context.Context, id string) (bool, error)

	// MarkScanned flips the ticket to used if and only if it is still valid,
	// as one atomic conditional update. Reports whether this caller performed
	// the transition.
	MarkScanned(ctx context.Context, ticketNumber string, at time.Time) (bool, error)

	// NextSerial atomically increments and returns the serial counter,
	// creating it at 1 when absent.
	NextSerial(ctx context.Context) (int64, error)

	// SeedSerial resets the serial counter so the next NextSerial returns n+1.
	SeedSerial(ctx context.Context, n int64) error

	// SetSerial rewrites one ticket's serial number (renormalization only).
	SetSerial(ctx context.Context, id string, serial int64) error
}
