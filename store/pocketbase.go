package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/security"
	"github.com/pocketbase/pocketbase/tools/types"

	"unipass/internal/status"
	"unipass/models"
)

const (
	ticketsCollection  = "tickets"
	countersCollection = "counters"
)

// PocketBase adapts the app's collections to the TicketStore contract.
// Uniqueness is enforced by the unique indexes on ticket_number and
// serial_number; the serial counter and the scan transition go through raw
// dbx queries because they must each be a single SQL statement.
type PocketBase struct {
	app core.App
}

func NewPocketBase(app core.App) *PocketBase {
	return &PocketBase{app: app}
}

func (s *PocketBase) Insert(ctx context.Context, t *models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId(ticketsCollection)
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	record := core.NewRecord(collection)
	record.Set("serial_number", t.SerialNumber)
	record.Set("ticket_number", t.TicketNumber)
	record.Set("name", t.Name)
	record.Set("mail", t.Mail)
	record.Set("university_id", t.UniversityID)
	record.Set("issued_by_name", t.IssuedByName)
	record.Set("issued_by_email", t.IssuedByEmail)
	record.Set("is_valid", t.IsValid)
	record.Set("qr_code", t.QRCode)

	if err := s.app.Save(record); err != nil {
		if isUniqueViolation(err, "ticket_number") {
			return status.ErrTicketNumberTaken
		}
		return fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	t.ID = record.Id
	t.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *PocketBase) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return recordToTicket(record), nil
}

func (s *PocketBase) GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByData(ticketsCollection, "ticket_number", ticketNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return recordToTicket(record), nil
}

func (s *PocketBase) List(ctx context.Context) ([]*models.Ticket, error) {
	return s.listSorted("-created")
}

func (s *PocketBase) ListBySerial(ctx context.Context) ([]*models.Ticket, error) {
	return s.listSorted("serial_number")
}

func (s *PocketBase) listSorted(sort string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(ticketsCollection, "id != ''", sort, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, recordToTicket(record))
	}
	return tickets, nil
}

func (s *PocketBase) Update(ctx context.Context, id string, fields map[string]any) (*models.Ticket, error) {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	for name, value := range fields {
		record.Set(name, value)
	}

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return recordToTicket(record), nil
}

func (s *PocketBase) Delete(ctx context.Context, id string) (bool, error) {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	if err := s.app.Delete(record); err != nil {
		return false, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return true, nil
}

func (s *PocketBase) MarkScanned(ctx context.Context, ticketNumber string, at time.Time) (bool, error) {
	scannedAt, err := types.ParseDateTime(at.UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	// The WHERE clause carries the state condition: only a still-valid ticket
	// transitions, and only one concurrent caller sees a row affected.
	res, err := s.app.DB().NewQuery(
		"UPDATE tickets SET is_valid = FALSE, scanned_at = {:at}, updated = {:at} WHERE ticket_number = {:number} AND is_valid = TRUE",
	).Bind(dbx.Params{
		"at":     scannedAt.String(),
		"number": ticketNumber,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return affected == 1, nil
}

func (s *PocketBase) NextSerial(ctx context.Context) (int64, error) {
	var value int64
	err := s.app.DB().NewQuery(
		"INSERT INTO counters (id, name, value) VALUES ({:id}, {:name}, 1) ON CONFLICT(name) DO UPDATE SET value = value + 1 RETURNING value",
	).Bind(dbx.Params{
		"id":   security.RandomString(15),
		"name": SerialCounter,
	}).WithContext(ctx).Row(&value)
	if err == nil {
		return value, nil
	}

	// The upsert may have applied without a readable RETURNING row, depending
	// on the SQLite build behind the driver. Recover by reading the counter
	// back; a missing row means no serial was ever allocated, so this caller
	// gets 1 and the next upsert recreates the row.
	readErr := s.app.DB().NewQuery(
		"SELECT value FROM counters WHERE name = {:name}",
	).Bind(dbx.Params{"name": SerialCounter}).WithContext(ctx).Row(&value)
	if readErr == nil {
		return value, nil
	}
	if errors.Is(readErr, sql.ErrNoRows) {
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %v", status.ErrStorage, err)
}

func (s *PocketBase) SeedSerial(ctx context.Context, n int64) error {
	_, err := s.app.DB().NewQuery(
		"INSERT INTO counters (id, name, value) VALUES ({:id}, {:name}, {:value}) ON CONFLICT(name) DO UPDATE SET value = {:value}",
	).Bind(dbx.Params{
		"id":    security.RandomString(15),
		"name":  SerialCounter,
		"value": n,
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return nil
}

func (s *PocketBase) SetSerial(ctx context.Context, id string, serial int64) error {
	record, err := s.app.FindRecordById(ticketsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrNotFound
		}
		return fmt.Errorf("%w: %v", status.ErrStorage, err)
	}

	record.Set("serial_number", serial)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("%w: %v", status.ErrStorage, err)
	}
	return nil
}

func recordToTicket(record *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:            record.Id,
		SerialNumber:  int64(record.GetInt("serial_number")),
		TicketNumber:  record.GetString("ticket_number"),
		Name:          record.GetString("name"),
		Mail:          record.GetString("mail"),
		UniversityID:  record.GetString("university_id"),
		IssuedByName:  record.GetString("issued_by_name"),
		IssuedByEmail: record.GetString("issued_by_email"),
		CreatedAt:     record.GetDateTime("created").Time(),
		IsValid:       record.GetBool("is_valid"),
		QRCode:        record.GetString("qr_code"),
	}

	if scannedAt := record.GetDateTime("scanned_at"); !scannedAt.IsZero() {
		at := scannedAt.Time()
		t.ScannedAt = &at
	}
	return t
}

func isUniqueViolation(err error, field string) bool {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		if _, ok := verrs[field]; ok {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), field)
}
