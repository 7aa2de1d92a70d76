package models

import (
	"time"
)

// Ticket is the persisted event credential. The record id, ticket number,
// serial number and creation time never change after issuance; the scan state
// transitions to used exactly once.
type Ticket struct {
	ID            string     `json:"id"`
	SerialNumber  int64      `json:"serial_number"`
	TicketNumber  string     `json:"ticket_number"`
	Name          string     `json:"name"`
	Mail          string     `json:"mail"`
	UniversityID  string     `json:"university_id"`
	IssuedByName  string     `json:"issued_by_name"`
	IssuedByEmail string     `json:"issued_by_email"`
	CreatedAt     time.Time  `json:"created_at"`
	IsValid       bool       `json:"is_valid"`
	ScannedAt     *time.Time `json:"scanned_at"`
	QRCode        string     `json:"qr_code"`
}

type CreateTicketRequest struct {
	Name          string `json:"name"`
	Mail          string `json:"mail"`
	UniversityID  string `json:"university_id"`
	IssuedByName  string `json:"-"`
	IssuedByEmail string `json:"-"`
}

// UpdateTicketRequest carries the whitelisted mutable fields. Anything else
// in the payload is ignored.
type UpdateTicketRequest struct {
	Name         *string `json:"name"`
	Mail         *string `json:"mail"`
	UniversityID *string `json:"university_id"`
	IsValid      *bool   `json:"is_valid"`
}

type ScanResult struct {
	IsValid bool    `json:"is_valid"`
	Ticket  *Ticket `json:"ticket,omitempty"`
	Message string  `json:"message"`
}

type TicketMetrics struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Scanned int `json:"scanned"`
}
