package status

import "errors"

var (
	ErrValidation        = errors.New("tickets: invalid input")
	ErrAllocation        = errors.New("tickets: identifier allocation failed")
	ErrNotFound          = errors.New("tickets: not found")
	ErrStorage           = errors.New("tickets: storage unavailable")
	ErrTicketNumberTaken = errors.New("tickets: ticket number already taken")
)
