package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"unipass/internal/status"
	"unipass/store"
	"unipass/utils"
)

const (
	// fallbackSeedToken is the ticket-number prefix when the seed carries no
	// alphanumeric characters at all.
	fallbackSeedToken = "UNI"

	// maxNumberAttempts bounds the collision-avoidance loop. The unique index
	// on ticket_number is the actual enforcement; this loop just keeps the
	// happy path from ever hitting it.
	maxNumberAttempts = 5
)

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// Allocator hands out ticket numbers and serial numbers. Serial numbers come
// from the store's atomic counter; ticket numbers are generated locally and
// pre-checked against the store before use.
type Allocator struct {
	store store.TicketStore
}

func NewAllocator(st store.TicketStore) *Allocator {
	return &Allocator{store: st}
}

// NextSerial returns the next serial number. Never hands the same value to
// two concurrent callers.
func (a *Allocator) NextSerial(ctx context.Context) (int64, error) {
	serial, err := a.store.NextSerial(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: serial counter: %v", status.ErrAllocation, err)
	}
	return serial, nil
}

// UniqueTicketNumber generates candidates until one is unused, retrying with
// fresh randomness a bounded number of times.
func (a *Allocator) UniqueTicketNumber(ctx context.Context, seed string) (string, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		candidate, err := TicketNumber(seed)
		if err != nil {
			return "", fmt.Errorf("%w: %v", status.ErrAllocation, err)
		}

		_, err = a.store.GetByNumber(ctx, candidate)
		if errors.Is(err, status.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", status.ErrAllocation, err)
		}
		// Candidate exists, try again.
	}
	return "", fmt.Errorf("%w: no unused ticket number in %d attempts", status.ErrAllocation, maxNumberAttempts)
}

// TicketNumber derives a candidate from the seed's trailing alphanumerics,
// the current time in base 36 and a random fragment: SEED-TTTTRRRR.
func TicketNumber(seed string) (string, error) {
	base := strings.ToUpper(nonAlphanumeric.ReplaceAllString(seed, ""))
	if len(base) > 6 {
		base = base[len(base)-6:]
	}
	if base == "" {
		base = fallbackSeedToken
	}

	timeFragment := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
	if len(timeFragment) > 4 {
		timeFragment = timeFragment[len(timeFragment)-4:]
	}

	randomFragment, err := utils.GenerateCode(2)
	if err != nil {
		return "", err
	}

	return base + "-" + timeFragment + randomFragment, nil
}
