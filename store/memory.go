package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase/tools/security"

	"unipass/internal/status"
	"unipass/models"
)

// Memory is the in-process TicketStore used by tests. It keeps the adapter
// contracts intact: unique ticket numbers, an atomic serial counter and a
// check-and-set scan transition, all behind one mutex.
type Memory struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket
	counter int64
	seq     int64
	order   map[string]int64 // insertion sequence per id, newest-first listing
}

func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[string]*models.Ticket),
		order:   make(map[string]int64),
	}
}

func (s *Memory) Insert(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return status.ErrTicketNumberTaken
		}
		if existing.SerialNumber == t.SerialNumber {
			return status.ErrStorage
		}
	}

	t.ID = security.RandomString(15)
	t.CreatedAt = time.Now().UTC()
	s.seq++
	s.order[t.ID] = s.seq
	s.tickets[t.ID] = copyTicket(t)
	return nil
}

func (s *Memory) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, status.ErrNotFound
	}
	return copyTicket(t), nil
}

func (s *Memory) GetByNumber(ctx context.Context, ticketNumber string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.TicketNumber == ticketNumber {
			return copyTicket(t), nil
		}
	}
	return nil, status.ErrNotFound
}

func (s *Memory) List(ctx context.Context) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snapshot()
	sort.Slice(out, func(i, j int) bool {
		return s.order[out[i].ID] > s.order[out[j].ID]
	})
	return out, nil
}

func (s *Memory) ListBySerial(ctx context.Context) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snapshot()
	sort.Slice(out, func(i, j int) bool {
		return out[i].SerialNumber < out[j].SerialNumber
	})
	return out, nil
}

func (s *Memory) Update(ctx context.Context, id string, fields map[string]any) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, status.ErrNotFound
	}

	for name, value := range fields {
		switch name {
		case "name":
			t.Name, _ = value.(string)
		case "mail":
			t.Mail, _ = value.(string)
		case "university_id":
			t.UniversityID, _ = value.(string)
		case "is_valid":
			t.IsValid, _ = value.(bool)
		case "scanned_at":
			switch v := value.(type) {
			case time.Time:
				at := v
				t.ScannedAt = &at
			case *time.Time:
				t.ScannedAt = v
			case nil:
				t.ScannedAt = nil
			}
		}
	}
	return copyTicket(t), nil
}

func (s *Memory) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[id]; !ok {
		return false, nil
	}
	delete(s.tickets, id)
	delete(s.order, id)
	return true, nil
}

func (s *Memory) MarkScanned(ctx context.Context, ticketNumber string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tickets {
		if t.TicketNumber != ticketNumber {
			continue
		}
		if !t.IsValid {
			return false, nil
		}
		scannedAt := at
		t.IsValid = false
		t.ScannedAt = &scannedAt
		return true, nil
	}
	return false, nil
}

func (s *Memory) NextSerial(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	return s.counter, nil
}

func (s *Memory) SeedSerial(ctx context.Context, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter = n
	return nil
}

func (s *Memory) SetSerial(ctx context.Context, id string, serial int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return status.ErrNotFound
	}
	t.SerialNumber = serial
	return nil
}

func (s *Memory) snapshot() []*models.Ticket {
	out := make([]*models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, copyTicket(t))
	}
	return out
}

func copyTicket(t *models.Ticket) *models.Ticket {
	cp := *t
	if t.ScannedAt != nil {
		at := *t.ScannedAt
		cp.ScannedAt = &at
	}
	return &cp
}
