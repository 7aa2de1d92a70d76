package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unipass/internal/status"
	"unipass/models"
)

func ticketFixture(serial int64, number string) *models.Ticket {
	return &models.Ticket{
		SerialNumber: serial,
		TicketNumber: number,
		Name:         "Ada",
		Mail:         "ada@example.com",
		UniversityID: "IIMS-2024-001",
		IsValid:      true,
	}
}

func TestMemory_Insert_EnforcesTicketNumberUniqueness(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Insert(ctx, ticketFixture(1, "UNI-AAAA1111")))

	err := mem.Insert(ctx, ticketFixture(2, "UNI-AAAA1111"))

	assert.ErrorIs(t, err, status.ErrTicketNumberTaken)
}

func TestMemory_Insert_AssignsIDAndCreatedAt(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	ticket := ticketFixture(1, "UNI-AAAA1111")
	require.NoError(t, mem.Insert(ctx, ticket))

	assert.Len(t, ticket.ID, 15)
	assert.False(t, ticket.CreatedAt.IsZero())
}

func TestMemory_NextSerial_ConcurrentCallersNeverCollide(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	const n = 100

	var wg sync.WaitGroup
	serials := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serial, err := mem.NextSerial(ctx)
			if assert.NoError(t, err) {
				serials <- serial
			}
		}()
	}
	wg.Wait()
	close(serials)

	seen := map[int64]bool{}
	for serial := range serials {
		assert.False(t, seen[serial], "serial %d handed out twice", serial)
		seen[serial] = true
	}
	assert.Len(t, seen, n)
}

func TestMemory_SeedSerial_ContinuesFromSeed(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.SeedSerial(ctx, 7))

	serial, err := mem.NextSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), serial)
}

func TestMemory_MarkScanned_SingleWinner(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Insert(ctx, ticketFixture(1, "UNI-AAAA1111")))

	first, err := mem.MarkScanned(ctx, "UNI-AAAA1111", time.Now().UTC())
	require.NoError(t, err)
	second, err := mem.MarkScanned(ctx, "UNI-AAAA1111", time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	ticket, err := mem.GetByNumber(ctx, "UNI-AAAA1111")
	require.NoError(t, err)
	assert.False(t, ticket.IsValid)
	assert.NotNil(t, ticket.ScannedAt)
}

func TestMemory_MarkScanned_UnknownNumber(t *testing.T) {
	mem := NewMemory()

	won, err := mem.MarkScanned(context.Background(), "missing", time.Now())

	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemory_Snapshots_AreCopies(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	original := ticketFixture(1, "UNI-AAAA1111")
	require.NoError(t, mem.Insert(ctx, original))

	fetched, err := mem.GetByID(ctx, original.ID)
	require.NoError(t, err)

	fetched.Name = "mutated out of band"

	again, err := mem.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)
}

func TestMemory_Delete_Idempotent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	ticket := ticketFixture(1, "UNI-AAAA1111")
	require.NoError(t, mem.Insert(ctx, ticket))

	deleted, err := mem.Delete(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = mem.Delete(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemory_ListBySerial_Ascending(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Insert(ctx, ticketFixture(3, "UNI-CCCC3333")))
	require.NoError(t, mem.Insert(ctx, ticketFixture(1, "UNI-AAAA1111")))
	require.NoError(t, mem.Insert(ctx, ticketFixture(2, "UNI-BBBB2222")))

	tickets, err := mem.ListBySerial(ctx)

	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, int64(1), tickets[0].SerialNumber)
	assert.Equal(t, int64(2), tickets[1].SerialNumber)
	assert.Equal(t, int64(3), tickets[2].SerialNumber)
}

func TestMemory_Update_UnknownID(t *testing.T) {
	mem := NewMemory()

	_, err := mem.Update(context.Background(), "missing", map[string]any{"name": "X"})

	assert.ErrorIs(t, err, status.ErrNotFound)
}
