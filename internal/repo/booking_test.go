package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/repo"
	"github.com/carbnb/availability/testutil"
)

// bookingFixture returns a domain.Booking with sensible defaults for use in
// tests. Callers can override individual fields after calling it.
func bookingFixture(id string) domain.Booking {
	return domain.Booking{
		ID:            id,
		VehicleID:     "car-1",
		OwnerID:       "owner-o",
		OwnerName:     "Olga",
		OwnerEmail:    "olga@example.com",
		OwnerContact:  "+1 555 0100",
		RenterID:      "renter-a",
		RenterName:    "Ana",
		RenterEmail:   "ana@example.com",
		RenterContact: "+1 555 0101",
		StartDate:     date(2025, 6, 1),
		EndDate:       date(2025, 6, 3),
		TotalPrice:    113.2,
		PaymentID:     "pay_1",
		Status:        domain.StatusActive,
		CreatedAt:     time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC),
		Vehicle:       domain.VehicleSnapshot{Brand: "Mazda", Model: "3", Year: 2021, ImageURL: "https://img.example.com/1.jpg"},
	}
}

func TestPgBookingStore_InsertAndGet(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))
	ctx := context.Background()

	in := bookingFixture("booking_1")
	require.NoError(t, s.Insert(ctx, in))

	got, err := s.Get(ctx, "booking_1")

	require.NoError(t, err)
	assert.Equal(t, in.OwnerEmail, got.OwnerEmail)
	assert.Equal(t, in.RenterContact, got.RenterContact)
	assert.True(t, got.StartDate.Equal(in.StartDate))
	assert.True(t, got.EndDate.Equal(in.EndDate))
	assert.InDelta(t, in.TotalPrice, got.TotalPrice, 0.001)
	assert.Equal(t, in.Vehicle, got.Vehicle)
	assert.True(t, got.CreatedAt.Equal(in.CreatedAt))
}

func TestPgBookingStore_Insert_Idempotent(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, bookingFixture("booking_1")))
	require.NoError(t, s.Insert(ctx, bookingFixture("booking_1")))

	list, err := s.ListByUser(ctx, "renter-a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPgBookingStore_Get_NotFound(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))

	_, err := s.Get(context.Background(), "booking_missing")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPgBookingStore_ListByUser_OwnerAndRenterNewestFirst(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))
	ctx := context.Background()

	older := bookingFixture("booking_old")
	newer := bookingFixture("booking_new")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	// renter-a rents the older booking and owns the newer one.
	newer.OwnerID, newer.RenterID = "renter-a", "someone-else"
	require.NoError(t, s.Insert(ctx, older))
	require.NoError(t, s.Insert(ctx, newer))

	list, err := s.ListByUser(ctx, "renter-a")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "booking_new", list[0].ID)
	assert.Equal(t, "booking_old", list[1].ID)
}

func TestPgBookingStore_UpdateStatus(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, bookingFixture("booking_1")))
	require.NoError(t, s.Insert(ctx, bookingFixture("booking_2")))

	require.NoError(t, s.UpdateStatus(ctx, "booking_1", domain.StatusCompleted))

	got, err := s.Get(ctx, "booking_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "pay_1", got.PaymentID, "partial update must not clobber other fields")

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "booking_2", active[0].ID)
}

func TestPgBookingStore_UpdateStatus_NotFound(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))

	err := s.UpdateStatus(context.Background(), "booking_missing", domain.StatusCancelled)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPgBookingStore_UpdateStatus_FinishedBookingIsFinal(t *testing.T) {
	s := repo.NewBookingStore(testutil.NewTx(t))
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, bookingFixture("booking_1")))
	require.NoError(t, s.UpdateStatus(ctx, "booking_1", domain.StatusCompleted))

	err := s.UpdateStatus(ctx, "booking_1", domain.StatusCancelled)

	assert.ErrorIs(t, err, domain.ErrState)
	got, err := s.Get(ctx, "booking_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status, "the first terminal status sticks")
}

func TestUserDirectory_GetContactInfo(t *testing.T) {
	tx := testutil.NewTx(t)
	ctx := context.Background()
	_, err := tx.Exec(ctx, `INSERT INTO users (id, display_name, email, phone) VALUES ('u1', 'Olga', 'olga@example.com', NULL)`)
	require.NoError(t, err)

	d := repo.NewUserDirectory(tx)

	c, err := d.GetContactInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Contact{ID: "u1", Name: "Olga", Email: "olga@example.com"}, c)

	_, err = d.GetContactInfo(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
