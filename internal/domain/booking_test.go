package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbnb/availability/internal/domain"
)

func TestNewBookingID_uniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := domain.NewBookingID()
		require.True(t, strings.HasPrefix(id, domain.BookingIDPrefix), id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestBooking_Reservation_mirrorsBooking(t *testing.T) {
	b := domain.Booking{
		ID:         "booking_1",
		VehicleID:  "car-1",
		RenterID:   "renter-a",
		RenterName: "Ana",
		StartDate:  day("2025-06-01"),
		EndDate:    day("2025-06-03"),
		TotalPrice: 113.2,
		PaymentID:  "pay_1",
		Status:     domain.StatusActive,
	}

	r := b.Reservation()

	assert.Equal(t, "booking_1", r.BookingID)
	assert.Equal(t, "car-1", r.VehicleID)
	assert.Equal(t, b.Range(), r.Range())
	require.NotNil(t, r.TotalPrice)
	assert.InDelta(t, 113.2, *r.TotalPrice, 0.001)
	assert.Equal(t, "pay_1", r.PaymentID)
}

func TestVehicleSnapshot_Info(t *testing.T) {
	assert.Equal(t, "Mazda 3 2021", domain.VehicleSnapshot{Brand: "Mazda", Model: "3", Year: 2021}.Info())
	assert.Equal(t, "Mazda", domain.VehicleSnapshot{Brand: "Mazda"}.Info())
}

func TestPolicy_CalculateFees(t *testing.T) {
	p := domain.DefaultPolicy()

	fees := p.CalculateFees(100)

	// 5% + 2.9% of 100, plus 0.30 and 5.00 flat.
	assert.InDelta(t, 100, fees.Subtotal, 0.001)
	assert.InDelta(t, 13.2, fees.Fees, 0.001)
	assert.InDelta(t, 113.2, fees.Total, 0.001)
	assert.False(t, fees.Free())
}

func TestPolicy_CalculateFees_freeReservation(t *testing.T) {
	fees := domain.DefaultPolicy().CalculateFees(0)

	assert.True(t, fees.Free())
	assert.Zero(t, fees.Fees)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d domain.Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.EqualValues(t, 250_000_000, d)

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
