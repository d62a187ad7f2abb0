package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingIDPrefix starts every generated booking id.
const BookingIDPrefix = "booking_"

// VehicleSnapshot is the vehicle as it looked when the booking was made.
type VehicleSnapshot struct {
	Brand    string
	Model    string
	Year     int
	ImageURL string
}

// Info renders "Brand Model Year" for receipts and messages.
func (v VehicleSnapshot) Info() string {
	s := strings.TrimSpace(v.Brand + " " + v.Model)
	if v.Year > 0 {
		s = fmt.Sprintf("%s %d", s, v.Year)
	}
	return s
}

// Booking is one rental transaction.
// Owner and renter contact fields are a snapshot taken at booking time so
// later profile edits never rewrite historical receipts.
type Booking struct {
	ID        string
	VehicleID string

	OwnerID      string
	OwnerName    string
	OwnerEmail   string
	OwnerContact string

	RenterID      string
	RenterName    string
	RenterEmail   string
	RenterContact string

	StartDate  time.Time
	EndDate    time.Time
	TotalPrice float64
	PaymentID  string
	Status     Status
	CreatedAt  time.Time

	Vehicle VehicleSnapshot
}

// Range returns the booking's inclusive date range.
func (b Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// Reservation builds the ledger entry that mirrors this booking.
func (b Booking) Reservation() Reservation {
	price := b.TotalPrice
	return Reservation{
		VehicleID:  b.VehicleID,
		BookingID:  b.ID,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
		RenterID:   b.RenterID,
		RenterName: b.RenterName,
		Status:     b.Status,
		PaymentID:  b.PaymentID,
		TotalPrice: &price,
	}
}

// InvolvesUser reports whether userID is the owner or the renter.
func (b Booking) InvolvesUser(userID string) bool {
	return b.OwnerID == userID || b.RenterID == userID
}

// CanTransition reports whether a booking may move from one status to
// another. Only active bookings move, and only to a terminal state.
func CanTransition(from, to Status) bool {
	return from == StatusActive && to.Terminal()
}

// NewBookingID returns a globally unique booking id: the prefix followed by
// a UUIDv7, which is time ordered with a random tail. No central sequence is
// needed.
func NewBookingID() string {
	return BookingIDPrefix + uuid.Must(uuid.NewV7()).String()
}
