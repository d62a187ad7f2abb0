// Package domain contains the core data types for the vehicle availability
// and booking service. It holds the pure ledger rules (overlap, dedupe,
// availability derivation) and imports nothing outside the standard library
// and uuid; repo, service and handler all build on it.
package domain

import "time"

// Status is the lifecycle state shared by bookings and ledger reservations.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s can never be left again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Reservation is one entry in a vehicle's ledger.
// PaymentID and TotalPrice are optional; a nil TotalPrice means unknown.
type Reservation struct {
	VehicleID  string
	BookingID  string
	StartDate  time.Time
	EndDate    time.Time
	RenterID   string
	RenterName string
	Status     Status
	PaymentID  string
	TotalPrice *float64
}

// Range returns the reservation's inclusive date range.
func (r Reservation) Range() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

// VehicleAvailability is the per-vehicle ledger: every reservation ever made
// for the vehicle in insertion order, plus the derived IsAvailable flag.
//
// Version is the optimistic concurrency token. Zero means the ledger has
// never been persisted; the repo bumps it on every successful write and
// rejects writes whose Version no longer matches the stored one.
type VehicleAvailability struct {
	VehicleID    string
	IsAvailable  bool
	Reservations []Reservation
	UpdatedAt    time.Time
	Version      int64
}

// NewVehicleAvailability returns an empty, available ledger for vehicleID.
func NewVehicleAvailability(vehicleID string) VehicleAvailability {
	return VehicleAvailability{VehicleID: vehicleID, IsAvailable: true}
}

// HasActive reports whether any reservation is still active.
func (a *VehicleAvailability) HasActive() bool {
	for _, r := range a.Reservations {
		if r.Status == StatusActive {
			return true
		}
	}
	return false
}

// Active returns the active reservations in insertion order.
func (a *VehicleAvailability) Active() []Reservation {
	var out []Reservation
	for _, r := range a.Reservations {
		if r.Status == StatusActive {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the reservation for bookingID, if any.
func (a *VehicleAvailability) Find(bookingID string) (Reservation, bool) {
	for _, r := range a.Reservations {
		if r.BookingID == bookingID {
			return r, true
		}
	}
	return Reservation{}, false
}

// IsRangeFree reports whether no active reservation overlaps dr.
// The reservation belonging to ignoreBookingID, if any, is skipped so that a
// retried reservation does not conflict with itself.
func (a *VehicleAvailability) IsRangeFree(dr DateRange, ignoreBookingID string) bool {
	for _, r := range a.Reservations {
		if r.Status != StatusActive {
			continue
		}
		if ignoreBookingID != "" && r.BookingID == ignoreBookingID {
			continue
		}
		if r.Range().Overlaps(dr) {
			return false
		}
	}
	return true
}

// Append adds r with status forced to active and marks the vehicle as
// unavailable. It reports false without changing anything when a
// reservation with the same booking id is already present.
func (a *VehicleAvailability) Append(r Reservation) bool {
	if _, ok := a.Find(r.BookingID); ok {
		return false
	}
	r.VehicleID = a.VehicleID
	r.Status = StatusActive
	a.Reservations = append(a.Reservations, r)
	a.recompute()
	return true
}

// SetStatus changes the status of the reservation for bookingID and
// recomputes IsAvailable. It reports false when the reservation is missing,
// already has that status, or is already completed or cancelled. A finished
// reservation never changes again.
func (a *VehicleAvailability) SetStatus(bookingID string, status Status) bool {
	for i := range a.Reservations {
		if a.Reservations[i].BookingID != bookingID {
			continue
		}
		if a.Reservations[i].Status == status || a.Reservations[i].Status.Terminal() {
			return false
		}
		a.Reservations[i].Status = status
		a.recompute()
		return true
	}
	return false
}

// recompute restores IsAvailable == !HasActive().
func (a *VehicleAvailability) recompute() {
	a.IsAvailable = !a.HasActive()
}
