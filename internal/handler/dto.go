package handler

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/service"
)

// Vehicle is the vehicle snapshot carried on a booking.
type Vehicle struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// CreateBookingRequest is the body of POST /bookings.
type CreateBookingRequest struct {
	BookingID      string             `json:"bookingId,omitempty"`
	VehicleID      string             `json:"vehicleId"`
	OwnerID        string             `json:"ownerId"`
	RenterID       string             `json:"renterId"`
	ConversationID string             `json:"conversationId,omitempty"`
	StartDate      openapi_types.Date `json:"startDate"`
	EndDate        openapi_types.Date `json:"endDate"`
	Subtotal       float64            `json:"subtotal"`
	PaymentID      string             `json:"paymentId,omitempty"`
	Vehicle        Vehicle            `json:"vehicle"`
}

// CreateBookingResponse is the body of a successful POST /bookings.
type CreateBookingResponse struct {
	BookingID string `json:"bookingId"`
}

// Party is one side of a booking as snapshotted at confirmation time.
type Party struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Booking is the API representation of domain.Booking.
type Booking struct {
	BookingID  string             `json:"bookingId"`
	VehicleID  string             `json:"vehicleId"`
	Owner      Party              `json:"owner"`
	Renter     Party              `json:"renter"`
	StartDate  openapi_types.Date `json:"startDate"`
	EndDate    openapi_types.Date `json:"endDate"`
	TotalPrice float64            `json:"totalPrice"`
	PaymentID  string             `json:"paymentId"`
	Status     string             `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
	Vehicle    Vehicle            `json:"vehicle"`
}

// BookingList is the body of GET /users/{id}/bookings.
type BookingList struct {
	Data []Booking `json:"data"`
}

// Reservation is the API representation of one ledger entry.
type Reservation struct {
	BookingID  string             `json:"bookingId"`
	StartDate  openapi_types.Date `json:"startDate"`
	EndDate    openapi_types.Date `json:"endDate"`
	RenterID   string             `json:"renterId"`
	RenterName string             `json:"renterName"`
	Status     string             `json:"status"`
	PaymentID  string             `json:"paymentId,omitempty"`
	TotalPrice *float64           `json:"totalPrice,omitempty"`
}

// Availability is the body of GET /vehicles/{id}/availability.
type Availability struct {
	VehicleID    string        `json:"vehicleId"`
	IsAvailable  bool          `json:"isAvailable"`
	Reservations []Reservation `json:"reservations"`
	UpdatedAt    *time.Time    `json:"updatedAt,omitempty"`
}

// AvailabilityCheck is the body of GET /vehicles/{id}/availability/check.
type AvailabilityCheck struct {
	VehicleID string             `json:"vehicleId"`
	StartDate openapi_types.Date `json:"startDate"`
	EndDate   openapi_types.Date `json:"endDate"`
	Free      bool               `json:"free"`
}

// SweepResponse is the body of POST /maintenance/sweep.
type SweepResponse struct {
	Completed int `json:"completed"`
}

func requestToConfirm(body CreateBookingRequest) service.ConfirmRequest {
	return service.ConfirmRequest{
		BookingID:      body.BookingID,
		VehicleID:      body.VehicleID,
		OwnerID:        body.OwnerID,
		RenterID:       body.RenterID,
		ConversationID: body.ConversationID,
		Range:          domain.DateRange{Start: body.StartDate.Time, End: body.EndDate.Time},
		Subtotal:       body.Subtotal,
		PaymentID:      body.PaymentID,
		Vehicle: domain.VehicleSnapshot{
			Brand:    body.Vehicle.Brand,
			Model:    body.Vehicle.Model,
			Year:     body.Vehicle.Year,
			ImageURL: body.Vehicle.ImageURL,
		},
	}
}

func bookingToResponse(b domain.Booking) Booking {
	return Booking{
		BookingID:  b.ID,
		VehicleID:  b.VehicleID,
		Owner:      Party{ID: b.OwnerID, Name: b.OwnerName, Email: b.OwnerEmail, Contact: b.OwnerContact},
		Renter:     Party{ID: b.RenterID, Name: b.RenterName, Email: b.RenterEmail, Contact: b.RenterContact},
		StartDate:  openapi_types.Date{Time: b.StartDate},
		EndDate:    openapi_types.Date{Time: b.EndDate},
		TotalPrice: b.TotalPrice,
		PaymentID:  b.PaymentID,
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		Vehicle: Vehicle{
			Brand:    b.Vehicle.Brand,
			Model:    b.Vehicle.Model,
			Year:     b.Vehicle.Year,
			ImageURL: b.Vehicle.ImageURL,
		},
	}
}

func availabilityToResponse(av domain.VehicleAvailability) Availability {
	out := Availability{
		VehicleID:    av.VehicleID,
		IsAvailable:  av.IsAvailable,
		Reservations: make([]Reservation, len(av.Reservations)),
	}
	if !av.UpdatedAt.IsZero() {
		ts := av.UpdatedAt
		out.UpdatedAt = &ts
	}
	for i, r := range av.Reservations {
		out.Reservations[i] = Reservation{
			BookingID:  r.BookingID,
			StartDate:  openapi_types.Date{Time: r.StartDate},
			EndDate:    openapi_types.Date{Time: r.EndDate},
			RenterID:   r.RenterID,
			RenterName: r.RenterName,
			Status:     string(r.Status),
			PaymentID:  r.PaymentID,
			TotalPrice: r.TotalPrice,
		}
	}
	return out
}
