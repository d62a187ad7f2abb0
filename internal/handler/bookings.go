package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carbnb/availability/internal/domain"
)

// CreateBooking handles POST /bookings.
// A store failure after the booking was written answers 503 with the
// booking id, which the client sends back as bookingId to finish the job.
func (s *Server) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var body CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		requestError(w, fmt.Errorf("invalid request body: %w", err))
		return
	}

	id, err := s.bookings.ConfirmReservation(r.Context(), requestToConfirm(body))
	if err != nil {
		status, resp := errorBody(err)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			resp.BookingID = id
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusCreated, CreateBookingResponse{BookingID: id})
}

// GetBooking handles GET /bookings/{id}.
func (s *Server) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingToResponse(b))
}

// CancelBooking handles POST /bookings/{id}/cancel.
func (s *Server) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.bookings.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteBooking handles POST /bookings/{id}/complete.
func (s *Server) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.bookings.Complete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUserBookings handles GET /users/{id}/bookings.
func (s *Server) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.ListUserBookings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data := make([]Booking, len(list))
	for i, b := range list {
		data[i] = bookingToResponse(b)
	}
	writeJSON(w, http.StatusOK, BookingList{Data: data})
}
