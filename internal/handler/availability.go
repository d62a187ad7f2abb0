package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/carbnb/availability/internal/domain"
)

// GetAvailability handles GET /vehicles/{id}/availability.
// A vehicle that has never been booked has no ledger and is reported as
// available with no reservations.
func (s *Server) GetAvailability(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	av, err := s.availability.GetAvailability(r.Context(), vehicleID)
	if errors.Is(err, domain.ErrNotFound) {
		av, err = domain.NewVehicleAvailability(vehicleID), nil
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityToResponse(av))
}

// CheckAvailability handles GET /vehicles/{id}/availability/check?start=&end=.
func (s *Server) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	start, err := dayParam(r, "start")
	if err != nil {
		requestError(w, err)
		return
	}
	end, err := dayParam(r, "end")
	if err != nil {
		requestError(w, err)
		return
	}
	if end.Before(start) {
		requestError(w, errors.New("end must not be before start"))
		return
	}

	free, err := s.availability.IsRangeFree(r.Context(), vehicleID, domain.NewDateRange(start, end))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityCheck{
		VehicleID: vehicleID,
		StartDate: openapi_types.Date{Time: start},
		EndDate:   openapi_types.Date{Time: end},
		Free:      free,
	})
}

func dayParam(r *http.Request, name string) (t time.Time, err error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return t, fmt.Errorf("query parameter %s is required", name)
	}
	t, err = domain.ParseDay(raw)
	if err != nil {
		return t, fmt.Errorf("query parameter %s: expected YYYY-MM-DD", name)
	}
	return t, nil
}
