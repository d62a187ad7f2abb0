// Package handler implements the HTTP API of the availability service.
// All handlers are methods on Server. They are split into files by resource
// (bookings.go, availability.go, maintenance.go) but share the same Server
// struct so they can reach its dependencies.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/service"
	"github.com/carbnb/availability/spec"
)

// BookingServicer is the booking lifecycle the handlers depend on.
// service.Orchestrator satisfies it.
type BookingServicer interface {
	ConfirmReservation(ctx context.Context, req service.ConfirmRequest) (string, error)
	GetBooking(ctx context.Context, bookingID string) (domain.Booking, error)
	Cancel(ctx context.Context, bookingID string) error
	Complete(ctx context.Context, bookingID string) error
	ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error)
}

// AvailabilityServicer is the read side of the ledger. service.Ledger
// satisfies it.
type AvailabilityServicer interface {
	GetAvailability(ctx context.Context, vehicleID string) (domain.VehicleAvailability, error)
	IsRangeFree(ctx context.Context, vehicleID string, dr domain.DateRange) (bool, error)
}

// Maintainer runs the sweep and reconciliation on demand.
type Maintainer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// Pinger reports whether a backing store is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	bookings     BookingServicer
	availability AvailabilityServicer
	maint        Maintainer
	db           Pinger
	now          func() time.Time
}

// NewServer constructs the Server. db may be nil, in which case /readyz
// always reports ready.
func NewServer(bookings BookingServicer, availability AvailabilityServicer, maint Maintainer, db Pinger) *Server {
	return &Server{
		bookings:     bookings,
		availability: availability,
		maint:        maint,
		db:           db,
		now:          time.Now,
	}
}

// Routes returns a router with every endpoint registered. Mount it on the
// top-level router after the shared middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	r.Get("/readyz", s.GetReady)
	r.Get("/openapi.yaml", serveOpenAPI)

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", s.CreateBooking)
		r.Get("/{id}", s.GetBooking)
		r.Post("/{id}/cancel", s.CancelBooking)
		r.Post("/{id}/complete", s.CompleteBooking)
	})
	r.Get("/users/{id}/bookings", s.ListUserBookings)

	r.Get("/vehicles/{id}/availability", s.GetAvailability)
	r.Get("/vehicles/{id}/availability/check", s.CheckAvailability)

	r.Post("/maintenance/sweep", s.Sweep)
	r.Post("/maintenance/reconcile", s.Reconcile)

	return r
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(spec.OpenAPI)
}
