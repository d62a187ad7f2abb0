package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/repo"
)

// BookingService is the booking repository: durable booking records plus
// the per-user index used for "my bookings".
type BookingService struct {
	store repo.BookingStore
	now   func() time.Time
}

// NewBookingService constructs a BookingService backed by the provided store.
func NewBookingService(store repo.BookingStore) *BookingService {
	return &BookingService{store: store, now: time.Now}
}

// Create validates and persists a new booking with status active and
// createdAt set to now. The draft's ID is kept when present so a client
// retry token becomes the booking id; otherwise a fresh id is generated.
func (s *BookingService) Create(ctx context.Context, draft domain.Booking) (domain.Booking, error) {
	if err := requireIDs(
		"vehicleId", draft.VehicleID,
		"ownerId", draft.OwnerID,
		"renterId", draft.RenterID,
	); err != nil {
		return domain.Booking{}, fmt.Errorf("service.BookingService.Create: %w", err)
	}
	if draft.EndDate.Before(draft.StartDate) {
		return domain.Booking{}, fmt.Errorf("service.BookingService.Create: %w: endDate before startDate", domain.ErrValidation)
	}

	b := draft
	if b.ID == "" {
		b.ID = domain.NewBookingID()
	}
	b.StartDate = domain.Day(b.StartDate)
	b.EndDate = domain.Day(b.EndDate)
	b.Status = domain.StatusActive
	b.CreatedAt = s.now().UTC()

	if err := s.store.Insert(ctx, b); err != nil {
		return domain.Booking{}, fmt.Errorf("service.BookingService.Create: %w", err)
	}
	return b, nil
}

// GetByID returns a single booking. Returns domain.ErrNotFound if absent.
func (s *BookingService) GetByID(ctx context.Context, id string) (domain.Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.BookingService.GetByID: %w", err)
	}
	return b, nil
}

// GetByUser returns every booking where userID is the owner or the renter,
// each once, newest first.
func (s *BookingService) GetByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("service.BookingService.GetByUser: %w: userId is required", domain.ErrValidation)
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.GetByUser: %w", err)
	}

	seen := make(map[string]bool, len(list))
	out := make([]domain.Booking, 0, len(list))
	for _, b := range list {
		if seen[b.ID] {
			continue
		}
		seen[b.ID] = true
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus moves booking id to status. Only active bookings move, and
// only to completed or cancelled; anything else is domain.ErrState.
// Only the status is written.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, status domain.Status) (domain.Booking, error) {
	if !status.Valid() {
		return domain.Booking{}, fmt.Errorf("service.BookingService.UpdateStatus: %w: unknown status %q", domain.ErrValidation, status)
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("service.BookingService.UpdateStatus: %w", err)
	}
	if !domain.CanTransition(b.Status, status) {
		return domain.Booking{}, fmt.Errorf("service.BookingService.UpdateStatus: %w: booking %s is %s, cannot become %s",
			domain.ErrState, id, b.Status, status)
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return domain.Booking{}, fmt.Errorf("service.BookingService.UpdateStatus: %w", err)
	}
	b.Status = status
	return b, nil
}

// requireIDs takes name/value pairs and fails on the first blank value.
func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrValidation, pairs[i])
		}
	}
	return nil
}

// ListActive returns every active booking in the system, oldest first.
func (s *BookingService) ListActive(ctx context.Context) ([]domain.Booking, error) {
	list, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.BookingService.ListActive: %w", err)
	}
	return list, nil
}
