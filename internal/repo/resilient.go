package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.uber.org/multierr"

	"github.com/carbnb/availability/internal/domain"
)

// resilientBookingStore writes every booking to a durable primary and a
// local fallback, and keeps serving reads while either one is down.
//
// Merge rule: the primary copy of a booking wins, except that a terminal
// status on either copy beats "active". Status only ever moves forward, so
// a status change that only reached one store is never lost.
type resilientBookingStore struct {
	primary  BookingStore
	fallback BookingStore
	log      *slog.Logger
}

// NewResilientBookingStore combines primary and fallback into one
// BookingStore. Writes fail only when both stores fail.
func NewResilientBookingStore(primary, fallback BookingStore, log *slog.Logger) BookingStore {
	return &resilientBookingStore{primary: primary, fallback: fallback, log: log}
}

func (s *resilientBookingStore) Insert(ctx context.Context, b domain.Booking) error {
	errP := s.primary.Insert(ctx, b)
	errF := s.fallback.Insert(ctx, b)
	if err := s.bothFailed("insert", b.ID, errP, errF); err != nil {
		return fmt.Errorf("repo.ResilientBookingStore.Insert: %w", err)
	}
	return nil
}

func (s *resilientBookingStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	// A status that reached only one store still counts. Check the merged
	// view so neither copy is moved off a terminal state the other holds.
	if cur, err := s.Get(ctx, id); err == nil && cur.Status.Terminal() {
		return fmt.Errorf("repo.ResilientBookingStore.UpdateStatus: %w: booking %s is already %s", domain.ErrState, id, cur.Status)
	}

	errP := s.primary.UpdateStatus(ctx, id, status)
	if errors.Is(errP, domain.ErrState) {
		return fmt.Errorf("repo.ResilientBookingStore.UpdateStatus: %w", errP)
	}
	errF := s.fallback.UpdateStatus(ctx, id, status)
	if errors.Is(errF, domain.ErrState) {
		return fmt.Errorf("repo.ResilientBookingStore.UpdateStatus: %w", errF)
	}

	// A booking created while one store was down only exists in the other.
	// That is not a failure of the update.
	if errors.Is(errP, domain.ErrNotFound) && errF == nil {
		errP = nil
	}
	if errors.Is(errF, domain.ErrNotFound) && errP == nil {
		errF = nil
	}
	if err := s.bothFailed("update status", id, errP, errF); err != nil {
		return fmt.Errorf("repo.ResilientBookingStore.UpdateStatus: %w", err)
	}
	return nil
}

func (s *resilientBookingStore) Get(ctx context.Context, id string) (domain.Booking, error) {
	p, errP := s.primary.Get(ctx, id)
	f, errF := s.fallback.Get(ctx, id)

	switch {
	case errP == nil && errF == nil:
		return mergeBooking(p, f), nil
	case errP == nil:
		return p, nil
	case errF == nil:
		if !errors.Is(errP, domain.ErrNotFound) {
			s.log.Warn("primary booking store unavailable, serving fallback copy",
				slog.String("booking_id", id), slog.Any("error", errP))
		}
		return f, nil
	case errors.Is(errP, domain.ErrNotFound) && errors.Is(errF, domain.ErrNotFound):
		return domain.Booking{}, fmt.Errorf("repo.ResilientBookingStore.Get: %w", domain.ErrNotFound)
	case errors.Is(errP, domain.ErrNotFound):
		return domain.Booking{}, fmt.Errorf("repo.ResilientBookingStore.Get: %w", errF)
	default:
		return domain.Booking{}, fmt.Errorf("repo.ResilientBookingStore.Get: %w", errP)
	}
}

func (s *resilientBookingStore) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	out, err := s.mergeLists(ctx, "list by user", func(st BookingStore) ([]domain.Booking, error) {
		return st.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("repo.ResilientBookingStore.ListByUser: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *resilientBookingStore) ListActive(ctx context.Context) ([]domain.Booking, error) {
	all, err := s.mergeLists(ctx, "list active", func(st BookingStore) ([]domain.Booking, error) {
		return st.ListActive(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("repo.ResilientBookingStore.ListActive: %w", err)
	}

	// The fallback may already know a booking is finished while the primary
	// still lists it as active, or the other way round.
	out := all[:0]
	for _, b := range all {
		if b.Status == domain.StatusActive {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// mergeLists runs list against both stores and merges the results by id.
// It fails only when both stores fail.
func (s *resilientBookingStore) mergeLists(ctx context.Context, op string, list func(BookingStore) ([]domain.Booking, error)) ([]domain.Booking, error) {
	primary, errP := list(s.primary)
	fallback, errF := list(s.fallback)
	if err := s.bothFailed(op, "", errP, errF); err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(primary)+len(fallback))
	out := make([]domain.Booking, 0, len(primary)+len(fallback))
	for _, b := range primary {
		byID[b.ID] = len(out)
		out = append(out, b)
	}
	for _, b := range fallback {
		if i, ok := byID[b.ID]; ok {
			out[i] = mergeBooking(out[i], b)
			continue
		}
		byID[b.ID] = len(out)
		out = append(out, b)
	}
	return out, nil
}

// bothFailed logs a one-sided failure and returns the combined error only
// when neither store succeeded.
func (s *resilientBookingStore) bothFailed(op, id string, errP, errF error) error {
	switch {
	case errP != nil && errF != nil:
		return multierr.Combine(errP, errF)
	case errP != nil:
		s.log.Warn("primary booking store failed, fallback succeeded",
			slog.String("op", op), slog.String("booking_id", id), slog.Any("error", errP))
	case errF != nil:
		s.log.Warn("fallback booking store failed",
			slog.String("op", op), slog.String("booking_id", id), slog.Any("error", errF))
	}
	return nil
}

// mergeBooking returns the primary copy, taking the fallback's status when
// the fallback has already reached a terminal state.
func mergeBooking(primary, fallback domain.Booking) domain.Booking {
	if primary.Status == domain.StatusActive && fallback.Status.Terminal() {
		primary.Status = fallback.Status
	}
	return primary
}
