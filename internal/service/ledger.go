// Package service contains the business logic of the availability service.
// Services validate inputs, enforce the ledger and lifecycle rules, and
// orchestrate repo calls. No SQL lives here; services depend on repo
// interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/repo"
)

// Ledger is the availability ledger: the per-vehicle reservation record
// that answers "is this vehicle free for these dates".
//
// Every mutation is read, modify in memory, then compare-and-swap on the
// ledger version. A writer that loses the swap re-reads and re-applies its
// change, so two concurrent reservations for overlapping dates can never
// both land.
type Ledger struct {
	repo   repo.AvailabilityRepo
	policy domain.Policy
	log    *slog.Logger
}

// NewLedger constructs a Ledger backed by the provided AvailabilityRepo.
func NewLedger(r repo.AvailabilityRepo, policy domain.Policy, log *slog.Logger) *Ledger {
	return &Ledger{repo: r, policy: policy, log: log}
}

// GetAvailability returns the ledger for vehicleID.
// Returns domain.ErrNotFound when the vehicle has never been reserved,
// which callers must treat as available.
func (l *Ledger) GetAvailability(ctx context.Context, vehicleID string) (domain.VehicleAvailability, error) {
	var av domain.VehicleAvailability
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		var err error
		av, err = l.repo.Get(ctx, vehicleID)
		return retryable(err)
	})
	if err != nil {
		return domain.VehicleAvailability{}, fmt.Errorf("service.Ledger.GetAvailability: %w", err)
	}
	return av, nil
}

// IsAvailable reports whether vehicleID holds no active reservation.
func (l *Ledger) IsAvailable(ctx context.Context, vehicleID string) (bool, error) {
	av, err := l.GetAvailability(ctx, vehicleID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return av.IsAvailable, nil
}

// IsRangeFree reports whether no active reservation on vehicleID overlaps dr.
// Both ends of every range are inclusive.
func (l *Ledger) IsRangeFree(ctx context.Context, vehicleID string, dr domain.DateRange) (bool, error) {
	av, err := l.GetAvailability(ctx, vehicleID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return av.IsRangeFree(dr, ""), nil
}

// MarkReserved appends r to the vehicle's ledger as active, creating the
// ledger if needed. It does not check for overlap; use ReserveIfFree for
// that. A second call with the same booking id changes nothing.
func (l *Ledger) MarkReserved(ctx context.Context, vehicleID string, r domain.Reservation) error {
	err := l.mutate(ctx, vehicleID, true, func(av *domain.VehicleAvailability) (bool, error) {
		return av.Append(r), nil
	})
	if err != nil {
		return fmt.Errorf("service.Ledger.MarkReserved: %w", err)
	}
	return nil
}

// ReserveIfFree appends r only if no other active reservation overlaps its
// range. It is the atomic conditional write that closes the race between
// two renters booking the same dates.
//
// Calling it again for a booking that is already reserved is a no-op.
// Returns domain.ErrConflict when the dates are taken and domain.ErrState
// when the booking's reservation has already been released.
func (l *Ledger) ReserveIfFree(ctx context.Context, vehicleID string, r domain.Reservation) error {
	err := l.mutate(ctx, vehicleID, true, func(av *domain.VehicleAvailability) (bool, error) {
		if existing, ok := av.Find(r.BookingID); ok {
			if existing.Status == domain.StatusActive {
				return false, nil
			}
			return false, fmt.Errorf("%w: reservation %s is already %s", domain.ErrState, r.BookingID, existing.Status)
		}
		if !av.IsRangeFree(r.Range(), r.BookingID) {
			return false, fmt.Errorf("%w: vehicle %s already booked for %s", domain.ErrConflict, vehicleID, r.Range())
		}
		return av.Append(r), nil
	})
	if err != nil {
		return fmt.Errorf("service.Ledger.ReserveIfFree: %w", err)
	}
	return nil
}

// UpdateReservationStatus sets the status of one reservation and recomputes
// the vehicle's availability. A missing ledger or reservation is a silent
// no-op.
func (l *Ledger) UpdateReservationStatus(ctx context.Context, vehicleID, bookingID string, status domain.Status) error {
	err := l.mutate(ctx, vehicleID, false, func(av *domain.VehicleAvailability) (bool, error) {
		return av.SetStatus(bookingID, status), nil
	})
	if err != nil {
		return fmt.Errorf("service.Ledger.UpdateReservationStatus: %w", err)
	}
	return nil
}

// ListHeld returns every ledger that currently holds an active reservation.
func (l *Ledger) ListHeld(ctx context.Context) ([]domain.VehicleAvailability, error) {
	var out []domain.VehicleAvailability
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		var err error
		out, err = l.repo.ListHeld(ctx)
		return retryable(err)
	})
	if err != nil {
		return nil, fmt.Errorf("service.Ledger.ListHeld: %w", err)
	}
	return out, nil
}

// mutate applies change to the current ledger and saves it with a version
// check, re-reading and re-applying on a lost swap. change reports whether
// it modified the ledger; nothing is written when it did not.
// When create is false a missing ledger is left missing.
func (l *Ledger) mutate(ctx context.Context, vehicleID string, create bool, change func(*domain.VehicleAvailability) (bool, error)) error {
	attempt := 0
	err := retry.Do(ctx, l.backoff(), func(ctx context.Context) error {
		attempt++
		av, err := l.repo.Get(ctx, vehicleID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if !create {
				return nil
			}
			av = domain.NewVehicleAvailability(vehicleID)
		case err != nil:
			return retryable(err)
		}

		changed, err := change(&av)
		if err != nil || !changed {
			return err
		}

		_, err = l.repo.Save(ctx, av)
		if errors.Is(err, domain.ErrStaleVersion) {
			l.log.Debug("ledger changed underneath, retrying",
				slog.String("vehicle_id", vehicleID), slog.Int("attempt", attempt))
		}
		return retryable(err)
	})
	if errors.Is(err, domain.ErrStaleVersion) {
		// Still losing after every attempt: report it as a store problem so
		// the caller retries later instead of treating the dates as taken.
		return fmt.Errorf("%w: ledger for %s under contention: %w", domain.ErrStoreUnavailable, vehicleID, err)
	}
	return err
}

// backoff returns the retry policy shared by reads and compare-and-swap
// writes: exponential from Policy.ReserveBackoff, at most
// Policy.ReserveAttempts attempts in total.
func (l *Ledger) backoff() retry.Backoff {
	attempts := l.policy.ReserveAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(l.policy.ReserveBackoff)
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

// retryable marks transient store errors for go-retry. Everything else is
// returned as is and stops the retry loop.
func retryable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrStaleVersion) {
		return retry.RetryableError(err)
	}
	return err
}
