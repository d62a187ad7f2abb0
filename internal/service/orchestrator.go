package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/carbnb/availability/internal/domain"
)

// FreeReservationPrefix starts the payment reference generated for
// reservations that cost nothing.
const FreeReservationPrefix = "free_reservation_"

// ConfirmRequest is a renter's request to confirm a reservation after
// payment has settled.
type ConfirmRequest struct {
	// BookingID is an optional client retry token. When a booking with this
	// id already exists the call resumes it instead of creating another.
	BookingID string

	VehicleID      string
	OwnerID        string
	RenterID       string
	ConversationID string
	Range          domain.DateRange
	Subtotal       float64
	PaymentID      string
	Vehicle        domain.VehicleSnapshot
}

// ReconcileReport counts what a reconciliation pass repaired.
type ReconcileReport struct {
	// Reserved is active bookings whose missing ledger entry was re-created.
	Reserved int `json:"reserved"`
	// CancelledBookings is active bookings cancelled because their dates
	// had been taken meanwhile.
	CancelledBookings int `json:"cancelledBookings"`
	// Released is ledger entries released because their booking was
	// missing or already finished.
	Released int `json:"released"`
	// Errors is entries that could not be repaired this pass.
	Errors int `json:"errors"`
}

// Orchestrator drives a booking through its lifecycle and is the only
// writer of both the booking record and the ledger reservation, which keeps
// the two statuses in agreement.
type Orchestrator struct {
	ledger   *Ledger
	bookings *BookingService
	contacts ContactDirectory
	notifier Notifier
	chat     ChatPoster
	policy   domain.Policy
	log      *slog.Logger

	loc *time.Location
	now func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces time.Now. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLocation sets the time zone in which "today" is evaluated when
// checking that a rental starts in the future. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// NewOrchestrator wires the lifecycle service to its collaborators.
func NewOrchestrator(
	ledger *Ledger,
	bookings *BookingService,
	contacts ContactDirectory,
	notifier Notifier,
	chat ChatPoster,
	policy domain.Policy,
	log *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		ledger:   ledger,
		bookings: bookings,
		contacts: contacts,
		notifier: notifier,
		chat:     chat,
		policy:   policy,
		log:      log,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ConfirmReservation turns a paid request into an active booking holding
// the vehicle for the requested dates and returns the booking id.
//
// Outcomes:
//   - domain.ErrValidation: the request breaks a rental rule.
//   - domain.ErrConflict: the dates are taken, either before the booking
//     was written or by a concurrent renter who won the ledger write. In the
//     second case the new booking is cancelled and a refund is logged.
//   - domain.ErrStoreUnavailable with a non-empty id: the booking exists but
//     the ledger write failed. Retrying with BookingID set to that id
//     finishes the job; otherwise Reconcile does.
//
// Notification and chat failures are logged and never undo the booking.
func (o *Orchestrator) ConfirmReservation(ctx context.Context, req ConfirmRequest) (string, error) {
	req, fees, err := o.validate(req)
	if err != nil {
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
	}

	if req.BookingID != "" {
		existing, err := o.bookings.GetByID(ctx, req.BookingID)
		switch {
		case err == nil:
			return o.resume(ctx, existing, req, fees)
		case !errors.Is(err, domain.ErrNotFound):
			return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
		}
	}

	free, err := o.ledger.IsRangeFree(ctx, req.VehicleID, req.Range)
	if err != nil {
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
	}
	if !free {
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: vehicle already booked for these dates", domain.ErrConflict)
	}

	owner, renter := o.lookupParties(ctx, req.OwnerID, req.RenterID)

	b, err := o.bookings.Create(ctx, domain.Booking{
		ID:            req.BookingID,
		VehicleID:     req.VehicleID,
		OwnerID:       owner.ID,
		OwnerName:     owner.Name,
		OwnerEmail:    owner.Email,
		OwnerContact:  owner.Phone,
		RenterID:      renter.ID,
		RenterName:    renter.Name,
		RenterEmail:   renter.Email,
		RenterContact: renter.Phone,
		StartDate:     req.Range.Start,
		EndDate:       req.Range.End,
		TotalPrice:    fees.Total,
		PaymentID:     req.PaymentID,
		Vehicle:       req.Vehicle,
	})
	if err != nil {
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
	}

	if err := o.reserve(ctx, b); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
		}
		return b.ID, fmt.Errorf("service.Orchestrator.ConfirmReservation: booking %s saved but not reserved: %w", b.ID, err)
	}

	o.log.Info("booking confirmed",
		slog.String("booking_id", b.ID),
		slog.String("vehicle_id", b.VehicleID),
		slog.String("dates", b.Range().String()),
		slog.Float64("total", b.TotalPrice))

	o.announce(ctx, "confirmation", b.ID, o.confirmationEffects(b, fees, req.ConversationID)...)
	return b.ID, nil
}

// resume finishes a ConfirmReservation retry for a booking that already
// exists. The parties are told only when this call is the one that
// reserved the vehicle.
func (o *Orchestrator) resume(ctx context.Context, b domain.Booking, req ConfirmRequest, fees domain.Fees) (string, error) {
	if b.VehicleID != req.VehicleID || b.RenterID != req.RenterID || !b.Range().Equal(req.Range) {
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: booking %s belongs to another reservation", domain.ErrValidation, b.ID)
	}
	switch b.Status {
	case domain.StatusCancelled:
		return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: booking %s was cancelled", domain.ErrConflict, b.ID)
	case domain.StatusCompleted:
		return b.ID, nil
	}

	av, err := o.ledger.GetAvailability(ctx, b.VehicleID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return b.ID, fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
	}
	if r, ok := av.Find(b.ID); ok && r.Status == domain.StatusActive {
		return b.ID, nil
	}

	if err := o.reserve(ctx, b); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return "", fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
		}
		return b.ID, fmt.Errorf("service.Orchestrator.ConfirmReservation: %w", err)
	}
	o.announce(ctx, "confirmation", b.ID, o.confirmationEffects(b, fees, req.ConversationID)...)
	return b.ID, nil
}

// reserve writes the ledger entry for an active booking. When the dates
// were taken by someone else in the meantime the booking is cancelled and
// the payment flagged for refund.
func (o *Orchestrator) reserve(ctx context.Context, b domain.Booking) error {
	err := o.ledger.ReserveIfFree(ctx, b.VehicleID, b.Reservation())
	if !errors.Is(err, domain.ErrConflict) {
		return err
	}

	if _, cerr := o.bookings.UpdateStatus(ctx, b.ID, domain.StatusCancelled); cerr != nil {
		o.log.Error("cancel booking after lost reservation race",
			slog.String("booking_id", b.ID), slog.Any("error", cerr))
	}
	o.log.Warn("reservation lost to a concurrent booking, refund required",
		slog.String("booking_id", b.ID),
		slog.String("vehicle_id", b.VehicleID),
		slog.String("payment_id", b.PaymentID),
		slog.Float64("amount", b.TotalPrice))
	return fmt.Errorf("%w: vehicle already booked for these dates", domain.ErrConflict)
}

// validate applies the rental rules and normalises the request.
func (o *Orchestrator) validate(req ConfirmRequest) (ConfirmRequest, domain.Fees, error) {
	req.BookingID = strings.TrimSpace(req.BookingID)
	if err := requireIDs(
		"vehicleId", req.VehicleID,
		"ownerId", req.OwnerID,
		"renterId", req.RenterID,
	); err != nil {
		return req, domain.Fees{}, err
	}
	if req.OwnerID == req.RenterID {
		return req, domain.Fees{}, fmt.Errorf("%w: owners cannot rent their own vehicle", domain.ErrValidation)
	}

	req.Range = domain.NewDateRange(req.Range.Start, req.Range.End)
	if req.Range.Start.IsZero() || req.Range.End.IsZero() {
		return req, domain.Fees{}, fmt.Errorf("%w: startDate and endDate are required", domain.ErrValidation)
	}
	if req.Range.End.Before(req.Range.Start) {
		return req, domain.Fees{}, fmt.Errorf("%w: endDate must not be before startDate", domain.ErrValidation)
	}
	today := domain.Day(o.now().In(o.loc))
	if !req.Range.Start.After(today) {
		return req, domain.Fees{}, fmt.Errorf("%w: startDate must be after today (%s)", domain.ErrValidation, today.Format(domain.DateLayout))
	}
	if days := req.Range.Days(); days > o.policy.MaxRentalDays {
		return req, domain.Fees{}, fmt.Errorf("%w: rental of %d days exceeds the %d day maximum", domain.ErrValidation, days, o.policy.MaxRentalDays)
	}

	if req.Subtotal < 0 {
		return req, domain.Fees{}, fmt.Errorf("%w: subtotal must not be negative", domain.ErrValidation)
	}
	fees := o.policy.CalculateFees(req.Subtotal)
	if req.PaymentID == "" {
		if !fees.Free() {
			return req, domain.Fees{}, fmt.Errorf("%w: paymentId is required", domain.ErrValidation)
		}
		req.PaymentID = fmt.Sprintf("%s%d", FreeReservationPrefix, o.now().UnixMilli())
	}
	return req, fees, nil
}

// lookupParties fetches owner and renter contacts concurrently. A failed
// lookup yields the unknown-user placeholder; it never blocks a booking.
// The group has no shared context, so one failed lookup does not cancel
// the other.
func (o *Orchestrator) lookupParties(ctx context.Context, ownerID, renterID string) (owner, renter domain.Contact) {
	var g errgroup.Group
	g.Go(func() (err error) {
		owner, err = o.contact(ctx, ownerID)
		return err
	})
	g.Go(func() (err error) {
		renter, err = o.contact(ctx, renterID)
		return err
	})
	if err := g.Wait(); err != nil {
		o.log.Warn("contact lookup failed, using placeholder", slog.Any("error", err))
	}
	return owner, renter
}

// contact always returns a usable contact. On failure it is the
// placeholder, alongside the error.
func (o *Orchestrator) contact(ctx context.Context, userID string) (domain.Contact, error) {
	if o.contacts == nil {
		return domain.UnknownContact(userID), nil
	}
	c, err := o.contacts.GetContactInfo(ctx, userID)
	if err != nil {
		return domain.UnknownContact(userID), fmt.Errorf("contact %s: %w", userID, err)
	}
	c.ID = userID
	return c, nil
}

// effect is one best-effort side effect.
type effect func(ctx context.Context) error

func (o *Orchestrator) notify(n domain.Notification) effect {
	return func(ctx context.Context) error {
		if err := o.notifier.Notify(ctx, n); err != nil {
			return fmt.Errorf("notify %s (%s): %w", n.UserID, n.Kind, err)
		}
		return nil
	}
}

func (o *Orchestrator) confirmationEffects(b domain.Booking, fees domain.Fees, conversationID string) []effect {
	effects := []effect{
		o.notify(ownerPaymentNotification(b, fees)),
		o.notify(renterConfirmedNotification(b, fees)),
	}
	if conversationID != "" && o.chat != nil {
		text := chatConfirmation(b, fees)
		effects = append(effects, func(ctx context.Context) error {
			if err := o.chat.PostSystemMessage(ctx, conversationID, text); err != nil {
				return fmt.Errorf("chat %s: %w", conversationID, err)
			}
			return nil
		})
	}
	if !fees.Free() {
		effects = append(effects,
			o.notify(renterReceipt(b, fees)),
			o.notify(ownerReceipt(b, fees)))
	}
	return effects
}

// announce runs every effect and logs the combined failures.
func (o *Orchestrator) announce(ctx context.Context, what, bookingID string, effects ...effect) {
	var errs error
	for _, fx := range effects {
		errs = multierr.Append(errs, fx(ctx))
	}
	if errs != nil {
		o.log.Warn("side effects failed",
			slog.String("event", what),
			slog.String("booking_id", bookingID),
			slog.Int("failures", len(multierr.Errors(errs))),
			slog.Any("error", errs))
	}
}

// Cancel cancels an active booking whose start day is still in the future,
// releases its ledger reservation and tells both parties.
func (o *Orchestrator) Cancel(ctx context.Context, bookingID string) error {
	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("service.Orchestrator.Cancel: %w", err)
	}
	today := domain.Day(o.now().In(o.loc))
	if b.Status == domain.StatusActive && !b.StartDate.After(today) {
		return fmt.Errorf("service.Orchestrator.Cancel: %w: booking %s has already started", domain.ErrState, bookingID)
	}
	if err := o.finish(ctx, b, domain.StatusCancelled); err != nil {
		return fmt.Errorf("service.Orchestrator.Cancel: %w", err)
	}

	effects := make([]effect, 0, 2)
	for _, n := range cancellationNotifications(b) {
		effects = append(effects, o.notify(n))
	}
	o.announce(ctx, "cancellation", b.ID, effects...)
	return nil
}

// Complete marks an active booking completed and releases its reservation.
func (o *Orchestrator) Complete(ctx context.Context, bookingID string) error {
	b, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("service.Orchestrator.Complete: %w", err)
	}
	if err := o.finish(ctx, b, domain.StatusCompleted); err != nil {
		return fmt.Errorf("service.Orchestrator.Complete: %w", err)
	}
	return nil
}

// finish moves b to a terminal status in the booking repository first and
// the ledger second. If the ledger write fails the booking is already
// final, and Reconcile releases the reservation later.
func (o *Orchestrator) finish(ctx context.Context, b domain.Booking, status domain.Status) error {
	if _, err := o.bookings.UpdateStatus(ctx, b.ID, status); err != nil {
		return err
	}
	if err := o.ledger.UpdateReservationStatus(ctx, b.VehicleID, b.ID, status); err != nil {
		return fmt.Errorf("booking %s is %s but the ledger was not updated: %w", b.ID, status, err)
	}
	return nil
}

// SweepExpired completes every active booking whose end date is before
// today and returns how many it completed. The end date is part of the
// rental, so a booking ending today stays active until the day is over in
// the configured zone. A failure on one booking is logged and does not stop
// the others. Running it twice completes nothing the second time.
func (o *Orchestrator) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	active, err := o.bookings.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("service.Orchestrator.SweepExpired: %w", err)
	}

	today := domain.Day(now.In(o.loc))
	completed := 0
	for _, b := range active {
		if !b.EndDate.Before(today) {
			continue
		}
		err := o.finish(ctx, b, domain.StatusCompleted)
		if errors.Is(err, domain.ErrState) {
			// Cancelled or completed since it was listed.
			continue
		}
		if err != nil {
			o.log.Error("sweep: complete expired booking",
				slog.String("booking_id", b.ID), slog.Any("error", err))
			continue
		}
		completed++
	}

	if completed > 0 {
		o.log.Info("sweep completed expired bookings", slog.Int("completed", completed))
	}
	return completed, nil
}

// Reconcile repairs disagreement between bookings and the ledger that a
// partial failure left behind:
//   - an active booking with no active reservation gets one, or is
//     cancelled if its dates were taken meanwhile;
//   - an active reservation whose booking is missing is cancelled, and one
//     whose booking is finished takes the booking's status.
//
// After a clean pass no vehicle is held by a booking that is not active.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	active, err := o.bookings.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("service.Orchestrator.Reconcile: %w", err)
	}
	for _, b := range active {
		av, err := o.ledger.GetAvailability(ctx, b.VehicleID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			o.log.Error("reconcile: read ledger", slog.String("vehicle_id", b.VehicleID), slog.Any("error", err))
			report.Errors++
			continue
		}
		if r, ok := av.Find(b.ID); ok && r.Status == domain.StatusActive {
			continue
		}

		// A terminal reservation for an active booking means the booking
		// update never landed. Bring the booking in line.
		if r, ok := av.Find(b.ID); ok && r.Status.Terminal() {
			if _, err := o.bookings.UpdateStatus(ctx, b.ID, r.Status); err != nil {
				o.log.Error("reconcile: align booking status", slog.String("booking_id", b.ID), slog.Any("error", err))
				report.Errors++
				continue
			}
			if r.Status == domain.StatusCancelled {
				report.CancelledBookings++
			}
			continue
		}

		switch err := o.reserve(ctx, b); {
		case err == nil:
			report.Reserved++
			o.log.Info("reconcile: restored missing reservation", slog.String("booking_id", b.ID))
		case errors.Is(err, domain.ErrConflict):
			report.CancelledBookings++
		default:
			o.log.Error("reconcile: restore reservation", slog.String("booking_id", b.ID), slog.Any("error", err))
			report.Errors++
		}
	}

	held, err := o.ledger.ListHeld(ctx)
	if err != nil {
		return report, fmt.Errorf("service.Orchestrator.Reconcile: %w", err)
	}
	for _, av := range held {
		for _, r := range av.Active() {
			status, ok := o.releaseStatus(ctx, r.BookingID)
			if !ok {
				continue
			}
			if err := o.ledger.UpdateReservationStatus(ctx, av.VehicleID, r.BookingID, status); err != nil {
				o.log.Error("reconcile: release reservation",
					slog.String("vehicle_id", av.VehicleID), slog.String("booking_id", r.BookingID), slog.Any("error", err))
				report.Errors++
				continue
			}
			report.Released++
			o.log.Info("reconcile: released orphaned reservation",
				slog.String("vehicle_id", av.VehicleID), slog.String("booking_id", r.BookingID), slog.String("status", string(status)))
		}
	}
	return report, nil
}

// releaseStatus decides what an active reservation should become given its
// booking. ok is false when the reservation should stay active or the
// booking could not be read.
func (o *Orchestrator) releaseStatus(ctx context.Context, bookingID string) (domain.Status, bool) {
	b, err := o.bookings.GetByID(ctx, bookingID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.StatusCancelled, true
	case err != nil:
		o.log.Error("reconcile: read booking", slog.String("booking_id", bookingID), slog.Any("error", err))
		return "", false
	case b.Status.Terminal():
		return b.Status, true
	}
	return "", false
}

// ListUserBookings completes any expired bookings first so the caller never
// sees a finished rental as active, then returns the user's bookings.
// A failed sweep is logged and does not fail the listing.
func (o *Orchestrator) ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	if _, err := o.SweepExpired(ctx, o.now()); err != nil {
		o.log.Warn("on-demand sweep failed", slog.Any("error", err))
	}
	list, err := o.bookings.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service.Orchestrator.ListUserBookings: %w", err)
	}
	return list, nil
}

// GetBooking returns one booking by id.
func (o *Orchestrator) GetBooking(ctx context.Context, bookingID string) (domain.Booking, error) {
	return o.bookings.GetByID(ctx, bookingID)
}
