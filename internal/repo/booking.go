package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/carbnb/availability/internal/domain"
)

// BookingStore is the storage capability behind the booking repository.
// There are two implementations, Postgres and a local SQLite file, and
// NewResilientBookingStore combines them.
type BookingStore interface {
	// Insert persists a new booking and indexes it under both the owner and
	// the renter. Inserting an id that already exists is a no-op.
	Insert(ctx context.Context, b domain.Booking) error

	// Get returns the booking with the given id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Booking, error)

	// ListByUser returns every booking where userID is the owner or the
	// renter, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)

	// ListActive returns all active bookings system-wide, oldest first.
	ListActive(ctx context.Context) ([]domain.Booking, error)

	// UpdateStatus moves an active booking to status, touching nothing else.
	// Returns domain.ErrNotFound if it does not exist and domain.ErrState if
	// it is no longer active.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
}

// pgBookingStore is the Postgres implementation of BookingStore.
type pgBookingStore struct {
	db db
}

// NewBookingStore constructs a Postgres BookingStore backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewBookingStore(db db) BookingStore {
	return &pgBookingStore{db: db}
}

const bookingColumns = `
	id, vehicle_id,
	owner_id, owner_name, owner_email, owner_contact,
	renter_id, renter_name, renter_email, renter_contact,
	start_date, end_date, total_price, payment_id, status, created_at,
	vehicle_brand, vehicle_model, vehicle_year, vehicle_image_url`

func (s *pgBookingStore) Insert(ctx context.Context, b domain.Booking) error {
	const q = `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (
			@id, @vehicle_id,
			@owner_id, @owner_name, @owner_email, @owner_contact,
			@renter_id, @renter_name, @renter_email, @renter_contact,
			@start_date, @end_date, @total_price, @payment_id, @status, @created_at,
			@vehicle_brand, @vehicle_model, @vehicle_year, @vehicle_image_url)
		ON CONFLICT (id) DO NOTHING`

	args := pgx.NamedArgs{
		"id":                b.ID,
		"vehicle_id":        b.VehicleID,
		"owner_id":          b.OwnerID,
		"owner_name":        b.OwnerName,
		"owner_email":       b.OwnerEmail,
		"owner_contact":     b.OwnerContact,
		"renter_id":         b.RenterID,
		"renter_name":       b.RenterName,
		"renter_email":      b.RenterEmail,
		"renter_contact":    b.RenterContact,
		"start_date":        b.StartDate,
		"end_date":          b.EndDate,
		"total_price":       b.TotalPrice,
		"payment_id":        b.PaymentID,
		"status":            string(b.Status),
		"created_at":        b.CreatedAt,
		"vehicle_brand":     b.Vehicle.Brand,
		"vehicle_model":     b.Vehicle.Model,
		"vehicle_year":      b.Vehicle.Year,
		"vehicle_image_url": b.Vehicle.ImageURL,
	}

	if _, err := s.db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("repo.BookingStore.Insert: %w", classify(err))
	}
	return nil
}

func (s *pgBookingStore) Get(ctx context.Context, id string) (domain.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = @id`

	b, err := scanBooking(s.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.BookingStore.Get: %w", classify(err))
	}
	return b, nil
}

func (s *pgBookingStore) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	const q = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE owner_id = @user_id OR renter_id = @user_id
		ORDER BY created_at DESC, id`

	out, err := s.list(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("repo.BookingStore.ListByUser: %w", err)
	}
	return out, nil
}

func (s *pgBookingStore) ListActive(ctx context.Context) ([]domain.Booking, error) {
	const q = `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'active'
		ORDER BY created_at, id`

	out, err := s.list(ctx, q, pgx.NamedArgs{})
	if err != nil {
		return nil, fmt.Errorf("repo.BookingStore.ListActive: %w", err)
	}
	return out, nil
}

func (s *pgBookingStore) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	const q = `
		UPDATE bookings
		SET status = @status, updated_at = now()
		WHERE id = @id AND status = 'active'`

	tag, err := s.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "status": string(status)})
	if err != nil {
		return fmt.Errorf("repo.BookingStore.UpdateStatus: %w", classify(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing moved: either the booking is missing or it is already final.
	var current string
	err = s.db.QueryRow(ctx, `SELECT status FROM bookings WHERE id = @id`, pgx.NamedArgs{"id": id}).Scan(&current)
	if err != nil {
		return fmt.Errorf("repo.BookingStore.UpdateStatus: %w", classify(err))
	}
	return fmt.Errorf("repo.BookingStore.UpdateStatus: %w: booking %s is already %s", domain.ErrState, id, current)
}

func (s *pgBookingStore) list(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Booking, error) {
	rows, err := s.db.Query(ctx, q, args)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", classify(err))
	}
	return out, nil
}

func scanBooking(s scanner) (domain.Booking, error) {
	var (
		b          domain.Booking
		start, end pgtype.Date
		status     string
		createdAt  pgtype.Timestamptz
	)
	err := s.Scan(
		&b.ID, &b.VehicleID,
		&b.OwnerID, &b.OwnerName, &b.OwnerEmail, &b.OwnerContact,
		&b.RenterID, &b.RenterName, &b.RenterEmail, &b.RenterContact,
		&start, &end, &b.TotalPrice, &b.PaymentID, &status, &createdAt,
		&b.Vehicle.Brand, &b.Vehicle.Model, &b.Vehicle.Year, &b.Vehicle.ImageURL,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	b.StartDate = start.Time
	b.EndDate = end.Time
	b.Status = domain.Status(status)
	b.CreatedAt = createdAt.Time.UTC()
	return b, nil
}
