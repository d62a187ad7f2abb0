// Package repo contains all storage access for the availability service.
// Each resource has its own file with an interface and one or more
// implementations. No business rules live here, only SQL and type mapping.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/carbnb/availability/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Integration tests pass a transaction that is rolled back after each test.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AvailabilityRepo persists per-vehicle ledgers.
//
// Writes are compare-and-swap on VehicleAvailability.Version: the service
// reads a ledger, mutates it in memory and saves it back. If another writer
// got there first Save fails with domain.ErrStaleVersion and the caller must
// re-read.
type AvailabilityRepo interface {
	// Get returns the ledger for vehicleID, or domain.ErrNotFound when the
	// vehicle has never been reserved.
	Get(ctx context.Context, vehicleID string) (domain.VehicleAvailability, error)

	// Save writes av if the stored version still equals av.Version. A zero
	// Version means "create"; it fails with ErrStaleVersion if a ledger
	// already exists. The returned ledger carries the new version and
	// updated_at.
	Save(ctx context.Context, av domain.VehicleAvailability) (domain.VehicleAvailability, error)

	// ListHeld returns every ledger that is currently unavailable, that is,
	// holds at least one active reservation.
	ListHeld(ctx context.Context) ([]domain.VehicleAvailability, error)
}

// pgAvailabilityRepo is the Postgres implementation of AvailabilityRepo.
// Reservations are stored as a JSONB array in insertion order.
type pgAvailabilityRepo struct {
	db db
}

// NewAvailabilityRepo constructs an AvailabilityRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewAvailabilityRepo(db db) AvailabilityRepo {
	return &pgAvailabilityRepo{db: db}
}

func (r *pgAvailabilityRepo) Get(ctx context.Context, vehicleID string) (domain.VehicleAvailability, error) {
	const q = `
		SELECT vehicle_id, is_available, reservations, version, updated_at
		FROM vehicle_availability
		WHERE vehicle_id = @vehicle_id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"vehicle_id": vehicleID})
	av, err := scanAvailability(row)
	if err != nil {
		return domain.VehicleAvailability{}, fmt.Errorf("repo.AvailabilityRepo.Get: %w", classify(err))
	}
	return av, nil
}

func (r *pgAvailabilityRepo) Save(ctx context.Context, av domain.VehicleAvailability) (domain.VehicleAvailability, error) {
	raw, err := encodeReservations(av.Reservations)
	if err != nil {
		return domain.VehicleAvailability{}, fmt.Errorf("repo.AvailabilityRepo.Save: %w", err)
	}

	args := pgx.NamedArgs{
		"vehicle_id":   av.VehicleID,
		"is_available": av.IsAvailable,
		"reservations": string(raw),
		"version":      av.Version,
	}

	// The first write inserts; later writes only land if nobody else has
	// bumped the version since the caller read it.
	q := `
		UPDATE vehicle_availability
		SET is_available = @is_available,
		    reservations = @reservations::jsonb,
		    version      = version + 1,
		    updated_at   = now()
		WHERE vehicle_id = @vehicle_id AND version = @version
		RETURNING version, updated_at`
	if av.Version == 0 {
		q = `
		INSERT INTO vehicle_availability (vehicle_id, is_available, reservations, version, updated_at)
		VALUES (@vehicle_id, @is_available, @reservations::jsonb, 1, now())
		ON CONFLICT (vehicle_id) DO NOTHING
		RETURNING version, updated_at`
	}

	err = r.db.QueryRow(ctx, q, args).Scan(&av.Version, &av.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VehicleAvailability{}, fmt.Errorf("repo.AvailabilityRepo.Save: vehicle %s: %w", av.VehicleID, domain.ErrStaleVersion)
	}
	if err != nil {
		return domain.VehicleAvailability{}, fmt.Errorf("repo.AvailabilityRepo.Save: %w", classify(err))
	}
	return av, nil
}

func (r *pgAvailabilityRepo) ListHeld(ctx context.Context) ([]domain.VehicleAvailability, error) {
	const q = `
		SELECT vehicle_id, is_available, reservations, version, updated_at
		FROM vehicle_availability
		WHERE NOT is_available
		ORDER BY vehicle_id`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.AvailabilityRepo.ListHeld: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.VehicleAvailability
	for rows.Next() {
		av, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.AvailabilityRepo.ListHeld: scan: %w", err)
		}
		out = append(out, av)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.AvailabilityRepo.ListHeld: rows: %w", classify(err))
	}
	return out, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAvailability(s scanner) (domain.VehicleAvailability, error) {
	var (
		av        domain.VehicleAvailability
		raw       []byte
		updatedAt pgtype.Timestamptz
	)
	if err := s.Scan(&av.VehicleID, &av.IsAvailable, &raw, &av.Version, &updatedAt); err != nil {
		return domain.VehicleAvailability{}, err
	}
	res, err := decodeReservations(raw)
	if err != nil {
		return domain.VehicleAvailability{}, fmt.Errorf("decode reservations for %s: %w", av.VehicleID, err)
	}
	av.Reservations = res
	av.UpdatedAt = updatedAt.Time
	return av, nil
}

// reservationDoc is the stored JSON layout of one ledger entry.
type reservationDoc struct {
	VehicleID  string   `json:"vehicleId"`
	BookingID  string   `json:"bookingId"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	RenterID   string   `json:"renterId"`
	RenterName string   `json:"renterName"`
	Status     string   `json:"status"`
	PaymentID  string   `json:"paymentId,omitempty"`
	TotalPrice *float64 `json:"totalPrice,omitempty"`
}

func encodeReservations(rs []domain.Reservation) ([]byte, error) {
	docs := make([]reservationDoc, 0, len(rs))
	for _, r := range rs {
		docs = append(docs, reservationDoc{
			VehicleID:  r.VehicleID,
			BookingID:  r.BookingID,
			StartDate:  r.StartDate.Format(domain.DateLayout),
			EndDate:    r.EndDate.Format(domain.DateLayout),
			RenterID:   r.RenterID,
			RenterName: r.RenterName,
			Status:     string(r.Status),
			PaymentID:  r.PaymentID,
			TotalPrice: r.TotalPrice,
		})
	}
	return json.Marshal(docs)
}

func decodeReservations(raw []byte) ([]domain.Reservation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []reservationDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Reservation, 0, len(docs))
	for _, d := range docs {
		start, err := time.Parse(domain.DateLayout, d.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := time.Parse(domain.DateLayout, d.EndDate)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Reservation{
			VehicleID:  d.VehicleID,
			BookingID:  d.BookingID,
			StartDate:  start,
			EndDate:    end,
			RenterID:   d.RenterID,
			RenterName: d.RenterName,
			Status:     domain.Status(d.Status),
			PaymentID:  d.PaymentID,
			TotalPrice: d.TotalPrice,
		})
	}
	return out, nil
}
