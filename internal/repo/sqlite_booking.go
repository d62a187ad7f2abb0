package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/carbnb/availability/internal/domain"
)

// sqliteTimeLayout is fixed width so created_at sorts correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteBookingStore keeps a local copy of bookings in a SQLite file. It is
// the offline fallback behind the Postgres store: each booking is a JSON
// document plus a user index so ListByUser works without the primary.
type SQLiteBookingStore struct {
	db *sql.DB
}

var _ BookingStore = (*SQLiteBookingStore)(nil)

// OpenSQLiteBookingStore opens (creating if needed) the SQLite file at path
// and ensures the schema exists. path may be a *.db file or a directory.
func OpenSQLiteBookingStore(path string) (*SQLiteBookingStore, error) {
	dbPath, err := resolveDBPath(path)
	if err != nil {
		return nil, fmt.Errorf("repo.OpenSQLiteBookingStore: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("repo.OpenSQLiteBookingStore: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, fmt.Errorf("repo.OpenSQLiteBookingStore: schema: %w", err)
	}

	return NewSQLiteBookingStore(db), nil
}

// NewSQLiteBookingStore wraps an already open database whose schema exists.
func NewSQLiteBookingStore(db *sql.DB) *SQLiteBookingStore {
	return &SQLiteBookingStore{db: db}
}

func resolveDBPath(path string) (string, error) {
	abs := filepath.Clean(path)
	if strings.HasSuffix(abs, ".db") {
		if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
			return "", err
		}
		return abs, nil
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", err
	}
	return filepath.Join(abs, "bookings.db"), nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS bookings (id TEXT PRIMARY KEY, status TEXT NOT NULL, created_at TEXT NOT NULL, data BLOB NOT NULL);",
		"CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status);",
		"CREATE TABLE IF NOT EXISTS user_bookings (user_id TEXT NOT NULL, booking_id TEXT NOT NULL, PRIMARY KEY (user_id, booking_id));",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database.
func (s *SQLiteBookingStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteBookingStore) Insert(ctx context.Context, b domain.Booking) (err error) {
	data, err := json.Marshal(toBookingDoc(b))
	if err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.Insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.Insert: %w", unavailable(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO bookings (id, status, created_at, data) VALUES (?, ?, ?, ?)`,
		b.ID, string(b.Status), b.CreatedAt.UTC().Format(sqliteTimeLayout), data); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.Insert: %w", unavailable(err))
	}
	for _, userID := range []string{b.OwnerID, b.RenterID} {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_bookings (user_id, booking_id) VALUES (?, ?)`,
			userID, b.ID); err != nil {
			return fmt.Errorf("repo.SQLiteBookingStore.Insert: index %s: %w", userID, unavailable(err))
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.Insert: commit: %w", unavailable(err))
	}
	return nil
}

func (s *SQLiteBookingStore) Get(ctx context.Context, id string) (domain.Booking, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM bookings WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.SQLiteBookingStore.Get: %w", unavailable(err))
	}
	b, err := decodeBookingDoc(raw)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("repo.SQLiteBookingStore.Get: %w", err)
	}
	return b, nil
}

func (s *SQLiteBookingStore) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	out, err := s.list(ctx, `
		SELECT b.data
		FROM bookings b
		JOIN user_bookings u ON u.booking_id = b.id
		WHERE u.user_id = ?
		ORDER BY b.created_at DESC, b.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("repo.SQLiteBookingStore.ListByUser: %w", err)
	}
	return out, nil
}

func (s *SQLiteBookingStore) ListActive(ctx context.Context) ([]domain.Booking, error) {
	out, err := s.list(ctx, `SELECT data FROM bookings WHERE status = ? ORDER BY created_at, id`, string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("repo.SQLiteBookingStore.ListActive: %w", err)
	}
	return out, nil
}

// UpdateStatus rewrites the status column and the status inside the JSON
// document in one transaction. Other fields are left untouched. A booking
// that is no longer active is domain.ErrState.
func (s *SQLiteBookingStore) UpdateStatus(ctx context.Context, id string, status domain.Status) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: %w", unavailable(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw []byte
	if err = tx.QueryRowContext(ctx, `SELECT data FROM bookings WHERE id = ?`, id).Scan(&raw); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: %w", unavailable(err))
	}
	var doc bookingDoc
	if err = json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: decode: %w", err)
	}
	if current := domain.Status(doc.Status); current != domain.StatusActive {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: %w: booking %s is already %s", domain.ErrState, id, current)
	}
	doc.Status = string(status)
	if raw, err = json.Marshal(doc); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: encode: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE bookings SET status = ?, data = ? WHERE id = ? AND status = 'active'`, string(status), raw, id); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: %w", unavailable(err))
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("repo.SQLiteBookingStore.UpdateStatus: commit: %w", unavailable(err))
	}
	return nil
}

func (s *SQLiteBookingStore) list(ctx context.Context, q string, args ...any) ([]domain.Booking, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Booking
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable(err)
		}
		b, err := decodeBookingDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// bookingDoc is the JSON layout of a booking in the fallback store.
type bookingDoc struct {
	BookingID     string  `json:"bookingId"`
	VehicleID     string  `json:"vehicleId"`
	OwnerID       string  `json:"ownerId"`
	OwnerName     string  `json:"ownerName"`
	OwnerEmail    string  `json:"ownerEmail"`
	OwnerContact  string  `json:"ownerContact"`
	RenterID      string  `json:"renterId"`
	RenterName    string  `json:"renterName"`
	RenterEmail   string  `json:"renterEmail"`
	RenterContact string  `json:"renterContact"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	TotalPrice    float64 `json:"totalPrice"`
	PaymentID     string  `json:"paymentId"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
	Vehicle       struct {
		Brand    string `json:"brand"`
		Model    string `json:"model"`
		Year     int    `json:"year"`
		ImageURL string `json:"imageUrl"`
	} `json:"vehicle"`
}

func toBookingDoc(b domain.Booking) bookingDoc {
	d := bookingDoc{
		BookingID:     b.ID,
		VehicleID:     b.VehicleID,
		OwnerID:       b.OwnerID,
		OwnerName:     b.OwnerName,
		OwnerEmail:    b.OwnerEmail,
		OwnerContact:  b.OwnerContact,
		RenterID:      b.RenterID,
		RenterName:    b.RenterName,
		RenterEmail:   b.RenterEmail,
		RenterContact: b.RenterContact,
		StartDate:     b.StartDate.Format(domain.DateLayout),
		EndDate:       b.EndDate.Format(domain.DateLayout),
		TotalPrice:    b.TotalPrice,
		PaymentID:     b.PaymentID,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	d.Vehicle.Brand = b.Vehicle.Brand
	d.Vehicle.Model = b.Vehicle.Model
	d.Vehicle.Year = b.Vehicle.Year
	d.Vehicle.ImageURL = b.Vehicle.ImageURL
	return d
}

func decodeBookingDoc(raw []byte) (domain.Booking, error) {
	var d bookingDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.Booking{}, fmt.Errorf("decode booking: %w", err)
	}
	start, err := domain.ParseDay(d.StartDate)
	if err != nil {
		return domain.Booking{}, err
	}
	end, err := domain.ParseDay(d.EndDate)
	if err != nil {
		return domain.Booking{}, err
	}
	created, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("decode booking %s: created_at: %w", d.BookingID, err)
	}
	return domain.Booking{
		ID:            d.BookingID,
		VehicleID:     d.VehicleID,
		OwnerID:       d.OwnerID,
		OwnerName:     d.OwnerName,
		OwnerEmail:    d.OwnerEmail,
		OwnerContact:  d.OwnerContact,
		RenterID:      d.RenterID,
		RenterName:    d.RenterName,
		RenterEmail:   d.RenterEmail,
		RenterContact: d.RenterContact,
		StartDate:     start,
		EndDate:       end,
		TotalPrice:    d.TotalPrice,
		PaymentID:     d.PaymentID,
		Status:        domain.Status(d.Status),
		CreatedAt:     created,
		Vehicle: domain.VehicleSnapshot{
			Brand:    d.Vehicle.Brand,
			Model:    d.Vehicle.Model,
			Year:     d.Vehicle.Year,
			ImageURL: d.Vehicle.ImageURL,
		},
	}, nil
}
