package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/repo"
	"github.com/carbnb/availability/internal/service"
)

// memLedgerRepo is an in-memory repo.AvailabilityRepo with the same
// compare-and-swap semantics as the Postgres implementation.
type memLedgerRepo struct {
	mu      sync.Mutex
	ledgers map[string]domain.VehicleAvailability
	saves   int

	// getErr, when set, is consulted before every Get. Returning nil lets
	// the call through.
	getErr func(vehicleID string) error
	// beforeSave runs before a Save is applied, outside the lock, so a test
	// can slip in a competing write.
	beforeSave func(av domain.VehicleAvailability)
}

var _ repo.AvailabilityRepo = (*memLedgerRepo)(nil)

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{ledgers: map[string]domain.VehicleAvailability{}}
}

func (m *memLedgerRepo) Get(_ context.Context, vehicleID string) (domain.VehicleAvailability, error) {
	if m.getErr != nil {
		if err := m.getErr(vehicleID); err != nil {
			return domain.VehicleAvailability{}, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	av, ok := m.ledgers[vehicleID]
	if !ok {
		return domain.VehicleAvailability{}, domain.ErrNotFound
	}
	av.Reservations = slices.Clone(av.Reservations)
	return av, nil
}

func (m *memLedgerRepo) Save(_ context.Context, av domain.VehicleAvailability) (domain.VehicleAvailability, error) {
	if hook := m.beforeSave; hook != nil {
		m.beforeSave = nil
		hook(av)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.ledgers[av.VehicleID]
	if (ok && cur.Version != av.Version) || (!ok && av.Version != 0) {
		return domain.VehicleAvailability{}, domain.ErrStaleVersion
	}
	av.Version++
	av.UpdatedAt = time.Now()
	av.Reservations = slices.Clone(av.Reservations)
	m.ledgers[av.VehicleID] = av
	m.saves++
	return av, nil
}

func (m *memLedgerRepo) ListHeld(_ context.Context) ([]domain.VehicleAvailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VehicleAvailability
	for _, av := range m.ledgers {
		if !av.IsAvailable {
			av.Reservations = slices.Clone(av.Reservations)
			out = append(out, av)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

// put stores av directly, bypassing the version check.
func (m *memLedgerRepo) put(av domain.VehicleAvailability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	av.Version++
	m.ledgers[av.VehicleID] = av
}

// memBookingStore is an in-memory repo.BookingStore.
type memBookingStore struct {
	mu       sync.Mutex
	bookings map[string]domain.Booking

	insertErr error
	// updateErr, when set, is consulted before every UpdateStatus.
	updateErr func(id string) error
}

var _ repo.BookingStore = (*memBookingStore)(nil)

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{bookings: map[string]domain.Booking{}}
}

func (m *memBookingStore) Insert(_ context.Context, b domain.Booking) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		m.bookings[b.ID] = b
	}
	return nil
}

func (m *memBookingStore) Get(_ context.Context, id string) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *memBookingStore) ListByUser(_ context.Context, userID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.InvolvesUser(userID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookingStore) ListActive(_ context.Context) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.Status == domain.StatusActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memBookingStore) UpdateStatus(_ context.Context, id string, status domain.Status) error {
	if m.updateErr != nil {
		if err := m.updateErr(id); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != domain.StatusActive {
		return fmt.Errorf("%w: booking %s is already %s", domain.ErrState, id, b.Status)
	}
	b.Status = status
	m.bookings[id] = b
	return nil
}

// put stores b directly.
func (m *memBookingStore) put(b domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

// mockContacts is a func-field test double for service.ContactDirectory.
type mockContacts struct {
	get func(ctx context.Context, userID string) (domain.Contact, error)
}

func (m *mockContacts) GetContactInfo(ctx context.Context, userID string) (domain.Contact, error) {
	return m.get(ctx, userID)
}

var _ service.ContactDirectory = (*mockContacts)(nil)

func directory(contacts ...domain.Contact) *mockContacts {
	return &mockContacts{get: func(_ context.Context, userID string) (domain.Contact, error) {
		for _, c := range contacts {
			if c.ID == userID {
				return c, nil
			}
		}
		return domain.Contact{}, domain.ErrNotFound
	}}
}

// recordingNotifier captures notifications and chat posts. When err is set
// every call fails after being recorded.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []domain.Notification
	posts []string
	err   error
}

var (
	_ service.Notifier   = (*recordingNotifier)(nil)
	_ service.ChatPoster = (*recordingNotifier)(nil)
)

func (r *recordingNotifier) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) PostSystemMessage(_ context.Context, conversationID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, conversationID+": "+text)
	return r.err
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, fmt.Sprintf("%s:%s", n.UserID, n.Kind))
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPolicy is the default policy with a backoff short enough for tests.
func testPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	p.ReserveBackoff = domain.Duration(time.Millisecond)
	return p
}

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dates(start, end string) domain.DateRange {
	return domain.NewDateRange(day(start), day(end))
}
