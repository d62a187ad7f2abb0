package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbnb/availability/internal/domain"
	"github.com/carbnb/availability/internal/handler"
	"github.com/carbnb/availability/internal/service"
)

// mockBookingServicer is a test double for handler.BookingServicer.
// Set only the method fields your test needs.
type mockBookingServicer struct {
	confirm  func(ctx context.Context, req service.ConfirmRequest) (string, error)
	get      func(ctx context.Context, id string) (domain.Booking, error)
	cancel   func(ctx context.Context, id string) error
	complete func(ctx context.Context, id string) error
	listUser func(ctx context.Context, userID string) ([]domain.Booking, error)
}

func (m *mockBookingServicer) ConfirmReservation(ctx context.Context, req service.ConfirmRequest) (string, error) {
	return m.confirm(ctx, req)
}
func (m *mockBookingServicer) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	return m.get(ctx, id)
}
func (m *mockBookingServicer) Cancel(ctx context.Context, id string) error {
	return m.cancel(ctx, id)
}
func (m *mockBookingServicer) Complete(ctx context.Context, id string) error {
	return m.complete(ctx, id)
}
func (m *mockBookingServicer) ListUserBookings(ctx context.Context, userID string) ([]domain.Booking, error) {
	return m.listUser(ctx, userID)
}

// compile-time checks: the production types satisfy the handler interfaces.
var (
	_ handler.BookingServicer      = (*mockBookingServicer)(nil)
	_ handler.BookingServicer      = (*service.Orchestrator)(nil)
	_ handler.AvailabilityServicer = (*service.Ledger)(nil)
	_ handler.Maintainer           = (*service.Orchestrator)(nil)
)

// ---- helpers ---------------------------------------------------------------

func newBookingsHandler(svc handler.BookingServicer) http.Handler {
	return handler.NewServer(svc, nil, nil, nil).Routes()
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func bookingFixture() domain.Booking {
	return domain.Booking{
		ID:         "booking_1",
		VehicleID:  "car-1",
		OwnerID:    "owner-o",
		OwnerName:  "Olga",
		RenterID:   "renter-a",
		RenterName: "Ana",
		StartDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		TotalPrice: 113.2,
		PaymentID:  "pay_1",
		Status:     domain.StatusActive,
		CreatedAt:  time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC),
		Vehicle:    domain.VehicleSnapshot{Brand: "Toyota", Model: "Corolla", Year: 2021},
	}
}

var createBody = map[string]any{
	"vehicleId": "car-1",
	"ownerId":   "owner-o",
	"renterId":  "renter-a",
	"startDate": "2025-06-01",
	"endDate":   "2025-06-03",
	"subtotal":  100,
	"paymentId": "pay_1",
	"vehicle":   map[string]any{"brand": "Toyota", "model": "Corolla", "year": 2021},
}

// ---- POST /bookings ----------------------------------------------------------

func TestCreateBooking_returns201(t *testing.T) {
	var got service.ConfirmRequest
	svc := &mockBookingServicer{
		confirm: func(_ context.Context, req service.ConfirmRequest) (string, error) {
			got = req
			return "booking_1", nil
		},
	}

	rec := httptest.NewRecorder()
	newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", jsonBody(t, createBody)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var body handler.CreateBookingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "booking_1", body.BookingID)

	assert.Equal(t, "car-1", got.VehicleID)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got.Range.Start)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), got.Range.End)
	assert.InDelta(t, 100.0, got.Subtotal, 0.001)
	assert.Equal(t, "Corolla", got.Vehicle.Model)
}

func TestCreateBooking_errorMapping(t *testing.T) {
	cases := []struct {
		name     string
		id       string
		err      error
		status   int
		code     string
		message  string
		bookedID string
	}{
		{
			name:    "validation",
			err:     fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: rentals are limited to 14 days", domain.ErrValidation),
			status:  http.StatusUnprocessableEntity,
			code:    "validation_error",
			message: "rentals are limited to 14 days",
		},
		{
			name:    "conflict",
			err:     fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: vehicle already booked for these dates", domain.ErrConflict),
			status:  http.StatusConflict,
			code:    "conflict",
			message: "vehicle already booked for these dates",
		},
		{
			name:     "ledger outage after the booking was written",
			id:       "booking_1",
			err:      fmt.Errorf("service.Orchestrator.ConfirmReservation: %w: timeout", domain.ErrStoreUnavailable),
			status:   http.StatusServiceUnavailable,
			code:     "store_unavailable",
			message:  "timeout",
			bookedID: "booking_1",
		},
		{
			name:    "unexpected",
			err:     fmt.Errorf("boom"),
			status:  http.StatusInternalServerError,
			code:    "internal_error",
			message: "internal server error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockBookingServicer{
				confirm: func(context.Context, service.ConfirmRequest) (string, error) { return tc.id, tc.err },
			}

			rec := httptest.NewRecorder()
			newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", jsonBody(t, createBody)))

			require.Equal(t, tc.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Error.Code)
			assert.Equal(t, tc.message, body.Error.Message)
			assert.Equal(t, tc.bookedID, body.BookingID)
		})
	}
}

func TestCreateBooking_malformedBody_returns422(t *testing.T) {
	svc := &mockBookingServicer{
		confirm: func(context.Context, service.ConfirmRequest) (string, error) {
			t.Fatal("service must not be called")
			return "", nil
		},
	}

	for name, raw := range map[string]string{
		"not json":    `{"vehicleId":`,
		"bad date":    `{"vehicleId":"car-1","startDate":"01/06/2025"}`,
		"wrong types": `{"subtotal":"free"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(raw)))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Error.Code)
		})
	}
}

// ---- GET /bookings/{id} ------------------------------------------------------

func TestGetBooking_returns200(t *testing.T) {
	svc := &mockBookingServicer{
		get: func(_ context.Context, id string) (domain.Booking, error) {
			assert.Equal(t, "booking_1", id)
			return bookingFixture(), nil
		},
	}

	rec := httptest.NewRecorder()
	newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/booking_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, "booking_1", raw["bookingId"])
	assert.Equal(t, "2025-06-01", raw["startDate"])
	assert.Equal(t, "2025-06-03", raw["endDate"])
	assert.Equal(t, "active", raw["status"])
	assert.Equal(t, "Olga", raw["owner"].(map[string]any)["name"])
}

func TestGetBooking_notFound_returns404(t *testing.T) {
	svc := &mockBookingServicer{
		get: func(context.Context, string) (domain.Booking, error) {
			return domain.Booking{}, fmt.Errorf("repo.BookingStore.Get: %w", domain.ErrNotFound)
		},
	}

	rec := httptest.NewRecorder()
	newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Error.Code)
}

// ---- POST /bookings/{id}/cancel and /complete --------------------------------

func TestCancelBooking(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"cancelled", nil, http.StatusNoContent},
		{"already started", fmt.Errorf("%w: booking has already started", domain.ErrState), http.StatusConflict},
		{"unknown", domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockBookingServicer{cancel: func(context.Context, string) error { return tc.err }}

			rec := httptest.NewRecorder()
			newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking_1/cancel", nil))

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestCompleteBooking_twice_returns409(t *testing.T) {
	completed := false
	svc := &mockBookingServicer{
		complete: func(context.Context, string) error {
			if completed {
				return fmt.Errorf("%w: booking is already completed", domain.ErrState)
			}
			completed = true
			return nil
		},
	}
	h := newBookingsHandler(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking_1/complete", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/booking_1/complete", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Error.Code)
}

// ---- GET /users/{id}/bookings ------------------------------------------------

func TestListUserBookings_returns200(t *testing.T) {
	svc := &mockBookingServicer{
		listUser: func(_ context.Context, userID string) ([]domain.Booking, error) {
			assert.Equal(t, "renter-a", userID)
			return []domain.Booking{bookingFixture()}, nil
		},
	}

	rec := httptest.NewRecorder()
	newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/renter-a/bookings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body handler.BookingList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "booking_1", body.Data[0].BookingID)
}

func TestListUserBookings_emptyIsArray(t *testing.T) {
	svc := &mockBookingServicer{
		listUser: func(context.Context, string) ([]domain.Booking, error) { return nil, nil },
	}

	rec := httptest.NewRecorder()
	newBookingsHandler(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u/bookings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}
