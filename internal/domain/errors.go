package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// booking or ledger does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a caller-supplied request violates rental
// policy (start date not in the future, rental too long, missing ids).
// Surfaced directly to the user and never retried.
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrConflict is returned when the vehicle is already reserved for an
// overlapping date range, either at the initial check or when the atomic
// reserve loses a race.
// Handlers should map this to HTTP 409 Conflict.
var ErrConflict = errors.New("conflict")

// ErrStoreUnavailable wraps transient I/O failures talking to a backing store.
// Reads are retried with backoff before this surfaces; writes are idempotent
// by booking id, so callers may retry.
// Handlers should map this to HTTP 503 Service Unavailable.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrState is returned when an operation is invalid for the booking's current
// status, e.g. cancelling a rental that already started or completing twice.
// The operation is a no-op.
var ErrState = errors.New("invalid state")

// ErrStaleVersion is returned by the ledger repo when a conditional write
// lost a compare-and-swap against a concurrent writer. It never leaves the
// service layer: the ledger re-reads and retries.
var ErrStaleVersion = errors.New("stale version")
