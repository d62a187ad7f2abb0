package domain

import (
	"math"
	"time"
)

// Policy holds the rental rules and fee schedule.
// Values can be overridden from a TOML file; see config.LoadPolicy.
type Policy struct {
	// MaxRentalDays is the longest rental accepted, in ceil((end-start)/1day) days.
	MaxRentalDays int `toml:"max_rental_days"`

	// ServiceFeeRate and ProcessingFeeRate are fractions of the subtotal.
	ServiceFeeRate    float64 `toml:"service_fee_rate"`
	ProcessingFeeRate float64 `toml:"processing_fee_rate"`

	// ProcessingFixedFee and PlatformFixedFee are flat amounts added to every paid rental.
	ProcessingFixedFee float64 `toml:"processing_fixed_fee"`
	PlatformFixedFee   float64 `toml:"platform_fixed_fee"`

	// ReserveAttempts bounds the compare-and-swap retries on the ledger.
	ReserveAttempts int `toml:"reserve_attempts"`

	// ReserveBackoff is the base delay of the exponential backoff between
	// ledger retries, e.g. "50ms".
	ReserveBackoff Duration `toml:"reserve_backoff"`
}

// DefaultPolicy returns the marketplace's standard rules: two-week maximum,
// 5% service fee, 2.9% + 0.30 processing and a 5.00 platform fee.
func DefaultPolicy() Policy {
	return Policy{
		MaxRentalDays:      14,
		ServiceFeeRate:     0.05,
		ProcessingFeeRate:  0.029,
		ProcessingFixedFee: 0.30,
		PlatformFixedFee:   5.00,
		ReserveAttempts:    5,
		ReserveBackoff:     Duration(50 * time.Millisecond),
	}
}

// Fees is the price breakdown charged for a rental.
type Fees struct {
	Subtotal float64
	Fees     float64
	Total    float64
}

// Free reports whether nothing is charged.
func (f Fees) Free() bool {
	return f.Total == 0
}

// CalculateFees applies the policy's fee schedule to subtotal.
// A zero subtotal is a free reservation and carries no fees.
func (p Policy) CalculateFees(subtotal float64) Fees {
	subtotal = roundCents(subtotal)
	if subtotal == 0 {
		return Fees{}
	}
	fees := roundCents(subtotal*p.ServiceFeeRate + subtotal*p.ProcessingFeeRate +
		p.ProcessingFixedFee + p.PlatformFixedFee)
	return Fees{Subtotal: subtotal, Fees: fees, Total: roundCents(subtotal + fees)}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Duration is a time.Duration that decodes from TOML strings like "50ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
