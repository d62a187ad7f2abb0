package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/carbnb/availability/internal/domain"
)

// LoadPolicy returns the default rental policy overlaid with the keys set in
// the TOML file at path. An empty path returns the defaults. Unknown keys
// are rejected so a typo cannot silently fall back to a default.
//
// Example file:
//
//	max_rental_days = 21
//	service_fee_rate = 0.06
//	reserve_backoff = "100ms"
func LoadPolicy(path string) (domain.Policy, error) {
	p := domain.DefaultPolicy()
	if path == "" {
		return p, nil
	}

	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("config.LoadPolicy: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return domain.Policy{}, fmt.Errorf("config.LoadPolicy: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := validatePolicy(p); err != nil {
		return domain.Policy{}, fmt.Errorf("config.LoadPolicy: %w", err)
	}
	return p, nil
}

func validatePolicy(p domain.Policy) error {
	switch {
	case p.MaxRentalDays < 1:
		return fmt.Errorf("max_rental_days must be at least 1")
	case p.ReserveAttempts < 1:
		return fmt.Errorf("reserve_attempts must be at least 1")
	case p.ReserveBackoff <= 0:
		return fmt.Errorf("reserve_backoff must be positive")
	case p.ServiceFeeRate < 0, p.ProcessingFeeRate < 0, p.ProcessingFixedFee < 0, p.PlatformFixedFee < 0:
		return fmt.Errorf("fees must not be negative")
	}
	return nil
}
