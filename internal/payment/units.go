package payment

import (
	"fmt"
	"math/big"
	"strings"

	"studio/internal/domain"
)

// USDCToBaseUnits converts a decimal USDC amount into integer base units
// using the chain's declared precision. Fractional digits beyond the
// precision are truncated, never rounded up: a payment may only ever charge
// at most what the user typed.
func USDCToBaseUnits(amount string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("amount is required: %w", domain.ErrValidation)
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, domain.ErrValidation)
	}

	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	for len(frac) < decimals {
		frac += "0"
	}

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, domain.ErrValidation)
	}
	return value, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
