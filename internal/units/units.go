// Package units converts between human-readable decimal amounts and the
// fixed-point integers kept by the ledger and ERC20 tokens.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string such as "0.25" into base units with
// the given number of decimals. Inputs finer than the precision are rejected
// instead of rounded.
func ParseAmount(input string, decimals uint8) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", input)
	}
	shifted := value.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", input, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatAmount renders base units as a decimal string without trailing zeros.
func FormatAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// Float returns an approximate float64 of value, for metrics only.
func Float(value *big.Int, decimals uint8) float64 {
	if value == nil {
		return 0
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).InexactFloat64()
}

// ParsePercent parses an integer percentage in [0, 100].
func ParsePercent(input string) (uint8, error) {
	value, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(input), "%"))
	if err != nil {
		return 0, fmt.Errorf("invalid percent %q: %w", input, err)
	}
	if !value.IsInteger() || value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("percent must be an integer between 0 and 100, got %q", input)
	}
	return uint8(value.IntPart()), nil
}
