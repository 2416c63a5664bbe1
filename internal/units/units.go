// Package units converts between fiat floats, decimal strings and integer base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ToBaseUnits rounds amount to the token precision and scales it to integer base units.
// Negative amounts are converted by magnitude.
func ToBaseUnits(amount float64, decimals int32) *big.Int {
	d := decimal.NewFromFloat(amount).Abs().Round(decimals)
	return d.Shift(decimals).BigInt()
}

// ParseBaseUnits parses a non-negative decimal string such as "12.5" into base units.
func ParseBaseUnits(raw string, decimals int32) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if d.Exponent() < -decimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimals", raw, decimals)
	}
	return d.Shift(decimals).BigInt(), nil
}

// Format renders base units as a trimmed decimal string ("30000000", 6 -> "30").
func Format(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ToFloat converts base units to a float for fiat display and ledger math.
func ToFloat(v *big.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}

// Portion returns total * pct / 100, truncated to whole base units.
func Portion(total *big.Int, pct float64) *big.Int {
	if total == nil || pct <= 0 {
		return new(big.Int)
	}
	d := decimal.NewFromBigInt(total, 0).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	return d.Truncate(0).BigInt()
}

// BasisPoints returns amount * bps / 10000 in integer arithmetic.
func BasisPoints(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10_000))
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
