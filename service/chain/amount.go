package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidAmount indicates a string that is not a non-negative
	// decimal number.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPrecisionLoss indicates a decimal with more fractional digits
	// than the currency supports. The conversion refuses to truncate.
	ErrPrecisionLoss = errors.New("amount exceeds currency precision")
)

// ParseAmount converts a user-facing decimal currency string into the
// chain's smallest integer unit, exactly. "1.5" with 18 decimals yields
// 1500000000000000000. Fractional digits beyond the currency's declared
// precision are an error, never silently truncated.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: signed value %q", ErrInvalidAmount, s)
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot && strings.Contains(fracPart, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if len(fracPart) > int(decimals) {
		// Trailing zeros past the precision limit are harmless; any
		// other digit would be lost.
		if strings.Trim(fracPart[decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrPrecisionLoss, s, decimals)
		}
		fracPart = fracPart[:decimals]
	}

	// value = intPart * 10^decimals + fracPart padded to decimals digits
	padded := fracPart + strings.Repeat("0", int(decimals)-len(fracPart))
	digits := intPart + padded
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return big.NewInt(0), nil
	}

	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return value, nil
}

// FormatAmount converts a smallest-unit integer back into a decimal
// currency string with no trailing zeros. It is the exact inverse of
// ParseAmount for any value expressible within the currency's precision.
func FormatAmount(v *big.Int, decimals uint8) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}

	sign := ""
	abs := new(big.Int).Abs(v)
	if v.Sign() < 0 {
		sign = "-"
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(abs, unit, new(big.Int))

	if rem.Sign() == 0 {
		return sign + quo.String()
	}

	frac := rem.String()
	if pad := int(decimals) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	frac = strings.TrimRight(frac, "0")

	return sign + quo.String() + "." + frac
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
