package resolve

import (
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]*(\.[0-9]+)?$`)

// ToBaseUnits converts a human decimal amount into an integer base-unit
// string for the given token decimals. Fractional digits beyond the token's
// precision are truncated, never rounded: "1.5" at 6 decimals is "1500000",
// and "0.0000001" at 6 decimals is "0". The decimal itself must be a
// positive number.
func ToBaseUnits(amount string, decimals int) (string, error) {
	clean := strings.TrimSpace(amount)
	if clean == "" || clean == "." || !decimalPattern.MatchString(clean) {
		return "", clierr.New(clierr.CodeInvalidAmount, "amount must be a positive decimal number")
	}
	if decimals < 0 {
		return "", clierr.New(clierr.CodeInternal, "token decimals must be >= 0")
	}

	parts := strings.SplitN(clean, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if strings.TrimLeft(intPart+fracPart, "0") == "" {
		return "", clierr.New(clierr.CodeInvalidAmount, "amount must be greater than zero")
	}

	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))

	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", clierr.New(clierr.CodeInvalidAmount, "amount must be a positive decimal number")
	}
	return combined, nil
}

// FromBaseUnits renders an integer base-unit string as a decimal with
// trailing zeros trimmed.
func FromBaseUnits(baseUnits string, decimals int) string {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimSpace(baseUnits), 10); !ok {
		return baseUnits
	}
	if decimals <= 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		pad := strings.Repeat("0", decimals-len(s)+1)
		s = pad + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
