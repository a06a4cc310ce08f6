// Package format renders amounts and effective rates for display.
package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/iwvelando/tax-atlas/pkg/mathutil"
)

// NotAvailable is shown for a percentage the catalog has no value for.
const NotAvailable = "n/a"

// Undefined is shown for a non-finite percentage (zero income).
const Undefined = "undefined"

// Percentage renders an effective rate fraction as a percentage with two
// decimals (e.g., "35.90%").
func Percentage(value *float64) string {
	if value == nil {
		return NotAvailable
	}
	if !mathutil.IsFinite(*value) {
		return Undefined
	}
	return fmt.Sprintf("%.2f%%", mathutil.ToPercent(*value))
}

// Amount returns an amount with thousands separators followed by the
// currency code (e.g., "-1,234.56 EUR"). An empty code is omitted.
func Amount(amount float64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
	}
	formatted := sign + formatPositive(math.Abs(amount))
	if currency == "" {
		return formatted
	}
	return formatted + " " + currency
}

func formatPositive(value float64) string {
	if !mathutil.IsFinite(value) {
		return Undefined
	}
	formatted := fmt.Sprintf("%.2f", value)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + "." + decPart
}
