package helpers

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatNPR formats an amount as Nepalese Rupees with two decimals and comma
// thousand separators, e.g. "NPR 1,234.50" or "NPR -12.00".
func FormatNPR(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)

	negative := d.IsNegative()
	if negative {
		d = d.Neg()
	}

	str := d.StringFixed(2)
	intPart, fracPart := str[:len(str)-3], str[len(str)-2:]

	// Build the integer part with commas as thousand separators
	var result string
	length := len(intPart)
	for i, digit := range intPart {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("NPR -%s.%s", result, fracPart)
	}
	return fmt.Sprintf("NPR %s.%s", result, fracPart)
}
