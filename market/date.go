package market

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for trading dates.
const DateLayout = "2006-01-02"

// inputLayouts are accepted when parsing client or CSV input.
var inputLayouts = []string{
	DateLayout,
	"02/01/2006", // dd/mm/yyyy, as exported by the exchange
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Date is a calendar trading date normalised to midnight UTC.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts yyyy-mm-dd, dd/mm/yyyy and RFC3339.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// String formats the date as yyyy-mm-dd.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Equal reports whether both values denote the same calendar date.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// Before reports whether d is an earlier calendar date than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is a later calendar date than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{d.AddDate(0, 0, n)}
}

// MarshalJSON encodes the date as "yyyy-mm-dd", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON accepts any layout ParseDate accepts.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
