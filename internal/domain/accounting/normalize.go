package accounting

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseMinorUnits converts a decimal major-unit amount ("500.00") to integer
// minor units using banker's rounding. Blank or unparseable input yields nil.
func ParseMinorUnits(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	cents := d.Shift(2).RoundBank(0)
	if !cents.BigInt().IsInt64() {
		return nil
	}
	v := cents.IntPart()
	return &v
}

// ParseCalendarDate accepts "2006-01-02" or an RFC 3339 timestamp and returns
// the calendar date as midnight UTC. A timestamp keeps the date in its own
// offset. Blank or unparseable input yields nil.
func ParseCalendarDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		d := CalendarDate(t)
		return &d
	}
	return nil
}

// CalendarDate returns midnight UTC of the calendar date t has in its own
// location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
