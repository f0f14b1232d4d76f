// Package skdate converts the date formats used on the parliament
// website ("d. m. YYYY", optionally with a time) to ISO 8601 strings.
//
// Dates are passed around as ISO strings rather than [time.Time]: the
// entity store speaks JSON and a calendar date has no meaningful
// timezone or clock. ISO strings also compare correctly with plain
// string comparison, which the sync engine relies on.
package skdate

import (
	"fmt"
	"strings"
	"time"

	"nrsr-backend/lib/timezone"
)

const (
	skDate         = "2.1.2006"
	skDateTime     = "2.1.2006 15:04:05"
	skDateTimeHHMM = "2.1.2006 15:04"
)

// ToISO converts a date or date-time string in SK format to ISO format
// ("2006-01-02" or "2006-01-02 15:04:05").
func ToISO(datestring string) (string, error) {
	s := strings.ReplaceAll(datestring, ". ", ".")
	s = strings.TrimSpace(s)

	if t, err := time.Parse(skDate, s); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse(skDateTime, s); err == nil {
		return t.Format("2006-01-02 15:04:05"), nil
	}
	if t, err := time.Parse(skDateTimeHHMM, s); err == nil {
		return t.Format("2006-01-02 15:04:05"), nil
	}
	return "", fmt.Errorf("unrecognized SK date %q", datestring)
}

// AddDays returns the ISO date shifted by the given number of days.
func AddDays(iso string, days int) (string, error) {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return "", fmt.Errorf("unrecognized ISO date %q", iso)
	}
	return t.AddDate(0, 0, days).Format("2006-01-02"), nil
}

// Parse reads an ISO date or date-time string back into a [time.Time]
// in parliament local time.
func Parse(iso string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", iso, timezone.Location); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", iso, timezone.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized ISO date %q", iso)
	}
	return t, nil
}
