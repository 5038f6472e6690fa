package common

import (
	"fmt"
	"strings"
	"time"
)

// Standard date format constants
const (
	// ISO8601Date is the standard date format used for catalog days, layer
	// names and export descriptors
	ISO8601Date = "2006-01-02"

	// CompactDate is the dash-free form used in export names (20230109)
	CompactDate = "20060102"

	// DisplayDate is the human-readable format used for UI display
	DisplayDate = "Jan 02, 2006"
)

// ParseISO8601 parses a date string in ISO 8601 format (YYYY-MM-DD)
func ParseISO8601(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date string is empty")
	}
	return time.Parse(ISO8601Date, dateStr)
}

// DayPrefix extracts the calendar day from a selector value. Only the first
// ten characters are considered, so "2023-01-09T00:00" and
// "2023-01-09 (Cloud: 3.10%)" both yield "2023-01-09".
func DayPrefix(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(ISO8601Date) {
		return "", false
	}
	day := value[:len(ISO8601Date)]
	if _, err := ParseISO8601(day); err != nil {
		return "", false
	}
	return day, true
}

// FormatISO8601 formats a time.Time to ISO 8601 date string (YYYY-MM-DD)
func FormatISO8601(t time.Time) string {
	return t.Format(ISO8601Date)
}

// FormatDisplay formats a time.Time to display format (Jan 02, 2006)
func FormatDisplay(t time.Time) string {
	return t.Format(DisplayDate)
}

// CompactDay turns "2023-01-09" into "20230109"
func CompactDay(day string) string {
	return strings.ReplaceAll(day, "-", "")
}

// NextDay returns the exclusive upper bound of a one-day window
func NextDay(day string) (string, error) {
	t, err := ParseISO8601(day)
	if err != nil {
		return "", err
	}
	return FormatISO8601(t.AddDate(0, 0, 1)), nil
}

// ValidateISO8601 checks if a date string is in valid ISO 8601 format
func ValidateISO8601(dateStr string) bool {
	_, err := ParseISO8601(dateStr)
	return err == nil
}
