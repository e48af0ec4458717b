// Package timeutil provides calendar utilities for the platform timezone (UTC+1).
// Practice days, streak boundaries and pause coverage are all evaluated on this
// calendar. The offset is fixed and does not follow daylight saving time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// PlatformTZ is the platform calendar zone (UTC+1, no DST).
var PlatformTZ = time.FixedZone("Platform", 1*60*60)

// Common date formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// Clock abstracts the current time so that callers can be tested with a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in the platform timezone.
func (SystemClock) Now() time.Time {
	return Now()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// Now returns the current time in the platform timezone.
func Now() time.Time {
	return time.Now().In(PlatformTZ)
}

// ToPlatform converts a time to the platform timezone.
func ToPlatform(t time.Time) time.Time {
	return t.In(PlatformTZ)
}

// Date creates midnight of the given calendar day in the platform timezone.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, PlatformTZ)
}

// DateTime creates a time in the platform timezone.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, PlatformTZ)
}

// StartOfDay returns the start of the day (00:00:00) in the platform timezone.
func StartOfDay(t time.Time) time.Time {
	p := ToPlatform(t)
	return time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, PlatformTZ)
}

// AddDays shifts a calendar day by n days, staying at midnight.
func AddDays(day time.Time, n int) time.Time {
	return StartOfDay(day).AddDate(0, 0, n)
}

// DayKey returns the YYYY-MM-DD key of the platform calendar day containing t.
func DayKey(t time.Time) string {
	return ToPlatform(t).Format(FormatDate)
}

// IsSameDay checks if two times fall on the same platform calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return DayKey(t1) == DayKey(t2)
}

// DaysFrom returns the signed number of calendar days from t1 to t2.
func DaysFrom(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	// Fixed offset: every day is exactly 24h long.
	return int(a2.Sub(a1).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD string as a platform calendar day.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, PlatformTZ)
}

// ToDateValue converts a platform calendar day into the UTC-midnight value
// stored in DATE columns.
func ToDateValue(t time.Time) time.Time {
	p := ToPlatform(t)
	return time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, time.UTC)
}

// FromDateValue converts a DATE column value back into a platform calendar day.
func FromDateValue(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, PlatformTZ)
}
