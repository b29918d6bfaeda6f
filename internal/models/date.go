package models

import (
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar date in ISO form (YYYY-MM-DD). The zero value means absent.
// Lexical order of two non-zero Dates equals chronological order.
type Date string

// ParseDate normalizes a CRM date property. It accepts ISO dates, RFC3339
// timestamps and epoch milliseconds; anything else yields the zero Date.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t.UTC())
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return DateOf(time.UnixMilli(ms).UTC())
	}
	return ""
}

// DateOf takes the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(DateLayout))
}

func (d Date) IsZero() bool { return d == "" }

func (d Date) String() string { return string(d) }

// Time returns midnight UTC of the date, or the zero time for an absent date.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Month returns the YYYY-MM prefix, or "" if there is none.
func (d Date) Month() string {
	if len(d) < 7 {
		return ""
	}
	return string(d[:7])
}

func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d < o }

func (d Date) After(o Date) bool { return d > o }

// DaysBetween counts whole days from a to b (negative when b is before a).
// Both are taken at UTC midnight so there is no DST drift.
func DaysBetween(a, b Date) int {
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}
