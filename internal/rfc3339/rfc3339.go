// Package rfc3339 formats and parses two timestamp conventions: RFC-3339
// with an explicit numeric offset (or "Z"), and the ISO-basic
// "YYYYMMDD.HHMMSS" cycle-number stamp.
//
// Format always builds the string straight from time.Time, with no
// shared-buffer or in-place byte-shift assumptions.
package rfc3339

import (
	"fmt"
	"time"
)

// Format renders t as RFC-3339 with an explicit numeric offset, using
// "Z" only when the offset is exactly zero.
func Format(t time.Time) string {
	if _, offset := t.Zone(); offset == 0 {
		return t.UTC().Format("2006-01-02T15:04:05Z")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}

// Parse reads a timestamp produced by Format (or any conformant RFC-3339
// value with a numeric offset or "Z").
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse rfc3339 timestamp %q: %w", s, err)
	}
	return t, nil
}

// CycleNumber renders instant as the ISO-basic "YYYYMMDD.HHMMSS" form
// used for a Schedule's cycle-number, always in UTC.
func CycleNumber(instant time.Time) string {
	return instant.UTC().Format("20060102.150405")
}
