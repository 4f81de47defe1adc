package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

var weekdayNames = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// FormatNumericField renders b as "*" (all-ones sentinel) or a
// comma-separated ascending list of the set bits in [lo, hi].
func (b Bitset) FormatNumericField(lo, hi uint, allOnes Bitset) string {
	if b == allOnes {
		return "*"
	}
	var parts []string
	for n := lo; n <= hi; n++ {
		if b.IsSet(n) {
			parts = append(parts, strconv.FormatUint(uint64(n), 10))
		}
	}
	return strings.Join(parts, ",")
}

// ParseNumericField is the inverse of FormatNumericField.
func ParseNumericField(s string, lo, hi uint, allOnes Bitset) (Bitset, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return allOnes, nil
	}
	var b Bitset
	for _, tok := range strings.Split(s, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 8)
		if err != nil {
			return 0, fmt.Errorf("calendar: invalid field value %q: %w", tok, err)
		}
		if uint(n) < lo || uint(n) > hi {
			return 0, fmt.Errorf("calendar: value %d out of range [%d,%d]", n, lo, hi)
		}
		b = b.Set(uint(n))
	}
	return b, nil
}

// FormatMonths renders the Months bitset as "*" or a comma-separated
// list of lowercase English month names.
func (b Bitset) FormatMonths() string {
	if b == MonthsAll {
		return "*"
	}
	var parts []string
	for m := uint(1); m <= 12; m++ {
		if b.IsSet(m - 1) {
			parts = append(parts, monthNames[m-1])
		}
	}
	return strings.Join(parts, ",")
}

// ParseMonths is the inverse of FormatMonths.
func ParseMonths(s string) (Bitset, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return MonthsAll, nil
	}
	var b Bitset
	for _, tok := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(tok))
		idx := indexOf(monthNames, name)
		if idx < 0 {
			return 0, fmt.Errorf("calendar: unknown month name %q", tok)
		}
		b = b.Set(uint(idx))
	}
	return b, nil
}

// FormatWeekdays renders the DaysOfWeek bitset as "*" or a
// comma-separated list of lowercase English weekday names, Monday=bit0.
func (b Bitset) FormatWeekdays() string {
	if b == DaysOfWeekAll {
		return "*"
	}
	var parts []string
	for d := uint(0); d <= 6; d++ {
		if b.IsSet(d) {
			parts = append(parts, weekdayNames[d])
		}
	}
	return strings.Join(parts, ",")
}

// ParseWeekdays is the inverse of FormatWeekdays.
func ParseWeekdays(s string) (Bitset, error) {
	s = strings.TrimSpace(s)
	if s == "*" || s == "" {
		return DaysOfWeekAll, nil
	}
	var b Bitset
	for _, tok := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(tok))
		idx := indexOf(weekdayNames, name)
		if idx < 0 {
			return 0, fmt.Errorf("calendar: unknown weekday name %q", tok)
		}
		b = b.Set(uint(idx))
	}
	return b, nil
}

// FormatTZOffset renders a signed minutes-east-of-UTC offset as
// "+HH:MM"/"-HH:MM", or "Z" for zero.
func FormatTZOffset(minutes int) string {
	if minutes == 0 {
		return "Z"
	}
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes/60, minutes%60)
}

// ParseTZOffset is the inverse of FormatTZOffset.
func ParseTZOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "Z" {
		return 0, nil
	}
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return 0, fmt.Errorf("calendar: invalid timezone offset %q", s)
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid timezone offset %q: %w", s, err)
	}
	mins, err := strconv.Atoi(s[4:6])
	if err != nil {
		return 0, fmt.Errorf("calendar: invalid timezone offset %q: %w", s, err)
	}
	total := hours*60 + mins
	if s[0] == '-' {
		total = -total
	}
	return total, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
