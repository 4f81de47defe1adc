package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser understands six whitespace-separated fields: second minute
// hour day-of-month month day-of-week.
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextHint returns a coarse, non-authoritative wake-up instant strictly
// after "after", built by rendering the event's bitsets into a six-field
// cron expression and asking robfig/cron/v3 for its next occurrence.
// It exists purely so the Event Dispatcher can sleep past long gaps
// between plausible matches instead of ticking every second; a wrong
// hint can only make the Dispatcher wake early for nothing, since the
// final decision is always taken by Match against the real wall clock.
func NextHint(s Spec, after time.Time) (time.Time, bool) {
	expr, err := toCronExpr(s)
	if err != nil {
		return time.Time{}, false
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	loc := time.FixedZone("", s.TZOffsetMinutes*60)
	next := schedule.Next(after.In(loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.In(after.Location()), true
}

// toCronExpr renders the six bitsets as a standard cron field list
// ("0,5,10" style, or "*" for the all-ones sentinel). robfig/cron's
// day-of-week field uses Sunday=0, so LMAP's Monday=0 bit indexes are
// shifted by one when rendered, wrapping Sunday (LMAP bit 6) to cron's 0.
func toCronExpr(s Spec) (string, error) {
	seconds, err := simpleField("second", s.Seconds, 0, 59, SecondsAll)
	if err != nil {
		return "", err
	}
	minutes, err := simpleField("minute", s.Minutes, 0, 59, MinutesAll)
	if err != nil {
		return "", err
	}
	hours, err := simpleField("hour", s.Hours, 0, 23, HoursAll)
	if err != nil {
		return "", err
	}
	doms, err := simpleField("day-of-month", s.DaysOfMonth, 1, 31, DaysOfMonthAll)
	if err != nil {
		return "", err
	}
	months, err := monthField(s.Months)
	if err != nil {
		return "", err
	}
	dows, err := dayOfWeekField(s.DaysOfWeek)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{seconds, minutes, hours, doms, months, dows}, " "), nil
}

// simpleField renders fields whose cron value equals its bit index
// directly (seconds, minutes, hours, day-of-month).
func simpleField(name string, b Bitset, lo, hi uint, allOnes Bitset) (string, error) {
	if b == allOnes {
		return "*", nil
	}
	var values []string
	for bit := lo; bit <= hi; bit++ {
		if b.IsSet(bit) {
			values = append(values, fmt.Sprintf("%d", bit))
		}
	}
	if len(values) == 0 {
		return "", fmt.Errorf("calendar: empty %s field", name)
	}
	return strings.Join(values, ","), nil
}

// monthField renders the Months bitset, where bit (m-1) holds month m.
func monthField(b Bitset) (string, error) {
	if b == MonthsAll {
		return "*", nil
	}
	var values []string
	for month := uint(1); month <= 12; month++ {
		if b.IsSet(month - 1) {
			values = append(values, fmt.Sprintf("%d", month))
		}
	}
	if len(values) == 0 {
		return "", fmt.Errorf("calendar: empty month field")
	}
	return strings.Join(values, ","), nil
}

// dayOfWeekField renders the DaysOfWeek bitset (Monday=bit0..Sunday=bit6)
// into cron's Sunday=0..Saturday=6 value space.
func dayOfWeekField(b Bitset) (string, error) {
	if b == DaysOfWeekAll {
		return "*", nil
	}
	var values []string
	for bit := uint(0); bit <= 6; bit++ {
		if b.IsSet(bit) {
			values = append(values, fmt.Sprintf("%d", (bit+1)%7))
		}
	}
	if len(values) == 0 {
		return "", fmt.Errorf("calendar: empty day-of-week field")
	}
	return strings.Join(values, ","), nil
}
