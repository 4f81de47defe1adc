package calendar_test

import (
	"testing"
	"time"

	"github.com/lmapd/lmapd/internal/calendar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allOnesSpec() calendar.Spec {
	return calendar.Spec{
		Months:      calendar.MonthsAll,
		DaysOfMonth: calendar.DaysOfMonthAll,
		DaysOfWeek:  calendar.DaysOfWeekAll,
		Hours:       calendar.HoursAll,
		Minutes:     calendar.MinutesAll,
		Seconds:     calendar.SecondsAll,
	}
}

func TestMatchAllOnesSecondZeroFiresOncePerMinute(t *testing.T) {
	s := allOnesSpec()
	s.Seconds = calendar.Bitset(0).Set(0)

	atZero := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	result := calendar.Match(s, atZero)
	assert.Equal(t, calendar.Matched, result.Verdict)

	atOne := time.Date(2024, 1, 1, 0, 5, 1, 0, time.UTC)
	result = calendar.Match(s, atOne)
	assert.Equal(t, calendar.Wait, result.Verdict)
	assert.Equal(t, 1, result.WaitSeconds)
}

func TestMatchCalendarAtMinuteBoundary(t *testing.T) {
	s := allOnesSpec()
	s.Minutes = calendar.Bitset(0).Set(5)
	s.Seconds = calendar.Bitset(0).Set(0)

	before := time.Date(2024, 1, 1, 0, 4, 30, 0, time.UTC)
	assert.Equal(t, calendar.Wait, calendar.Match(s, before).Verdict)

	at := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, calendar.Matched, calendar.Match(s, at).Verdict)
}

func TestMatchCoarseFieldMismatchIsNoMatch(t *testing.T) {
	s := allOnesSpec()
	s.Months = calendar.Bitset(0).Set(5) // June only (bit index 5)

	jan := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, calendar.NoMatch, calendar.Match(s, jan).Verdict)
}

func TestMatchDayOfWeekConversion(t *testing.T) {
	s := allOnesSpec()
	// Only Monday (LMAP bit 0).
	s.DaysOfWeek = calendar.Bitset(0).Set(0)

	monday := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) // 2024-01-01 is a Monday
	assert.Equal(t, calendar.Matched, calendar.Match(s, monday).Verdict)

	tuesday := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, calendar.NoMatch, calendar.Match(s, tuesday).Verdict)
}

func TestMatchHonoursTimezoneOffset(t *testing.T) {
	s := allOnesSpec()
	s.Hours = calendar.Bitset(0).Set(23)
	s.TZOffsetMinutes = 60 // UTC+1

	// 23:00 UTC+1 is 22:00 UTC.
	instant := time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, calendar.Matched, calendar.Match(s, instant).Verdict)
}

func TestValidateRejectsEmptyBitset(t *testing.T) {
	s := allOnesSpec()
	s.Seconds = 0
	require.Error(t, calendar.Validate(s))
}

func TestValidateRejectsDayOfMonthBitZero(t *testing.T) {
	s := allOnesSpec()
	s.DaysOfMonth = calendar.Bitset(0).Set(0).Set(15)
	require.Error(t, calendar.Validate(s))
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	require.NoError(t, calendar.Validate(allOnesSpec()))
}

func TestNextHintFindsFiveMinutePastHour(t *testing.T) {
	s := allOnesSpec()
	s.Minutes = calendar.Bitset(0).Set(5)
	s.Seconds = calendar.Bitset(0).Set(0)

	after := time.Date(2024, 1, 1, 0, 4, 30, 0, time.UTC)
	next, ok := calendar.NextHint(s, after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC), next)
}
