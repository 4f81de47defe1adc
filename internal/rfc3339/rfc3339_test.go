package rfc3339_test

import (
	"testing"
	"time"

	"github.com/lmapd/lmapd/internal/rfc3339"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUTCUsesZ(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-02T03:04:05Z", rfc3339.Format(ts))
}

func TestFormatWithOffset(t *testing.T) {
	loc := time.FixedZone("", 2*3600+30*60)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, loc)
	assert.Equal(t, "2024-01-02T03:04:05+02:30", rfc3339.Format(ts))
}

func TestParseRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	parsed, err := rfc3339.Parse(rfc3339.Format(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(parsed))
}

func TestCycleNumber(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "20240102.030405", rfc3339.CycleNumber(ts))
}
