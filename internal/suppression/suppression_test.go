package suppression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/tags"
)

func TestGlobMatch(t *testing.T) {
	assert.True(t, GlobMatch("red", "red"))
	assert.True(t, GlobMatch("re?", "red"))
	assert.True(t, GlobMatch("r*", "red"))
	assert.True(t, GlobMatch("[rs]ed", "red"))
	assert.False(t, GlobMatch("red", "Red"))
	assert.False(t, GlobMatch("blue", "red"))
}

func testConfig() *config.Configuration {
	return &config.Configuration{
		Schedules: []*config.Schedule{
			{
				Name:            "s1",
				State:           config.ScheduleEnabled,
				SuppressionTags: tags.New("red"),
				Actions: []*config.Action{
					{Name: "a1", State: config.ActionEnabled, SuppressionTags: tags.New("red")},
					{Name: "a2", State: config.ActionEnabled, SuppressionTags: tags.New("blue")},
				},
			},
			{
				Name:            "s2",
				State:           config.ScheduleEnabled,
				SuppressionTags: tags.New("blue"),
			},
		},
		Suppressions: []*config.Suppression{
			{
				Name:          "p",
				StartEvent:    "sup-on",
				EndEvent:      "sup-off",
				MatchPatterns: []string{"red"},
				State:         config.SuppressionEnabled,
			},
		},
	}
}

func TestActivateDeactivateRoundTrip(t *testing.T) {
	cfg := testConfig()
	e := New(cfg, nil)
	ctx := context.Background()

	e.HandleFire(ctx, "sup-on")

	p := cfg.Suppressions[0]
	s1, s2 := cfg.Schedules[0], cfg.Schedules[1]
	assert.Equal(t, config.SuppressionActive, p.State)
	assert.Equal(t, config.ScheduleSuppressed, s1.State)
	assert.Equal(t, 1, s1.ActiveSuppressions)
	assert.Equal(t, config.ActionSuppressed, s1.Actions[0].State)
	assert.Equal(t, config.ActionEnabled, s1.Actions[1].State)
	assert.Equal(t, config.ScheduleEnabled, s2.State)
	assert.Equal(t, 0, s2.ActiveSuppressions)

	e.HandleFire(ctx, "sup-off")

	assert.Equal(t, config.SuppressionEnabled, p.State)
	assert.Equal(t, config.ScheduleEnabled, s1.State)
	assert.Equal(t, 0, s1.ActiveSuppressions)
	assert.Equal(t, config.ActionEnabled, s1.Actions[0].State)
}

func TestOverlappingSuppressionsCompose(t *testing.T) {
	cfg := testConfig()
	cfg.Suppressions = append(cfg.Suppressions, &config.Suppression{
		Name:          "q",
		StartEvent:    "q-on",
		EndEvent:      "q-off",
		MatchPatterns: []string{"r*"},
		State:         config.SuppressionEnabled,
	})
	e := New(cfg, nil)
	ctx := context.Background()
	s1 := cfg.Schedules[0]

	e.HandleFire(ctx, "sup-on")
	e.HandleFire(ctx, "q-on")
	assert.Equal(t, 2, s1.ActiveSuppressions)
	assert.Equal(t, config.ScheduleSuppressed, s1.State)

	// Releasing only one of the two keeps the entity suppressed.
	e.HandleFire(ctx, "sup-off")
	assert.Equal(t, 1, s1.ActiveSuppressions)
	assert.Equal(t, config.ScheduleSuppressed, s1.State)

	e.HandleFire(ctx, "q-off")
	assert.Equal(t, 0, s1.ActiveSuppressions)
	assert.Equal(t, config.ScheduleEnabled, s1.State)
}

func TestStopRunningKillsMatchingActions(t *testing.T) {
	cfg := testConfig()
	cfg.Suppressions[0].StopRunning = true
	s1 := cfg.Schedules[0]
	s1.Actions[0].State = config.ActionRunning
	s1.Actions[0].PID = 4242

	var killed []string
	e := New(cfg, func(ctx context.Context, s *config.Schedule, a *config.Action) {
		killed = append(killed, s.Name+"/"+a.Name)
	})

	e.HandleFire(context.Background(), "sup-on")

	require.Len(t, killed, 1)
	assert.Equal(t, "s1/a1", killed[0])
	assert.True(t, s1.StopRunning)

	e.HandleFire(context.Background(), "sup-off")
	assert.False(t, s1.StopRunning)
}

func TestWrongStateFireIsIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Suppressions[0].State = config.SuppressionDisabled
	e := New(cfg, nil)

	e.HandleFire(context.Background(), "sup-on")

	assert.Equal(t, config.SuppressionDisabled, cfg.Suppressions[0].State)
	assert.Equal(t, config.ScheduleEnabled, cfg.Schedules[0].State)

	// An end fire while not active is likewise ignored.
	cfg.Suppressions[0].State = config.SuppressionEnabled
	e.HandleFire(context.Background(), "sup-off")
	assert.Equal(t, config.SuppressionEnabled, cfg.Suppressions[0].State)
}
