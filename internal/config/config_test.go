package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmapd/lmapd/internal/calendar"
	"github.com/lmapd/lmapd/internal/tags"
)

func sampleConfig() *Configuration {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Configuration{
		Agent: Agent{AgentID: "agent-1", ControllerTimeout: DefaultControllerTimeout},
		Events: []*Event{
			{Name: "immediate-go", Kind: EventImmediate},
			{Name: "once", Kind: EventOneOff, Start: &start},
			{
				Name: "every-minute-5",
				Kind: EventCalendar,
				Calendar: calendar.Spec{
					Months:      calendar.MonthsAll,
					DaysOfMonth: calendar.DaysOfMonthAll,
					DaysOfWeek:  calendar.DaysOfWeekAll,
					Hours:       calendar.HoursAll,
					Minutes:     calendar.Bitset(0).Set(5),
					Seconds:     calendar.Bitset(0).Set(0),
				},
			},
		},
		Tasks: []*Task{
			{Name: "ping", Program: "/bin/true", Tags: tags.New("net")},
		},
		Schedules: []*Schedule{
			{
				Name:       "s1",
				StartEvent: "immediate-go",
				EndEvent:   "",
				Mode:       ModeSequential,
				Actions: []*Action{
					{Name: "a1", TaskName: "ping"},
				},
			},
		},
		Capability: Capability{Version: "1.0", Tasks: []string{"/bin/true"}},
	}
}

func TestValidateResolvesReferences(t *testing.T) {
	cfg := sampleConfig()
	require.NoError(t, Validate(cfg))

	s := cfg.ScheduleByName("s1")
	require.NotNil(t, s)
	assert.Same(t, cfg.EventByName("immediate-go"), s.StartEventRef())

	a := s.ActionByName("a1")
	require.NotNil(t, a)
	assert.Same(t, cfg.TaskByName("ping"), a.Task())
}

func TestValidateRejectsUnresolvedReferences(t *testing.T) {
	cfg := sampleConfig()
	cfg.Schedules[0].StartEvent = "does-not-exist"
	err := Validate(cfg)
	require.Error(t, err)
	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.NotEmpty(t, verr.Problems)
}

func TestValidateEndXorDuration(t *testing.T) {
	cfg := sampleConfig()
	dur := uint32(30)
	cfg.Schedules[0].EndEvent = "once"
	cfg.Schedules[0].DurationSeconds = &dur
	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidatePipelinedDisabledAtStartup(t *testing.T) {
	cfg := sampleConfig()
	cfg.Schedules[0].Mode = ModePipelined
	require.NoError(t, Validate(cfg))
	assert.Equal(t, ScheduleDisabled, cfg.Schedules[0].State)
}

func TestXMLRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	require.NoError(t, Validate(cfg))

	out, err := RenderXML(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "urn:ietf:params:xml:ns:yang:ietf-lmap-control")

	parsed, err := ParseXML(out)
	require.NoError(t, err)
	require.NoError(t, Validate(parsed))

	assert.Equal(t, cfg.Agent.AgentID, parsed.Agent.AgentID)
	assert.Equal(t, len(cfg.Schedules), len(parsed.Schedules))
	assert.Equal(t, cfg.Schedules[0].Actions[0].TaskName, parsed.Schedules[0].Actions[0].TaskName)

	calEvt := parsed.EventByName("every-minute-5")
	require.NotNil(t, calEvt)
	assert.Equal(t, calendar.MonthsAll, calEvt.Calendar.Months)
	assert.True(t, calEvt.Calendar.Minutes.IsSet(5))
}

func TestJSONRoundTrip(t *testing.T) {
	cfg := sampleConfig()
	require.NoError(t, Validate(cfg))

	out, err := RenderJSON(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "ietf-lmap-control")

	parsed, err := ParseJSON(out)
	require.NoError(t, err)
	require.NoError(t, Validate(parsed))
	assert.Equal(t, cfg.Agent.AgentID, parsed.Agent.AgentID)
}

func TestLoadMergesDirectoryFragments(t *testing.T) {
	dir := t.TempDir()

	frag1 := `<?xml version="1.0"?>
<lmapc:lmap xmlns:lmapc="urn:ietf:params:xml:ns:yang:ietf-lmap-control">
  <agent><agent-id>agent-x</agent-id></agent>
  <task name="ping"><program>/bin/true</program></task>
</lmapc:lmap>`

	frag2 := `<?xml version="1.0"?>
<lmapc:lmap xmlns:lmapc="urn:ietf:params:xml:ns:yang:ietf-lmap-control">
  <agent><agent-id></agent-id></agent>
  <event name="go"><kind>immediate</kind></event>
  <schedule name="s1">
    <start>go</start>
    <execution-mode>sequential</execution-mode>
    <action name="a1"><task>ping</task></action>
  </schedule>
</lmapc:lmap>`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "01-base.xml"), []byte(frag1), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02-schedule.xml"), []byte(frag2), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "agent-x", cfg.Agent.AgentID)
	assert.Len(t, cfg.Tasks, 1)
	assert.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "ping", cfg.Schedules[0].Actions[0].TaskName)
}

func TestLooksLikeJSON(t *testing.T) {
	assert.True(t, looksLikeJSON([]byte("  \n{\"a\":1}")))
	assert.False(t, looksLikeJSON([]byte("  <xml/>")))
}
