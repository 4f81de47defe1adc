package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/workspace"
)

// newTestScheduler validates cfg, initialises a throwaway queue tree and
// pins the Scheduler's clock.
func newTestScheduler(t *testing.T, cfg *config.Configuration) *Scheduler {
	t.Helper()
	require.NoError(t, config.Validate(cfg))

	ws := workspace.New(t.TempDir())
	require.NoError(t, ws.Init(cfg))

	s := New(cfg, ws, t.TempDir())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }
	return s
}

func oneActionConfig(program string) *config.Configuration {
	duration := uint32(60)
	return &config.Configuration{
		Events: []*config.Event{
			{Name: "go", Kind: config.EventImmediate},
		},
		Tasks: []*config.Task{
			{Name: "t", Program: program},
		},
		Schedules: []*config.Schedule{
			{
				Name:            "s",
				StartEvent:      "go",
				DurationSeconds: &duration,
				Mode:            config.ModeSequential,
				Actions: []*config.Action{
					{Name: "a", TaskName: "t"},
				},
			},
		},
		Capability: config.Capability{Tasks: []string{program}},
	}
}

// reapNext blocks for the next child exit and runs the reaper pass for
// it on the test goroutine, standing in for the event loop.
func reapNext(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case ev := <-s.exits:
		s.reapOne(context.Background(), ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for child exit")
	}
}

func TestImmediateFireRunsActionToCompletion(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]
	a := sched.Actions[0]

	s.executeSchedules(context.Background(), "go", config.EventImmediate)

	assert.Equal(t, uint32(1), sched.CntInvocations)
	assert.Equal(t, config.ScheduleDisabled, sched.State)
	assert.Equal(t, uint32(1), a.CntInvocations)

	reapNext(t, s)

	assert.Equal(t, config.ActionEnabled, a.State)
	assert.Equal(t, 0, a.PID)
	assert.Equal(t, 0, a.LastStatus)
	assert.Equal(t, uint32(0), a.CntFailures)
	assert.Equal(t, uint32(0), sched.CntFailures)
	assert.Equal(t, config.ScheduleDisabled, sched.State)
}

func TestFailureCounting(t *testing.T) {
	cfg := oneActionConfig("/bin/false")
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]
	a := sched.Actions[0]

	for i := 0; i < 2; i++ {
		sched.State = config.ScheduleEnabled
		s.executeSchedules(context.Background(), "go", config.EventImmediate)
		reapNext(t, s)
	}

	assert.Equal(t, uint32(2), a.CntInvocations)
	assert.Equal(t, uint32(2), a.CntFailures)
	assert.Equal(t, 1, a.LastStatus)
	assert.Equal(t, 1, a.LastFailedStatus)
	assert.Equal(t, uint32(2), sched.CntFailures)
}

func TestSequentialChainWithSelfDestination(t *testing.T) {
	duration := uint32(60)
	cfg := &config.Configuration{
		Events: []*config.Event{
			{Name: "go", Kind: config.EventImmediate},
		},
		Tasks: []*config.Task{
			{Name: "produce", Program: "/bin/echo", Options: []config.TaskOption{{ID: "payload", Value: "x"}}},
			{Name: "consume", Program: "/bin/cat"},
		},
		Schedules: []*config.Schedule{
			{
				Name:            "s",
				StartEvent:      "go",
				DurationSeconds: &duration,
				Mode:            config.ModeSequential,
				Actions: []*config.Action{
					{Name: "a1", TaskName: "produce", Destinations: []string{"s"}},
					{Name: "a2", TaskName: "consume"},
				},
			},
		},
		Capability: config.Capability{Tasks: []string{"/bin/echo", "/bin/cat"}},
	}
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]

	s.executeSchedules(context.Background(), "go", config.EventImmediate)

	// Reap a1: its pair must land directly in the Schedule's processing
	// queue (self-destination bypasses _incoming) and a2 must have been
	// chained.
	reapNext(t, s)

	epoch := s.now().Unix()
	queueData := workspace.DataPath(s.ws.ScheduleDir("s"), epoch, "s", "a1")
	require.FileExists(t, queueData)
	payload, err := os.ReadFile(queueData)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(payload))

	incoming, err := os.ReadDir(s.ws.IncomingDir("s"))
	require.NoError(t, err)
	assert.Empty(t, incoming)

	a2 := sched.Actions[1]
	assert.Equal(t, uint32(1), a2.CntInvocations)

	reapNext(t, s)

	assert.Equal(t, uint32(1), sched.CntInvocations)
	assert.Equal(t, uint32(0), sched.CntFailures)
	// The fully successful run consumed the processing queue.
	assert.NoFileExists(t, queueData)
}

func TestSuppressedAndOverlapCounting(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	cfg.Events[0].Kind = config.EventPeriodic
	cfg.Events[0].IntervalSeconds = 60
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]

	sched.State = config.ScheduleSuppressed
	s.executeSchedules(context.Background(), "go", config.EventPeriodic)
	assert.Equal(t, uint32(1), sched.CntSuppressions)
	assert.Equal(t, uint32(0), sched.CntInvocations)

	sched.State = config.ScheduleRunning
	s.executeSchedules(context.Background(), "go", config.EventPeriodic)
	assert.Equal(t, uint32(1), sched.CntOverlaps)

	sched.State = config.ScheduleEnabled
	s.executeSchedules(context.Background(), "go", config.EventPeriodic)
	reapNext(t, s)

	// Invariant: invocations + suppressions + overlaps = start fires.
	total := sched.CntInvocations + sched.CntSuppressions + sched.CntOverlaps
	assert.Equal(t, uint32(3), total)
}

func TestAllowlistMissSkipsLaunch(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	cfg.Capability.Tasks = nil
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]
	a := sched.Actions[0]

	s.executeSchedules(context.Background(), "go", config.EventImmediate)

	assert.Equal(t, uint32(1), sched.CntInvocations)
	assert.Equal(t, uint32(0), a.CntInvocations)
	assert.Equal(t, 0, a.PID)
	// With nothing launched the Schedule settles immediately.
	assert.Equal(t, config.ScheduleDisabled, sched.State)
}

func TestDisabledScheduleIgnoresFires(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]
	sched.State = config.ScheduleDisabled

	s.executeSchedules(context.Background(), "go", config.EventImmediate)

	assert.Equal(t, uint32(0), sched.CntInvocations)
	assert.Equal(t, uint32(0), sched.CntSuppressions)
}

func TestReapUnknownPidIgnored(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	s := newTestScheduler(t, cfg)

	s.reapOne(context.Background(), exitEvent{pid: 999999, status: 0})

	assert.Equal(t, uint32(0), cfg.Schedules[0].Actions[0].CntFailures)
}

func TestBuildArgvOrdersTaskThenActionOptions(t *testing.T) {
	task := &config.Task{
		Name:    "t",
		Program: "/bin/prog",
		Options: []config.TaskOption{
			{ID: "1", Name: "-i", Value: "eth0"},
			{ID: "2", Name: "-v"},
		},
	}
	a := &config.Action{
		Options: []config.TaskOption{{ID: "3", Value: "example.net"}},
	}

	argv := buildArgv(task.Program, task, a)
	assert.Equal(t, []string{"/bin/prog", "-i", "eth0", "-v", "example.net"}, argv)
}

func TestCycleNumberBucketsNow(t *testing.T) {
	cfg := oneActionConfig("/bin/true")
	cfg.Events[0].Kind = config.EventPeriodic
	cfg.Events[0].IntervalSeconds = 60
	cfg.Events[0].CycleInterval = 300
	s := newTestScheduler(t, cfg)
	sched := cfg.Schedules[0]

	s.executeSchedules(context.Background(), "go", config.EventPeriodic)
	reapNext(t, s)

	now := s.now().Unix()
	assert.Equal(t, (now/300)*300, sched.CycleNumber)
}

func TestReferencedEvents(t *testing.T) {
	cfg := &config.Configuration{
		Schedules: []*config.Schedule{
			{Name: "s", StartEvent: "a", EndEvent: "b"},
		},
		Suppressions: []*config.Suppression{
			{Name: "p", StartEvent: "c"},
		},
	}
	ref := referencedEvents(cfg)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ref)
}

func TestArtefactHandOffToDestinationSchedule(t *testing.T) {
	duration := uint32(60)
	cfg := &config.Configuration{
		Events: []*config.Event{
			{Name: "go-src", Kind: config.EventImmediate},
			{Name: "go-dst", Kind: config.EventImmediate},
		},
		Tasks: []*config.Task{
			{Name: "collect", Program: "/bin/echo", Options: []config.TaskOption{{ID: "payload", Value: "42"}}},
		},
		Schedules: []*config.Schedule{
			{
				Name:            "src",
				StartEvent:      "go-src",
				DurationSeconds: &duration,
				Mode:            config.ModeSequential,
				Actions: []*config.Action{
					{Name: "collect", TaskName: "collect", Destinations: []string{"dst"}},
				},
			},
			{
				Name:            "dst",
				StartEvent:      "go-dst",
				DurationSeconds: &duration,
				Mode:            config.ModeSequential,
			},
		},
		Capability: config.Capability{Tasks: []string{"/bin/echo"}},
	}
	s := newTestScheduler(t, cfg)

	s.executeSchedules(context.Background(), "go-src", config.EventImmediate)
	reapNext(t, s)

	// After the producing reap the pair is staged in dst's _incoming.
	epoch := s.now().Unix()
	staged := workspace.DataPath(s.ws.IncomingDir("dst"), epoch, "src", "collect")
	require.FileExists(t, staged)

	// dst's own start-fire promotes the pair into its processing queue.
	s.executeSchedules(context.Background(), "go-dst", config.EventImmediate)
	promoted := workspace.DataPath(s.ws.ScheduleDir("dst"), epoch, "src", "collect")
	require.FileExists(t, promoted)
	assert.NoFileExists(t, staged)

	// The sealed sidecar reads back with the producer's identity.
	invs, err := workspace.ReadResults(s.ws.Root)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	sc := invs[0].Meta
	assert.Equal(t, "src", sc.Schedule)
	assert.Equal(t, "collect", sc.Action)
	assert.Equal(t, "collect", sc.Task)
	assert.True(t, sc.HasEnd)
	assert.Equal(t, 0, sc.Status)
}
