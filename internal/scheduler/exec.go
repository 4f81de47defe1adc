package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/lmapd/lmapd/internal/build"
	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/rfc3339"
	"github.com/lmapd/lmapd/internal/tags"
	"github.com/lmapd/lmapd/internal/workspace/meta"
)

// maxArgs caps a launched program's argv length.
const maxArgs = 252

// executeSchedules walks every Schedule once per fire, handling a start
// match before an end match so a Schedule whose start and end share an
// Event still gets its invocation before being killed.
func (s *Scheduler) executeSchedules(ctx context.Context, eventName string, kind config.EventKind) {
	for _, sched := range s.cfg.Schedules {
		if sched.State == config.ScheduleDisabled || sched.Name == "" {
			continue
		}
		if sched.StartEvent == eventName {
			s.startSchedule(ctx, sched, kind)
		}
		if sched.EndEvent == eventName {
			s.killSchedule(sched)
		}
	}
}

func (s *Scheduler) startSchedule(ctx context.Context, sched *config.Schedule, kind config.EventKind) {
	switch sched.State {
	case config.ScheduleSuppressed:
		sched.CntSuppressions++
	case config.ScheduleRunning:
		sched.CntOverlaps++
		logger.Warn(ctx, "schedule fired while still running",
			"schedule", sched.Name, "overlaps", sched.CntOverlaps)
	default:
		s.launchSchedule(ctx, sched)
	}

	// One-off, immediate and startup events fire exactly once, so the
	// Schedule they drive is done after this fire.
	switch kind {
	case config.EventOneOff, config.EventImmediate, config.EventStartup:
		sched.State = config.ScheduleDisabled
	}
}

func (s *Scheduler) launchSchedule(ctx context.Context, sched *config.Schedule) {
	now := s.now()

	sched.CycleNumber = 0
	if ev := sched.StartEventRef(); ev != nil && ev.CycleInterval != 0 {
		sched.CycleNumber = (now.Unix() / ev.CycleInterval) * ev.CycleInterval
	}

	if err := s.ws.ScheduleMove(sched.Name); err != nil {
		logger.Warn(ctx, "incoming promotion failed", "schedule", sched.Name, "err", err)
	}

	sched.LastInvocation = now
	sched.CntInvocations++
	sched.State = config.ScheduleRunning

	switch sched.Mode {
	case config.ModeSequential:
		if len(sched.Actions) > 0 {
			s.launchAction(ctx, sched, sched.Actions[0])
		}
	case config.ModeParallel:
		for _, a := range sched.Actions {
			s.launchAction(ctx, sched, a)
		}
	case config.ModePipelined:
		// Unreachable: validation disables pipelined Schedules.
	}

	if d := sched.DurationSeconds; d != nil && *d > 0 {
		time.AfterFunc(time.Duration(*d)*time.Second, func() {
			s.enqueue(func() { s.killSchedule(sched) })
		})
	}

	// No child actually started (all disabled, all launch failures):
	// settle the Schedule's state immediately, the reaper will never
	// run for this invocation.
	if !s.anyRunning(sched) {
		s.reconcileSchedule(ctx, sched)
	}
}

func (s *Scheduler) anyRunning(sched *config.Schedule) bool {
	for _, a := range sched.Actions {
		if a.State == config.ActionRunning {
			return true
		}
	}
	return false
}

// buildArgv builds the child's argument vector: the program, then every
// task option's name and value, then every action option's name and
// value, skipping unset parts.
func buildArgv(program string, task *config.Task, a *config.Action) []string {
	argv := []string{program}
	for _, opts := range [][]config.TaskOption{task.Options, a.Options} {
		for _, o := range opts {
			if o.Name != "" {
				argv = append(argv, o.Name)
			}
			if o.Value != "" {
				argv = append(argv, o.Value)
			}
		}
	}
	return argv
}

// metaOptions renders task options then action options as meta triples.
func metaOptions(task *config.Task, a *config.Action) []meta.Option {
	var out []meta.Option
	for _, opts := range [][]config.TaskOption{task.Options, a.Options} {
		for _, o := range opts {
			out = append(out, meta.Option{ID: o.ID, Name: o.Name, Value: o.Value})
		}
	}
	return out
}

// launchAction runs one Action of sched: meta-start sealed, stdout
// redirected into the ".data" artefact, working directory the Action's
// private workspace.
func (s *Scheduler) launchAction(ctx context.Context, sched *config.Schedule, a *config.Action) {
	task := a.Task()
	switch {
	case a.Name == "" || task == nil:
		logger.Error(ctx, "action without name or task, not launching",
			"schedule", sched.Name, "action", a.Name)
		return
	case task.Program == "":
		logger.Error(ctx, "task without program, not launching",
			"schedule", sched.Name, "action", a.Name, "task", task.Name)
		return
	case !s.cfg.Capability.Allows(task.Program):
		logger.Error(ctx, "program not in capability allow-list, not launching",
			"schedule", sched.Name, "action", a.Name, "program", task.Program)
		return
	case a.PID != 0:
		a.CntOverlaps++
		logger.Warn(ctx, "action still running, not launching",
			"schedule", sched.Name, "action", a.Name, "pid", a.PID)
		return
	}

	switch a.State {
	case config.ActionSuppressed:
		a.CntSuppressions++
		return
	case config.ActionDisabled:
		return
	}

	argv := buildArgv(task.Program, task, a)
	if len(argv) > maxArgs {
		logger.Error(ctx, "argument list too long, not launching",
			"schedule", sched.Name, "action", a.Name, "args", len(argv))
		return
	}

	now := s.now()
	a.LastInvocation = now
	epoch := now.Unix()

	if err := s.writeMetaStart(sched, a, task, epoch); err != nil {
		logger.Error(ctx, "meta sidecar write failed, not launching",
			"schedule", sched.Name, "action", a.Name, "err", err)
		return
	}

	dataFile, err := s.ws.OpenData(sched.Name, a.Name, epoch, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		logger.Error(ctx, "data artefact open failed, not launching",
			"schedule", sched.Name, "action", a.Name, "err", err)
		return
	}
	defer dataFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = s.ws.ActionDir(sched.Name, a.Name)
	cmd.Stdout = dataFile
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		logger.Error(ctx, "action spawn failed",
			"schedule", sched.Name, "action", a.Name, "program", task.Program, "err", err)
		return
	}

	a.PID = cmd.Process.Pid
	a.State = config.ActionRunning
	a.CntInvocations++
	s.running[a.PID] = actionRef{schedule: sched, action: a}

	logger.Info(ctx, "action launched",
		"schedule", sched.Name, "action", a.Name, "pid", a.PID, "program", task.Program)

	s.waiters.Add(1)
	go func(pid int) {
		defer s.waiters.Done()
		s.exits <- exitEvent{pid: pid, status: waitStatus(cmd.Wait())}
	}(a.PID)
}

// waitStatus folds cmd.Wait's error into the reaper's status
// convention: exit code for a normal exit, negated signal number for a
// signal death, -1 for anything unresolvable.
func waitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return -int(ws.Signal())
		}
		return ws.ExitStatus()
	}
	return exitErr.ExitCode()
}

func (s *Scheduler) writeMetaStart(sched *config.Schedule, a *config.Action, task *config.Task, epoch int64) error {
	f, err := s.ws.OpenMeta(sched.Name, a.Name, epoch, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
	if err != nil {
		return err
	}
	defer f.Close()

	cycle := ""
	if sched.CycleNumber != 0 {
		cycle = rfc3339.CycleNumber(time.Unix(sched.CycleNumber, 0))
	}

	return meta.WriteStart(f, meta.StartFields{
		Magic:       build.AppName + " " + build.Version,
		Schedule:    sched.Name,
		Action:      a.Name,
		Task:        task.Name,
		Options:     metaOptions(task, a),
		Tags:        tags.Concat(task.Tags, sched.Tags, a.Tags).Values(),
		Event:       sched.LastInvocation,
		Start:       a.LastInvocation,
		CycleNumber: cycle,
	})
}
