package scheduler

import (
	"context"
	"os"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/workspace/meta"
)

// reapOne processes one exited child on the event-loop goroutine:
// bookkeeping, meta-end sealing, artefact hand-off, sequential
// continuation and Schedule reconciliation.
func (s *Scheduler) reapOne(ctx context.Context, ev exitEvent) {
	ref, ok := s.running[ev.pid]
	if !ok {
		logger.Warn(ctx, "reaped unknown pid, ignoring", "pid", ev.pid)
		return
	}
	delete(s.running, ev.pid)

	sched, a := ref.schedule, ref.action
	now := s.now()
	epoch := a.LastInvocation.Unix()

	a.PID = 0
	a.State = config.ActionEnabled
	if a.ActiveSuppressions > 0 {
		a.State = config.ActionSuppressed
	}
	a.LastCompletion = now
	a.LastStatus = ev.status
	if ev.status != 0 {
		a.LastFailedCompletion = a.LastCompletion
		a.LastFailedStatus = a.LastStatus
		a.CntFailures++
	}

	logger.Info(ctx, "action completed",
		"schedule", sched.Name, "action", a.Name, "pid", ev.pid, "status", ev.status)

	if err := s.writeMetaEnd(sched, a, epoch); err != nil {
		logger.Warn(ctx, "meta end record failed",
			"schedule", sched.Name, "action", a.Name, "err", err)
	}

	// Only successful invocations feed their destinations.
	if ev.status == 0 {
		for _, dest := range a.Destinations {
			if s.cfg.ScheduleByName(dest) == nil {
				logger.Warn(ctx, "destination does not resolve, dropping artefacts",
					"schedule", sched.Name, "action", a.Name, "destination", dest)
				continue
			}
			if err := s.ws.ActionMove(sched.Name, a.Name, dest, epoch); err != nil {
				logger.Warn(ctx, "artefact hand-off failed",
					"schedule", sched.Name, "action", a.Name, "destination", dest, "err", err)
			}
		}
	}

	if err := s.ws.ActionClean(sched.Name, a.Name); err != nil {
		logger.Warn(ctx, "action workspace clean failed",
			"schedule", sched.Name, "action", a.Name, "err", err)
	}

	if sched.Mode == config.ModeSequential &&
		sched.State != config.ScheduleSuppressed && !sched.StopRunning {
		if next := nextAction(sched, a); next != nil {
			s.launchAction(ctx, sched, next)
		}
	}

	s.reconcileSchedule(ctx, sched)
}

func (s *Scheduler) writeMetaEnd(sched *config.Schedule, a *config.Action, epoch int64) error {
	f, err := s.ws.OpenMeta(sched.Name, a.Name, epoch, os.O_WRONLY|os.O_APPEND)
	if err != nil {
		return err
	}
	defer f.Close()
	return meta.WriteEnd(f, a.LastCompletion, a.LastStatus)
}

// nextAction returns the Action declared after a in sched, or nil when
// a is the last one.
func nextAction(sched *config.Schedule, a *config.Action) *config.Action {
	for i, cur := range sched.Actions {
		if cur == a {
			if i+1 < len(sched.Actions) {
				return sched.Actions[i+1]
			}
			return nil
		}
	}
	return nil
}

// reconcileSchedule settles a Schedule's state once no Action of the
// current invocation is left running: back to enabled (or suppressed),
// failure counting, and input-queue consumption on full success.
func (s *Scheduler) reconcileSchedule(ctx context.Context, sched *config.Schedule) {
	if s.anyRunning(sched) {
		return
	}

	if sched.State == config.ScheduleRunning {
		sched.State = config.ScheduleEnabled
		if sched.ActiveSuppressions > 0 {
			sched.State = config.ScheduleSuppressed
		}
	}

	anyFailed, anySucceeded := false, false
	for _, a := range sched.Actions {
		if a.LastCompletion.IsZero() || a.LastCompletion.Before(sched.LastInvocation) {
			continue // did not take part in this invocation
		}
		if a.LastStatus != 0 {
			anyFailed = true
		} else {
			anySucceeded = true
		}
	}

	switch {
	case anyFailed:
		sched.CntFailures++
	case anySucceeded:
		if err := s.ws.ScheduleClean(sched.Name); err != nil {
			logger.Warn(ctx, "schedule queue clean failed",
				"schedule", sched.Name, "err", err)
		}
	}
}
