// Package scheduler implements the central state machine of the
// measurement agent: it reacts to Event fires from the Dispatcher,
// launches Actions in their Schedule's execution mode, reaps exited
// measurement programs, seals meta sidecars, moves artefacts to their
// destination Schedules, and maintains every runtime counter.
//
// All mutation of Schedule/Action runtime fields happens on one
// event-loop goroutine; child processes share nothing with the daemon
// except the ".data" file their stdout is redirected to and their exit
// status.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/dispatch"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/suppression"
	"github.com/lmapd/lmapd/internal/workspace"
)

// actionRef resolves a reaped pid back to its owning (Schedule, Action)
// pair.
type actionRef struct {
	schedule *config.Schedule
	action   *config.Action
}

// exitEvent is one child's termination, delivered from its waiter
// goroutine to the event loop. Status is the exit code for a normal
// exit and the negated signal number for a signal death.
type exitEvent struct {
	pid    int
	status int
}

// Scheduler drives one Configuration until stopped or restarted.
type Scheduler struct {
	cfg    *config.Configuration
	ws     *workspace.Manager
	sup    *suppression.Engine
	disp   *dispatch.Dispatcher
	runDir string

	requests chan func()
	exits    chan exitEvent
	running  map[int]actionRef

	cancel   context.CancelFunc
	loopDone chan struct{}
	waiters  sync.WaitGroup

	mu      sync.Mutex
	restart bool
	stopped bool

	nowFunc func() time.Time
}

// New builds a Scheduler over a validated Configuration. ws must
// already point at the queue root; runDir holds the pid and status
// files.
func New(cfg *config.Configuration, ws *workspace.Manager, runDir string) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		ws:       ws,
		runDir:   runDir,
		requests: make(chan func(), 256),
		exits:    make(chan exitEvent, 1024),
		running:  make(map[int]actionRef),
		loopDone: make(chan struct{}),
		nowFunc:  time.Now,
	}
	s.sup = suppression.New(cfg, s.killOne)
	s.disp = dispatch.New(s.onFire)
	return s
}

func (s *Scheduler) now() time.Time { return s.nowFunc() }

// referencedEvents collects the names of every Event some Schedule or
// Suppression references, so the Dispatcher can log and skip orphans.
func referencedEvents(cfg *config.Configuration) map[string]bool {
	ref := make(map[string]bool)
	for _, sched := range cfg.Schedules {
		if sched.StartEvent != "" {
			ref[sched.StartEvent] = true
		}
		if sched.EndEvent != "" {
			ref[sched.EndEvent] = true
		}
	}
	for _, p := range cfg.Suppressions {
		if p.StartEvent != "" {
			ref[p.StartEvent] = true
		}
		if p.EndEvent != "" {
			ref[p.EndEvent] = true
		}
	}
	return ref
}

// Run initialises the event loop, arms every Event timer, and runs
// until Stop or Restart breaks the loop (or ctx is canceled). It
// returns true when the caller should reload the configuration and run
// again (SIGHUP restart), false for a final shutdown.
func (s *Scheduler) Run(ctx context.Context) bool {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.cfg.Agent.LastStarted = s.now()

	s.disp.Arm(loopCtx, s.cfg, referencedEvents(s.cfg))
	go s.disp.Run(loopCtx)

	logger.Info(ctx, "scheduler running",
		"schedules", len(s.cfg.Schedules), "events", len(s.cfg.Events))

loop:
	for {
		select {
		case <-loopCtx.Done():
			break loop
		case req := <-s.requests:
			req()
		case ev := <-s.exits:
			s.reapOne(loopCtx, ev)
		}
	}

	// Reap any stragglers killed during shutdown so their meta
	// sidecars get an end record.
	s.drainExits(ctx)
	s.waiters.Wait()
	s.drainExits(ctx)

	close(s.loopDone)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restart
}

func (s *Scheduler) drainExits(ctx context.Context) {
	for {
		select {
		case ev := <-s.exits:
			s.reapOne(ctx, ev)
		default:
			return
		}
	}
}

// enqueue hands fn to the event loop. Requests arriving after the loop
// has stopped are dropped; every mutation path goes through here so
// nothing races the shutdown.
func (s *Scheduler) enqueue(fn func()) {
	select {
	case <-s.loopDone:
	case s.requests <- fn:
	}
}

// onFire is the Dispatcher's fire callback: both the Suppression Engine
// and the Schedule executor run on the event-loop goroutine.
func (s *Scheduler) onFire(ctx context.Context, eventName string, kind config.EventKind) {
	s.enqueue(func() {
		logger.Debug(ctx, "event fired", "event", eventName, "kind", kind)
		s.sup.HandleFire(ctx, eventName)
		s.executeSchedules(ctx, eventName, kind)
	})
}

// Stop clears the restart flag, terminates every running Action, and
// breaks the event loop.
func (s *Scheduler) Stop() {
	s.shutdown(false)
}

// Restart sets the restart flag, terminates every running Action, and
// breaks the event loop so the daemon shell can reload the
// configuration and call Run again.
func (s *Scheduler) Restart() {
	s.shutdown(true)
}

func (s *Scheduler) shutdown(restart bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.restart = restart
	s.mu.Unlock()

	s.enqueue(func() {
		s.killAll()
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Reap nudges the event loop; child exits are delivered through the
// exits channel by per-child waiter goroutines, so the SIGCHLD path
// only needs a wakeup, never a waitpid of its own.
func (s *Scheduler) Reap() {
	s.enqueue(func() {})
}

// DumpState schedules a workspace-update and a state-XML render,
// atomically replacing <run>/status. The render happens on the loop
// goroutine, never in a signal handler.
func (s *Scheduler) DumpState() {
	s.enqueue(func() {
		ctx := context.Background()
		if err := s.ws.UpdateStorage(s.cfg); err != nil {
			logger.Warn(ctx, "workspace storage update failed", "err", err)
		}
		if err := s.writeStatusFile(); err != nil {
			logger.Error(ctx, "status dump failed", "err", err)
		}
	})
}

func (s *Scheduler) writeStatusFile() error {
	doc, err := config.RenderStateXML(s.cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(s.runDir, "status")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return fmt.Errorf("scheduler: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("scheduler: rename %s: %w", tmp, err)
	}
	return nil
}

// WipeWorkspace cleans every queue directory and re-creates the tree,
// preserving the configuration.
func (s *Scheduler) WipeWorkspace() {
	s.enqueue(func() {
		ctx := context.Background()
		if err := s.ws.CleanAll(s.cfg); err != nil {
			logger.Warn(ctx, "workspace clean failed", "err", err)
		}
		if err := s.ws.Init(s.cfg); err != nil {
			logger.Error(ctx, "workspace re-init failed", "err", err)
		}
	})
}

// NotifyControllerLost and NotifyControllerConnected forward the
// controller pseudo-events to the Dispatcher; no control channel exists
// in this daemon, these are the hooks a future one would call.
func (s *Scheduler) NotifyControllerLost(ctx context.Context, eventName string) {
	s.disp.NotifyControllerLost(ctx, eventName)
}

func (s *Scheduler) NotifyControllerConnected(ctx context.Context, eventName string) {
	s.disp.NotifyControllerConnected(ctx, eventName)
}

// killAll SIGTERMs every running Action. There is no SIGKILL
// escalation.
func (s *Scheduler) killAll() {
	for pid := range s.running {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
}

// killSchedule SIGTERMs every running Action of sched (end-event fire,
// duration expiry).
func (s *Scheduler) killSchedule(sched *config.Schedule) {
	for _, a := range sched.Actions {
		if a.State == config.ActionRunning && a.PID > 0 {
			_ = syscall.Kill(a.PID, syscall.SIGTERM)
		}
	}
}

// killOne is the Suppression Engine's stop-running kill hook.
func (s *Scheduler) killOne(ctx context.Context, sched *config.Schedule, a *config.Action) {
	if a.PID > 0 {
		_ = syscall.Kill(a.PID, syscall.SIGTERM)
	}
}
