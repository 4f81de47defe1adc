// Package suppression implements the Suppression Engine: the
// enabled/disabled/active state machine that temporarily inhibits
// Schedules and Actions whose suppression-tags glob-match a
// Suppression's patterns, with per-entity active-suppression counting
// so overlapping Suppressions compose correctly.
package suppression

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/tags"
)

// KillFunc is called for every running Action a stop-running
// Suppression needs terminated. The Scheduler supplies the real
// implementation (SIGTERM to the Action's pid); tests supply a recorder.
type KillFunc func(ctx context.Context, s *config.Schedule, a *config.Action)

// Engine walks the Configuration's Suppressions on event fires and
// maintains the suppressed state of matching Schedules and Actions.
// All methods must be called from the Scheduler's event-loop thread;
// the Engine holds no locks of its own.
type Engine struct {
	cfg  *config.Configuration
	kill KillFunc
}

// New builds an Engine over cfg. kill may be nil when no caller needs
// stop-running kills (e.g. validation-only tooling).
func New(cfg *config.Configuration, kill KillFunc) *Engine {
	return &Engine{cfg: cfg, kill: kill}
}

// GlobMatch matches name against a POSIX-fnmatch-style pattern
// (wildcards "*", "?", character classes). Comparison is
// case-sensitive.
func GlobMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// matches reports whether any of the entity's suppression-tags matches
// any of p's patterns.
func matches(p *config.Suppression, suppressionTags *tags.List) bool {
	return suppressionTags.MatchAny(p.MatchPatterns, GlobMatch)
}

// HandleFire reacts to one Event fire: every Suppression whose start
// event is eventName activates, every one whose end event is eventName
// deactivates. Start is processed before end so a Suppression using the
// same Event for both ends up deactivated, not stuck active.
func (e *Engine) HandleFire(ctx context.Context, eventName string) {
	for _, p := range e.cfg.Suppressions {
		if p.StartEvent == eventName {
			e.activate(ctx, p)
		}
	}
	for _, p := range e.cfg.Suppressions {
		if p.EndEvent == eventName {
			e.deactivate(ctx, p)
		}
	}
}

func (e *Engine) activate(ctx context.Context, p *config.Suppression) {
	if p.State != config.SuppressionEnabled {
		logger.Warn(ctx, "suppression start fired in wrong state, ignoring",
			"suppression", p.Name, "state", p.State)
		return
	}
	p.State = config.SuppressionActive

	for _, s := range e.cfg.Schedules {
		scheduleMatched := matches(p, s.SuppressionTags)
		if scheduleMatched {
			s.ActiveSuppressions++
			if s.ActiveSuppressions == 1 && s.State == config.ScheduleEnabled {
				s.State = config.ScheduleSuppressed
			}
			if p.StopRunning {
				s.StopRunning = true
				e.killRunningActions(ctx, s)
			}
		}
		for _, a := range s.Actions {
			if !matches(p, a.SuppressionTags) {
				continue
			}
			a.ActiveSuppressions++
			if a.ActiveSuppressions == 1 && a.State == config.ActionEnabled {
				a.State = config.ActionSuppressed
			}
			// Actions of a matched schedule were already killed by
			// killRunningActions above.
			if p.StopRunning && a.State == config.ActionRunning && !scheduleMatched {
				e.killAction(ctx, s, a)
			}
		}
	}
	logger.Info(ctx, "suppression activated", "suppression", p.Name)
}

func (e *Engine) deactivate(ctx context.Context, p *config.Suppression) {
	if p.State != config.SuppressionActive {
		logger.Warn(ctx, "suppression end fired in wrong state, ignoring",
			"suppression", p.Name, "state", p.State)
		return
	}
	p.State = config.SuppressionEnabled

	for _, s := range e.cfg.Schedules {
		if matches(p, s.SuppressionTags) {
			if s.ActiveSuppressions > 0 {
				s.ActiveSuppressions--
			}
			if s.ActiveSuppressions == 0 {
				s.StopRunning = false
				if s.State == config.ScheduleSuppressed {
					s.State = config.ScheduleEnabled
				}
			}
		}
		for _, a := range s.Actions {
			if !matches(p, a.SuppressionTags) {
				continue
			}
			if a.ActiveSuppressions > 0 {
				a.ActiveSuppressions--
			}
			if a.ActiveSuppressions == 0 && a.State == config.ActionSuppressed {
				a.State = config.ActionEnabled
			}
		}
	}
	logger.Info(ctx, "suppression deactivated", "suppression", p.Name)
}

// killRunningActions terminates every running Action of s.
func (e *Engine) killRunningActions(ctx context.Context, s *config.Schedule) {
	for _, a := range s.Actions {
		if a.State == config.ActionRunning {
			e.killAction(ctx, s, a)
		}
	}
}

func (e *Engine) killAction(ctx context.Context, s *config.Schedule, a *config.Action) {
	if e.kill == nil {
		return
	}
	logger.Info(ctx, "suppression killing running action",
		"schedule", s.Name, "action", a.Name, "pid", a.PID)
	e.kill(ctx, s, a)
}
