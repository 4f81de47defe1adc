// Package dispatch arms per-Event timers and delivers a single fire
// callback to the Suppression Engine and Scheduler when an Event is due.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/lmapd/lmapd/internal/calendar"
	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/logger"
	"github.com/lmapd/lmapd/internal/retry"
)

// FireFunc is called once per Event fire, with the Event's name and
// kind. The Dispatcher does not know about Schedules or Suppressions;
// it is the caller's job (the Scheduler) to look up everything the
// fired event affects.
type FireFunc func(ctx context.Context, eventName string, kind config.EventKind)

// armedEvent tracks one Event's live scheduling state.
type armedEvent struct {
	event *config.Event

	// periodic/one-off: the next absolute instant to fire at. Zero means
	// retired (never fires again).
	//
	// calendar: a coarse NextHint wake-up bound; ticks clearly before it
	// skip the Match call entirely. The hint can only be early (cron
	// unions day-of-month/day-of-week where the matcher intersects), so
	// skipping up to it can never lose a fire.
	nextFire time.Time
}

// Dispatcher arms timers for every Event referenced by the
// Configuration and drives FireFunc on a single-threaded cooperative
// loop.
type Dispatcher struct {
	fire FireFunc

	mu     sync.Mutex
	events map[string]*armedEvent

	nowFunc func() time.Time

	lostPacer      *retry.Pacer
	connectedPacer *retry.Pacer
}

// New builds a Dispatcher. fire is invoked for every Event that comes
// due: synchronously from the dispatch loop's goroutine, or from a
// time.AfterFunc timer goroutine when the Event has a random spread.
func New(fire FireFunc) *Dispatcher {
	return &Dispatcher{
		fire:           fire,
		events:         make(map[string]*armedEvent),
		nowFunc:        time.Now,
		lostPacer:      retry.NewPacer(retry.NewExponentialPolicy(time.Second)),
		connectedPacer: retry.NewPacer(retry.NewExponentialPolicy(time.Second)),
	}
}

func (d *Dispatcher) now() time.Time { return d.nowFunc() }

// Arm (re)computes every Event's initial scheduling state from cfg.
// Events referenced by no Schedule and no Suppression are logged and
// skipped.
func (d *Dispatcher) Arm(ctx context.Context, cfg *config.Configuration, referenced map[string]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = make(map[string]*armedEvent)
	now := d.now()

	for _, ev := range cfg.Events {
		if !referenced[ev.Name] {
			logger.Warn(ctx, "event referenced by no schedule or suppression, skipping", "event", ev.Name)
			continue
		}
		d.armLocked(ctx, ev, now)
	}
}

func (d *Dispatcher) armLocked(ctx context.Context, ev *config.Event, now time.Time) {
	ae := &armedEvent{event: ev}

	switch ev.Kind {
	case config.EventPeriodic:
		ae.nextFire = nextPeriodicFire(ev, now)
	case config.EventOneOff:
		if ev.Start != nil && ev.Start.After(now) {
			ae.nextFire = *ev.Start
		} else {
			logger.Warn(ctx, "one-off event start is in the past, never fires", "event", ev.Name)
		}
	case config.EventImmediate, config.EventStartup:
		ae.nextFire = now
	case config.EventCalendar:
		if hint, ok := calendar.NextHint(ev.Calendar, now); ok {
			ae.nextFire = hint
		}
	case config.EventControllerLost, config.EventControllerConnected:
		// never fire on their own; driven by NotifyControllerLost/Connected.
	}

	d.events[ev.Name] = ae
}

// nextPeriodicFire aligns the next fire to the interval grid anchored
// at the event's start instant.
func nextPeriodicFire(ev *config.Event, now time.Time) time.Time {
	if ev.Start == nil {
		return now
	}
	interval := time.Duration(ev.IntervalSeconds) * time.Second
	if interval <= 0 {
		return *ev.Start
	}
	if now.Before(*ev.Start) || now.Equal(*ev.Start) {
		return *ev.Start
	}
	elapsed := now.Sub(*ev.Start)
	steps := (elapsed + interval - 1) / interval // ceil division
	return ev.Start.Add(steps * interval)
}

// Run drives the dispatch loop until ctx is canceled. Granularity is
// one second, matching the Calendar Matcher's required tick rate; the
// same tick also re-evaluates periodic/one-off timers due in that
// second, so the whole Dispatcher needs only one ticker.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := d.now()

	d.mu.Lock()
	due := make([]*armedEvent, 0, len(d.events))
	for _, ae := range d.events {
		if d.isDueLocked(ae, now) {
			due = append(due, ae)
		}
	}
	d.mu.Unlock()

	for _, ae := range due {
		d.fireEvent(ctx, ae, now)
	}
}

func (d *Dispatcher) isDueLocked(ae *armedEvent, now time.Time) bool {
	ev := ae.event
	switch ev.Kind {
	case config.EventPeriodic, config.EventOneOff, config.EventImmediate, config.EventStartup:
		return !ae.nextFire.IsZero() && !ae.nextFire.After(now)
	case config.EventCalendar:
		if !ae.nextFire.IsZero() && now.Add(time.Second).Before(ae.nextFire) {
			return false // clearly before the coarse hint, skip the matcher
		}
		result := calendar.Match(ev.Calendar, now)
		if result.Verdict == calendar.Matched {
			return true
		}
		// Refresh a stale hint so long no-match stretches stay cheap.
		if !ae.nextFire.After(now) {
			if hint, ok := calendar.NextHint(ev.Calendar, now); ok {
				ae.nextFire = hint
			}
		}
		return false
	default:
		return false
	}
}

func (d *Dispatcher) fireEvent(ctx context.Context, ae *armedEvent, now time.Time) {
	ev := ae.event

	if ev.End != nil && now.After(*ev.End) {
		d.retire(ev.Name)
		return
	}

	delay := time.Duration(RandomSpread(ev.RandomSpread)) * time.Second
	if delay > 0 {
		time.AfterFunc(delay, func() { d.fire(ctx, ev.Name, ev.Kind) })
	} else {
		d.fire(ctx, ev.Name, ev.Kind)
	}

	d.rearm(ev, ae, now)
}

func (d *Dispatcher) rearm(ev *config.Event, ae *armedEvent, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case config.EventPeriodic:
		interval := time.Duration(ev.IntervalSeconds) * time.Second
		if interval <= 0 {
			ae.nextFire = time.Time{}
			return
		}
		ae.nextFire = ae.nextFire.Add(interval)
		for !ae.nextFire.After(now) {
			ae.nextFire = ae.nextFire.Add(interval)
		}
	case config.EventOneOff, config.EventImmediate, config.EventStartup:
		ae.nextFire = time.Time{} // fires exactly once
	case config.EventCalendar:
		// Stays armed; Match governs every future tick. The hint only
		// bounds how soon the next Match call can be due.
		if hint, ok := calendar.NextHint(ev.Calendar, now); ok {
			ae.nextFire = hint
		}
	}
}

func (d *Dispatcher) retire(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.events, name)
}

// NotifyControllerLost fires the named controller-lost Event, paced by
// an exponential backoff so a flapping external caller can't flood the
// Scheduler. There is no real control channel in this daemon; this is
// the entry point a future one would call.
func (d *Dispatcher) NotifyControllerLost(ctx context.Context, eventName string) {
	if err := d.lostPacer.Wait(ctx); err != nil {
		return
	}
	d.mu.Lock()
	ae, ok := d.events[eventName]
	d.mu.Unlock()
	if !ok || ae.event.Kind != config.EventControllerLost {
		return
	}
	d.fire(ctx, eventName, config.EventControllerLost)
}

// NotifyControllerConnected is NotifyControllerLost's counterpart, and
// resets the lost-pacer's backoff (a successful reconnection means the
// next loss should again be reported promptly).
func (d *Dispatcher) NotifyControllerConnected(ctx context.Context, eventName string) {
	if err := d.connectedPacer.Wait(ctx); err != nil {
		return
	}
	d.lostPacer.Reset()
	d.mu.Lock()
	ae, ok := d.events[eventName]
	d.mu.Unlock()
	if !ok || ae.event.Kind != config.EventControllerConnected {
		return
	}
	d.fire(ctx, eventName, config.EventControllerConnected)
}
