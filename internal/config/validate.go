package config

import (
	"fmt"
	"strings"

	"github.com/lmapd/lmapd/internal/calendar"
)

// ValidationError aggregates every invariant violation found in one pass
// so the CLI can report them all at once (fail-fast on start, full
// diagnostics on report).
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration invalid: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks every structural invariant of the data model,
// resolves all cross-entity name references, and marks pipelined
// Schedules disabled (pipelined execution is not implemented).
// On success the Configuration's name -> *T indexes and resolved
// references (Action.Task(), Schedule.StartEventRef(), ...) are usable.
func Validate(c *Configuration) error {
	verr := &ValidationError{}

	validateAgent(c, verr)
	validateEvents(c, verr)
	validateTasks(c, verr)
	c.buildIndexes()
	validateSchedulesAndActions(c, verr)
	validateSuppressions(c, verr)

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func validateAgent(c *Configuration, verr *ValidationError) {
	a := &c.Agent
	if a.ControllerTimeout == 0 {
		a.ControllerTimeout = DefaultControllerTimeout
	}
	if a.ReportAgentID && a.AgentID == "" {
		verr.add("agent: report-agent-id requires agent-id to be set")
	}
	if a.ReportGroupID && a.GroupID == "" {
		verr.add("agent: report-group-id requires group-id to be set")
	}
	if a.ReportMeasurementPoint && a.MeasurementPoint == "" {
		verr.add("agent: report-measurement-point requires measurement-point to be set")
	}
}

func validateEvents(c *Configuration, verr *ValidationError) {
	seen := make(map[string]bool, len(c.Events))
	for _, e := range c.Events {
		if e.Name == "" {
			verr.add("event: name must not be empty")
			continue
		}
		if seen[e.Name] {
			verr.add("event %q: duplicate name", e.Name)
		}
		seen[e.Name] = true

		switch e.Kind {
		case EventCalendar:
			if err := calendarSpecValid(e); err != nil {
				verr.add("event %q: %v", e.Name, err)
			}
		case EventPeriodic:
			if e.IntervalSeconds < 1 {
				verr.add("event %q: periodic interval must be >= 1", e.Name)
			}
		case EventOneOff:
			if e.Start == nil {
				verr.add("event %q: one-off requires start", e.Name)
			}
		case EventImmediate, EventStartup, EventControllerLost, EventControllerConnected:
			// no per-variant fields required
		default:
			verr.add("event %q: unknown kind %q", e.Name, e.Kind)
		}

		if e.Start != nil && e.End != nil && e.Start.After(*e.End) {
			verr.add("event %q: start must be <= end", e.Name)
		}
	}
}

func calendarSpecValid(e *Event) error {
	return calendar.Validate(e.Calendar)
}

func validateTasks(c *Configuration, verr *ValidationError) {
	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.Name == "" {
			verr.add("task: name must not be empty")
			continue
		}
		if seen[t.Name] {
			verr.add("task %q: duplicate name", t.Name)
		}
		seen[t.Name] = true

		if t.Program == "" {
			verr.add("task %q: program must not be empty", t.Name)
		}
		validateOptionIDs(fmt.Sprintf("task %q", t.Name), t.Options, verr)
	}
}

func validateOptionIDs(owner string, opts []TaskOption, verr *ValidationError) {
	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		if o.ID == "" {
			verr.add("%s: option-id must not be empty", owner)
			continue
		}
		if seen[o.ID] {
			verr.add("%s: duplicate option-id %q", owner, o.ID)
		}
		seen[o.ID] = true
	}
}

func validateSchedulesAndActions(c *Configuration, verr *ValidationError) {
	seenSchedule := make(map[string]bool, len(c.Schedules))
	for _, s := range c.Schedules {
		if s.Name == "" {
			verr.add("schedule: name must not be empty")
			continue
		}
		if seenSchedule[s.Name] {
			verr.add("schedule %q: duplicate name", s.Name)
		}
		seenSchedule[s.Name] = true

		s.startEvt = c.EventByName(s.StartEvent)
		if s.startEvt == nil {
			verr.add("schedule %q: start event %q does not resolve", s.Name, s.StartEvent)
		}

		// end and duration are mutually exclusive; a Schedule with
		// neither simply runs unbounded.
		if s.EndEvent != "" && s.DurationSeconds != nil {
			verr.add("schedule %q: end and duration are mutually exclusive", s.Name)
		}
		if s.EndEvent != "" {
			s.endEvt = c.EventByName(s.EndEvent)
			if s.endEvt == nil {
				verr.add("schedule %q: end event %q does not resolve", s.Name, s.EndEvent)
			}
		}

		switch s.Mode {
		case ModeSequential, ModeParallel:
		case ModePipelined:
			// Pipelined execution is not implemented; such Schedules
			// start disabled.
			s.State = ScheduleDisabled
		case "":
			verr.add("schedule %q: execution-mode must be set", s.Name)
		default:
			verr.add("schedule %q: unknown execution-mode %q", s.Name, s.Mode)
		}

		validateActions(c, s, verr)
	}
}

func validateActions(c *Configuration, s *Schedule, verr *ValidationError) {
	seenAction := make(map[string]bool, len(s.Actions))
	for _, a := range s.Actions {
		if a.Name == "" {
			verr.add("schedule %q: action name must not be empty", s.Name)
			continue
		}
		if seenAction[a.Name] {
			verr.add("schedule %q: duplicate action name %q", s.Name, a.Name)
		}
		seenAction[a.Name] = true

		a.task = c.TaskByName(a.TaskName)
		if a.task == nil {
			verr.add("schedule %q action %q: task %q does not resolve", s.Name, a.Name, a.TaskName)
		}

		for _, dest := range a.Destinations {
			if c.ScheduleByName(dest) == nil {
				verr.add("schedule %q action %q: destination %q does not resolve", s.Name, a.Name, dest)
			}
		}

		validateOptionIDs(fmt.Sprintf("schedule %q action %q", s.Name, a.Name), a.Options, verr)

		if a.State == "" {
			a.State = ActionEnabled
		}
	}
	if s.State == "" {
		s.State = ScheduleEnabled
	}
}

func validateSuppressions(c *Configuration, verr *ValidationError) {
	seen := make(map[string]bool, len(c.Suppressions))
	for _, p := range c.Suppressions {
		if p.Name == "" {
			verr.add("suppression: nameless suppression rejected")
			p.State = SuppressionDisabled
			continue
		}
		if seen[p.Name] {
			verr.add("suppression %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		if len(p.MatchPatterns) == 0 {
			verr.add("suppression %q: at least one match pattern is required", p.Name)
		}
		if p.StartEvent != "" {
			p.startEvt = c.EventByName(p.StartEvent)
			if p.startEvt == nil {
				verr.add("suppression %q: start event %q does not resolve", p.Name, p.StartEvent)
			}
		}
		if p.EndEvent != "" {
			p.endEvt = c.EventByName(p.EndEvent)
			if p.endEvt == nil {
				verr.add("suppression %q: end event %q does not resolve", p.Name, p.EndEvent)
			}
		}
		if p.State == "" {
			p.State = SuppressionEnabled
		}
	}
}
