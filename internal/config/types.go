// Package config owns the Configuration aggregate: the Agent/Event/Task/
// Action/Schedule/Suppression/Capability data model, its
// validation rules, and its XML/JSON wire codecs. Collections are
// insertion-ordered slices with a name -> *T index built at validation
// time; there are no back-pointers, the Scheduler passes (schedule,
// action) pairs through its APIs instead.
package config

import (
	"time"

	"github.com/lmapd/lmapd/internal/calendar"
	"github.com/lmapd/lmapd/internal/tags"
)

// DefaultControllerTimeout is the Agent's default controller-timeout in
// seconds (604800 = 7 days).
const DefaultControllerTimeout uint32 = 604800

// Agent is the singleton daemon identity and reporting policy.
type Agent struct {
	AgentID                string `xml:"agent-id,omitempty" json:"agent-id,omitempty"`
	GroupID                string `xml:"group-id,omitempty" json:"group-id,omitempty"`
	MeasurementPoint       string `xml:"measurement-point,omitempty" json:"measurement-point,omitempty"`
	ReportAgentID          bool   `xml:"report-agent-id" json:"report-agent-id"`
	ReportGroupID          bool   `xml:"report-group-id" json:"report-group-id"`
	ReportMeasurementPoint bool   `xml:"report-measurement-point" json:"report-measurement-point"`
	ControllerTimeout      uint32 `xml:"controller-timeout" json:"controller-timeout"`

	// LastStarted is a runtime field set by the daemon at startup.
	LastStarted time.Time `xml:"-" json:"-"`
}

// EventKind enumerates the variant types of Event.
type EventKind string

const (
	EventPeriodic            EventKind = "periodic"
	EventCalendar            EventKind = "calendar"
	EventOneOff              EventKind = "one-off"
	EventImmediate           EventKind = "immediate"
	EventStartup             EventKind = "startup"
	EventControllerLost      EventKind = "controller-lost"
	EventControllerConnected EventKind = "controller-connected"
)

// Event is a named trigger. Only the fields relevant to Kind are
// meaningful.
type Event struct {
	Name string    `xml:"name,attr" json:"name"`
	Kind EventKind `xml:"kind" json:"kind"`

	// periodic
	IntervalSeconds uint32     `xml:"interval,omitempty" json:"interval,omitempty"`
	Start           *time.Time `xml:"start,omitempty" json:"start,omitempty"`
	End             *time.Time `xml:"end,omitempty" json:"end,omitempty"`
	RandomSpread    uint32     `xml:"random-spread,omitempty" json:"random-spread,omitempty"`
	CycleInterval   int64      `xml:"cycle-interval,omitempty" json:"cycle-interval,omitempty"`

	// calendar
	Calendar calendar.Spec `xml:"calendar,omitempty" json:"calendar,omitempty"`
}

// TaskOption is one (id, name?, value?) tuple attached to a Task or
// Action.
type TaskOption struct {
	ID    string `xml:"id" json:"id"`
	Name  string `xml:"name,omitempty" json:"name,omitempty"`
	Value string `xml:"value,omitempty" json:"value,omitempty"`
}

// Function names a measurement-program entry point exposed by a Task,
// along with the roles it may be invoked under.
type Function struct {
	URI   string   `xml:"uri" json:"uri"`
	Roles []string `xml:"role,omitempty" json:"role,omitempty"`
}

// Task is the definition of a measurement program.
type Task struct {
	Name      string       `xml:"name,attr" json:"name"`
	Program   string       `xml:"program" json:"program"`
	Options   []TaskOption `xml:"option,omitempty" json:"option,omitempty"`
	Tags      *tags.List   `xml:"tag,omitempty" json:"tag,omitempty"`
	Functions []Function   `xml:"function,omitempty" json:"function,omitempty"`
}

// ActionState is the runtime state of an Action.
type ActionState string

const (
	ActionEnabled    ActionState = "enabled"
	ActionDisabled   ActionState = "disabled"
	ActionRunning    ActionState = "running"
	ActionSuppressed ActionState = "suppressed"
)

// Action is one task invocation bound into a Schedule.
type Action struct {
	Name            string       `xml:"name,attr" json:"name"`
	TaskName        string       `xml:"task" json:"task"`
	Destinations    []string     `xml:"destination,omitempty" json:"destination,omitempty"`
	Options         []TaskOption `xml:"option,omitempty" json:"option,omitempty"`
	Tags            *tags.List   `xml:"tag,omitempty" json:"tag,omitempty"`
	SuppressionTags *tags.List   `xml:"suppression-tag,omitempty" json:"suppression-tag,omitempty"`

	// Runtime fields, mutated exclusively by the Scheduler and Workspace
	// Manager. Not part of the configuration round-trip property; these
	// are rendered only in the state-XML document (SIGUSR1 dump).
	State                ActionState `xml:"-" json:"-"`
	PID                  int         `xml:"-" json:"-"`
	LastInvocation       time.Time   `xml:"-" json:"-"`
	LastCompletion       time.Time   `xml:"-" json:"-"`
	LastStatus           int         `xml:"-" json:"-"`
	LastFailedCompletion time.Time   `xml:"-" json:"-"`
	LastFailedStatus     int         `xml:"-" json:"-"`
	CntInvocations       uint32      `xml:"-" json:"-"`
	CntSuppressions      uint32      `xml:"-" json:"-"`
	CntOverlaps          uint32      `xml:"-" json:"-"`
	CntFailures          uint32      `xml:"-" json:"-"`
	Workspace            string      `xml:"-" json:"-"`
	StorageBytes         uint64      `xml:"-" json:"-"`
	ActiveSuppressions   int         `xml:"-" json:"-"`

	// resolved at validation time
	task *Task
}

// Task returns the Action's resolved Task, set by Validate.
func (a *Action) Task() *Task { return a.task }

// ExecutionMode is a Schedule's concurrency policy for its Actions.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
	ModePipelined  ExecutionMode = "pipelined"
)

// ScheduleState is the runtime state of a Schedule.
type ScheduleState string

const (
	ScheduleEnabled    ScheduleState = "enabled"
	ScheduleDisabled   ScheduleState = "disabled"
	ScheduleRunning    ScheduleState = "running"
	ScheduleSuppressed ScheduleState = "suppressed"
)

// Schedule is an ordered group of Actions triggered by a start Event.
type Schedule struct {
	Name            string        `xml:"name,attr" json:"name"`
	StartEvent      string        `xml:"start" json:"start"`
	EndEvent        string        `xml:"end,omitempty" json:"end,omitempty"`
	DurationSeconds *uint32       `xml:"duration,omitempty" json:"duration,omitempty"`
	Mode            ExecutionMode `xml:"execution-mode" json:"execution-mode"`
	Tags            *tags.List    `xml:"tag,omitempty" json:"tag,omitempty"`
	SuppressionTags *tags.List    `xml:"suppression-tag,omitempty" json:"suppression-tag,omitempty"`
	Actions         []*Action     `xml:"action,omitempty" json:"action,omitempty"`

	// Runtime fields.
	State              ScheduleState `xml:"-" json:"-"`
	LastInvocation     time.Time     `xml:"-" json:"-"`
	CntInvocations     uint32        `xml:"-" json:"-"`
	CntSuppressions    uint32        `xml:"-" json:"-"`
	CntOverlaps        uint32        `xml:"-" json:"-"`
	CntFailures        uint32        `xml:"-" json:"-"`
	Workspace          string        `xml:"-" json:"-"`
	StorageBytes       uint64        `xml:"-" json:"-"`
	CycleNumber        int64         `xml:"-" json:"-"`
	ActiveSuppressions int           `xml:"-" json:"-"`
	StopRunning        bool          `xml:"-" json:"-"`

	startEvt *Event
	endEvt   *Event
}

// StartEventRef returns the Schedule's resolved start Event, set by
// Validate.
func (s *Schedule) StartEventRef() *Event { return s.startEvt }

// EndEventRef returns the Schedule's resolved end Event (nil when the
// Schedule uses a duration instead), set by Validate.
func (s *Schedule) EndEventRef() *Event { return s.endEvt }

// ActionByName returns the named Action owned by s, or nil.
func (s *Schedule) ActionByName(name string) *Action {
	for _, a := range s.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// SuppressionState is the runtime state of a Suppression.
type SuppressionState string

const (
	SuppressionEnabled  SuppressionState = "enabled"
	SuppressionDisabled SuppressionState = "disabled"
	SuppressionActive   SuppressionState = "active"
)

// Suppression temporarily inhibits Schedules/Actions whose
// suppression-tags glob-match MatchPatterns.
type Suppression struct {
	Name          string   `xml:"name,attr" json:"name"`
	StartEvent    string   `xml:"start,omitempty" json:"start,omitempty"`
	EndEvent      string   `xml:"end,omitempty" json:"end,omitempty"`
	MatchPatterns []string `xml:"match,omitempty" json:"match,omitempty"`
	StopRunning   bool     `xml:"stop-running" json:"stop-running"`

	State SuppressionState `xml:"-" json:"-"`

	startEvt *Event
	endEvt   *Event
}

// StartEventRef returns the Suppression's resolved start Event, or nil.
func (p *Suppression) StartEventRef() *Event { return p.startEvt }

// EndEventRef returns the Suppression's resolved end Event, or nil.
func (p *Suppression) EndEventRef() *Event { return p.endEvt }

// Capability is the daemon's self-description: the software version, its
// system tags, and the allow-list of runnable task programs.
type Capability struct {
	Version string     `xml:"version,omitempty" json:"version,omitempty"`
	Tags    *tags.List `xml:"tag,omitempty" json:"tag,omitempty"`
	Tasks   []string   `xml:"task,omitempty" json:"task,omitempty"`
}

// Allows reports whether program is present in the Capability allow-list.
func (c *Capability) Allows(program string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Tasks {
		if p == program {
			return true
		}
	}
	return false
}

// Configuration is the single root aggregate: one is active per daemon
// run and is wholly replaced on reload.
type Configuration struct {
	Agent        Agent          `xml:"agent" json:"agent"`
	Events       []*Event       `xml:"event,omitempty" json:"event,omitempty"`
	Tasks        []*Task        `xml:"task,omitempty" json:"task,omitempty"`
	Schedules    []*Schedule    `xml:"schedule,omitempty" json:"schedule,omitempty"`
	Suppressions []*Suppression `xml:"suppression,omitempty" json:"suppression,omitempty"`
	Capability   Capability     `xml:"capability" json:"capability"`

	eventIndex      map[string]*Event
	taskIndex       map[string]*Task
	scheduleIndex   map[string]*Schedule
	suppressionIdx  map[string]*Suppression
}

// EventByName resolves a configured Event by name.
func (c *Configuration) EventByName(name string) *Event {
	if c.eventIndex == nil {
		return nil
	}
	return c.eventIndex[name]
}

// TaskByName resolves a configured Task by name.
func (c *Configuration) TaskByName(name string) *Task {
	if c.taskIndex == nil {
		return nil
	}
	return c.taskIndex[name]
}

// ScheduleByName resolves a configured Schedule by name.
func (c *Configuration) ScheduleByName(name string) *Schedule {
	if c.scheduleIndex == nil {
		return nil
	}
	return c.scheduleIndex[name]
}

// SuppressionByName resolves a configured Suppression by name.
func (c *Configuration) SuppressionByName(name string) *Suppression {
	if c.suppressionIdx == nil {
		return nil
	}
	return c.suppressionIdx[name]
}

// buildIndexes constructs the name -> *T lookup tables. Called by
// Validate; safe to call repeatedly (e.g. after a fragment merge).
func (c *Configuration) buildIndexes() {
	c.eventIndex = make(map[string]*Event, len(c.Events))
	for _, e := range c.Events {
		c.eventIndex[e.Name] = e
	}
	c.taskIndex = make(map[string]*Task, len(c.Tasks))
	for _, t := range c.Tasks {
		c.taskIndex[t.Name] = t
	}
	c.scheduleIndex = make(map[string]*Schedule, len(c.Schedules))
	for _, s := range c.Schedules {
		c.scheduleIndex[s.Name] = s
	}
	c.suppressionIdx = make(map[string]*Suppression, len(c.Suppressions))
	for _, p := range c.Suppressions {
		c.suppressionIdx[p.Name] = p
	}
}
