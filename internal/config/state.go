package config

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/go-xmlfmt/xmlfmt"

	"github.com/lmapd/lmapd/internal/rfc3339"
)

// The state document is the runtime twin of the configuration document:
// the same entity tree, but carrying the Scheduler-mutated runtime
// fields (states, counters, timestamps, storage) that the configuration
// round-trip deliberately excludes. It is what SIGUSR1 writes to
// <run>/status and what the daemon's -s flag prints.

type stateDocument struct {
	XMLName xml.Name `xml:"lmapc:lmap-state"`
	XMLNS   string   `xml:"xmlns:lmapc,attr"`

	Agent        stateAgent         `xml:"agent"`
	Capability   Capability         `xml:"capability"`
	Schedules    []stateSchedule    `xml:"schedule,omitempty"`
	Suppressions []stateSuppression `xml:"suppression,omitempty"`
}

type stateAgent struct {
	AgentID          string `xml:"agent-id,omitempty"`
	GroupID          string `xml:"group-id,omitempty"`
	MeasurementPoint string `xml:"measurement-point,omitempty"`
	LastStarted      string `xml:"last-started,omitempty"`
}

type stateSchedule struct {
	Name            string        `xml:"name,attr"`
	State           ScheduleState `xml:"state"`
	Storage         uint64        `xml:"storage"`
	CntInvocations  uint32        `xml:"invocations"`
	CntSuppressions uint32        `xml:"suppressions"`
	CntOverlaps     uint32        `xml:"overlaps"`
	CntFailures     uint32        `xml:"failures"`
	LastInvocation  string        `xml:"last-invocation,omitempty"`
	Actions         []stateAction `xml:"action,omitempty"`
}

type stateAction struct {
	Name                 string      `xml:"name,attr"`
	State                ActionState `xml:"state"`
	PID                  int         `xml:"pid,omitempty"`
	Storage              uint64      `xml:"storage"`
	CntInvocations       uint32      `xml:"invocations"`
	CntSuppressions      uint32      `xml:"suppressions"`
	CntOverlaps          uint32      `xml:"overlaps"`
	CntFailures          uint32      `xml:"failures"`
	LastInvocation       string      `xml:"last-invocation,omitempty"`
	LastCompletion       string      `xml:"last-completion,omitempty"`
	LastStatus           int         `xml:"last-status"`
	LastFailedCompletion string      `xml:"last-failed-completion,omitempty"`
	LastFailedStatus     int         `xml:"last-failed-status,omitempty"`
}

type stateSuppression struct {
	Name  string           `xml:"name,attr"`
	State SuppressionState `xml:"state"`
}

func stateTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return rfc3339.Format(t)
}

func buildStateDocument(cfg *Configuration) stateDocument {
	doc := stateDocument{
		XMLNS: xmlNamespace,
		Agent: stateAgent{
			AgentID:          cfg.Agent.AgentID,
			GroupID:          cfg.Agent.GroupID,
			MeasurementPoint: cfg.Agent.MeasurementPoint,
			LastStarted:      stateTimestamp(cfg.Agent.LastStarted),
		},
		Capability: cfg.Capability,
	}
	for _, s := range cfg.Schedules {
		ss := stateSchedule{
			Name:            s.Name,
			State:           s.State,
			Storage:         s.StorageBytes,
			CntInvocations:  s.CntInvocations,
			CntSuppressions: s.CntSuppressions,
			CntOverlaps:     s.CntOverlaps,
			CntFailures:     s.CntFailures,
			LastInvocation:  stateTimestamp(s.LastInvocation),
		}
		for _, a := range s.Actions {
			ss.Actions = append(ss.Actions, stateAction{
				Name:                 a.Name,
				State:                a.State,
				PID:                  a.PID,
				Storage:              a.StorageBytes,
				CntInvocations:       a.CntInvocations,
				CntSuppressions:      a.CntSuppressions,
				CntOverlaps:          a.CntOverlaps,
				CntFailures:          a.CntFailures,
				LastInvocation:       stateTimestamp(a.LastInvocation),
				LastCompletion:       stateTimestamp(a.LastCompletion),
				LastStatus:           a.LastStatus,
				LastFailedCompletion: stateTimestamp(a.LastFailedCompletion),
				LastFailedStatus:     a.LastFailedStatus,
			})
		}
		doc.Schedules = append(doc.Schedules, ss)
	}
	for _, p := range cfg.Suppressions {
		doc.Suppressions = append(doc.Suppressions, stateSuppression{Name: p.Name, State: p.State})
	}
	return doc
}

// RenderStateXML marshals the runtime state of cfg as the LMAP state
// document. Rendering the same unchanged Configuration twice yields
// byte-identical output (the status file's idempotence property).
func RenderStateXML(cfg *Configuration) ([]byte, error) {
	doc := buildStateDocument(cfg)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("config: render state xml: %w", err)
	}
	return []byte(xmlfmt.FormatXML(buf.String(), "", "  ")), nil
}

// State is the parsed form of a state document, used by the control
// CLI to pretty-print the daemon's status file.
type State struct {
	Agent        stateAgent
	Capability   Capability
	Schedules    []stateSchedule
	Suppressions []stateSuppression
}

// ScheduleStates exposes the parsed per-Schedule state rows.
func (st *State) ScheduleStates() []StateScheduleRow {
	var rows []StateScheduleRow
	for _, s := range st.Schedules {
		rows = append(rows, StateScheduleRow{
			Name:           s.Name,
			State:          string(s.State),
			Invocations:    s.CntInvocations,
			Suppressions:   s.CntSuppressions,
			Overlaps:       s.CntOverlaps,
			Failures:       s.CntFailures,
			Storage:        s.Storage,
			LastInvocation: s.LastInvocation,
		})
		for _, a := range s.Actions {
			rows = append(rows, StateScheduleRow{
				Name:           s.Name + "/" + a.Name,
				State:          string(a.State),
				Invocations:    a.CntInvocations,
				Suppressions:   a.CntSuppressions,
				Overlaps:       a.CntOverlaps,
				Failures:       a.CntFailures,
				Storage:        a.Storage,
				LastInvocation: a.LastInvocation,
				LastStatus:     a.LastStatus,
			})
		}
	}
	return rows
}

// StateScheduleRow is one flattened Schedule or Schedule/Action line of
// a parsed state document.
type StateScheduleRow struct {
	Name           string
	State          string
	Invocations    uint32
	Suppressions   uint32
	Overlaps       uint32
	Failures       uint32
	Storage        uint64
	LastInvocation string
	LastStatus     int
}

// stateParseDocument matches the root element by local name only (see
// xmlParseDocument).
type stateParseDocument struct {
	XMLName xml.Name `xml:"lmap-state"`

	Agent        stateAgent         `xml:"agent"`
	Capability   Capability         `xml:"capability"`
	Schedules    []stateSchedule    `xml:"schedule,omitempty"`
	Suppressions []stateSuppression `xml:"suppression,omitempty"`
}

// ParseStateXML decodes a state document previously produced by
// RenderStateXML.
func ParseStateXML(data []byte) (*State, error) {
	var doc stateParseDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse state xml: %w", err)
	}
	return &State{
		Agent:        doc.Agent,
		Capability:   doc.Capability,
		Schedules:    doc.Schedules,
		Suppressions: doc.Suppressions,
	}, nil
}
