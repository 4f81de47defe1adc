// Package report builds the LMAP report document: it collects the
// sealed ".meta"/".data" pairs a daemon left in its queue directories,
// turns each into a Result with its Table of data Rows, and renders the
// aggregate as report XML or JSON. Producing the document is where this
// system stops; delivery is external.
package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/go-xmlfmt/xmlfmt"

	"github.com/lmapd/lmapd/internal/config"
	"github.com/lmapd/lmapd/internal/rfc3339"
	"github.com/lmapd/lmapd/internal/workspace"
)

// xmlNamespace is the LMAP report YANG module namespace (prefix
// "lmapr").
const xmlNamespace = "urn:ietf:params:xml:ns:yang:ietf-lmap-report"

// Option is one reported (id, name, value) triple.
type Option struct {
	ID    string `xml:"id" json:"id"`
	Name  string `xml:"name,omitempty" json:"name,omitempty"`
	Value string `xml:"value,omitempty" json:"value,omitempty"`
}

// Row is one data row of a Result's Table.
type Row struct {
	Values []string `xml:"value" json:"value"`
}

// Table holds the rows a measurement program wrote to its ".data"
// artefact.
type Table struct {
	Rows []Row `xml:"row,omitempty" json:"row,omitempty"`
}

// Result is the in-memory form of one reported Action invocation,
// built from a parsed sidecar and its twin data file.
type Result struct {
	Schedule    string   `xml:"schedule,omitempty" json:"schedule,omitempty"`
	Action      string   `xml:"action,omitempty" json:"action,omitempty"`
	Task        string   `xml:"task,omitempty" json:"task,omitempty"`
	Options     []Option `xml:"option,omitempty" json:"option,omitempty"`
	Tags        []string `xml:"tag,omitempty" json:"tag,omitempty"`
	Event       string   `xml:"event,omitempty" json:"event,omitempty"`
	Start       string   `xml:"start,omitempty" json:"start,omitempty"`
	End         string   `xml:"end,omitempty" json:"end,omitempty"`
	CycleNumber string   `xml:"cycle-number,omitempty" json:"cycle-number,omitempty"`
	Status      *int     `xml:"status,omitempty" json:"status,omitempty"`
	Tables      []Table  `xml:"table,omitempty" json:"table,omitempty"`
}

// Report is the aggregate document.
type Report struct {
	Date             string    `xml:"date" json:"date"`
	AgentID          string    `xml:"agent-id,omitempty" json:"agent-id,omitempty"`
	GroupID          string    `xml:"group-id,omitempty" json:"group-id,omitempty"`
	MeasurementPoint string    `xml:"measurement-point,omitempty" json:"measurement-point,omitempty"`
	Results          []*Result `xml:"result,omitempty" json:"result,omitempty"`
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return rfc3339.Format(t)
}

// fromInvocation turns one workspace Invocation into a Result. A
// sidecar without a sealed end (daemon crashed between meta-start and
// reap) yields a Result with no End and no Status.
func fromInvocation(inv *workspace.Invocation) *Result {
	sc := inv.Meta
	r := &Result{
		Schedule:    sc.Schedule,
		Action:      sc.Action,
		Task:        sc.Task,
		Tags:        sc.Tags,
		Event:       timestamp(sc.Event),
		Start:       timestamp(sc.Start),
		CycleNumber: sc.CycleNumber,
	}
	for _, o := range sc.Options {
		r.Options = append(r.Options, Option{ID: o.ID, Name: o.Name, Value: o.Value})
	}
	if sc.HasEnd {
		r.End = timestamp(sc.End)
		status := sc.Status
		r.Status = &status
	}
	if len(inv.Rows) > 0 {
		table := Table{}
		for _, row := range inv.Rows {
			table.Rows = append(table.Rows, Row{Values: row})
		}
		r.Tables = []Table{table}
	}
	return r
}

// Collect scans root (typically the daemon's queue directory, or the
// control CLI's working directory) for sealed artefact pairs and
// builds the Report, stamping the Agent identity fields the
// configuration's report-* policy flags allow.
func Collect(cfg *config.Configuration, root string, now time.Time) (*Report, error) {
	invs, err := workspace.ReadResults(root)
	if err != nil {
		return nil, fmt.Errorf("report: collect %s: %w", root, err)
	}

	rep := &Report{Date: rfc3339.Format(now)}
	if cfg != nil {
		if cfg.Agent.ReportAgentID {
			rep.AgentID = cfg.Agent.AgentID
		}
		if cfg.Agent.ReportGroupID {
			rep.GroupID = cfg.Agent.GroupID
		}
		if cfg.Agent.ReportMeasurementPoint {
			rep.MeasurementPoint = cfg.Agent.MeasurementPoint
		}
	}
	for _, inv := range invs {
		rep.Results = append(rep.Results, fromInvocation(inv))
	}
	return rep, nil
}

type xmlDocument struct {
	XMLName xml.Name `xml:"lmapr:report"`
	XMLNS   string   `xml:"xmlns:lmapr,attr"`
	Report
}

// RenderXML marshals the report under the lmapr namespace.
func RenderXML(rep *Report) ([]byte, error) {
	doc := xmlDocument{XMLNS: xmlNamespace, Report: *rep}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("report: render xml: %w", err)
	}
	return []byte(xmlfmt.FormatXML(buf.String(), "", "  ")), nil
}

type jsonDocument struct {
	Report Report `json:"ietf-lmap-report"`
}

// RenderJSON marshals the report under the "ietf-lmap-report"
// namespace key.
func RenderJSON(rep *Report) ([]byte, error) {
	out, err := json.MarshalIndent(jsonDocument{Report: *rep}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: render json: %w", err)
	}
	return out, nil
}
