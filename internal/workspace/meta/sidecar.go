package meta

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/lmapd/lmapd/internal/rfc3339"
)

// Option is one (id, name, value) triple, rendered as a bare 3-field
// record with no leading key column.
type Option struct {
	ID    string
	Name  string
	Value string
}

// StartFields is everything action-meta-add-start needs to seal the
// opening half of a ".meta" sidecar.
type StartFields struct {
	Magic       string
	Schedule    string
	Action      string
	Task        string
	Options     []Option // task options, then action options, in order
	Tags        []string // task tags, then schedule tags, then action tags
	Event       time.Time
	Start       time.Time
	CycleNumber string // ISO "YYYYMMDD.HHMMSS", empty when the schedule has no cycle-interval
}

// WriteStart emits the opening half of a ".meta" sidecar: magic,
// schedule, action, task, option triples, tag lines, event, start, and
// an optional cycle-number, in that order.
func WriteStart(w io.Writer, f StartFields) error {
	if err := WriteKV(w, "magic", f.Magic); err != nil {
		return err
	}
	if err := WriteKV(w, "schedule", f.Schedule); err != nil {
		return err
	}
	if err := WriteKV(w, "action", f.Action); err != nil {
		return err
	}
	if err := WriteKV(w, "task", f.Task); err != nil {
		return err
	}
	for _, o := range f.Options {
		if err := WriteRecord(w, o.ID, o.Name, o.Value); err != nil {
			return err
		}
	}
	for _, tg := range f.Tags {
		if err := WriteKV(w, "tag", tg); err != nil {
			return err
		}
	}
	if err := WriteKV(w, "event", rfc3339.Format(f.Event)); err != nil {
		return err
	}
	if err := WriteKV(w, "start", rfc3339.Format(f.Start)); err != nil {
		return err
	}
	if f.CycleNumber != "" {
		if err := WriteKV(w, "cycle-number", f.CycleNumber); err != nil {
			return err
		}
	}
	return nil
}

// WriteEnd appends the closing half of a ".meta" sidecar: end timestamp
// and exit status.
func WriteEnd(w io.Writer, end time.Time, status int) error {
	if err := WriteKV(w, "end", rfc3339.Format(end)); err != nil {
		return err
	}
	return WriteKV(w, "status", strconv.Itoa(status))
}

// Sidecar is the fully parsed form of a ".meta" file, as produced by
// Read. Fields left unset by an incomplete (crashed mid-invocation)
// sidecar keep their zero value: HasEnd reports whether the invocation
// was sealed.
type Sidecar struct {
	Magic       string
	Schedule    string
	Action      string
	Task        string
	Options     []Option
	Tags        []string
	Event       time.Time
	Start       time.Time
	CycleNumber string
	End         time.Time
	Status      int
	HasEnd      bool
}

// Read parses a complete ".meta" sidecar from r. Values are always
// returned as owning copies, never references into a shared buffer.
func Read(r io.Reader) (*Sidecar, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	sc := &Sidecar{}
	for _, rec := range records {
		switch len(rec) {
		case 3:
			sc.Options = append(sc.Options, Option{ID: rec[0], Name: rec[1], Value: rec[2]})
		case 2:
			if err := applyKV(sc, rec[0], rec[1]); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("meta: unexpected record with %d fields", len(rec))
		}
	}
	return sc, nil
}

func applyKV(sc *Sidecar, key, value string) error {
	switch key {
	case "magic":
		sc.Magic = value
	case "schedule":
		sc.Schedule = value
	case "action":
		sc.Action = value
	case "task":
		sc.Task = value
	case "tag":
		sc.Tags = append(sc.Tags, value)
	case "event":
		t, err := rfc3339.Parse(value)
		if err != nil {
			return fmt.Errorf("meta: event: %w", err)
		}
		sc.Event = t
	case "start":
		t, err := rfc3339.Parse(value)
		if err != nil {
			return fmt.Errorf("meta: start: %w", err)
		}
		sc.Start = t
	case "cycle-number":
		sc.CycleNumber = value
	case "end":
		t, err := rfc3339.Parse(value)
		if err != nil {
			return fmt.Errorf("meta: end: %w", err)
		}
		sc.End = t
	case "status":
		status, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("meta: status: %w", err)
		}
		sc.Status = status
		sc.HasEnd = true
	default:
		// Unknown keys are ignored rather than rejected, so a future
		// sidecar field doesn't break older readers.
	}
	return nil
}
