package calendar

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// wireSpec is the on-the-wire rendering of Spec: each bitset as "*" or a
// comma-separated list (month/weekday fields use lowercase English
// names), plus the signed timezone offset as "+HH:MM"/"-HH:MM"/"Z".
type wireSpec struct {
	Months          string `xml:"months" json:"months"`
	DaysOfMonth     string `xml:"days-of-month" json:"days-of-month"`
	DaysOfWeek      string `xml:"days-of-week" json:"days-of-week"`
	Hours           string `xml:"hours" json:"hours"`
	Minutes         string `xml:"minutes" json:"minutes"`
	Seconds         string `xml:"seconds" json:"seconds"`
	TimezoneOffset  string `xml:"timezone-offset" json:"timezone-offset"`
}

func (s Spec) toWire() wireSpec {
	return wireSpec{
		Months:         s.Months.FormatMonths(),
		DaysOfMonth:    s.DaysOfMonth.FormatNumericField(1, 31, DaysOfMonthAll),
		DaysOfWeek:     s.DaysOfWeek.FormatWeekdays(),
		Hours:          s.Hours.FormatNumericField(0, 23, HoursAll),
		Minutes:        s.Minutes.FormatNumericField(0, 59, MinutesAll),
		Seconds:        s.Seconds.FormatNumericField(0, 59, SecondsAll),
		TimezoneOffset: FormatTZOffset(s.TZOffsetMinutes),
	}
}

func (w wireSpec) toSpec() (Spec, error) {
	var s Spec
	var err error
	if s.Months, err = ParseMonths(w.Months); err != nil {
		return Spec{}, err
	}
	if s.DaysOfMonth, err = ParseNumericField(w.DaysOfMonth, 1, 31, DaysOfMonthAll); err != nil {
		return Spec{}, err
	}
	if s.DaysOfWeek, err = ParseWeekdays(w.DaysOfWeek); err != nil {
		return Spec{}, err
	}
	if s.Hours, err = ParseNumericField(w.Hours, 0, 23, HoursAll); err != nil {
		return Spec{}, err
	}
	if s.Minutes, err = ParseNumericField(w.Minutes, 0, 59, MinutesAll); err != nil {
		return Spec{}, err
	}
	if s.Seconds, err = ParseNumericField(w.Seconds, 0, 59, SecondsAll); err != nil {
		return Spec{}, err
	}
	if s.TZOffsetMinutes, err = ParseTZOffset(w.TimezoneOffset); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// MarshalXML renders Spec in the wireSpec shape described above. A zero
// Spec (the Calendar field of a non-calendar Event) renders nothing, so
// only calendar Events carry a calendar element on the wire.
func (s Spec) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if s == (Spec{}) {
		return nil
	}
	return e.EncodeElement(s.toWire(), start)
}

// UnmarshalXML is the inverse of MarshalXML.
func (s *Spec) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var w wireSpec
	if err := d.DecodeElement(&w, &start); err != nil {
		return err
	}
	parsed, err := w.toSpec()
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	*s = parsed
	return nil
}

// MarshalJSON renders Spec in the wireSpec shape described above, or
// null for a zero Spec.
func (s Spec) MarshalJSON() ([]byte, error) {
	if s == (Spec{}) {
		return []byte("null"), nil
	}
	return json.Marshal(s.toWire())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Spec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Spec{}
		return nil
	}
	var w wireSpec
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := w.toSpec()
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	*s = parsed
	return nil
}
