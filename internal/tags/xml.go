package tags

import (
	"encoding/json"
	"encoding/xml"
)

// MarshalXML encodes each tag as a sibling element using start's name,
// so a struct field `Tags *tags.List `xml:"tag"`` renders as repeated
// <tag>value</tag> elements rather than one wrapping element.
func (l *List) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if l == nil {
		return nil
	}
	for _, v := range l.values {
		if err := e.EncodeElement(v, xml.StartElement{Name: start.Name}); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalXML decodes a single <tag>value</tag> occurrence and appends
// it to the list, de-duplicating. encoding/xml calls this once per
// matching sibling element, so repeated elements accumulate correctly.
func (l *List) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var v string
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	l.Add(v)
	return nil
}

// MarshalJSON renders the list as a plain JSON array, empty arrays
// included (never "null") so round-tripped documents keep an explicit
// empty tag list rather than omitting the field.
func (l *List) MarshalJSON() ([]byte, error) {
	values := l.Values()
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

// UnmarshalJSON replaces the list's contents with the decoded array,
// de-duplicating while preserving first-occurrence order.
func (l *List) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	l.values = nil
	l.seen = make(map[string]struct{}, len(values))
	for _, v := range values {
		l.Add(v)
	}
	return nil
}
