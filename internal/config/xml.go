package config

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/go-xmlfmt/xmlfmt"
)

// xmlNamespace is the LMAP control-plane YANG module namespace.
const xmlNamespace = "urn:ietf:params:xml:ns:yang:ietf-lmap-control"

// xmlDocument wraps Configuration with the root element name and
// namespace declaration the wire format requires (prefix "lmapc").
type xmlDocument struct {
	XMLName xml.Name `xml:"lmapc:lmap"`
	XMLNS   string   `xml:"xmlns:lmapc,attr"`
	Configuration
}

// xmlParseDocument is the unmarshalling twin of xmlDocument: the root
// element is matched by local name only, so any prefix bound to the
// lmapc namespace (or none) is accepted.
type xmlParseDocument struct {
	XMLName xml.Name `xml:"lmap"`
	Configuration
}

// ParseXML decodes an LMAP control-plane XML document into a
// Configuration. The result is not validated; call Validate separately.
func ParseXML(data []byte) (*Configuration, error) {
	var doc xmlParseDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse xml: %w", err)
	}
	cfg := doc.Configuration
	return &cfg, nil
}

// RenderXML marshals cfg as the LMAP control-plane XML document,
// re-indented to a stable two-space style with xmlfmt so the round-trip
// property is insensitive to encoding/xml's own whitespace quirks.
func RenderXML(cfg *Configuration) ([]byte, error) {
	doc := xmlDocument{XMLNS: xmlNamespace, Configuration: *cfg}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("config: render xml: %w", err)
	}
	return []byte(xmlfmt.FormatXML(buf.String(), "", "  ")), nil
}
