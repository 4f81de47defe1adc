package config

import (
	"encoding/json"
	"fmt"
)

// jsonDocument wraps Configuration under the "ietf-lmap-control"
// namespace key, mirroring the XML document's root element.
type jsonDocument struct {
	Document Configuration `json:"ietf-lmap-control"`
}

// ParseJSON decodes a namespaced LMAP control-plane JSON document. The
// result is not validated; call Validate separately.
func ParseJSON(data []byte) (*Configuration, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}
	cfg := doc.Document
	return &cfg, nil
}

// RenderJSON marshals cfg under the "ietf-lmap-control" namespace key.
func RenderJSON(cfg *Configuration) ([]byte, error) {
	doc := jsonDocument{Document: *cfg}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: render json: %w", err)
	}
	return out, nil
}

// looksLikeJSON sniffs the first non-whitespace byte to tell a JSON
// document from an XML one.
func looksLikeJSON(data []byte) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
