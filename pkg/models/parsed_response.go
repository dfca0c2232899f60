package models

import (
	"fmt"
	"strings"
)

// ParsedResponse is the only success value that crosses the LLM boundary.
// Content carries the raw text from the model; StructuredData is populated
// by a parsing decorator once the content has been coerced into a
// schema-valid object. Metadata carries optional extras such as a
// confidence score or token logprobs; nothing in it is provider-specific.
type ParsedResponse struct {
	Content        string         `json:"content"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Validate rejects responses with no usable content.
func (p *ParsedResponse) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("parsed response content is empty")
	}
	return nil
}

// SetMetadata stores a metadata entry, allocating the map on first use.
func (p *ParsedResponse) SetMetadata(key string, value any) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = value
}
