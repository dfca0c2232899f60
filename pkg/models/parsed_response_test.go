package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsedResponse_Validate(t *testing.T) {
	ok := &ParsedResponse{Content: `{"answer":"4"}`}
	assert.NoError(t, ok.Validate())

	empty := &ParsedResponse{Content: ""}
	assert.Error(t, empty.Validate())

	whitespace := &ParsedResponse{Content: " \n\t "}
	assert.Error(t, whitespace.Validate())
}

func TestParsedResponse_SetMetadata(t *testing.T) {
	p := &ParsedResponse{Content: "x"}
	p.SetMetadata("confidence", 0.92)
	assert.Equal(t, 0.92, p.Metadata["confidence"])
}
