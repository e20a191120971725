package run

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
)

var answerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"answer": {"type": "string"}, "confidence": {"type": "number"}},
	"required": ["answer"]
}`)

func TestConform(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"compact", `{"answer":"42"}`, `{"answer":"42"}`},
		{"whitespace", "\n  { \"answer\": \"42\", \"confidence\": 0.9 }\n", `{"answer":"42","confidence":0.9}`},
		{"unterminated object", `{"answer": "42"`, `{"answer":"42"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conform(tt.raw, answerSchema)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestConformRejects(t *testing.T) {
	tests := map[string]string{
		"wrong type":       `{"answer": 42}`,
		"missing required": `{"confidence": 0.5}`,
		"not an object":    `["answer"]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := conform(raw, answerSchema)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.True(t, apperr.HasReason(err, apperr.ReasonInvalidStructuredOutput), "got %v", err)
		})
	}
}

func TestSchemaInstruction(t *testing.T) {
	got := schemaInstruction(json.RawMessage(`{"type":"object"}`))
	assert.True(t, strings.HasPrefix(got, schemaInstructionPrefix))
	assert.Contains(t, got, `"type": "object"`)
}
