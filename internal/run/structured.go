package run

import (
	"bytes"
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/xeipuuv/gojsonschema"
)

const schemaInstructionPrefix = "\n\nProvide your response in valid JSON format following this schema:\n"

// schemaInstruction is appended to the prompt when structured output is requested.
func schemaInstruction(schema json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, schema, "", "  "); err != nil {
		return schemaInstructionPrefix + string(schema)
	}
	return schemaInstructionPrefix + buf.String()
}

// conform turns raw model output into compact JSON that satisfies schema.
// Common model slips such as code fences or trailing commas are repaired first.
func conform(raw string, schema json.RawMessage) (string, error) {
	candidate := strings.TrimSpace(raw)
	if !json.Valid([]byte(candidate)) {
		repaired, err := jsonrepair.RepairJSON(candidate)
		if err != nil || !json.Valid([]byte(repaired)) {
			return "", apperr.ValidationCause(apperr.ReasonInvalidStructuredOutput, err, "model output is not valid JSON")
		}
		candidate = repaired
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewStringLoader(candidate),
	)
	if err != nil {
		return "", apperr.ValidationCause(apperr.ReasonInvalidStructuredOutput, err, "model output could not be checked against the schema")
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return "", apperr.Validation(apperr.ReasonInvalidStructuredOutput,
			"model output does not match the schema: %s", strings.Join(msgs, "; "))
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(candidate)); err != nil {
		return "", apperr.ValidationCause(apperr.ReasonInvalidStructuredOutput, err, "model output is not valid JSON")
	}
	return compact.String(), nil
}
