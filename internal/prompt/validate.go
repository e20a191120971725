package prompt

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/models"
	"github.com/xeipuuv/gojsonschema"
)

var (
	variableNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
	promptNamePattern   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)
)

const (
	minNameLen         = 3
	maxNameLen         = 100
	minContentLen      = 10
	maxContentLen      = 10000
	maxDescriptionLen  = 500
	maxVariableNameLen = 50
	maxVariableDescLen = 200
	DefaultTemperature = 0.7
)

// Definition is the part of a prompt that the lifecycle rules look at.
type Definition struct {
	Content     string
	Description string
	Status      models.PromptStatus
	Variables   []models.Variable
}

func definitionOf(p *models.Prompt) Definition {
	return Definition{
		Content:     p.Content,
		Description: p.Description,
		Status:      p.Status,
		Variables:   p.Variables,
	}
}

// ValidateDefinition applies the variable and publish rules in order and
// returns the first failure.
func ValidateDefinition(d Definition) error {
	placeholders := ExtractVariables(d.Content)
	for _, name := range placeholders {
		if !variableNamePattern.MatchString(name) {
			return apperr.Validation(apperr.ReasonInvalidVariableName, "invalid variable name %q in content", name)
		}
	}
	for _, v := range d.Variables {
		if !variableNamePattern.MatchString(v.Name) {
			return apperr.Validation(apperr.ReasonInvalidVariableName, "invalid variable name %q", v.Name)
		}
	}

	declared := make(map[string]bool, len(d.Variables))
	for _, v := range d.Variables {
		declared[v.Name] = true
	}
	for _, name := range placeholders {
		if !declared[name] {
			return apperr.Validation(apperr.ReasonUndefinedVariable, "variable %q is used in content but not declared", name)
		}
	}

	for _, v := range d.Variables {
		if v.Type == models.VariableImage && len(d.Variables) != 1 {
			return apperr.Validation(apperr.ReasonMixedVariableTypes,
				"image variable %q must be the only variable, found %d", v.Name, len(d.Variables))
		}
	}

	if d.Status == models.StatusPublished {
		if strings.TrimSpace(d.Description) == "" {
			return apperr.Validation(apperr.ReasonPublishRequirementsNotMet, "a published prompt needs a description")
		}
		for _, v := range d.Variables {
			if strings.TrimSpace(v.Description) == "" {
				return apperr.Validation(apperr.ReasonPublishRequirementsNotMet,
					"variable %q needs a description before publishing", v.Name)
			}
		}
	}
	return nil
}

// validatePrompt runs ValidateDefinition followed by the field limits.
func validatePrompt(p *models.Prompt) error {
	if err := ValidateDefinition(definitionOf(p)); err != nil {
		return err
	}
	return validateFields(p)
}

func validateFields(p *models.Prompt) error {
	invalid := func(format string, args ...any) error {
		return apperr.Validation(apperr.ReasonInvalidRequest, format, args...)
	}

	if n := utf8.RuneCountInString(p.Name); n < minNameLen || n > maxNameLen {
		return invalid("name must be %d to %d characters", minNameLen, maxNameLen)
	}
	if !promptNamePattern.MatchString(p.Name) {
		return invalid("name must start with a letter and contain only letters, digits, '_', '-' or '.'")
	}
	if n := utf8.RuneCountInString(p.Content); n < minContentLen || n > maxContentLen {
		return invalid("content must be %d to %d characters", minContentLen, maxContentLen)
	}
	if utf8.RuneCountInString(p.Description) > maxDescriptionLen {
		return invalid("description must be at most %d characters", maxDescriptionLen)
	}
	if !ValidStatus(p.Status) {
		return invalid("unknown status %q", p.Status)
	}
	if p.Temperature < 0 || p.Temperature > 1 {
		return invalid("temperature must be between 0 and 1")
	}
	if p.MaxTokens < 0 {
		return invalid("max_tokens must not be negative")
	}

	seen := make(map[string]bool, len(p.Variables))
	for _, v := range p.Variables {
		if seen[v.Name] {
			return invalid("variable %q is declared twice", v.Name)
		}
		seen[v.Name] = true
		if utf8.RuneCountInString(v.Name) > maxVariableNameLen {
			return invalid("variable name %q exceeds %d characters", v.Name, maxVariableNameLen)
		}
		if utf8.RuneCountInString(v.Description) > maxVariableDescLen {
			return invalid("description of variable %q exceeds %d characters", v.Name, maxVariableDescLen)
		}
		if v.Type != models.VariableString && v.Type != models.VariableImage {
			return invalid("variable %q has unknown type %q", v.Name, v.Type)
		}
	}

	if len(p.OutputSchema) > 0 {
		if err := checkSchema(p.OutputSchema); err != nil {
			return err
		}
	}
	return nil
}

func checkSchema(raw json.RawMessage) error {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "output_schema must be a JSON object")
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
		return apperr.ValidationCause(apperr.ReasonInvalidRequest, err, "output_schema is not a valid JSON schema")
	}
	return nil
}
