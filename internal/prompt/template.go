package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches single-brace placeholders such as {name} and
// the doubled braces {{ and }} that stand for literal braces.
var placeholderPattern = regexp.MustCompile(`\{\{|\}\}|\{([^{}]+)\}`)

// MissingVariableError names the first placeholder that had no binding.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing template variable: %s", e.Name)
}

// ExtractVariables returns the distinct placeholder names in template, in order of first appearance.
func ExtractVariables(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if isEscape(m[0]) {
			continue
		}
		name := strings.TrimSpace(m[1])
		if !seen[name] {
			vars = append(vars, name)
			seen[name] = true
		}
	}
	return vars
}

// Render replaces {variable} placeholders in the template with values from vars
// and collapses {{ and }} to single braces. Substituted values are not scanned again.
func Render(template string, vars map[string]string) (string, error) {
	for _, name := range ExtractVariables(template) {
		if _, ok := vars[name]; !ok {
			return "", &MissingVariableError{Name: name}
		}
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if isEscape(match) {
			return match[:1]
		}
		return vars[strings.TrimSpace(match[1:len(match)-1])]
	}), nil
}

func isEscape(match string) bool { return match == "{{" || match == "}}" }
