package rubric

import (
	"fmt"
	"log/slog"
	"strings"
)

type ValidationResult struct {
	Valid    bool       `json:"valid"`
	Fields   PageRubric `json:"fields"`
	Errors   []string   `json:"errors"`
	Warnings []string   `json:"warnings"`
}

// Validator turns free-text model output into a PageRubric and checks it
// against a fixed list of required fields.
type Validator struct {
	required []string
	known    map[string]struct{}
}

func NewValidator(required []string) *Validator {
	known := make(map[string]struct{}, len(required))
	for _, f := range required {
		known[f] = struct{}{}
	}
	return &Validator{required: required, known: known}
}

// ExtractFields collects "name: value" lines. Lines without a colon or with an
// empty name are dropped; a later line with the same name wins.
func (v *Validator) ExtractFields(text string) PageRubric {
	fields := PageRubric{}
	if text == "" {
		return fields
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		fields[name] = strings.TrimSpace(value)
	}
	return fields
}

func (v *Validator) Validate(text string) (res ValidationResult) {
	res = ValidationResult{Fields: PageRubric{}, Errors: []string{}, Warnings: []string{}}
	defer func() {
		if r := recover(); r != nil {
			res = ValidationResult{
				Valid:    false,
				Fields:   PageRubric{},
				Errors:   []string{fmt.Sprintf("Failed to extract fields: %v", r)},
				Warnings: []string{},
			}
		}
	}()

	fields := v.ExtractFields(text)
	res.Fields = fields
	for _, name := range v.required {
		value, ok := fields[name]
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("Missing required field: %s", name))
			continue
		}
		if !Value(value).Valid() {
			res.Errors = append(res.Errors, fmt.Sprintf("Invalid value for %s: '%s'", name, value))
		}
	}
	// Map iteration order is random; walk the lines again so warnings follow the text.
	for _, name := range extractedOrder(text) {
		if _, ok := v.known[name]; ok || name == AssessmentField {
			continue
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("Unexpected field: %s", name))
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// Assessment returns the free-text summary, if the response carried one.
func (v *Validator) Assessment(text string) (assessment string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("assessment extraction failed", "error", r)
			assessment, ok = "", false
		}
	}()
	assessment, ok = v.ExtractFields(text)[AssessmentField]
	return assessment, ok
}

func extractedOrder(text string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		name, _, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
