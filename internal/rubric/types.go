package rubric

import "fmt"

type Value string

const (
	Complete      Value = "Complete"
	Partial       Value = "Partial"
	NotPresent    Value = "Not Present"
	NotApplicable Value = "Not Applicable"
)

// Values lists the canonical grades in table order.
var Values = []Value{Complete, Partial, NotPresent, NotApplicable}

// AssessmentField carries the model's free-text summary. It is never validated or aggregated.
const AssessmentField = "Assessment"

// ReproducibilityFields is the fixed, ordered checklist every page is graded against.
var ReproducibilityFields = []string{
	"Model Description",
	"Link to Code",
	"Infrastructure",
	"Runtime",
	"Parameters",
	"Validation Performance",
	"Metrics",
	"Number of Training/Eval Runs",
	"Hyperparameter Bounds",
	"Hyperparameter Best Config",
	"Hyperparameter Search",
	"Hyperparameter Method",
	"Expected Performance",
	"Data Statistics",
	"Data Split",
	"Data Processing",
	"Data Download",
	"New Data Description",
	"Data Languages",
}

// PageRubric maps field names to raw grade strings as extracted from one response.
type PageRubric map[string]string

// PageReferences maps a field to the 1-indexed pages that justify its grade, or [-1].
type PageReferences map[string][]int

// NoPageReference is the sentinel used when no page graded a field Complete or Partial.
const NoPageReference = -1

func ParseValue(s string) (Value, bool) {
	for _, v := range Values {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

func (v Value) Valid() bool {
	_, ok := ParseValue(string(v))
	return ok
}

// Weight is the numeric contribution of a grade to the paper score.
func (v Value) Weight() float64 {
	switch v {
	case Complete, NotApplicable:
		return 1
	case Partial:
		return 0.5
	default:
		return 0
	}
}

// rank orders grades for aggregation. It agrees with Weight and breaks the
// Complete/NotApplicable tie in favour of Complete.
func (v Value) rank() int {
	switch v {
	case Complete:
		return 3
	case NotApplicable:
		return 2
	case Partial:
		return 1
	default:
		return 0
	}
}

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %q", e.Field, e.Value)
}
