package rubric

// ToNumber averages the weights of the required fields into a score in [0,1].
// A required field that is absent or carries a non-canonical grade is an error.
func ToNumber(graded PageRubric, required []string) (float64, error) {
	if len(required) == 0 {
		return 0, nil
	}
	var points float64
	for _, field := range required {
		raw, ok := graded[field]
		if !ok {
			return 0, &MissingFieldError{Field: field}
		}
		v, ok := ParseValue(raw)
		if !ok {
			return 0, &InvalidValueError{Field: field, Value: raw}
		}
		points += v.Weight()
	}
	return points / float64(len(required)), nil
}

