package rubric

// Aggregate merges page rubrics into a paper rubric, keeping the strongest grade
// seen for each field. Nil pages, the Assessment field and non-canonical values
// are skipped. When the best weight is 1 the result is Complete if any page said
// Complete, otherwise Not Applicable.
func Aggregate(pages []PageRubric) PageRubric {
	best := map[string]Value{}
	for _, page := range pages {
		if page == nil {
			continue
		}
		for field, raw := range page {
			if field == AssessmentField {
				continue
			}
			v, ok := ParseValue(raw)
			if !ok {
				continue
			}
			cur, seen := best[field]
			if !seen || v.rank() > cur.rank() {
				best[field] = v
			}
		}
	}
	out := make(PageRubric, len(best))
	for field, v := range best {
		out[field] = string(v)
	}
	return out
}

// References lists, per field, the pages graded Complete, else those graded
// Partial, else the [-1] sentinel. Page numbers are 1-indexed positions in the
// original page list, so absent pages leave gaps rather than shifting numbers.
func References(fields []string, pages []PageRubric) PageReferences {
	refs := make(PageReferences, len(fields))
	for _, field := range fields {
		complete := make([]int, 0)
		partial := make([]int, 0)
		for i, page := range pages {
			if page == nil {
				continue
			}
			switch Value(page[field]) {
			case Complete:
				complete = append(complete, i+1)
			case Partial:
				partial = append(partial, i+1)
			}
		}
		switch {
		case len(complete) > 0:
			refs[field] = complete
		case len(partial) > 0:
			refs[field] = partial
		default:
			refs[field] = []int{NoPageReference}
		}
	}
	return refs
}
