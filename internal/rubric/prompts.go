package rubric

import (
	"fmt"
	"strings"
)

type FieldDefinition struct {
	Name        string
	Description string
}

var FieldDefinitions = []FieldDefinition{
	{"Model Description", "A clear description of the mathematical setting, algorithm, and/or model"},
	{"Link to Code", "A link to downloadable source code, with specification of all dependencies, including external libraries"},
	{"Infrastructure", "A description of the computing infrastructure used"},
	{"Runtime", "Average runtime for each approach"},
	{"Parameters", "The number of parameters in each model"},
	{"Validation Performance", "Corresponding validation performance for each reported test result"},
	{"Metrics", "Explanation of evaluation metrics used, with links to code"},
	{"Number of Training/Eval Runs", "The exact number of training and evaluation runs"},
	{"Hyperparameter Bounds", "Bounds for each hyperparameter"},
	{"Hyperparameter Best Config", "Hyperparameter configurations for best-performing models"},
	{"Hyperparameter Search", "Number of hyperparameter search trials"},
	{"Hyperparameter Method", "The method of choosing hyperparameter values (e.g., uniform sampling, manual tuning) and the criterion used to select among them (e.g., accuracy)"},
	{"Expected Performance", "Summary statistics of the results (e.g., mean, variance, error bars)"},
	{"Data Statistics", "Relevant statistics such as number of examples"},
	{"Data Split", "Details of train/validation/test splits"},
	{"Data Processing", "Explanation of any data that were excluded, and all pre-processing steps"},
	{"Data Download", "A link to a downloadable version of the data"},
	{"New Data Description", "For new data collected, a complete description of the collection process, such as instructions to annotators and methods for quality control"},
	{"Data Languages", "For natural language data, the name of the language(s)"},
}

const promptHeader = `# Role

You are an expert evaluator assessing the reproducibility of machine learning research papers.
You will be given one page of a research paper and must grade it against a standardized reproducibility rubric.

## Your Task

Read the provided page and evaluate it against each rubric item below. For each item, decide whether the page provides the required information and assign exactly one grade:

- Complete: the page fully addresses this item with sufficient detail
- Partial: the page partially addresses this item but lacks some details or clarity
- Not Present: the page does not address this item at all
- Not Applicable: this item does not apply to this paper

## Output Format

Write one line per rubric item, using the item name exactly as listed:

` + "```" + `
<item>: <grade>
` + "```" + `

After grading all items, add a 2-3 sentence overall assessment on a line starting with "Assessment:".

---

## RUBRIC:

`

const promptFooter = `
---

## Grading Guidelines

- Be thorough but fair in your assessment
- Look for explicit mentions of each item in text, tables, figures and appendices
- Information "available upon request" or "in supplementary materials" without an actual link is "Partial"
- If existing datasets are used without modification, "New Data Description" is "Not Applicable"
- A purely theoretical paper may have many "Not Applicable" items
- Do not add any other lines of the form "<name>: <value>"

Now evaluate the provided page.

=== PAPER BEGINS ===
`

// Prompt is the fixed instruction prefix sent ahead of every page.
var Prompt = buildPrompt(FieldDefinitions)

func buildPrompt(defs []FieldDefinition) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, d := range defs {
		fmt.Fprintf(&b, "%s - %s\n", d.Name, d.Description)
	}
	b.WriteString(promptFooter)
	return b.String()
}

func BuildPagePrompt(pageText string) string {
	return Prompt + pageText
}
