package bi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// textToSQLPrompt renders the SQL generation prompt from the question and
// the formatted schema.
func textToSQLPrompt(dialect string) func(inputs map[string]any) (string, error) {
	return func(inputs map[string]any) (string, error) {
		question, err := stringInput(inputs, KeyQuestion)
		if err != nil {
			return "", err
		}
		schemaInfo, err := stringInput(inputs, KeySchema)
		if err != nil {
			return "", err
		}

		var b strings.Builder
		fmt.Fprintf(&b, "You translate questions about a %s database into SQL.\n\n", dialect)
		b.WriteString(schemaInfo)
		b.WriteString("\nRules:\n")
		b.WriteString("- Write exactly one SELECT statement for the dialect above.\n")
		b.WriteString("- Use only tables and columns from the schema.\n")
		b.WriteString("- Never write statements that modify data or schema.\n")
		b.WriteString("- Return only the SQL, no commentary and no code fences.\n\n")
		fmt.Fprintf(&b, "Question: %s\n", question)
		return b.String(), nil
	}
}

// visualizationPrompt asks for a declarative chart description as JSON.
// The model picks a chart kind and binds result columns to its axes; it
// produces data, never code.
func visualizationPrompt(inputs map[string]any) (string, error) {
	question, err := stringInput(inputs, KeyQuestion)
	if err != nil {
		return "", err
	}
	results, err := resultsInput(inputs)
	if err != nil {
		return "", err
	}
	if !results.Success {
		return "", fmt.Errorf("no successful query results to visualize")
	}

	sample, err := json.Marshal(sampleRows(results.Data, 5))
	if err != nil {
		return "", fmt.Errorf("encoding result sample: %w", err)
	}

	var b strings.Builder
	b.WriteString("Choose a chart for the query results below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(results.Columns, ", "))
	fmt.Fprintf(&b, "Row count: %d\n", results.RowCount)
	fmt.Fprintf(&b, "Sample rows: %s\n\n", sample)
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"kind": "bar|hbar|line|arc|table|kpi", "title": "...", "x": "column", "y": "column", "color": "column"}`)
	b.WriteString("\n\nGuidance:\n")
	b.WriteString("- bar/hbar for categorical comparisons, line for trends over time,\n")
	b.WriteString("  arc for part-to-whole, kpi for a single value, table otherwise.\n")
	b.WriteString("- x, y and color must name columns from the list above.\n")
	b.WriteString("- kpi needs only y; table needs no bindings.\n")
	return b.String(), nil
}

// explanationPrompt asks for a short prose answer grounded in the data.
func explanationPrompt(inputs map[string]any) (string, error) {
	question, err := stringInput(inputs, KeyQuestion)
	if err != nil {
		return "", err
	}
	sqlQuery, err := stringInput(inputs, KeySQL)
	if err != nil {
		return "", err
	}
	results, err := resultsInput(inputs)
	if err != nil {
		return "", err
	}
	if !results.Success {
		return "", fmt.Errorf("no successful query results to explain")
	}

	sample, err := json.Marshal(sampleRows(results.Data, 20))
	if err != nil {
		return "", fmt.Errorf("encoding result sample: %w", err)
	}

	var b strings.Builder
	b.WriteString("Answer the question below using only the query results.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "SQL: %s\n", sqlQuery)
	fmt.Fprintf(&b, "Row count: %d\n", results.RowCount)
	fmt.Fprintf(&b, "Results: %s\n\n", sample)
	b.WriteString("Write two or three plain sentences. State concrete numbers from the\n")
	b.WriteString("results; do not mention SQL, tables or the fact that a query ran.\n")
	return b.String(), nil
}

func sampleRows(data []map[string]any, n int) []map[string]any {
	if len(data) <= n {
		return data
	}
	return data[:n]
}
