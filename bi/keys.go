// Package bi assembles the question-to-answer pipeline: generate SQL
// from a natural-language question, execute it, then derive a chart
// specification and a prose explanation from the results.
package bi

// State keys written by the pipeline. Each stage reads the keys of the
// stages before it and writes exactly one of these.
//
//	Key             Written by      Type
//	question        caller          string
//	schema_info     caller          string
//	sql_query       text_to_sql     string
//	query_results   execute_sql     *sqlrun.Envelope
//	chart_spec      visualization   *chart.Spec
//	explanation_text explanation    string
const (
	KeyQuestion    = "question"
	KeySchema      = "schema_info"
	KeySQL         = "sql_query"
	KeyResults     = "query_results"
	KeyChart       = "chart_spec"
	KeyExplanation = "explanation_text"
)

// Stage names, visible in logs, metrics and run results.
const (
	StageTextToSQL     = "text_to_sql"
	StageExecuteSQL    = "execute_sql"
	StageVisualization = "visualization"
	StageExplanation   = "explanation"

	// PipelineInsights groups the two presentation stages that run after
	// query execution.
	PipelineInsights = "insights"
)
