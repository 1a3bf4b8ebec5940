package bi

import (
	"context"
	"fmt"

	"github.com/biflow-io/biflow"
	"github.com/biflow-io/biflow/chart"
	"github.com/biflow-io/biflow/llm"
	"github.com/biflow-io/biflow/sqlrun"
)

// PipelineOptions carries the collaborators the pipeline stages close
// over.
type PipelineOptions struct {
	// Generator produces SQL, chart specs and explanations.
	Generator biflow.Generator
	// Executor runs validated statements.
	Executor *sqlrun.Executor
	// Dialect names the SQL dialect for prompt rendering (sqlite, mysql,
	// postgres).
	Dialect string
}

// NewPipeline assembles the four-stage question pipeline:
//
//	text_to_sql -> execute_sql -> (visualization -> explanation)
//
// The two presentation stages are grouped in a nested "insights" pipeline
// and degrade instead of aborting: a chart or explanation failure leaves
// an error marker in state while the SQL and results remain usable.
func NewPipeline(opts PipelineOptions) (*biflow.Pipeline, error) {
	if opts.Generator == nil {
		return nil, fmt.Errorf("pipeline requires a generator")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("pipeline requires an executor")
	}

	insights := biflow.NewPipeline(PipelineInsights, "derives a chart and a prose answer from query results").
		AddStage(&biflow.Stage{
			Name:        StageVisualization,
			Description: "chooses a declarative chart for the results",
			Inputs:      []string{KeyQuestion, KeyResults},
			OutputKey:   KeyChart,
			Prompt:      visualizationPrompt,
			Generator:   opts.Generator,
			Decode: func(raw string) (any, error) {
				return chart.Parse(raw)
			},
			ContinueOnError: true,
		}).
		AddStage(&biflow.Stage{
			Name:            StageExplanation,
			Description:     "writes a short prose answer grounded in the results",
			Inputs:          []string{KeyQuestion, KeySQL, KeyResults},
			OutputKey:       KeyExplanation,
			Prompt:          explanationPrompt,
			Generator:       opts.Generator,
			ContinueOnError: true,
		})

	return biflow.NewPipeline("bi_query", "answers a natural-language question against the database").
		AddStage(&biflow.Stage{
			Name:        StageTextToSQL,
			Description: "translates the question into a single SELECT statement",
			Inputs:      []string{KeyQuestion, KeySchema},
			OutputKey:   KeySQL,
			Prompt:      textToSQLPrompt(opts.Dialect),
			Generator:   opts.Generator,
			Decode: func(raw string) (any, error) {
				sqlText := llm.StripFences(raw)
				if sqlText == "" {
					return nil, fmt.Errorf("model returned no SQL")
				}
				return sqlText, nil
			},
		}).
		AddStage(&biflow.Stage{
			Name:        StageExecuteSQL,
			Description: "validates and executes the generated statement",
			Inputs:      []string{KeySQL},
			OutputKey:   KeyResults,
			Run:         executeSQL(opts.Executor),
		}).
		AddPipeline(insights), nil
}

// executeSQL wraps the executor as a tool stage. The stage itself only
// fails on a missing input; execution failures are carried inside the
// envelope so the caller can always present them.
func executeSQL(exec *sqlrun.Executor) biflow.ToolFunc {
	return func(ctx context.Context, inputs map[string]any) (any, error) {
		sqlText, err := stringInput(inputs, KeySQL)
		if err != nil {
			return nil, err
		}
		return exec.Execute(ctx, sqlText), nil
	}
}

func stringInput(inputs map[string]any, key string) (string, error) {
	v, ok := inputs[key]
	if !ok {
		return "", fmt.Errorf("missing input %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("input %q is %T, expected string", key, v)
	}
	return s, nil
}

func resultsInput(inputs map[string]any) (*sqlrun.Envelope, error) {
	v, ok := inputs[KeyResults]
	if !ok {
		return nil, fmt.Errorf("missing input %q", KeyResults)
	}
	env, ok := v.(*sqlrun.Envelope)
	if !ok {
		return nil, fmt.Errorf("input %q is %T, expected *sqlrun.Envelope", KeyResults, v)
	}
	return env, nil
}
