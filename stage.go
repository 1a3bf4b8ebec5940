package biflow

import "fmt"

// Stage is one unit of work within a pipeline. A stage either dispatches a
// rendered prompt to a Generator or invokes a deterministic tool function.
// Its result is written to the shared state under OutputKey; stages may only
// read keys produced by earlier steps (or present in the initial state).
type Stage struct {
	// Name is the unique identifier for the stage within its pipeline.
	Name string
	// Description provides details about the stage's purpose.
	Description string
	// Inputs lists the state keys the stage reads, in the order they are
	// passed to Prompt or Run.
	Inputs []string
	// OutputKey is the state key the stage's result is written to.
	// It must be unique within one pipeline run.
	OutputKey string

	// Prompt renders the payload for a generator-backed stage.
	// Exactly one of Prompt or Run must be set.
	Prompt PromptFunc
	// Generator dispatches the rendered prompt. Required when Prompt is set.
	Generator Generator

	// Run is the unit of work for a tool-bound stage.
	Run ToolFunc

	// Decode converts a generator's raw text output into the value stored
	// under OutputKey. Optional; when nil the text is stored as-is. A
	// decode failure is a terminal stage failure, never retried.
	Decode func(raw string) (any, error)

	// ContinueOnError records an error marker in state instead of aborting
	// the pipeline when the stage terminally fails.
	ContinueOnError bool

	// Retry overrides the runner's retry policy for this stage.
	// Only generator stages retry; tool stages never do.
	Retry *RetryPolicy
}

// StepName implements Step.
func (s *Stage) StepName() string { return s.Name }

func (s *Stage) outputKeys() []string { return []string{s.OutputKey} }

// validate checks the stage definition itself; cross-stage checks (input
// availability, output-key uniqueness) happen in Pipeline.Validate.
func (s *Stage) validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage has no name")
	}
	if s.OutputKey == "" {
		return fmt.Errorf("stage %q has no output key", s.Name)
	}
	promptBound := s.Prompt != nil
	toolBound := s.Run != nil
	if promptBound == toolBound {
		return fmt.Errorf("stage %q must set exactly one of Prompt or Run", s.Name)
	}
	if promptBound && s.Generator == nil {
		return fmt.Errorf("stage %q has a prompt but no generator", s.Name)
	}
	return nil
}

// generatorBound reports whether the stage dispatches to a Generator.
func (s *Stage) generatorBound() bool { return s.Prompt != nil }
