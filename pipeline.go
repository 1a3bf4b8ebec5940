package biflow

import "fmt"

// Step is a single unit within a pipeline's ordered list: either a *Stage
// or a nested *Pipeline. A nested pipeline is indistinguishable from a
// stage from its parent's point of view; it consumes the same shared state
// and contributes its own output keys back into it.
type Step interface {
	// StepName returns the step's identifier.
	StepName() string

	// outputKeys returns every state key the step (recursively) produces.
	outputKeys() []string
}

// Pipeline is an ordered sequence of steps forming a complete process.
// Steps run strictly sequentially against one shared state store: no step
// starts before the previous completes, because each may depend on state
// the previous produced.
type Pipeline struct {
	// Name is the identifier for the pipeline.
	Name string
	// Description provides details about the pipeline's purpose.
	Description string
	// Steps contains the pipeline's steps in execution order.
	Steps []Step
}

// NewPipeline creates a new pipeline with the given name and description.
func NewPipeline(name, description string) *Pipeline {
	return &Pipeline{
		Name:        name,
		Description: description,
		Steps:       []Step{},
	}
}

// AddStage appends a stage to the pipeline.
func (p *Pipeline) AddStage(stage *Stage) *Pipeline {
	p.Steps = append(p.Steps, stage)
	return p
}

// AddPipeline appends a nested pipeline as a single step.
func (p *Pipeline) AddPipeline(sub *Pipeline) *Pipeline {
	p.Steps = append(p.Steps, sub)
	return p
}

// StepName implements Step.
func (p *Pipeline) StepName() string { return p.Name }

func (p *Pipeline) outputKeys() []string {
	var keys []string
	for _, step := range p.Steps {
		keys = append(keys, step.outputKeys()...)
	}
	return keys
}

// stages returns the pipeline's stages flattened in execution order.
func (p *Pipeline) stages() []*Stage {
	var out []*Stage
	for _, step := range p.Steps {
		switch s := step.(type) {
		case *Stage:
			out = append(out, s)
		case *Pipeline:
			out = append(out, s.stages()...)
		}
	}
	return out
}

// Validate checks the pipeline before execution: every stage definition is
// well-formed, every output key is unique across the whole (flattened)
// pipeline, and every declared input is produced by an earlier stage or
// must come from the initial state.
//
// initialKeys lists the keys expected to be present before the run starts.
func (p *Pipeline) Validate(initialKeys ...string) error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps to execute", p.Name)
	}

	available := make(map[string]bool, len(initialKeys))
	for _, k := range initialKeys {
		available[k] = true
	}

	produced := make(map[string]string)
	for _, stage := range p.stages() {
		if err := stage.validate(); err != nil {
			return err
		}
		if prev, dup := produced[stage.OutputKey]; dup {
			return fmt.Errorf("output key %q produced by both %q and %q", stage.OutputKey, prev, stage.Name)
		}
		for _, in := range stage.Inputs {
			if !available[in] {
				return fmt.Errorf("stage %q reads key %q which no earlier stage produces", stage.Name, in)
			}
		}
		produced[stage.OutputKey] = stage.Name
		available[stage.OutputKey] = true
	}
	return nil
}
