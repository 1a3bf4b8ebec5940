package biflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/biflow-io/biflow/state"
)

// Runner executes pipelines and manages the execution chain. It can be
// composed into other structures and supports middleware at both the
// pipeline and the stage level for cross-cutting concerns.
type Runner struct {
	middleware      []Middleware
	stageMiddleware []StageMiddleware
	defaultLogger   Logger
	retry           RetryPolicy
}

// RunnerOption is a function that configures a Runner
type RunnerOption func(*Runner)

// WithMiddleware adds pipeline-level middleware to the runner
func WithMiddleware(middleware ...Middleware) RunnerOption {
	return func(r *Runner) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// WithStageMiddleware adds stage-level middleware to the runner
func WithStageMiddleware(middleware ...StageMiddleware) RunnerOption {
	return func(r *Runner) {
		r.stageMiddleware = append(r.stageMiddleware, middleware...)
	}
}

// WithLogger sets the default logger for the runner
func WithLogger(logger Logger) RunnerOption {
	return func(r *Runner) {
		r.defaultLogger = logger
	}
}

// WithRetryPolicy sets the retry policy applied to generator stages that
// do not define their own.
func WithRetryPolicy(policy RetryPolicy) RunnerOption {
	return func(r *Runner) {
		r.retry = policy
	}
}

// NewRunner creates a new pipeline runner with the given options
func NewRunner(opts ...RunnerOption) *Runner {
	runner := &Runner{
		middleware:      []Middleware{},
		stageMiddleware: []StageMiddleware{},
		defaultLogger:   NewDefaultLogger(),
		retry:           DefaultRetryPolicy(),
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Use adds pipeline-level middleware to the runner's chain
func (r *Runner) Use(middleware ...Middleware) {
	r.middleware = append(r.middleware, middleware...)
}

// Execute runs a pipeline against the given state store. The pipeline is
// validated first; keys already present in the store count as initial
// state. The returned RunResult always carries whatever partial state
// accumulated, plus the failing stage name when the run aborted.
func (r *Runner) Execute(ctx context.Context, pipeline *Pipeline, st *state.Store) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if st == nil {
		st = state.NewStore()
	}
	logger := r.defaultLogger

	result := RunResult{
		RunID:    uuid.NewString(),
		Pipeline: pipeline.Name,
		State:    st,
	}
	start := time.Now()

	if err := pipeline.Validate(st.Keys()...); err != nil {
		result.Error = fmt.Errorf("pipeline %q invalid: %w", pipeline.Name, err)
		result.ExecutionTime = time.Since(start)
		return result, result.Error
	}

	// Build the middleware chain around the core execution.
	var handler RunnerFunc = func(ctx context.Context, p *Pipeline, st *state.Store, logger Logger) error {
		return r.runPipeline(ctx, p, st, logger, &result)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}

	err := handler(ctx, pipeline, st, logger)
	result.ExecutionTime = time.Since(start)
	result.Success = err == nil
	result.Error = err
	return result, err
}

// runPipeline walks the pipeline's steps strictly in order. Nested
// pipelines run as a single step against the same store.
func (r *Runner) runPipeline(ctx context.Context, p *Pipeline, st *state.Store, logger Logger, result *RunResult) error {
	logger.Info("Starting pipeline: %s", p.Name)

	for i, step := range p.Steps {
		switch s := step.(type) {
		case *Pipeline:
			logger.Debug("Entering sub-pipeline %d/%d: %s", i+1, len(p.Steps), s.Name)
			if err := r.runPipeline(ctx, s, st, logger, result); err != nil {
				return err
			}
		case *Stage:
			logger.Debug("Executing stage %d/%d: %s", i+1, len(p.Steps), s.Name)
			if err := r.runStage(ctx, s, st, logger, result); err != nil {
				return fmt.Errorf("stage '%s' failed: %w", s.Name, err)
			}
		default:
			return fmt.Errorf("pipeline %q has a step of unknown kind", p.Name)
		}
	}

	logger.Info("Pipeline completed: %s", p.Name)
	return nil
}

// runStage executes one stage through the stage middleware chain and
// applies the stage's failure semantics: a terminal failure either aborts
// the run or, for ContinueOnError stages, records an error marker in the
// state so downstream stages can detect "no usable output".
func (r *Runner) runStage(ctx context.Context, stage *Stage, st *state.Store, logger Logger, result *RunResult) error {
	result.Stages = append(result.Stages, StageStatus{Name: stage.Name, Status: StatusRunning})
	status := &result.Stages[len(result.Stages)-1]
	start := time.Now()

	var handler StageFunc = func(ctx context.Context, stage *Stage, st *state.Store, logger Logger) error {
		return r.executeStage(ctx, stage, st, logger, status)
	}
	for i := len(r.stageMiddleware) - 1; i >= 0; i-- {
		handler = r.stageMiddleware[i](handler)
	}

	err := handler(ctx, stage, st, logger)
	status.Duration = time.Since(start)
	if err == nil {
		status.Status = StatusCompleted
		return nil
	}

	status.Err = err.Error()
	if stage.ContinueOnError {
		status.Status = StatusDegraded
		logger.Warn("Stage %s failed, continuing: %v", stage.Name, err)
		if putErr := st.PutFrom(ErrKeyPrefix+stage.Name, err.Error(), stage.Name); putErr != nil {
			logger.Error("Failed to record error marker for stage %s: %v", stage.Name, putErr)
		}
		return nil
	}

	status.Status = StatusFailed
	result.FailedStage = stage.Name
	return err
}

// executeStage performs the stage's work. Generator stages retry transient
// upstream failures with exponential backoff up to the policy's bound;
// tool stages run exactly once (resubmitting the same bad input wastes a
// call). The stage's result is stored under its output key, passed
// through Decode first when the stage defines one.
func (r *Runner) executeStage(ctx context.Context, stage *Stage, st *state.Store, logger Logger, status *StageStatus) error {
	inputs := gatherInputs(st, stage.Inputs)

	if !stage.generatorBound() {
		status.Attempts = 1
		out, err := stage.Run(ctx, inputs)
		if err != nil {
			return err
		}
		return st.PutFrom(stage.OutputKey, out, stage.Name)
	}

	prompt, err := stage.Prompt(inputs)
	if err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}

	policy := r.retry
	if stage.Retry != nil {
		policy = *stage.Retry
	}
	delay := policy.InitialInterval

	for attempt := 0; ; attempt++ {
		status.Attempts = attempt + 1

		out, genErr := stage.Generator.Generate(ctx, prompt)
		if genErr == nil {
			var value any = out
			if stage.Decode != nil {
				value, err = stage.Decode(out)
				if err != nil {
					return fmt.Errorf("decoding %s output: %w", stage.Generator.Name(), err)
				}
			}
			return st.PutFrom(stage.OutputKey, value, stage.Name)
		}

		if !IsTransient(genErr) {
			return fmt.Errorf("generator %s: %w", stage.Generator.Name(), genErr)
		}
		if attempt >= policy.MaxRetries {
			return fmt.Errorf("generator %s: retries exhausted after %d attempts: %w",
				stage.Generator.Name(), attempt+1, genErr)
		}

		logger.Warn("Stage %s attempt %d failed (%v), retrying in %s", stage.Name, attempt+1, genErr, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxInterval > 0 && delay > policy.MaxInterval {
			delay = policy.MaxInterval
		}
	}
}

// gatherInputs resolves the declared input keys against the store. Keys
// whose producing stage failed are simply absent, letting degradable
// stages handle "no data" themselves.
func gatherInputs(st *state.Store, keys []string) map[string]any {
	inputs := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := st.Value(key); ok {
			inputs[key] = v
		}
	}
	return inputs
}

// Some example middleware functions

// LoggingMiddleware creates a middleware that logs pipeline execution steps
func LoggingMiddleware() Middleware {
	return func(next RunnerFunc) RunnerFunc {
		return func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error {
			logger.Info("Middleware: Starting pipeline %s", pipeline.Name)

			start := time.Now()
			err := next(ctx, pipeline, st, logger)
			duration := time.Since(start)

			if err != nil {
				logger.Error("Middleware: Pipeline %s failed after %v: %v",
					pipeline.Name, duration.Round(time.Millisecond), err)
			} else {
				logger.Info("Middleware: Pipeline %s completed in %v",
					pipeline.Name, duration.Round(time.Millisecond))
			}

			return err
		}
	}
}

// StateInjectionMiddleware creates a middleware that injects values into
// the state store before the run starts.
func StateInjectionMiddleware(keyValues map[string]any) Middleware {
	return func(next RunnerFunc) RunnerFunc {
		return func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error {
			for key, value := range keyValues {
				if err := st.Put(key, value); err != nil {
					return fmt.Errorf("injecting key %q: %w", key, err)
				}
			}
			return next(ctx, pipeline, st, logger)
		}
	}
}

// TimeLimitMiddleware creates a middleware that enforces a time limit on
// the whole pipeline run.
func TimeLimitMiddleware(limit time.Duration) Middleware {
	return func(next RunnerFunc) RunnerFunc {
		return func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error {
			ctx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()

			return next(ctx, pipeline, st, logger)
		}
	}
}
