package biflow

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/biflow-io/biflow/state"
)

// Generator is the capability a generator-backed stage depends on: it sends
// a prompt to an external model and returns the model's text. Implementations
// live in the llm package; tests use a scripted mock.
type Generator interface {
	// Generate sends a prompt to the model and returns the response text.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name returns the generator's identifier (provider name).
	Name() string
}

// PromptFunc assembles the deterministic payload sent to a Generator.
// It receives the values of the stage's declared input keys; keys whose
// producing stage failed are absent from the map.
type PromptFunc func(inputs map[string]any) (string, error)

// ToolFunc is the unit of work for a tool-bound stage. The returned value
// is stored verbatim under the stage's output key and must not be mutated
// afterwards.
type ToolFunc func(ctx context.Context, inputs map[string]any) (any, error)

// Logger provides a simple interface for pipeline logging
type Logger interface {
	// Debug logs a message at debug level
	Debug(format string, args ...interface{})

	// Info logs a message at info level
	Info(format string, args ...interface{})

	// Warn logs a message at warning level
	Warn(format string, args ...interface{})

	// Error logs a message at error level
	Error(format string, args ...interface{})
}

// RunnerFunc is the core function type for executing a pipeline.
type RunnerFunc func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error

// Middleware represents a function that wraps pipeline execution.
// Middleware can perform actions before and after a run, inject data
// into the state store, or skip execution entirely.
type Middleware func(next RunnerFunc) RunnerFunc

// StageFunc is the core function type for executing a single stage.
type StageFunc func(ctx context.Context, stage *Stage, st *state.Store, logger Logger) error

// StageMiddleware represents a function that wraps stage execution.
// It allows performing operations before and after each stage executes.
type StageMiddleware func(next StageFunc) StageFunc

// RetryPolicy bounds the retry behavior for transient generator failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
}

// DefaultRetryPolicy returns the retry policy applied to generator stages
// that do not specify their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		Multiplier:      2.0,
	}
}

// StageStatus records the outcome of one stage within a run.
type StageStatus struct {
	Name     string
	Status   string
	Attempts int
	Duration time.Duration
	Err      string
}

// RunResult contains the result of a pipeline execution.
type RunResult struct {
	// RunID uniquely identifies this run.
	RunID string
	// Pipeline is the name of the executed pipeline.
	Pipeline string
	// Success is true when every stage completed (or degraded gracefully).
	Success bool
	// FailedStage names the stage that aborted the run, if any.
	FailedStage string
	// Error is the terminal error, if any.
	Error error
	// ExecutionTime is the total wall-clock duration of the run.
	ExecutionTime time.Duration
	// Stages holds per-stage statuses in execution order.
	Stages []StageStatus
	// State is the final (possibly partial) state store of the run.
	State *state.Store
}

// Status values for pipeline stages
const (
	// StatusPending means not yet started
	StatusPending = "pending"

	// StatusRunning means currently in progress
	StatusRunning = "running"

	// StatusCompleted means successfully finished
	StatusCompleted = "completed"

	// StatusFailed means execution failed
	StatusFailed = "failed"

	// StatusDegraded means the stage failed but the run continued
	StatusDegraded = "degraded"
)

// ErrKeyPrefix prefixes the state key under which a failed stage's error
// marker is recorded when the run continues past it.
const ErrKeyPrefix = "error:"

// transienter is implemented by errors that know whether they are safe
// to retry (see llm.ProviderError).
type transienter interface {
	Transient() bool
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var te transienter
	if errors.As(err, &te) {
		return te.Transient()
	}
	return false
}
