package biflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biflow-io/biflow/state"
)

// scriptedGenerator returns queued outcomes in order, then keeps
// returning the last one.
type scriptedGenerator struct {
	outputs []string
	errs    []error
	calls   int
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(_ context.Context, _ string) (string, error) {
	i := g.calls
	if i >= len(g.outputs) {
		i = len(g.outputs) - 1
	}
	g.calls++
	return g.outputs[i], g.errs[i]
}

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Transient() bool { return true }

// fastRetry keeps tests quick.
func fastRetry(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func toolStage(name, outputKey string, inputs []string, fn ToolFunc) *Stage {
	return &Stage{Name: name, Inputs: inputs, OutputKey: outputKey, Run: fn}
}

func TestExecuteRunsStagesInOrder(t *testing.T) {
	var order []string

	p := NewPipeline("order", "").
		AddStage(toolStage("first", "a", nil, func(ctx context.Context, inputs map[string]any) (any, error) {
			order = append(order, "first")
			return "alpha", nil
		})).
		AddStage(toolStage("second", "b", []string{"a"}, func(ctx context.Context, inputs map[string]any) (any, error) {
			order = append(order, "second")
			return inputs["a"].(string) + "-beta", nil
		}))

	st := state.NewStore()
	result, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"first", "second"}, order)

	b, err := state.Get[string](st, "b")
	require.NoError(t, err)
	assert.Equal(t, "alpha-beta", b)

	require.Len(t, result.Stages, 2)
	assert.Equal(t, StatusCompleted, result.Stages[0].Status)
	assert.Equal(t, StatusCompleted, result.Stages[1].Status)
}

func TestGeneratorStageStoresOutput(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"SELECT 1"}, errs: []error{nil}}

	p := NewPipeline("gen", "").AddStage(&Stage{
		Name:      "sql",
		Inputs:    []string{"question"},
		OutputKey: "sql_query",
		Prompt: func(inputs map[string]any) (string, error) {
			return fmt.Sprintf("question: %v", inputs["question"]), nil
		},
		Generator: gen,
	})

	st := state.NewStore()
	require.NoError(t, st.Put("question", "how many?"))

	_, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)

	out, err := state.Get[string](st, "sql_query")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)
	assert.Equal(t, 1, gen.calls)
}

func TestGeneratorStageDecode(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"  padded  "}, errs: []error{nil}}

	p := NewPipeline("decode", "").AddStage(&Stage{
		Name:      "clean",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
		Decode: func(raw string) (any, error) {
			return strings.TrimSpace(raw), nil
		},
	})

	st := state.NewStore()
	_, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)

	out, err := state.Get[string](st, "out")
	require.NoError(t, err)
	assert.Equal(t, "padded", out)
}

func TestGeneratorStageDecodeFailureIsTerminal(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"not json"}, errs: []error{nil}}

	p := NewPipeline("decode-fail", "").AddStage(&Stage{
		Name:      "parse",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
		Decode: func(raw string) (any, error) {
			return nil, fmt.Errorf("bad payload")
		},
	})

	result, err := NewRunner(WithRetryPolicy(fastRetry(3))).Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Equal(t, "parse", result.FailedStage)
	assert.Equal(t, 1, gen.calls, "decode failures must not be retried")
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{"", "", "ok"},
		errs:    []error{transientErr{"overloaded"}, transientErr{"overloaded"}, nil},
	}

	p := NewPipeline("retry", "").AddStage(&Stage{
		Name:      "flaky",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
	})

	st := state.NewStore()
	result, err := NewRunner(WithRetryPolicy(fastRetry(3))).Execute(context.Background(), p, st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, gen.calls)
	require.Len(t, result.Stages, 1)
	assert.Equal(t, 3, result.Stages[0].Attempts)

	out, err := state.Get[string](st, "out")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRetryExhaustion(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{""},
		errs:    []error{transientErr{"overloaded"}},
	}

	p := NewPipeline("exhaust", "").AddStage(&Stage{
		Name:      "flaky",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
	})

	result, err := NewRunner(WithRetryPolicy(fastRetry(2))).Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, "flaky", result.FailedStage)
	assert.Equal(t, 3, gen.calls, "initial attempt plus two retries")
	assert.Equal(t, StatusFailed, result.Stages[0].Status)
}

func TestNonTransientErrorsAreNotRetried(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{""},
		errs:    []error{errors.New("invalid api key")},
	}

	p := NewPipeline("fatal", "").AddStage(&Stage{
		Name:      "auth",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
	})

	result, err := NewRunner(WithRetryPolicy(fastRetry(5))).Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, result.Stages[0].Attempts)
}

func TestStageRetryOverridesRunnerPolicy(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{""},
		errs:    []error{transientErr{"overloaded"}},
	}
	noRetries := fastRetry(0)

	p := NewPipeline("override", "").AddStage(&Stage{
		Name:      "flaky",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "p", nil },
		Generator: gen,
		Retry:     &noRetries,
	})

	_, err := NewRunner(WithRetryPolicy(fastRetry(5))).Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func TestContinueOnErrorDegrades(t *testing.T) {
	var ranAfter bool

	p := NewPipeline("degrade", "").
		AddStage(&Stage{
			Name:      "optional",
			OutputKey: "extra",
			Run: func(ctx context.Context, inputs map[string]any) (any, error) {
				return nil, errors.New("no can do")
			},
			ContinueOnError: true,
		}).
		AddStage(toolStage("after", "done", nil, func(ctx context.Context, inputs map[string]any) (any, error) {
			ranAfter = true
			return true, nil
		}))

	st := state.NewStore()
	result, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, ranAfter, "later stages must still run")
	assert.Equal(t, StatusDegraded, result.Stages[0].Status)
	assert.False(t, st.Has("extra"))

	marker, err := state.Get[string](st, ErrKeyPrefix+"optional")
	require.NoError(t, err)
	assert.Contains(t, marker, "no can do")
}

func TestNestedPipelineSharesState(t *testing.T) {
	inner := NewPipeline("inner", "").
		AddStage(toolStage("inner_stage", "inner_out", []string{"outer_out"},
			func(ctx context.Context, inputs map[string]any) (any, error) {
				return inputs["outer_out"].(int) + 1, nil
			}))

	p := NewPipeline("outer", "").
		AddStage(toolStage("outer_stage", "outer_out", nil,
			func(ctx context.Context, inputs map[string]any) (any, error) { return 1, nil })).
		AddPipeline(inner)

	st := state.NewStore()
	result, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)
	assert.True(t, result.Success)

	out, err := state.Get[int](st, "inner_out")
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestValidateRejectsDuplicateOutputKeys(t *testing.T) {
	p := NewPipeline("dup", "").
		AddStage(toolStage("a", "same", nil, func(context.Context, map[string]any) (any, error) { return 1, nil })).
		AddStage(toolStage("b", "same", nil, func(context.Context, map[string]any) (any, error) { return 2, nil }))

	_, err := NewRunner().Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same")
}

func TestValidateRejectsUnsatisfiedInputs(t *testing.T) {
	p := NewPipeline("missing", "").
		AddStage(toolStage("a", "out", []string{"never_written"},
			func(context.Context, map[string]any) (any, error) { return 1, nil }))

	_, err := NewRunner().Execute(context.Background(), p, state.NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never_written")
}

func TestValidateAcceptsInitialStateKeys(t *testing.T) {
	p := NewPipeline("initial", "").
		AddStage(toolStage("a", "out", []string{"question"},
			func(ctx context.Context, inputs map[string]any) (any, error) {
				return inputs["question"], nil
			}))

	st := state.NewStore()
	require.NoError(t, st.Put("question", "hello"))

	_, err := NewRunner().Execute(context.Background(), p, st)
	require.NoError(t, err)
}

func TestStageMustBindExactlyOneExecutor(t *testing.T) {
	p := NewPipeline("both", "").AddStage(&Stage{
		Name:      "bad",
		OutputKey: "out",
		Prompt:    func(map[string]any) (string, error) { return "", nil },
		Generator: &scriptedGenerator{outputs: []string{""}, errs: []error{nil}},
		Run:       func(context.Context, map[string]any) (any, error) { return nil, nil },
	})

	_, err := NewRunner().Execute(context.Background(), p, state.NewStore())
	assert.Error(t, err)
}

func TestStateInjectionMiddleware(t *testing.T) {
	p := NewPipeline("inject", "").
		AddStage(toolStage("echo", "out", nil,
			func(ctx context.Context, inputs map[string]any) (any, error) { return "done", nil }))

	st := state.NewStore()
	runner := NewRunner(WithMiddleware(StateInjectionMiddleware(map[string]any{"seed": 7})))

	_, err := runner.Execute(context.Background(), p, st)
	require.NoError(t, err)

	seed, err := state.Get[int](st, "seed")
	require.NoError(t, err)
	assert.Equal(t, 7, seed)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(transientErr{"overloaded"}))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", transientErr{"overloaded"})))
}
