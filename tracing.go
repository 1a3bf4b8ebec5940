package biflow

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/biflow-io/biflow/state"
)

const tracerName = "github.com/biflow-io/biflow"

// TracingMiddleware returns pipeline-level middleware that opens a span
// per run.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(tracerName)
	return func(next RunnerFunc) RunnerFunc {
		return func(ctx context.Context, pipeline *Pipeline, st *state.Store, logger Logger) error {
			ctx, span := tracer.Start(ctx, "pipeline.run",
				trace.WithAttributes(attribute.String("pipeline.name", pipeline.Name)))
			defer span.End()

			err := next(ctx, pipeline, st, logger)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}

// StageTracingMiddleware returns stage-level middleware that opens a span
// per stage execution.
func StageTracingMiddleware(tp trace.TracerProvider) StageMiddleware {
	tracer := tp.Tracer(tracerName)
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, stage *Stage, st *state.Store, logger Logger) error {
			ctx, span := tracer.Start(ctx, "pipeline.stage",
				trace.WithAttributes(
					attribute.String("stage.name", stage.Name),
					attribute.String("stage.output_key", stage.OutputKey),
				))
			defer span.End()

			err := next(ctx, stage, st, logger)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
