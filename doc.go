// Package biflow provides a sequential pipeline engine for LLM-assisted
// business-intelligence requests.
//
// A Pipeline is an ordered list of steps sharing one append-only state
// store. Each step is either a Stage (a single unit of work: a prompt
// dispatched to a text Generator, or a deterministic tool function) or a
// nested Pipeline, which the parent treats exactly like a stage.
//
// Core components:
//   - Pipeline: the top-level container of steps, run strictly in order
//   - Stage: one unit of work with declared input keys and one output key
//   - Runner: executes pipelines with middleware, retry and backoff
//   - state.Store: the type-safe key-value state threaded through a run
//
// Generator stages retry transient upstream failures (rate limits,
// timeouts) with exponential backoff; tool stages never retry. Stages
// marked ContinueOnError record an error marker in state instead of
// aborting the run, so downstream steps can degrade gracefully.
package biflow
