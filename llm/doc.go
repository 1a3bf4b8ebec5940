// Package llm provides text generators backed by hosted model providers.
//
// The model call is an irreducible external dependency: every generator
// exposes the same capability, Generate(ctx, prompt) -> text, so pipeline
// logic stays testable without a live model (see Mock). Provider failures
// are wrapped in ProviderError, which classifies rate limits and server
// errors as transient for the runner's retry logic.
package llm
