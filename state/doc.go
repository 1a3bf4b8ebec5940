// Package state provides the shared key-value state threaded through a
// pipeline run.
//
// A Store is created fresh per request, populated monotonically stage by
// stage, and discarded once the final keys have been extracted. Writes are
// append-only: putting a key that already exists fails, which is how the
// engine guarantees that a stage's output key is written exactly once and
// that earlier stages' outputs are never mutated. Every entry carries
// provenance metadata recording which stage wrote it and when.
package state
