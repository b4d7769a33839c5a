// Package pipeline runs the fixed step sequence.
//
// A run resolves a Plan first: the requested step names, the mode and every
// due step's configuration requirements are validated before anything is
// executed or any checkpoint is touched. Execution is strictly sequential in
// registry order and halts at the first failed step. Checkpoints make a plain
// re-invocation resume after the last completed step.
//
// Modes:
//   - normal: every selected step, skipping those with a matching checkpoint
//   - resume: as normal, optionally starting no earlier than a named step
//   - redo: invalidate a step and everything after it, then run as normal
//   - force: clear every checkpoint and run every selected step
//
// Concurrent runs against one checkpoint directory are refused through an
// advisory lock file.
package pipeline
