// Package services defines shared utilities consumed by the pipeline runner,
// the step registry, and the repository synchronizer.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, step names, and invocation modes for
//     logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (configuration, repository, step execution, sync, publish) and map them
//     to CLI exit codes.
//
// Use these helpers when wiring new step logic so operational behaviour (error
// classification, observability) stays uniform across the pipeline.
package services
