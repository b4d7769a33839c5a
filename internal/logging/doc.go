// Package logging assembles the structured slog loggers used by the pipeline
// runner and its collaborators.
//
// It owns the console and JSON handlers, level parsing, and the fanout that
// copies every record into the run log file. Context helpers tag lines with
// the run ID, step and mode so a single run can be followed through
// peoplepipe.log. NewNop serves tests and wiring code that cannot fail.
package logging
