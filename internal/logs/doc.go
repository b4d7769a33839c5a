// Package logs reads the run log for `peoplepipe logs`: the last N lines,
// then optionally every line appended afterwards until the context ends.
package logs
