// Package notifications pushes run outcomes to ntfy.
//
// NewService returns a no-op when ORCH_NTFY_TOPIC is unset, so callers notify
// unconditionally. Delivery failures are returned for the caller to log; they
// never change a run's result.
package notifications
