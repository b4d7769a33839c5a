package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"peoplepipe/internal/deps"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/notifications"
	"peoplepipe/internal/pipeline"
	"peoplepipe/internal/preflight"
)

func runPipeline(cmd *cobra.Command, ctx *commandContext, req pipeline.Request) error {
	mode := sessionWritable
	if req.DryRun {
		mode = sessionReadOnly
	}
	sess, err := ctx.openSession(cmd, mode)
	if err != nil {
		return err
	}
	defer sess.Close()

	if !req.DryRun {
		warnMissingTools(sess)
	}

	start := time.Now()
	result, runErr := sess.runner.Run(cmd.Context(), req)
	if len(result.Outcomes) > 0 && !result.DryRun {
		renderSummary(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
		notifyRun(cmd.Context(), sess, result, runErr, time.Since(start))
	}
	return runErr
}

// progressPrinter announces each step as it starts.
func progressPrinter(out io.Writer) func(pipeline.Outcome) {
	colorize := shouldColorize(out)
	return func(o pipeline.Outcome) {
		if o.State != pipeline.StateRunning {
			return
		}
		fmt.Fprintln(out, renderStatusLine(o.Step.Name, statusInfo, string(o.State), o.Step.Title, colorize))
	}
}

// warnMissingTools flags required executables absent from PATH before any
// step runs. Steps needing them still fail on their own.
func warnMissingTools(sess *session) {
	missing := deps.Missing(preflight.CheckSystemDeps(sess.cfg))
	if len(missing) == 0 {
		return
	}
	names := make([]string, 0, len(missing))
	for _, m := range missing {
		names = append(names, m.Command)
	}
	logging.WarnWithContext(sess.logger, "required tools not found", "tools_missing",
		logging.Strings("tools", names),
		logging.String(logging.FieldImpact, "steps that invoke them will fail"),
		logging.String(logging.FieldErrorHint, "install them or set ORCH_PYTHON; run peoplepipe check"),
	)
}

// notifyRun reports the outcome to ntfy. Interrupted runs are not reported
// and delivery failures only warn.
func notifyRun(ctx context.Context, sess *session, result pipeline.Result, runErr error, elapsed time.Duration) {
	if !notifications.Enabled(sess.notifier) || pipeline.IsInterrupted(runErr) {
		return
	}
	var err error
	if result.Failed() {
		err = sess.notifier.NotifyRunFailed(ctx, result.FailedStep, runErr)
	} else {
		err = sess.notifier.NotifyRunCompleted(ctx, notifications.RunSummary{
			RunID:     result.RunID,
			Mode:      string(result.Mode),
			Completed: result.Count(pipeline.StateCompleted),
			Skipped:   result.Count(pipeline.StateSkipped),
			Duration:  elapsed,
		})
	}
	if err != nil {
		logging.WarnWithContext(sess.logger, "notification failed", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run result is unaffected"),
			logging.String(logging.FieldErrorHint, "check ORCH_NTFY_TOPIC"),
		)
	}
}

func renderSummary(out io.Writer, result pipeline.Result, colorize bool) {
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader(fmt.Sprintf("Run %s (%s)", shortID(result.RunID), result.Mode), colorize) {
		fmt.Fprintln(out, line)
	}
	for _, o := range result.Outcomes {
		kind := statusInfo
		message := ""
		switch o.State {
		case pipeline.StateCompleted:
			kind = statusOK
			message = o.Duration.Round(100 * time.Millisecond).String()
		case pipeline.StateSkipped:
			kind = statusWarn
			message = o.Reason
		case pipeline.StateFailed:
			kind = statusError
			if o.Err != nil {
				message = o.Err.Error()
			}
		case pipeline.StatePending:
			message = "not attempted"
		}
		fmt.Fprintln(out, renderStatusLine(o.Step.Name, kind, string(o.State), message, colorize))
	}
	if result.Failed() {
		fmt.Fprintf(out, "\nRun halted at %s; fix the cause and re-run to resume.\n", result.FailedStep)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
