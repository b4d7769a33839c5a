package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"peoplepipe/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, tools and step readiness without running anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd, sessionReadOnly)
			if err != nil {
				return err
			}
			defer sess.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(sess.cfg)
			for _, r := range results {
				kind, state := statusOK, "ok"
				if !r.Passed {
					kind, state = statusError, "missing"
					if r.Optional {
						kind, state = statusWarn, "optional"
					}
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, state, r.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Steps", colorize) {
				fmt.Fprintln(out, line)
			}
			var unready []string
			for _, step := range sess.registry.Ordered() {
				handler, ok := sess.handlers[step.Key]
				if !ok {
					continue
				}
				health := handler.HealthCheck(cmd.Context(), sess.cfg)
				kind, state := statusOK, "ready"
				if !health.Ready {
					kind, state = statusWarn, "not ready"
					if !step.Optional {
						unready = append(unready, step.Name)
					}
				}
				fmt.Fprintln(out, renderStatusLine(step.Name, kind, state, health.Detail, colorize))
			}

			failed := preflight.Failed(results)
			if len(failed) == 0 && len(unready) == 0 {
				fmt.Fprintln(out, "\nAll checks passed.")
				return nil
			}
			names := make([]string, 0, len(failed))
			for _, r := range failed {
				names = append(names, r.Name)
			}
			names = append(names, unready...)
			return fmt.Errorf("not ready: %s", strings.Join(names, ", "))
		},
	}
}
