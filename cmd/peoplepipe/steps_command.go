package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"peoplepipe/internal/config"
	"peoplepipe/internal/steps"
)

func newStepsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "steps",
		Short:       "Show the step catalog in execution order",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := steps.Default()
			rows := make([][]string, 0, len(registry.Ordered()))
			for _, step := range registry.Ordered() {
				rows = append(rows, []string{
					strconv.Itoa(step.Order),
					step.Name,
					strings.Join(step.Aliases, ", "),
					stepKind(step),
					stepFlags(step),
					step.Title,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Step", "Aliases", "Kind", "Flags", "Title"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func stepKind(step steps.Step) string {
	if step.Native() {
		return "native"
	}
	cfg := config.Default()
	return step.Command(&cfg).Script
}

func stepFlags(step steps.Step) string {
	var flags []string
	if step.AlwaysRuns {
		flags = append(flags, "always")
	}
	if step.RequiresRepo {
		flags = append(flags, "repo")
	}
	if step.Optional {
		flags = append(flags, "optional")
	}
	return strings.Join(flags, ",")
}
