package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"peoplepipe/internal/pipeline"
)

type listEntry struct {
	Order       int        `json:"order"`
	Step        string     `json:"step"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	AlwaysRuns  bool       `json:"always_runs"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RunID       string     `json:"run_id,omitempty"`
}

func listStatus(s pipeline.StepStatus) string {
	switch {
	case s.Done:
		return "done"
	case s.Stale:
		return "stale"
	default:
		return "pending"
	}
}

func runList(cmd *cobra.Command, ctx *commandContext, asJSON bool) error {
	sess, err := ctx.openSession(cmd, sessionReadOnly)
	if err != nil {
		return err
	}
	defer sess.Close()

	statuses, err := sess.runner.List(cmd.Context())
	if err != nil {
		return err
	}

	entries := make([]listEntry, 0, len(statuses))
	for _, s := range statuses {
		entry := listEntry{
			Order:      s.Step.Order,
			Step:       s.Step.Name,
			Title:      s.Step.Title,
			Status:     listStatus(s),
			AlwaysRuns: s.Step.AlwaysRuns,
			RunID:      s.RunID,
		}
		if !s.CompletedAt.IsZero() {
			at := s.CompletedAt
			entry.CompletedAt = &at
		}
		entries = append(entries, entry)
	}
	if asJSON {
		return writeJSON(cmd, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := e.Status
		if e.AlwaysRuns {
			status += " (always runs)"
		}
		completed := ""
		if e.CompletedAt != nil {
			completed = e.CompletedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{strconv.Itoa(e.Order), e.Step, e.Title, status, completed, shortID(e.RunID)})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Step", "Title", "Status", "Completed", "Run"},
		rows,
		[]columnAlignment{alignRight},
	))
	fmt.Fprintf(out, "Checkpoints: %s (%s)\n", sess.cfg.Orchestrator.CheckpointDir, strings.ToLower(sess.cfg.Orchestrator.CheckpointBackend))
	return nil
}
