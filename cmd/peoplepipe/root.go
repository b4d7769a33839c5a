package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"peoplepipe/internal/pipeline"
	"peoplepipe/internal/services"
)

// runFlags select steps and mode for the root command.
type runFlags struct {
	all    bool
	steps  []string
	from   string
	redo   string
	force  bool
	list   bool
	json   bool
	dryRun bool
}

// request resolves the flags into a pipeline request. Precedence is
// force, then redo, then from, then an explicit selection; no flags at all
// resumes over every step.
func (f *runFlags) request() pipeline.Request {
	req := pipeline.Request{Steps: f.steps, DryRun: f.dryRun}
	switch {
	case f.force:
		req.Mode = pipeline.ModeForce
	case strings.TrimSpace(f.redo) != "":
		req.Mode = pipeline.ModeRedo
		req.Redo = f.redo
	case strings.TrimSpace(f.from) != "":
		req.Mode = pipeline.ModeResume
		req.From = f.from
	case f.all || len(f.steps) > 0:
		req.Mode = pipeline.ModeNormal
	default:
		req.Mode = pipeline.ModeResume
	}
	return req
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext(&globalFlags{}))
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	flags := ctx.flags
	run := &runFlags{}

	rootCmd := &cobra.Command{
		Use:   "peoplepipe",
		Short: "Run the people-poster pipeline",
		Long: `Run the people-poster pipeline in its fixed order:
ensure_repo, name_check, missing, tmdb, remove_bg, image_check, update,
sync_images, readme, sync_md, push.

With no flags the run resumes: steps with a matching checkpoint are skipped.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if run.list {
				return runList(cmd, ctx, run.json)
			}
			return runPipeline(cmd, ctx, run.request())
		},
	}
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", services.ErrUsage, err)
	})

	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "Environment file (default config/.env)")
	pf.StringVar(&flags.repoRoot, "repo-root", "", "People-images repository root (PEOPLE_IMAGES_DIR)")
	pf.StringVar(&flags.style, "style", "", "Poster style for readme and sync_md (ORCH_STYLE)")
	pf.StringVar(&flags.logsDir, "logs-dir", "", "Kometa logs directory (ORCH_LOGS_DIR)")
	pf.StringVar(&flags.branch, "branch", "", "Branch to sync and publish (PEOPLE_BRANCH)")

	f := rootCmd.Flags()
	f.BoolVar(&run.all, "all", false, "Run every step, skipping those already checkpointed")
	f.StringSliceVar(&run.steps, "steps", nil, "Run only these steps (names or aliases, comma separated)")
	f.StringVar(&run.from, "from", "", "Resume starting no earlier than this step")
	f.StringVar(&run.redo, "redo", "", "Invalidate this step and every later one, then run")
	f.BoolVar(&run.force, "force", false, "Clear all checkpoints and run every selected step")
	f.BoolVar(&run.list, "list", false, "Show each step's checkpoint status and exit")
	f.BoolVar(&run.json, "json", false, "With --list, print JSON")
	f.BoolVar(&run.dryRun, "dry-run", false, "Print the commands that would run without executing them")
	rootCmd.MarkFlagsMutuallyExclusive("all", "steps")
	rootCmd.MarkFlagsMutuallyExclusive("list", "dry-run")

	rootCmd.AddCommand(newStepsCommand())
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newTestNotifyCommand(ctx))

	return rootCmd
}
