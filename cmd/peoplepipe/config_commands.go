package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"peoplepipe/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create the environment file from the template",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(ctx.flags.envFile)
			if target == "" {
				target = config.DefaultEnvFile
			}
			expanded, err := config.ExpandPath(target, "")
			if err != nil {
				return fmt.Errorf("resolve env file path: %w", err)
			}
			target = expanded

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("env file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check env file path: %w", err)
				}
			}

			if err := config.Bootstrap(target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote environment template to %s\n", target)
			fmt.Fprintln(out, "Set TMDB_KEY and PEOPLE_IMAGES_DIR before running the pipeline.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing env file")
	return cmd
}

type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd.Context())
			if err != nil {
				return err
			}
			entries := cfg.Entries()
			if asJSON {
				out := make([]configEntry, 0, len(entries))
				for _, e := range entries {
					out = append(out, configEntry{Key: e.Key, Value: e.Masked()})
				}
				return writeJSON(cmd, out)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				value := e.Masked()
				if value == "" {
					value = "(unset)"
				}
				rows = append(rows, []string{e.Key, value})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Env file: %s\n", cfg.EnvFile)
			fmt.Fprintln(out, renderTable([]string{"Key", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
