package steps

import (
	"peoplepipe/internal/config"
)

func logsDir(cfg *config.Config) []string { return []string{cfg.Orchestrator.KometaLogsDir} }

func repoRoot(cfg *config.Config) []string { return []string{cfg.Repo.Root} }

func repoStyle(cfg *config.Config) []string {
	return []string{cfg.Repo.Root, cfg.Orchestrator.Style}
}

// catalog is the fixed execution order. Positions are assigned from the slice
// index by NewRegistry.
func catalog() []Step {
	return []Step{
		{
			Key:          EnsureRepo,
			Name:         "ensure_repo",
			Title:        "Validate People-Images repo",
			Aliases:      []string{"ensure", "validate"},
			AlwaysRuns:   true,
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
		},
		{
			Key:          NameCheck,
			Name:         "name_check",
			Title:        "Scan Kometa logs for missing names",
			Aliases:      []string{"names", "namecheck"},
			RequiredKeys: []string{"ORCH_LOGS_DIR"},
			Command: func(cfg *config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "name_checker_dir.py",
					Args: []string{"--input_directory", cfg.Orchestrator.KometaLogsDir}}
			},
			Inputs: logsDir,
		},
		{
			Key:          Missing,
			Name:         "missing",
			Title:        "Build missing-people lists",
			Aliases:      []string{"missing_people"},
			RequiredKeys: []string{"ORCH_LOGS_DIR"},
			Command: func(cfg *config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "get_missing_people.py",
					Args: []string{"--input_directory", cfg.Orchestrator.KometaLogsDir}}
			},
			Inputs: logsDir,
		},
		{
			Key:          TMDB,
			Name:         "tmdb",
			Title:        "Download posters via TMDB",
			Aliases:      []string{"tmdb_people", "posters"},
			RequiredKeys: []string{"TMDB_KEY"},
			Command: func(*config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "tmdb-people.py"}
			},
		},
		{
			Key:     RemoveBG,
			Name:    "remove_bg",
			Title:   "Remove backgrounds",
			Aliases: []string{"bg", "removebg"},
			Command: func(*config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "sel_remove_bg.py"}
			},
		},
		{
			Key:      ImageCheck,
			Name:     "image_check",
			Title:    "Check processed images",
			Aliases:  []string{"check", "imagecheck"},
			Optional: true,
			Command: func(*config.Config) Invocation {
				return Invocation{Interpreter: PowerShell, Script: "image_check.ps1"}
			},
		},
		{
			Key:          Update,
			Name:         "update",
			Title:        "Sync category repos to remote",
			Aliases:      []string{"pull", "sync"},
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
			Inputs: func(cfg *config.Config) []string {
				return []string{cfg.Repo.Root, cfg.Repo.Remote, cfg.Repo.Branch}
			},
		},
		{
			Key:          SyncImages,
			Name:         "sync_images",
			Title:        "Sync images to repo folders",
			Aliases:      []string{"images"},
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
			Command: func(cfg *config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "sync_people_images.py",
					Args: []string{"--dest_root", cfg.Repo.Root}}
			},
			Inputs: repoRoot,
		},
		{
			Key:          Readme,
			Name:         "readme",
			Title:        "Generate README grid",
			Aliases:      []string{"auto_readme"},
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
			Command: func(cfg *config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "auto_readme.py",
					Args: []string{"--style", cfg.Orchestrator.Style, "--directory", cfg.StyleDir()}}
			},
			Inputs: repoStyle,
		},
		{
			Key:          SyncMD,
			Name:         "sync_md",
			Title:        "Mirror *.md back to config",
			Aliases:      []string{"md"},
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
			Command: func(cfg *config.Config) Invocation {
				return Invocation{Interpreter: Python, Script: "sync_md.py",
					Args: []string{"--src", cfg.StyleDir(), "--dst", cfg.PeopleDirsStyleDir(), "--pattern", "*.md"}}
			},
			Inputs: repoStyle,
		},
		{
			Key:          Push,
			Name:         "push",
			Title:        "Commit & push changes upstream",
			Aliases:      []string{"publish"},
			AlwaysRuns:   true,
			RequiresRepo: true,
			RequiredKeys: []string{"PEOPLE_IMAGES_DIR"},
		},
	}
}
