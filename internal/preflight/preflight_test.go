package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"peoplepipe/internal/config"
	"peoplepipe/internal/services"
	"peoplepipe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckCreatableDirectory(t *testing.T) {
	base := t.TempDir()
	missing := filepath.Join(base, "state", "checkpoints")
	result := CheckCreatableDirectory("test", missing)
	if !result.Passed {
		t.Fatalf("expected pass for creatable dir, got: %s", result.Detail)
	}
	if _, err := os.Stat(filepath.Join(base, "state")); !os.IsNotExist(err) {
		t.Fatal("check must not create directories")
	}

	file := filepath.Join(base, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckCreatableDirectory("test", filepath.Join(file, "sub")); result.Passed {
		t.Fatal("expected failure under a file")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRepoStructure(t *testing.T) {
	root := t.TempDir()
	categories := []string{"bw", "transparent", "original"}
	for _, c := range categories[:2] {
		if err := os.MkdirAll(filepath.Join(root, c), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	structure, err := CheckRepoStructure(root, categories)
	if !errors.Is(err, services.ErrRepoInvalid) {
		t.Fatalf("expected ErrRepoInvalid, got %v", err)
	}
	if len(structure.Missing) != 1 || structure.Missing[0] != "original" {
		t.Fatalf("unexpected missing folders: %v", structure.Missing)
	}

	if err := os.MkdirAll(filepath.Join(root, "original"), 0o755); err != nil {
		t.Fatal(err)
	}
	structure, err = CheckRepoStructure(root, categories)
	if err != nil || !structure.OK() {
		t.Fatalf("expected complete structure, got %v %v", structure, err)
	}
}

func TestCheckRepoStructure_MissingRoot(t *testing.T) {
	_, err := CheckRepoStructure(filepath.Join(t.TempDir(), "absent"), config.DefaultCategories)
	if !errors.Is(err, services.ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
	_, err = CheckRepoStructure("", config.DefaultCategories)
	if !errors.Is(err, services.ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound for empty root, got %v", err)
	}
}

func TestRunAllReportsOptionalPowerShell(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("python3", "git"))
	cfg.Orchestrator.PowerShell = "peoplepipe-no-such-pwsh"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(cfg)
	var found bool
	for _, r := range results {
		if r.Name == "PowerShell" {
			found = true
			if r.Passed || !r.Optional {
				t.Fatalf("expected optional failing PowerShell check, got %#v", r)
			}
		}
		if r.Name == "PowerShell" {
			continue
		}
		if !r.Passed {
			t.Fatalf("expected %s to pass, got %s", r.Name, r.Detail)
		}
	}
	if !found {
		t.Fatal("PowerShell check missing from results")
	}
	for _, r := range Failed(results) {
		if r.Name == "PowerShell" {
			t.Fatal("optional check must not be reported as failed")
		}
	}
}
