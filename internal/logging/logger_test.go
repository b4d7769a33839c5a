package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"peoplepipe/internal/config"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
)

func TestNewFromConfigWritesRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.RunLogDir = filepath.Join(t.TempDir(), "logs")

	logger, closeLog, err := logging.NewFromConfig(&cfg, io.Discard)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("run started", logging.String(logging.FieldRunID, "abc"))
	if err := closeLog(); err != nil {
		t.Fatalf("close run log: %v", err)
	}
	if err := closeLog(); err == nil {
		t.Fatal("expected second close to report the file already closed")
	}

	data, err := os.ReadFile(filepath.Join(cfg.Orchestrator.RunLogDir, logging.RunLogName))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("run log is not JSON: %v (%q)", err, data)
	}
	if record["msg"] != "run started" || record["run_id"] != "abc" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestNewConsoleFromConfigSkipsRunLog(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.RunLogDir = filepath.Join(t.TempDir(), "logs")

	var buf bytes.Buffer
	logger, err := logging.NewConsoleFromConfig(&cfg, &buf)
	if err != nil {
		t.Fatalf("NewConsoleFromConfig returned error: %v", err)
	}
	logger.Warn("listing")
	if !strings.Contains(buf.String(), "listing") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
	if _, err := os.Stat(cfg.Orchestrator.RunLogDir); !os.IsNotExist(err) {
		t.Fatalf("run log directory must not be created: %v", err)
	}
}

func TestConsoleLoggerLiftsStepAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStep(context.Background(), "tmdb")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "runner"))
	log.Info("step completed", logging.String("detail", "two words"))

	line := buf.String()
	if !strings.Contains(line, " INFO [tmdb] runner: step completed") {
		t.Fatalf("unexpected console prefix: %q", line)
	}
	if !strings.Contains(line, `detail="two words"`) {
		t.Fatalf("expected quoted attribute, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("message with caller")
	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", buf.String())
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "invalid", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected info threshold, got %q", buf.String())
	}
}

func TestJSONLoggerRendersErrors(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error("step failed", logging.Error(errors.New("exit status 2")))
	if !strings.Contains(buf.String(), `"error":"exit status 2"`) {
		t.Fatalf("expected error string, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-42")
	ctx = services.WithStep(ctx, "update")
	ctx = services.WithMode(ctx, "resume")

	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]string{
		logging.FieldRunID: "run-42",
		logging.FieldStep:  "update",
		logging.FieldMode:  "resume",
	} {
		if record[key] != want {
			t.Fatalf("field %s = %v, want %s", key, record[key], want)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "interpreter missing", "tool_unavailable",
		logging.String(logging.FieldImpact, "image check skipped"))

	out := buf.String()
	for _, want := range []string{`"event_type":"tool_unavailable"`, `"error_hint":`, `"impact":"image check skipped"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}
