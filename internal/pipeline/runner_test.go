package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"peoplepipe/internal/checkpoint"
	"peoplepipe/internal/config"
	"peoplepipe/internal/logging"
	"peoplepipe/internal/services"
	"peoplepipe/internal/stage"
	"peoplepipe/internal/steps"
	"peoplepipe/internal/testsupport"
)

type fakeHandler struct {
	name  string
	calls *[]string
	// fail, when set, decides the outcome of Execute.
	fail func(ctx context.Context) error
}

func (f *fakeHandler) Execute(ctx context.Context, _ *config.Config) error {
	*f.calls = append(*f.calls, f.name)
	if f.fail != nil {
		return f.fail(ctx)
	}
	return nil
}

func (f *fakeHandler) Describe(*config.Config) string { return "run " + f.name + ".py" }

func (f *fakeHandler) HealthCheck(context.Context, *config.Config) stage.Health {
	return stage.Healthy(f.name)
}

type harness struct {
	t        *testing.T
	cfg      *config.Config
	registry *steps.Registry
	store    checkpoint.Store
	handlers map[string]*fakeHandler
	calls    []string
	out      bytes.Buffer
	runs     int
}

var names = []string{"a", "b", "c", "d", "e"}

// newHarness builds a five-step pipeline a<b<c<d<e backed by a file store.
// customize may adjust the step descriptors before the registry is built.
func newHarness(t *testing.T, customize func(list []steps.Step)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)

	list := make([]steps.Step, len(names))
	for i, name := range names {
		script := name + ".py"
		list[i] = steps.Step{
			Key:   steps.Key(i + 1),
			Name:  name,
			Title: strings.ToUpper(name),
			Command: func(*config.Config) steps.Invocation {
				return steps.Invocation{Interpreter: steps.Python, Script: script}
			},
		}
	}
	if customize != nil {
		customize(list)
	}
	registry, err := steps.NewRegistry(list)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg, registry.Names())

	h := &harness{t: t, cfg: cfg, registry: registry, store: store, handlers: map[string]*fakeHandler{}}
	for _, name := range names {
		h.handlers[name] = &fakeHandler{name: name, calls: &h.calls}
	}
	return h
}

func (h *harness) runner() *Runner {
	handlers := make(map[steps.Key]stage.Handler, len(h.handlers))
	for _, step := range h.registry.Ordered() {
		handlers[step.Key] = h.handlers[step.Name]
	}
	return New(h.cfg, h.registry, h.store, handlers, logging.NewNop(),
		WithOutput(&h.out),
		WithRunID(func() string {
			h.runs++
			return fmt.Sprintf("run-%d", h.runs)
		}),
	)
}

func (h *harness) run(req Request) (Result, error) {
	h.t.Helper()
	h.calls = nil
	return h.runner().Run(context.Background(), req)
}

func (h *harness) mustRun(req Request) Result {
	h.t.Helper()
	result, err := h.run(req)
	if err != nil {
		h.t.Fatalf("Run(%+v): %v", req, err)
	}
	return result
}

func (h *harness) expectCalls(want ...string) {
	h.t.Helper()
	if want == nil {
		want = []string{}
	}
	got := h.calls
	if got == nil {
		got = []string{}
	}
	if !reflect.DeepEqual(got, want) {
		h.t.Fatalf("executed %v, want %v", got, want)
	}
}

func (h *harness) record(step string) (checkpoint.Record, bool) {
	h.t.Helper()
	record, ok, err := h.store.Get(context.Background(), step)
	if err != nil {
		h.t.Fatalf("Get(%s): %v", step, err)
	}
	return record, ok
}

func states(result Result) map[string]State {
	out := make(map[string]State, len(result.Outcomes))
	for _, o := range result.Outcomes {
		out[o.Step.Name] = o.State
	}
	return out
}

func TestFreshRunCompletesEveryStep(t *testing.T) {
	h := newHarness(t, nil)
	result := h.mustRun(Request{Mode: ModeNormal})

	h.expectCalls(names...)
	if result.Count(StateCompleted) != len(names) || result.Failed() {
		t.Fatalf("unexpected result %+v", result)
	}
	records, err := h.store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(names) {
		t.Fatalf("expected %d checkpoints, got %d", len(names), len(records))
	}
	if result.RunID != "run-1" || records[0].RunID != "run-1" {
		t.Fatalf("run id not recorded: %q %q", result.RunID, records[0].RunID)
	}
}

func TestExplicitSelectionRunsInRegistryOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.mustRun(Request{Mode: ModeNormal, Steps: []string{"e", "A", "c", "e"}})
	h.expectCalls("a", "c", "e")
}

func TestUnknownStepRejectsWholeSelection(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.run(Request{Mode: ModeNormal, Steps: []string{"a", "bogus"}})
	if !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	h.expectCalls()
	if _, ok := h.record("a"); ok {
		t.Fatal("no checkpoint may be written for a rejected selection")
	}
}

func TestResumeAfterFailureRunsRemainingSteps(t *testing.T) {
	h := newHarness(t, nil)
	boom := errors.New("collaborator failed")
	h.handlers["c"].fail = func(context.Context) error { return boom }

	result, err := h.run(Request{})
	if !errors.Is(err, boom) || !errors.Is(err, services.ErrStepFailed) {
		t.Fatalf("expected wrapped step failure, got %v", err)
	}
	h.expectCalls("a", "b", "c")
	if result.FailedStep != "c" {
		t.Fatalf("FailedStep = %q", result.FailedStep)
	}
	got := states(result)
	want := map[string]State{"a": StateCompleted, "b": StateCompleted, "c": StateFailed, "d": StatePending, "e": StatePending}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if _, ok := h.record("c"); ok {
		t.Fatal("failed step must not be checkpointed")
	}

	h.handlers["c"].fail = nil
	h.mustRun(Request{})
	h.expectCalls("c", "d", "e")

	h.mustRun(Request{})
	h.expectCalls()
}

func TestRedoInvalidatesStepAndLaterOnes(t *testing.T) {
	h := newHarness(t, nil)
	h.mustRun(Request{Mode: ModeNormal})

	h.mustRun(Request{Mode: ModeRedo, Redo: "c"})
	h.expectCalls("c", "d", "e")

	for _, name := range []string{"a", "b"} {
		record, ok := h.record(name)
		if !ok || record.RunID != "run-1" {
			t.Fatalf("%s checkpoint should be untouched, got %+v ok=%v", name, record, ok)
		}
	}
	for _, name := range []string{"c", "d", "e"} {
		record, ok := h.record(name)
		if !ok || record.RunID != "run-2" {
			t.Fatalf("%s checkpoint should come from the redo run, got %+v ok=%v", name, record, ok)
		}
	}
}

func TestRedoUnknownStep(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.run(Request{Mode: ModeRedo, Redo: "zzz"}); !errors.Is(err, services.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestForceRunsEverythingForAnyCheckpointState(t *testing.T) {
	prepare := map[string]func(h *harness){
		"none": func(*harness) {},
		"partial": func(h *harness) {
			h.mustRun(Request{Mode: ModeNormal, Steps: []string{"a", "b"}})
		},
		"full": func(h *harness) {
			h.mustRun(Request{Mode: ModeNormal})
		},
	}
	for name, setup := range prepare {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			setup(h)
			result := h.mustRun(Request{Mode: ModeForce})
			h.expectCalls(names...)
			if result.Count(StateCompleted) != len(names) {
				t.Fatalf("expected all completed, got %v", states(result))
			}
		})
	}
}

func TestFromSkipsEarlierSteps(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[0].AlwaysRuns = true
	})
	result := h.mustRun(Request{Mode: ModeResume, From: "c"})
	h.expectCalls("c", "d", "e")
	for _, o := range result.Outcomes[:2] {
		if o.State != StateSkipped || o.Reason != ReasonBeforeStart {
			t.Fatalf("expected %s skipped before start, got %+v", o.Step.Name, o)
		}
	}
}

func TestAlwaysRunsStepNeverGates(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[0].AlwaysRuns = true
		list[4].AlwaysRuns = true
	})
	h.mustRun(Request{})
	h.expectCalls(names...)

	h.mustRun(Request{})
	h.expectCalls("a", "e")
}

func TestStaleFingerprintRerunsOnlyThatStep(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[1].Inputs = func(cfg *config.Config) []string { return []string{cfg.Orchestrator.Style} }
	})
	h.mustRun(Request{})

	h.cfg.Orchestrator.Style = "bw"
	statuses, err := h.runner().List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !statuses[1].Stale || statuses[1].Done || !statuses[0].Done {
		t.Fatalf("unexpected list status: %+v", statuses[:2])
	}

	h.mustRun(Request{})
	h.expectCalls("b")
}

func TestOptionalToolUnavailableSkipsAndContinues(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[2].Optional = true
	})
	h.handlers["c"].fail = func(context.Context) error {
		return services.Wrap(services.ErrToolUnavailable, "", "lookup", "pwsh not found", nil)
	}

	result := h.mustRun(Request{})
	h.expectCalls(names...)
	if got := states(result)["c"]; got != StateSkipped {
		t.Fatalf("c state = %s", got)
	}
	if _, ok := h.record("c"); ok {
		t.Fatal("skipped optional step must not be checkpointed")
	}
}

func TestRequiredKeysValidatedBeforeAnyStep(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[3].RequiredKeys = []string{"TMDB_KEY"}
	})
	h.cfg.TMDBKey = ""
	_, err := h.run(Request{})
	if !errors.Is(err, services.ErrConfigInvalid) || !strings.Contains(err.Error(), "TMDB_KEY") {
		t.Fatalf("expected ErrConfigInvalid naming TMDB_KEY, got %v", err)
	}
	h.expectCalls()

	// Not due: a run of other steps does not need the key.
	h.mustRun(Request{Steps: []string{"a", "b"}})
	h.expectCalls("a", "b")
}

func TestRequiresRepoValidatedBeforeAnyStep(t *testing.T) {
	h := newHarness(t, func(list []steps.Step) {
		list[4].RequiresRepo = true
	})
	h.cfg.Repo.Root = filepath.Join(t.TempDir(), "missing")
	_, err := h.run(Request{})
	if !errors.Is(err, services.ErrRepoNotFound) {
		t.Fatalf("expected ErrRepoNotFound, got %v", err)
	}
	h.expectCalls()
}

func TestLockContentionFailsFast(t *testing.T) {
	h := newHarness(t, nil)
	held := flock.New(filepath.Join(h.cfg.Orchestrator.CheckpointDir, LockName))
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	_, err = h.run(Request{})
	if !errors.Is(err, services.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	h.expectCalls()

	if _, err := h.runner().List(context.Background()); err != nil {
		t.Fatalf("List must not need the lock: %v", err)
	}
}

func TestDryRunExecutesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.mustRun(Request{Steps: []string{"a"}})

	result := h.mustRun(Request{DryRun: true})
	h.expectCalls()
	if !result.DryRun {
		t.Fatal("expected dry-run result")
	}
	out := h.out.String()
	if !strings.Contains(out, "skip  a") || !strings.Contains(out, "run   b") || !strings.Contains(out, "run b.py") {
		t.Fatalf("unexpected dry-run output:\n%s", out)
	}
	if _, ok := h.record("b"); ok {
		t.Fatal("dry run must not write checkpoints")
	}
}

func TestCancellationDuringStepLeavesNoCheckpoint(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.handlers["b"].fail = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}

	result, err := h.runner().Run(ctx, Request{})
	if !IsInterrupted(err) {
		t.Fatalf("expected interruption, got %v", err)
	}
	if result.FailedStep != "b" {
		t.Fatalf("FailedStep = %q", result.FailedStep)
	}
	h.expectCalls("a", "b")
	if _, ok := h.record("b"); ok {
		t.Fatal("interrupted step must not be checkpointed")
	}

	h.handlers["b"].fail = nil
	h.mustRun(Request{})
	h.expectCalls("b", "c", "d", "e")
}

func TestRunReportsProgress(t *testing.T) {
	h := newHarness(t, nil)
	h.handlers["c"].fail = func(context.Context) error { return errors.New("boom") }
	if err := h.store.MarkDone(context.Background(), "a", ""); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	var events []string
	handlers := make(map[steps.Key]stage.Handler, len(h.handlers))
	for _, step := range h.registry.Ordered() {
		handlers[step.Key] = h.handlers[step.Name]
	}
	runner := New(h.cfg, h.registry, h.store, handlers, logging.NewNop(),
		WithOutput(&h.out),
		WithProgress(func(o Outcome) {
			events = append(events, o.Step.Name+":"+string(o.State))
		}),
	)
	if _, err := runner.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected failure from step c")
	}
	want := []string{"b:running", "b:completed", "c:running", "c:failed"}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("progress = %v, want %v", events, want)
	}
}

func TestRunSweepsInterruptedWritesUnderLock(t *testing.T) {
	h := newHarness(t, nil)
	stale := filepath.Join(h.cfg.Orchestrator.CheckpointDir, ".tmp-b.toml-777")
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := h.run(Request{DryRun: true}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("dry run must leave temp files alone: %v", err)
	}

	h.mustRun(Request{Steps: []string{"a"}})
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected the locked run to sweep the temp file")
	}
}
