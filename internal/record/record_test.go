package record

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/vcs"
)

// fakePlanStore накапливает сохранённые планы.
type fakePlanStore struct {
	stored []*domain.Plan
}

func (f *fakePlanStore) StorePlan(_ context.Context, plan *domain.Plan) error {
	f.stored = append(f.stored, plan)
	return nil
}

// fakeActivityStore накапливает сохранённые activities.
type fakeActivityStore struct {
	stored []*domain.Activity
}

func (f *fakeActivityStore) StoreActivity(_ context.Context, activity *domain.Activity) error {
	f.stored = append(f.stored, activity)
	return nil
}

type env struct {
	root       string
	recorder   *Recorder
	plans      *fakePlanStore
	activities *fakeActivityStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	plans := &fakePlanStore{}
	activities := &fakeActivityStore{}
	recorder := New(root, provider.NewLocal(), vcs.NewWorktree(root), plans, activities, nil)
	return &env{root: root, recorder: recorder, plans: plans, activities: activities}
}

func (e *env) writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.root, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *env) readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.root, name))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func paramByName(plan *domain.Plan, name string) *domain.CommandParameter {
	return plan.Parameter(name)
}

func TestRun_DetectsInputsAndCreatedOutput(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "copy.sh", "cp \"$1\" \"$2\"\n")
	e.writeFile(t, "data.csv", "a,b\n1,2\n")

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "copy.sh", "data.csv", "out.txt"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan := result.Plan
	if plan.Command != "sh" {
		t.Errorf("expected command %q, got %q", "sh", plan.Command)
	}
	if plan.Name != "sh" {
		t.Errorf("default plan name must come from the executable, got %q", plan.Name)
	}
	if got := len(plan.Inputs()); got != 2 {
		t.Fatalf("expected 2 inputs (script + data), got %d", got)
	}
	outputs := plan.Outputs()
	if len(outputs) != 1 || outputs[0].Default != "out.txt" {
		t.Fatalf("expected out.txt as the sole output, got %+v", outputs)
	}
	if outputs[0].Position != 3 {
		t.Errorf("created literal must keep its command-line position, got %d", outputs[0].Position)
	}
	if outputs[0].Name != "output-1" {
		t.Errorf("reclassified output must be renamed by role, got %q", outputs[0].Name)
	}

	if e.readFile(t, "out.txt") != "a,b\n1,2\n" {
		t.Errorf("command did not actually run")
	}

	activity := result.Activity
	if len(activity.Usages) != 2 || len(activity.Generations) != 1 {
		t.Errorf("expected 2 usages and 1 generation, got %d/%d",
			len(activity.Usages), len(activity.Generations))
	}
	if activity.Generations[0].Entity.Checksum == "" {
		t.Errorf("generation must carry a checksum")
	}

	if len(e.plans.stored) != 1 || len(e.activities.stored) != 1 {
		t.Errorf("plan and activity must be persisted")
	}
}

func TestRun_ExplicitAnnotationsViaEnv(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "data.csv", "payload\n")

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "-c", `cat "$LINEAGE_PARAM_SRC" > result.txt`},
		Options{
			Name:    "copy-via-env",
			Inputs:  []Annotation{{Name: "src", Value: "data.csv"}},
			Outputs: []Annotation{{Name: "dst", Value: "result.txt"}},
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plan := result.Plan
	if plan.Name != "copy-via-env" {
		t.Errorf("explicit name must be kept, got %q", plan.Name)
	}
	src := paramByName(plan, "src")
	if src == nil || src.Kind != domain.KindInput || src.Position != 0 {
		t.Errorf("src must be an off-argv input, got %+v", src)
	}
	dst := paramByName(plan, "dst")
	if dst == nil || dst.Kind != domain.KindOutput {
		t.Errorf("dst must be an output, got %+v", dst)
	}

	if e.readFile(t, "result.txt") != "payload\n" {
		t.Errorf("parameter was not exposed through the environment")
	}
}

func TestRun_NoOutputs(t *testing.T) {
	e := newEnv(t)

	_, err := e.recorder.Run(context.Background(), []string{"sh", "-c", "true"}, Options{})
	if !errors.Is(err, ErrNoOutputs) {
		t.Fatalf("expected ErrNoOutputs, got %v", err)
	}
	if len(e.plans.stored) != 0 {
		t.Errorf("nothing must be persisted on error")
	}

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "-c", "true"}, Options{NoOutput: true})
	if err != nil {
		t.Fatalf("unexpected error with NoOutput: %v", err)
	}
	if len(result.Activity.Generations) != 0 {
		t.Errorf("expected no generations")
	}
}

func TestRun_CommandFailure(t *testing.T) {
	e := newEnv(t)

	_, err := e.recorder.Run(context.Background(), []string{"sh", "-c", "exit 3"}, Options{})
	if !errors.Is(err, provider.ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	if len(e.plans.stored) != 0 || len(e.activities.stored) != 0 {
		t.Errorf("failed execution must not be persisted")
	}
}

func TestRun_SuccessCodes(t *testing.T) {
	e := newEnv(t)

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "-c", "exit 3"},
		Options{NoOutput: true, SuccessCodes: []int{0, 3}})
	if err != nil {
		t.Fatalf("declared success code must succeed: %v", err)
	}
	if result.Exec.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.Exec.ExitCode)
	}
}

func TestRun_InPlaceUpdateRecordsBoth(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "append.sh", "echo extra >> \"$1\"\n")
	e.writeFile(t, "log.txt", "first\n")

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "append.sh", "log.txt"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	activity := result.Activity
	var usage, generation bool
	var before, after domain.ContentID
	for _, u := range activity.Usages {
		if u.Entity.Path == "log.txt" {
			usage = true
			before = u.Entity.Checksum
		}
	}
	for _, g := range activity.Generations {
		if g.Entity.Path == "log.txt" {
			generation = true
			after = g.Entity.Checksum
		}
	}
	if !usage || !generation {
		t.Fatalf("in-place update must record both usage and generation")
	}
	if before == after {
		t.Errorf("usage must carry the pre-run identity")
	}
}

func TestRun_SkipMetadata(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "data.csv", "x\n")

	result, err := e.recorder.Run(context.Background(),
		[]string{"sh", "-c", "cp data.csv copy.csv"}, Options{SkipMetadata: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Plan == nil || result.Activity == nil {
		t.Errorf("result must still describe what would be recorded")
	}
	if len(e.plans.stored) != 0 || len(e.activities.stored) != 0 {
		t.Errorf("skip-metadata must not persist anything")
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	e := newEnv(t)
	if _, err := e.recorder.Run(context.Background(), nil, Options{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestRun_MissingExplicitInput(t *testing.T) {
	e := newEnv(t)
	_, err := e.recorder.Run(context.Background(),
		[]string{"sh", "-c", "true"},
		Options{Inputs: []Annotation{{Name: "src", Value: "absent.csv"}}})
	if !errors.Is(err, ErrAnnotationUnused) {
		t.Fatalf("expected ErrAnnotationUnused, got %v", err)
	}
}

func TestClassify_FlagPrefixes(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "data.csv", "x\n")
	e.writeFile(t, "ref.txt", "y\n")

	command, drafts, err := e.recorder.classify(
		[]string{"tool", "convert", "--from", "data.csv", "--ref=ref.txt", "out.bin"},
		Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(command); got != 2 || command[0] != "tool" || command[1] != "convert" {
		t.Fatalf("expected leading tokens [tool convert], got %v", command)
	}
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d", len(drafts))
	}

	if drafts[0].value != "data.csv" || drafts[0].prefix != "--from " {
		t.Errorf("separate-token flag must keep a trailing-space prefix, got %+v", drafts[0])
	}
	if drafts[1].value != "ref.txt" || drafts[1].prefix != "--ref=" {
		t.Errorf("merged flag must keep an equals prefix, got %+v", drafts[1])
	}
	if drafts[2].value != "out.bin" || drafts[2].kind != domain.KindArgument {
		t.Errorf("nonexistent literal stays an argument until outputs are known, got %+v", drafts[2])
	}
	if drafts[0].position != 1 || drafts[1].position != 2 || drafts[2].position != 3 {
		t.Errorf("positions must follow command-line order: %d %d %d",
			drafts[0].position, drafts[1].position, drafts[2].position)
	}
}

func TestClassify_NameCollisionAvoided(t *testing.T) {
	e := newEnv(t)
	e.writeFile(t, "data.csv", "x\n")
	e.writeFile(t, "extra.csv", "y\n")

	_, drafts, err := e.recorder.classify(
		[]string{"tool", "data.csv", "extra.csv"},
		Options{Inputs: []Annotation{{Name: "input-1", Value: "data.csv"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := make(map[string]int)
	for _, d := range drafts {
		names[d.name]++
	}
	for name, count := range names {
		if count > 1 {
			t.Errorf("name %q assigned %d times", name, count)
		}
	}
	if names["input-1"] != 1 || names["input-2"] != 1 {
		t.Errorf("expected explicit input-1 and generated input-2, got %v", names)
	}
}
