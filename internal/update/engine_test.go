package update

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/vcs"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeSource — in-memory источник activities.
type fakeSource struct {
	activities []*domain.Activity
}

func (f *fakeSource) ListAll(context.Context) ([]*domain.Activity, error) {
	return f.activities, nil
}

func (f *fakeSource) ListByPath(_ context.Context, path string) ([]*domain.Activity, error) {
	matched := make([]*domain.Activity, 0)
	for _, a := range f.activities {
		if a.UsesPath(path) || a.GeneratesPath(path) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (f *fakeSource) ListByPlan(_ context.Context, planID uuid.UUID) ([]*domain.Activity, error) {
	matched := make([]*domain.Activity, 0)
	for _, a := range f.activities {
		if a.PlanID == planID {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// fakeHasher — текущее состояние диска: путь → checksum.
type fakeHasher struct {
	hashes map[string]domain.ContentID
}

func (f *fakeHasher) CurrentHash(_ context.Context, path string) (domain.ContentID, error) {
	checksum, ok := f.hashes[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", vcs.ErrPathMissing, path)
	}
	return checksum, nil
}

// fakeResolver — версии планов в памяти. current задаёт отображение
// записанной версии на актуальную (по умолчанию — тождественное).
type fakeResolver struct {
	plans   map[uuid.UUID]*domain.Plan
	current map[uuid.UUID]uuid.UUID
}

func (f *fakeResolver) PlanByID(_ context.Context, id uuid.UUID) (*domain.Plan, error) {
	plan, ok := f.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", id)
	}
	return plan, nil
}

func (f *fakeResolver) LatestVersion(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	if head, ok := f.current[id]; ok {
		return f.PlanByID(ctx, head)
	}
	return f.PlanByID(ctx, id)
}

// fakeProvider фиксирует переданные юниты и отвечает успехом,
// записывая "порождённые" выходы в диск hasher'а.
type fakeProvider struct {
	batches  [][]provider.ExecUnit
	baseDirs []string
	disk     *fakeHasher
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Execute(_ context.Context, units []provider.ExecUnit, baseDir string, _ map[string]string) ([]provider.UnitResult, error) {
	f.batches = append(f.batches, units)
	f.baseDirs = append(f.baseDirs, baseDir)
	results := make([]provider.UnitResult, len(units))
	for i, unit := range units {
		for _, out := range unit.Plan.Outputs() {
			path := unit.Values[out.Name]
			if path == "" {
				path = out.Default
			}
			f.disk.hashes[path] = domain.ContentID("regenerated-" + path)
		}
		results[i] = provider.UnitResult{
			Status:    provider.UnitSucceeded,
			StartedAt: base.Add(time.Duration(i) * time.Second),
			EndedAt:   base.Add(time.Duration(i)*time.Second + time.Second),
		}
	}
	return results, nil
}

// fakeRecorder накапливает зафиксированные activities.
type fakeRecorder struct {
	stored []*domain.Activity
}

func (f *fakeRecorder) StoreActivity(_ context.Context, activity *domain.Activity) error {
	f.stored = append(f.stored, activity)
	return nil
}

func makePlan(name, input, output string) *domain.Plan {
	return &domain.Plan{
		ID:      uuid.New(),
		Name:    name,
		Command: "sh " + name + ".sh",
		Parameters: []domain.CommandParameter{
			{Name: "in", Kind: domain.KindInput, Position: 1, Default: input},
			{Name: "out", Kind: domain.KindOutput, Position: 2, Default: output},
		},
		CreatedAt: base,
	}
}

func makeActivity(plan *domain.Plan, offsetMin int, values map[string]string) *domain.Activity {
	started := base.Add(time.Duration(offsetMin) * time.Minute)
	activity := &domain.Activity{
		ID:        uuid.New(),
		PlanID:    plan.ID,
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
		Values:    values,
	}
	for _, p := range plan.Inputs() {
		path := pathOf(values, p)
		activity.Usages = append(activity.Usages, domain.Usage{
			Entity: domain.Entity{Path: path, Checksum: domain.ContentID("sum-" + path)},
			Role:   p.Name,
		})
	}
	for _, p := range plan.Outputs() {
		path := pathOf(values, p)
		activity.Generations = append(activity.Generations, domain.Generation{
			Entity: domain.Entity{Path: path, Checksum: domain.ContentID("sum-" + path)},
			Role:   p.Name,
		})
	}
	return activity
}

func pathOf(values map[string]string, p domain.CommandParameter) string {
	if v, ok := values[p.Name]; ok {
		return v
	}
	return p.Default
}

// fixture — собранный движок с двухшаговой цепочкой
// p1: data.csv → clean.csv, p2: clean.csv → model.bin.
type fixture struct {
	engine   *Engine
	provider *fakeProvider
	recorder *fakeRecorder
	disk     *fakeHasher
	p1, p2   *domain.Plan
	a1, a2   *domain.Activity
	resolver *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p1 := makePlan("clean", "data.csv", "clean.csv")
	p2 := makePlan("train", "clean.csv", "model.bin")
	a1 := makeActivity(p1, 0, map[string]string{"in": "data.csv", "out": "clean.csv"})
	a2 := makeActivity(p2, 10, map[string]string{"in": "clean.csv", "out": "model.bin"})

	disk := &fakeHasher{hashes: map[string]domain.ContentID{
		"data.csv":  "sum-data.csv",
		"clean.csv": "sum-clean.csv",
		"model.bin": "sum-model.bin",
	}}

	src := &fakeSource{activities: []*domain.Activity{a1, a2}}
	resolver := &fakeResolver{
		plans:   map[uuid.UUID]*domain.Plan{p1.ID: p1, p2.ID: p2},
		current: map[uuid.UUID]uuid.UUID{},
	}

	prov := &fakeProvider{disk: disk}
	registry := provider.NewRegistry()
	registry.Register(prov)

	recorder := &fakeRecorder{}
	coord := coordinator.New("/work/acme", registry, recorder, disk, nil, nil)
	statusEng := status.New(src, disk, resolver, nil)

	return &fixture{
		engine:   New(src, resolver, statusEng, coord, nil),
		provider: prov,
		recorder: recorder,
		disk:     disk,
		p1:       p1,
		p2:       p2,
		a1:       a1,
		a2:       a2,
		resolver: resolver,
	}
}

func (f *fixture) options() Options {
	return Options{All: true, Provider: "fake"}
}

func TestUpdate_CleanProject_NothingToDo(t *testing.T) {
	f := newFixture(t)

	_, report, err := f.engine.Update(context.Background(), f.options())
	if !errors.Is(err, ErrNothingToDo) {
		t.Fatalf("expected ErrNothingToDo, got %v", err)
	}
	if report == nil || !report.Clean() {
		t.Errorf("expected clean report alongside ErrNothingToDo")
	}
	if len(f.provider.batches) != 0 {
		t.Errorf("no units must be dispatched for a clean project")
	}
}

func TestUpdate_ModifiedInput_RerunsChain(t *testing.T) {
	f := newFixture(t)
	f.disk.hashes["data.csv"] = "sum-data.csv-v2"

	summary, report, err := f.engine.Update(context.Background(), f.options())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.StaleOutputs) != 2 {
		t.Fatalf("expected 2 stale outputs, got %d", len(report.StaleOutputs))
	}

	if len(f.provider.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(f.provider.batches))
	}
	batch := f.provider.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected 2 units, got %d", len(batch))
	}
	// топологический порядок: clean перед train
	if batch[0].Plan.Name != "clean" || batch[1].Plan.Name != "train" {
		t.Errorf("wrong order: %s, %s", batch[0].Plan.Name, batch[1].Plan.Name)
	}
	if len(batch[1].DependsOn) != 1 || batch[1].DependsOn[0] != 0 {
		t.Errorf("train must depend on clean, got %v", batch[1].DependsOn)
	}

	if summary.Executed != 2 || summary.Failed != 0 {
		t.Errorf("expected 2 executed, got %+v", summary)
	}
	if len(f.recorder.stored) != 2 {
		t.Errorf("expected 2 new activities, got %d", len(f.recorder.stored))
	}
}

func TestUpdate_BoundedByPaths_SkipsUnrelated(t *testing.T) {
	f := newFixture(t)

	// несвязанная цепочка тоже устарела
	p3 := makePlan("plot", "raw.dat", "plot.png")
	a3 := makeActivity(p3, 5, map[string]string{"in": "raw.dat", "out": "plot.png"})
	src := &fakeSource{activities: []*domain.Activity{f.a1, f.a2, a3}}
	f.resolver.plans[p3.ID] = p3
	f.disk.hashes["raw.dat"] = "sum-raw.dat-v2"
	f.disk.hashes["plot.png"] = "sum-plot.png"

	coordFixture := f.engine.coordinator
	f.engine = New(src, f.resolver, status.New(src, f.disk, f.resolver, nil), coordFixture, nil)

	f.disk.hashes["data.csv"] = "sum-data.csv-v2"

	_, _, err := f.engine.Update(context.Background(), Options{
		Paths:    []string{"model.bin"},
		Provider: "fake",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch := f.provider.batches[0]
	for _, unit := range batch {
		if unit.Plan.Name == "plot" {
			t.Errorf("unrelated plan must not be updated when paths are bounded")
		}
	}
}

func TestUpdate_DeletedOutputBlocks(t *testing.T) {
	f := newFixture(t)
	delete(f.disk.hashes, "clean.csv")

	_, _, err := f.engine.Update(context.Background(), f.options())
	if !errors.Is(err, ErrDeletedOutputs) {
		t.Fatalf("expected ErrDeletedOutputs, got %v", err)
	}
	if len(f.provider.batches) != 0 {
		t.Errorf("nothing must execute when deleted outputs block the update")
	}
}

func TestUpdate_IgnoreDeleted_Proceeds(t *testing.T) {
	f := newFixture(t)
	delete(f.disk.hashes, "clean.csv")

	opts := f.options()
	opts.IgnoreDeleted = true
	summary, _, err := f.engine.Update(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Executed == 0 {
		t.Errorf("expected downstream units to execute with IgnoreDeleted")
	}
}

func TestUpdate_UsesLatestPlanVersion(t *testing.T) {
	f := newFixture(t)

	// train отредактирован: новый default выхода
	p2v2 := f.p2.Derive(base.Add(time.Hour))
	p2v2.Parameters[1].Default = "model-v2.bin"
	f.resolver.plans[p2v2.ID] = p2v2
	f.resolver.current[f.p2.ID] = p2v2.ID

	opts := f.options()
	opts.ChangedPlans = map[uuid.UUID]bool{f.p2.ID: true}
	_, _, err := f.engine.Update(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch := f.provider.batches[0]
	if len(batch) != 1 {
		t.Fatalf("only the edited step is stale, got %d units", len(batch))
	}
	if batch[0].Plan.ID != p2v2.ID {
		t.Errorf("expected latest plan version to run")
	}
	if got := batch[0].Values["out"]; got != "model-v2.bin" {
		t.Errorf("current default must win, got %q", got)
	}
}

func TestUpdate_EditedPlanDetectedWithoutHint(t *testing.T) {
	f := newFixture(t)

	// train отредактирован (новая команда); вызывающий не передаёт
	// никаких подсказок — изменение обнаруживается по цепочке версий
	p2v2 := f.p2.Derive(base.Add(time.Hour))
	p2v2.Command = "sh train-v2.sh"
	f.resolver.plans[p2v2.ID] = p2v2
	f.resolver.current[f.p2.ID] = p2v2.ID

	summary, report, err := f.engine.Update(context.Background(), f.options())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Clean() {
		t.Fatal("edited plan must make the report dirty")
	}

	batch := f.provider.batches[0]
	if len(batch) != 1 {
		t.Fatalf("only the edited step is stale, got %d units", len(batch))
	}
	if batch[0].Plan.ID != p2v2.ID {
		t.Errorf("expected the new plan version to run, got %s", batch[0].Plan.Name)
	}
	if summary.Executed != 1 {
		t.Errorf("executed = %d, want 1", summary.Executed)
	}
}

func TestUpdate_DispatchesFromProjectRoot(t *testing.T) {
	f := newFixture(t)
	f.disk.hashes["data.csv"] = "sum-data.csv-v2"

	if _, _, err := f.engine.Update(context.Background(), f.options()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.provider.baseDirs) != 1 || f.provider.baseDirs[0] != "/work/acme" {
		t.Errorf("baseDirs = %v, want the project root", f.provider.baseDirs)
	}
}

func TestUpdate_SharedStalePlanRunsOnce(t *testing.T) {
	f := newFixture(t)

	// второй запуск того же плана с другим записанным выходом:
	// update берёт текущие default'ы, оба схлопываются в один юнит
	a2dup := makeActivity(f.p2, 20, map[string]string{"in": "clean.csv", "out": "model2.bin"})
	f.disk.hashes["model2.bin"] = "sum-model2.bin"
	src := &fakeSource{activities: []*domain.Activity{f.a1, f.a2, a2dup}}
	f.engine = New(src, f.resolver, status.New(src, f.disk, f.resolver, nil), f.engine.coordinator, nil)

	f.disk.hashes["data.csv"] = "sum-data.csv-v2"

	_, _, err := f.engine.Update(context.Background(), f.options())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count := 0
	for _, unit := range f.provider.batches[0] {
		if unit.Plan.ID == f.p2.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("plan shared by stale branches must run once, ran %d times", count)
	}
}

func TestUpdate_DryRun_NoExecutionNoMetadata(t *testing.T) {
	f := newFixture(t)
	f.disk.hashes["data.csv"] = "sum-data.csv-v2"

	opts := f.options()
	opts.DryRun = true
	summary, _, err := f.engine.Update(context.Background(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.DryRun {
		t.Errorf("summary must be marked dry-run")
	}
	if len(summary.Outcomes) != 2 {
		t.Errorf("dry-run must still plan 2 units, got %d", len(summary.Outcomes))
	}
	if len(f.provider.batches) != 0 {
		t.Errorf("dry-run must not dispatch to the provider")
	}
	if len(f.recorder.stored) != 0 {
		t.Errorf("dry-run must not record activities")
	}
}

func TestRerun_ReplaysRecordedChain(t *testing.T) {
	f := newFixture(t)

	// проект чист: rerun всё равно выполняет цепочку
	summary, err := f.engine.Rerun(context.Background(), RerunOptions{
		Paths:    []string{"model.bin"},
		Provider: "fake",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Executed != 2 {
		t.Fatalf("expected the full chain to replay, got %+v", summary)
	}

	batch := f.provider.batches[0]
	if batch[0].Plan.ID != f.p1.ID || batch[1].Plan.ID != f.p2.ID {
		t.Errorf("rerun must use the exact recorded plan versions")
	}
	if got := batch[1].Values["in"]; got != "clean.csv" {
		t.Errorf("rerun must use recorded values, got %q", got)
	}
	for _, outcome := range summary.Outcomes {
		if len(outcome.Unit.RestoreInputs) == 0 {
			t.Errorf("rerun unit %q must carry recorded inputs for artifact restore", outcome.Unit.Plan.Name)
		}
	}
}

func TestRerun_FromCutsUpstream(t *testing.T) {
	f := newFixture(t)

	summary, err := f.engine.Rerun(context.Background(), RerunOptions{
		Paths:    []string{"model.bin"},
		From:     []string{"clean.csv"},
		Provider: "fake",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Executed != 1 {
		t.Fatalf("expected only the downstream step, got %+v", summary)
	}
	if f.provider.batches[0][0].Plan.ID != f.p2.ID {
		t.Errorf("expected train step only")
	}
}

func TestRerun_UnknownPath(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Rerun(context.Background(), RerunOptions{
		Paths:    []string{"nonexistent.txt"},
		Provider: "fake",
	})
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}
}

func TestRerun_IgnoresPlanEdits(t *testing.T) {
	f := newFixture(t)

	// train отредактирован, но rerun воспроизводит записанную версию
	p2v2 := f.p2.Derive(base.Add(time.Hour))
	f.resolver.plans[p2v2.ID] = p2v2
	f.resolver.current[f.p2.ID] = p2v2.ID

	_, err := f.engine.Rerun(context.Background(), RerunOptions{
		Paths:    []string{"model.bin"},
		From:     []string{"clean.csv"},
		Provider: "fake",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.provider.batches[0][0].Plan.ID != f.p2.ID {
		t.Errorf("rerun must ignore later plan versions")
	}
}
