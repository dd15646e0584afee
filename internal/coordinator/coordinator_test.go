package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/resolve"
	"github.com/vselutin/lineage/internal/vcs"
)

type fakeProvider struct {
	batches  [][]provider.ExecUnit
	baseDirs []string
	fail     map[string]bool // имя плана → юнит падает
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Execute(_ context.Context, units []provider.ExecUnit, baseDir string, _ map[string]string) ([]provider.UnitResult, error) {
	f.batches = append(f.batches, units)
	f.baseDirs = append(f.baseDirs, baseDir)

	results := make([]provider.UnitResult, 0, len(units))
	for _, unit := range units {
		if skipped := skipByDeps(unit, results); skipped != nil {
			results = append(results, *skipped)
			continue
		}
		if f.fail[unit.Plan.Name] {
			results = append(results, provider.UnitResult{
				Status:   provider.UnitFailed,
				ExitCode: 1,
				Error:    "boom",
			})
			continue
		}
		results = append(results, provider.UnitResult{
			Status:    provider.UnitSucceeded,
			StartedAt: time.Now(),
			EndedAt:   time.Now().Add(time.Second),
		})
	}
	return results, nil
}

func skipByDeps(unit provider.ExecUnit, done []provider.UnitResult) *provider.UnitResult {
	for _, dep := range unit.DependsOn {
		if done[dep].Status != provider.UnitSucceeded {
			return &provider.UnitResult{
				Status: provider.UnitSkipped,
				Error:  fmt.Sprintf("not attempted: upstream unit %d did not succeed", dep),
			}
		}
	}
	return nil
}

type fakeRecorder struct {
	stored []*domain.Activity
}

func (f *fakeRecorder) StoreActivity(_ context.Context, activity *domain.Activity) error {
	f.stored = append(f.stored, activity)
	return nil
}

type fakeHasher struct {
	hashes map[string]domain.ContentID
}

func (f *fakeHasher) CurrentHash(_ context.Context, path string) (domain.ContentID, error) {
	h, ok := f.hashes[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", vcs.ErrPathMissing, path)
	}
	return h, nil
}

func makePlan(name, input, output string) *domain.Plan {
	return &domain.Plan{
		ID:      uuid.New(),
		Name:    name,
		Command: "sh " + name + ".sh",
		Parameters: []domain.CommandParameter{
			{Name: "in", Kind: domain.KindInput, Default: input, Position: 1},
			{Name: "out", Kind: domain.KindOutput, Default: output, Position: 2},
		},
		CreatedAt: time.Now(),
	}
}

func registryWith(p provider.Provider) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(p)
	return registry
}

func TestRun_RecordsActivityPerSucceededUnit(t *testing.T) {
	backend := &fakeProvider{}
	recorder := &fakeRecorder{}
	hasher := &fakeHasher{hashes: map[string]domain.ContentID{
		"data.csv":  "sha-data",
		"clean.csv": "sha-clean",
		"model.bin": "sha-model",
	}}
	coord := New("", registryWith(backend), recorder, hasher, nil, nil)

	units := []Unit{
		{Plan: makePlan("clean", "data.csv", "clean.csv")},
		{Plan: makePlan("train", "clean.csv", "model.bin"), DependsOn: []int{0}},
	}

	summary, err := coord.Run(context.Background(), units, Options{Provider: "fake", Agent: "test"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Executed != 2 || summary.Failed != 0 {
		t.Fatalf("executed=%d failed=%d, want 2/0", summary.Executed, summary.Failed)
	}
	if len(recorder.stored) != 2 {
		t.Fatalf("stored %d activities, want 2", len(recorder.stored))
	}

	first := recorder.stored[0]
	if first.Agent != "test" {
		t.Errorf("agent = %q, want %q", first.Agent, "test")
	}
	if len(first.Usages) != 1 || first.Usages[0].Entity.Path != "data.csv" {
		t.Errorf("usages = %+v, want data.csv", first.Usages)
	}
	if len(first.Generations) != 1 || first.Generations[0].Entity.Checksum != "sha-clean" {
		t.Errorf("generations = %+v, want clean.csv sha-clean", first.Generations)
	}
	if summary.Err() != nil {
		t.Errorf("Err() = %v, want nil", summary.Err())
	}
}

func TestRun_FailureSkipsDownstreamAndReportsError(t *testing.T) {
	backend := &fakeProvider{fail: map[string]bool{"clean": true}}
	recorder := &fakeRecorder{}
	coord := New("", registryWith(backend), recorder, &fakeHasher{}, nil, nil)

	units := []Unit{
		{Plan: makePlan("clean", "data.csv", "clean.csv")},
		{Plan: makePlan("train", "clean.csv", "model.bin"), DependsOn: []int{0}},
	}

	summary, err := coord.Run(context.Background(), units, Options{Provider: "fake"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Skipped != 1 || summary.Executed != 0 {
		t.Fatalf("failed=%d skipped=%d executed=%d, want 1/1/0", summary.Failed, summary.Skipped, summary.Executed)
	}
	if len(recorder.stored) != 0 {
		t.Fatalf("stored %d activities, want 0", len(recorder.stored))
	}
	if !errors.Is(summary.Err(), provider.ErrExecutionFailed) {
		t.Errorf("Err() = %v, want ErrExecutionFailed", summary.Err())
	}
}

func TestRun_DryRunPlansWithoutExecuting(t *testing.T) {
	backend := &fakeProvider{}
	recorder := &fakeRecorder{}
	coord := New("", registryWith(backend), recorder, &fakeHasher{}, nil, nil)

	units := []Unit{{Plan: makePlan("clean", "data.csv", "clean.csv")}}

	summary, err := coord.Run(context.Background(), units, Options{Provider: "fake", DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.DryRun || len(summary.Outcomes) != 1 {
		t.Fatalf("dry_run=%v outcomes=%d, want true/1", summary.DryRun, len(summary.Outcomes))
	}
	if len(backend.batches) != 0 {
		t.Errorf("provider called %d times, want 0", len(backend.batches))
	}
	if len(recorder.stored) != 0 {
		t.Errorf("stored %d activities, want 0", len(recorder.stored))
	}
}

func TestRun_SkipMetadataExecutesWithoutRecording(t *testing.T) {
	backend := &fakeProvider{}
	recorder := &fakeRecorder{}
	coord := New("", registryWith(backend), recorder, &fakeHasher{}, nil, nil)

	units := []Unit{{Plan: makePlan("clean", "data.csv", "clean.csv")}}

	summary, err := coord.Run(context.Background(), units, Options{Provider: "fake", SkipMetadata: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Executed != 1 {
		t.Fatalf("executed = %d, want 1", summary.Executed)
	}
	if len(backend.batches) != 1 {
		t.Errorf("provider called %d times, want 1", len(backend.batches))
	}
	if len(recorder.stored) != 0 {
		t.Errorf("stored %d activities, want 0", len(recorder.stored))
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	coord := New("", registryWith(&fakeProvider{}), &fakeRecorder{}, &fakeHasher{}, nil, nil)

	if _, err := coord.Run(context.Background(), nil, Options{Provider: "fake"}); !errors.Is(err, ErrNoUnits) {
		t.Fatalf("err = %v, want ErrNoUnits", err)
	}
}

func TestRun_DispatchesFromProjectRoot(t *testing.T) {
	backend := &fakeProvider{}
	hasher := &fakeHasher{hashes: map[string]domain.ContentID{
		"data.csv":  "sha-data",
		"clean.csv": "sha-clean",
	}}
	coord := New("/work/acme", registryWith(backend), &fakeRecorder{}, hasher, nil, nil)

	units := []Unit{{Plan: makePlan("clean", "data.csv", "clean.csv")}}

	if _, err := coord.Run(context.Background(), units, Options{Provider: "fake"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// команды выполняются из корня проекта, не из cwd процесса
	if len(backend.baseDirs) != 1 || backend.baseDirs[0] != "/work/acme" {
		t.Errorf("baseDirs = %v, want [/work/acme]", backend.baseDirs)
	}
}

func TestRun_MissingDeclaredOutputFails(t *testing.T) {
	backend := &fakeProvider{}
	hasher := &fakeHasher{hashes: map[string]domain.ContentID{"data.csv": "sha-data"}}
	coord := New("", registryWith(backend), &fakeRecorder{}, hasher, nil, nil)

	units := []Unit{{Plan: makePlan("clean", "data.csv", "clean.csv")}}

	if _, err := coord.Run(context.Background(), units, Options{Provider: "fake"}); err == nil {
		t.Fatal("expected error for missing declared output")
	}
}

type fakeArtifacts struct {
	hasher   *fakeHasher
	uploads  []string
	restores []string
}

func (f *fakeArtifacts) Upload(_ context.Context, path string, _ domain.ContentID) error {
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeArtifacts) Restore(_ context.Context, path string, checksum domain.ContentID) error {
	f.restores = append(f.restores, path)
	f.hasher.hashes[path] = checksum
	return nil
}

func TestRun_RestoresMissingRecordedInputs(t *testing.T) {
	backend := &fakeProvider{}
	hasher := &fakeHasher{hashes: map[string]domain.ContentID{
		"clean.csv": "sha-clean",
	}}
	artifacts := &fakeArtifacts{hasher: hasher}
	coord := New("", registryWith(backend), &fakeRecorder{}, hasher, artifacts, nil)

	units := []Unit{{
		Plan: makePlan("clean", "data.csv", "clean.csv"),
		RestoreInputs: []domain.Usage{
			{Entity: domain.Entity{Path: "data.csv", Checksum: "sha-data"}, Role: "in"},
		},
	}}

	summary, err := coord.Run(context.Background(), units, Options{Provider: "fake"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Executed != 1 {
		t.Fatalf("executed = %d, want 1", summary.Executed)
	}
	if len(artifacts.restores) != 1 || artifacts.restores[0] != "data.csv" {
		t.Errorf("restores = %v, want [data.csv]", artifacts.restores)
	}
	if len(artifacts.uploads) != 1 || artifacts.uploads[0] != "clean.csv" {
		t.Errorf("uploads = %v, want [clean.csv]", artifacts.uploads)
	}
}

func TestRun_PresentInputsNotRestored(t *testing.T) {
	backend := &fakeProvider{}
	hasher := &fakeHasher{hashes: map[string]domain.ContentID{
		"data.csv":  "sha-local-edit",
		"clean.csv": "sha-clean",
	}}
	artifacts := &fakeArtifacts{hasher: hasher}
	coord := New("", registryWith(backend), &fakeRecorder{}, hasher, artifacts, nil)

	units := []Unit{{
		Plan: makePlan("clean", "data.csv", "clean.csv"),
		RestoreInputs: []domain.Usage{
			{Entity: domain.Entity{Path: "data.csv", Checksum: "sha-data"}, Role: "in"},
		},
	}}

	if _, err := coord.Run(context.Background(), units, Options{Provider: "fake"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(artifacts.restores) != 0 {
		t.Errorf("restores = %v, want none", artifacts.restores)
	}
}

func TestUnitsFromComposite_LinksBecomeDependencies(t *testing.T) {
	cleanPlan := makePlan("clean", "data.csv", "clean.csv")
	trainPlan := makePlan("train", "clean.csv", "model.bin")

	flat := &resolve.Flattened{
		Steps: []string{"clean", "train"},
		Leaves: []resolve.Leaf{
			{Path: "clean.in", PlanPath: "clean", Plan: cleanPlan, Param: cleanPlan.Parameters[0]},
			{Path: "clean.out", PlanPath: "clean", Plan: cleanPlan, Param: cleanPlan.Parameters[1]},
			{Path: "train.in", PlanPath: "train", Plan: trainPlan, Param: trainPlan.Parameters[0]},
			{Path: "train.out", PlanPath: "train", Plan: trainPlan, Param: trainPlan.Parameters[1]},
		},
		Links: []domain.ParameterLink{
			{Source: "clean.out", Sinks: []string{"train.in"}},
		},
	}
	res := &resolve.Resolution{Values: map[string]string{
		"clean.in":  "data.csv",
		"clean.out": "clean.csv",
		"train.in":  "clean.csv",
		"train.out": "model.bin",
	}}

	units := UnitsFromComposite(flat, res)
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}
	if units[0].Plan != cleanPlan || units[1].Plan != trainPlan {
		t.Fatal("units out of declared step order")
	}
	if units[0].Values["out"] != "clean.csv" {
		t.Errorf("clean out = %q, want clean.csv", units[0].Values["out"])
	}
	if len(units[0].DependsOn) != 0 {
		t.Errorf("clean DependsOn = %v, want none", units[0].DependsOn)
	}
	if len(units[1].DependsOn) != 1 || units[1].DependsOn[0] != 0 {
		t.Errorf("train DependsOn = %v, want [0]", units[1].DependsOn)
	}
}

func TestUnitsFromComposite_DuplicateLinkEdgesCollapse(t *testing.T) {
	source := makePlan("source", "raw.txt", "mid.txt")
	sink := makePlan("sink", "mid.txt", "final.txt")
	sink.Parameters = append(sink.Parameters,
		domain.CommandParameter{Name: "aux", Kind: domain.KindInput, Default: "mid.txt", Position: 3})

	flat := &resolve.Flattened{
		Steps: []string{"source", "sink"},
		Leaves: []resolve.Leaf{
			{Path: "source.out", PlanPath: "source", Plan: source, Param: source.Parameters[1]},
			{Path: "sink.in", PlanPath: "sink", Plan: sink, Param: sink.Parameters[0]},
			{Path: "sink.aux", PlanPath: "sink", Plan: sink, Param: sink.Parameters[2]},
		},
		Links: []domain.ParameterLink{
			{Source: "source.out", Sinks: []string{"sink.in", "sink.aux"}},
		},
	}
	res := &resolve.Resolution{Values: map[string]string{"source.out": "mid.txt"}}

	units := UnitsFromComposite(flat, res)
	if len(units[1].DependsOn) != 1 {
		t.Fatalf("DependsOn = %v, want single edge", units[1].DependsOn)
	}
}
