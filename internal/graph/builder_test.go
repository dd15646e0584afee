package graph

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makeActivity создаёт activity с usages/generations по путям.
func makeActivity(t *testing.T, offsetMin int, uses, generates []string) *domain.Activity {
	t.Helper()

	started := base.Add(time.Duration(offsetMin) * time.Minute)
	activity := &domain.Activity{
		ID:        uuid.New(),
		PlanID:    uuid.New(),
		StartedAt: started,
		EndedAt:   started.Add(30 * time.Second),
		Agent:     "tester@localhost",
	}
	for _, p := range uses {
		activity.Usages = append(activity.Usages, domain.Usage{
			Entity: domain.Entity{Path: p, Checksum: domain.ContentID("sum-" + p)},
		})
	}
	for _, p := range generates {
		activity.Generations = append(activity.Generations, domain.Generation{
			Entity: domain.Entity{Path: p, Checksum: domain.ContentID("sum-" + p)},
		})
	}
	return activity
}

func TestBuild_SimpleChain(t *testing.T) {
	// a1: data.csv → clean.csv
	// a2: clean.csv → result.txt
	a1 := makeActivity(t, 0, []string{"data.csv"}, []string{"clean.csv"})
	a2 := makeActivity(t, 1, []string{"clean.csv"}, []string{"result.txt"})

	dag := Build([]*domain.Activity{a2, a1})

	if dag.Size() != 2 {
		t.Fatalf("expected 2 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].ID() != a1.ID {
		t.Errorf("expected a1 as single root")
	}

	n2 := dag.GetNode(a2.ID)
	if len(n2.DependsOn) != 1 || n2.DependsOn[0].ID() != a1.ID {
		t.Error("a2 should depend on a1")
	}
	if n2.InDegree != 1 {
		t.Errorf("a2 inDegree = %d, want 1", n2.InDegree)
	}
}

func TestBuild_Diamond(t *testing.T) {
	// a1 → a2 → a4
	// a1 → a3 → a4
	a1 := makeActivity(t, 0, nil, []string{"raw"})
	a2 := makeActivity(t, 1, []string{"raw"}, []string{"left"})
	a3 := makeActivity(t, 2, []string{"raw"}, []string{"right"})
	a4 := makeActivity(t, 3, []string{"left", "right"}, []string{"final"})

	dag := Build([]*domain.Activity{a4, a3, a2, a1})

	n4 := dag.GetNode(a4.ID)
	if len(n4.DependsOn) != 2 {
		t.Fatalf("a4 should have 2 dependencies, got %d", len(n4.DependsOn))
	}

	order := make(map[uuid.UUID]int)
	for i, node := range dag.Order {
		order[node.ID()] = i
	}
	if order[a1.ID] > order[a2.ID] || order[a1.ID] > order[a3.ID] {
		t.Error("a1 must precede a2 and a3 in topological order")
	}
	if order[a4.ID] != 3 {
		t.Errorf("a4 must be last, got position %d", order[a4.ID])
	}
}

func TestBuild_RegenerationCutsEdge(t *testing.T) {
	// a1 порождает shared, a2 перегенерирует shared,
	// a3 потребляет shared → ребро только от a2.
	a1 := makeActivity(t, 0, nil, []string{"shared"})
	a2 := makeActivity(t, 1, nil, []string{"shared"})
	a3 := makeActivity(t, 2, []string{"shared"}, []string{"out"})

	dag := Build([]*domain.Activity{a1, a2, a3})

	n3 := dag.GetNode(a3.ID)
	if len(n3.DependsOn) != 1 {
		t.Fatalf("a3 should have exactly 1 dependency, got %d", len(n3.DependsOn))
	}
	if n3.DependsOn[0].ID() != a2.ID {
		t.Error("a3 must depend on the most recent generation (a2), not a1")
	}
	if len(dag.GetNode(a1.ID).Dependents) != 0 {
		t.Error("superseded generation a1 must have no dependents")
	}
}

func TestBuild_ProducerMustPrecedeConsumer(t *testing.T) {
	// generation после старта потребителя не считается источником
	a1 := makeActivity(t, 5, nil, []string{"late"})
	a2 := makeActivity(t, 0, []string{"late"}, []string{"out"})

	dag := Build([]*domain.Activity{a1, a2})

	if len(dag.GetNode(a2.ID).DependsOn) != 0 {
		t.Error("a2 started before late was generated, no edge expected")
	}
}

func TestBuild_DeterministicOrder(t *testing.T) {
	a1 := makeActivity(t, 0, nil, []string{"x"})
	a2 := makeActivity(t, 1, []string{"x"}, []string{"y"})
	a3 := makeActivity(t, 1, []string{"x"}, []string{"z"})
	a3.StartedAt = a2.StartedAt // одинаковое время старта

	first := Build([]*domain.Activity{a1, a2, a3})
	second := Build([]*domain.Activity{a3, a1, a2})

	for i := range first.Order {
		if first.Order[i].ID() != second.Order[i].ID() {
			t.Fatalf("order differs at %d: %s vs %s", i, first.Order[i].ID(), second.Order[i].ID())
		}
	}
}

func TestDAG_DescendantsAndAncestors(t *testing.T) {
	a1 := makeActivity(t, 0, nil, []string{"a"})
	a2 := makeActivity(t, 1, []string{"a"}, []string{"b"})
	a3 := makeActivity(t, 2, []string{"b"}, []string{"c"})
	a4 := makeActivity(t, 3, nil, []string{"unrelated"})

	dag := Build([]*domain.Activity{a1, a2, a3, a4})

	down := dag.Descendants(a1.ID)
	if !down[a2.ID] || !down[a3.ID] {
		t.Error("a2 and a3 must be descendants of a1")
	}
	if down[a4.ID] {
		t.Error("a4 is independent, must not be a descendant")
	}

	up := dag.Ancestors(a3.ID)
	if !up[a1.ID] || !up[a2.ID] {
		t.Error("a1 and a2 must be ancestors of a3")
	}
	if up[a4.ID] {
		t.Error("a4 is independent, must not be an ancestor")
	}
}

func TestDAG_LatestProducer(t *testing.T) {
	a1 := makeActivity(t, 0, nil, []string{"out"})
	a2 := makeActivity(t, 1, nil, []string{"out"})

	dag := Build([]*domain.Activity{a1, a2})

	producer := dag.LatestProducer("out")
	if producer == nil || producer.ID() != a2.ID {
		t.Error("latest producer of out must be a2")
	}
	if dag.LatestProducer("missing") != nil {
		t.Error("unknown path must have no producer")
	}
}

// fakeActivitySource — in-memory источник activities для тестов.
type fakeActivitySource struct {
	activities []*domain.Activity
}

func (f *fakeActivitySource) ListAll(context.Context) ([]*domain.Activity, error) {
	return f.activities, nil
}

func (f *fakeActivitySource) ListByPath(_ context.Context, path string) ([]*domain.Activity, error) {
	matched := make([]*domain.Activity, 0)
	for _, a := range f.activities {
		if a.UsesPath(path) || a.GeneratesPath(path) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (f *fakeActivitySource) ListByPlan(_ context.Context, planID uuid.UUID) ([]*domain.Activity, error) {
	matched := make([]*domain.Activity, 0)
	for _, a := range f.activities {
		if a.PlanID == planID {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func TestBuildForPaths_BoundedComponent(t *testing.T) {
	// Две несвязные компоненты: {a1,a2} и {b1}
	a1 := makeActivity(t, 0, []string{"in"}, []string{"mid"})
	a2 := makeActivity(t, 1, []string{"mid"}, []string{"out"})
	b1 := makeActivity(t, 2, []string{"other-in"}, []string{"other-out"})

	src := &fakeActivitySource{activities: []*domain.Activity{a1, a2, b1}}

	dag, err := BuildForPaths(context.Background(), src, []string{"out"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 2 {
		t.Fatalf("expected bounded graph of 2 nodes, got %d", dag.Size())
	}
	if dag.GetNode(b1.ID) != nil {
		t.Error("unrelated component must not be loaded")
	}
}

func TestBuildForPlan(t *testing.T) {
	a1 := makeActivity(t, 0, []string{"in"}, []string{"mid"})
	a2 := makeActivity(t, 1, []string{"mid"}, []string{"out"})

	src := &fakeActivitySource{activities: []*domain.Activity{a1, a2}}

	dag, err := BuildForPlan(context.Background(), src, a2.PlanID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// через общий путь mid подтягивается и a1
	if dag.Size() != 2 {
		t.Errorf("expected 2 nodes, got %d", dag.Size())
	}
}
