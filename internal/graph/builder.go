package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

// ActivitySource — узкий интерфейс чтения записанных activities.
//
// Реализуется хранилищем метаданных; тесты подставляют fake.
type ActivitySource interface {
	// ListAll возвращает все activities проекта.
	ListAll(ctx context.Context) ([]*domain.Activity, error)

	// ListByPath возвращает activities, чьи usages или generations
	// упоминают путь.
	ListByPath(ctx context.Context, path string) ([]*domain.Activity, error)

	// ListByPlan возвращает activities указанной версии плана.
	ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Activity, error)
}

// Build строит DAG из набора activities.
//
// Для каждого Usage производитель определяется как activity,
// которая сгенерировала тот же путь последней строго до старта
// потребителя и не была вытеснена промежуточной перегенерацией.
// Равенства разрешаются по времени старта, затем по ID —
// построение детерминировано.
func Build(activities []*domain.Activity) *DAG {
	dag := newDAG()

	ordered := make([]*domain.Activity, len(activities))
	copy(ordered, activities)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	for _, activity := range ordered {
		dag.addNode(activity)
	}

	// generations по каждому пути в хронологическом порядке
	producers := make(map[string][]*domain.Activity)
	for _, activity := range ordered {
		for _, g := range activity.Generations {
			producers[g.Entity.Path] = append(producers[g.Entity.Path], activity)
		}
	}

	for _, consumer := range ordered {
		for _, u := range consumer.Usages {
			producer := resolveProducer(producers[u.Entity.Path], consumer)
			if producer == nil {
				continue // вход пришёл извне, не из записанного выполнения
			}
			dag.addEdge(dag.Nodes[producer.ID], dag.Nodes[consumer.ID])
		}
	}

	dag.findRootNodes()
	dag.Order = dag.topologicalSort()
	return dag
}

// resolveProducer возвращает последнюю generation пути до старта
// потребителя. candidates отсортированы хронологически.
func resolveProducer(candidates []*domain.Activity, consumer *domain.Activity) *domain.Activity {
	var producer *domain.Activity
	for _, candidate := range candidates {
		if candidate.ID == consumer.ID {
			continue
		}
		if !candidate.Before(consumer) {
			break
		}
		producer = candidate
	}
	return producer
}

// BuildFull строит DAG по всей истории проекта.
//
// Полный обход — fallback: для status/update предпочтительно
// ограниченное построение BuildForPaths/BuildForPlan.
func BuildFull(ctx context.Context, src ActivitySource) (*DAG, error) {
	activities, err := src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return Build(activities), nil
}

// BuildForPaths строит ограниченный DAG: связная компонента
// activities, достижимая от указанных путей через общие пути
// usages/generations.
func BuildForPaths(ctx context.Context, src ActivitySource, paths []string) (*DAG, error) {
	seen := make(map[uuid.UUID]bool)
	visited := make(map[string]bool)
	collected := make([]*domain.Activity, 0)

	frontier := append([]string(nil), paths...)
	for len(frontier) > 0 {
		path := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visited[path] {
			continue
		}
		visited[path] = true

		activities, err := src.ListByPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("list activities for %s: %w", path, err)
		}
		for _, activity := range activities {
			if seen[activity.ID] {
				continue
			}
			seen[activity.ID] = true
			collected = append(collected, activity)

			for _, p := range activity.UsedPaths() {
				if !visited[p] {
					frontier = append(frontier, p)
				}
			}
			for _, p := range activity.GeneratedPaths() {
				if !visited[p] {
					frontier = append(frontier, p)
				}
			}
		}
	}

	return Build(collected), nil
}

// BuildForPlan строит ограниченный DAG вокруг activities указанной
// версии плана: сами activities плюс связная компонента по путям.
func BuildForPlan(ctx context.Context, src ActivitySource, planID uuid.UUID) (*DAG, error) {
	activities, err := src.ListByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("list activities for plan %s: %w", planID, err)
	}

	paths := make([]string, 0)
	for _, activity := range activities {
		paths = append(paths, activity.UsedPaths()...)
		paths = append(paths, activity.GeneratedPaths()...)
	}
	return BuildForPaths(ctx, src, paths)
}
