package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/graph"
	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/vcs"
)

// Hasher — часть VCS-коллаборатора, нужная движку статуса.
type Hasher interface {
	// CurrentHash возвращает идентичность текущего содержимого пути
	// или vcs.ErrPathMissing.
	CurrentHash(ctx context.Context, path string) (domain.ContentID, error)
}

// PlanResolver — доступ к цепочке версий планов. Движок помечает
// activity устаревшей, когда голова цепочки отличается от версии,
// против которой activity была записана.
type PlanResolver interface {
	// LatestVersion возвращает актуальную версию: идёт по цепочке
	// derived-from вперёд до активной головы. Возвращает
	// StaleReferenceError, если голова инвалидирована без преемника.
	LatestVersion(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
}

// Options — параметры вычисления статуса.
type Options struct {
	// Paths ограничивает граф связной компонентой вокруг путей.
	// Пустой список — полная история (fallback).
	Paths []string

	// ChangedPlans принудительно помечает версии планов изменёнными
	// поверх автоматической детекции по цепочке версий.
	ChangedPlans map[uuid.UUID]bool

	// IgnoreDeleted — не блокировать распространение staleness
	// через отсутствующие на диске выходы.
	IgnoreDeleted bool
}

// Engine вычисляет разбиение выходов проекта на
// {stale, modified, deleted, up-to-date}.
//
// Движок read-only: однопоточный, без точек приостановки кроме
// I/O хранилища, блокировка проекта не требуется.
type Engine struct {
	src    graph.ActivitySource
	hasher Hasher
	plans  PlanResolver
	logger *slog.Logger
}

// New создаёт Engine. plans может быть nil — тогда изменения
// определений планов не детектируются.
func New(src graph.ActivitySource, hasher Hasher, plans PlanResolver, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{src: src, hasher: hasher, plans: plans, logger: logger}
}

// currentState — закешированное состояние пути на диске.
type currentState struct {
	checksum domain.ContentID
	missing  bool
}

// Compute выполняет один прямой проход по DAG в топологическом
// порядке. Каждый путь хешируется не более одного раза.
func (e *Engine) Compute(ctx context.Context, opts Options) (*Report, error) {
	var (
		dag *graph.DAG
		err error
	)
	if len(opts.Paths) > 0 {
		dag, err = graph.BuildForPaths(ctx, e.src, opts.Paths)
	} else {
		dag, err = graph.BuildFull(ctx, e.src)
	}
	if err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	changed, err := e.changedPlans(ctx, dag, opts.ChangedPlans)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	cache := make(map[string]currentState)

	// последний производитель каждого пути: только невытесненные
	// generations участвуют в отчёте
	latest := make(map[string]uuid.UUID)
	for _, node := range dag.Order {
		for _, g := range node.Activity.Generations {
			latest[g.Entity.Path] = node.ID()
		}
	}

	causes := make(map[uuid.UUID][]string)    // activity → изменённые пути-причины
	blocked := make(map[string]bool)          // пути, через которые распространение остановлено
	reportedModified := make(map[string]bool) // dedup modified inputs

	for _, node := range dag.Order {
		activity := node.Activity
		nodeCauses := make([]string, 0)

		// Изменение определения плана делает activity устаревшей.
		if changed[activity.PlanID] {
			nodeCauses = append(nodeCauses, "plan:"+activity.PlanID.String())
		}

		// Прямое изменение входов: записанный checksum не совпадает
		// с текущим содержимым. Заблокированные пути (удалённые
		// выходы выше по графу) не считаются причиной.
		for _, u := range activity.Usages {
			if blocked[u.Entity.Path] {
				continue
			}
			state, err := e.current(ctx, cache, u.Entity.Path)
			if err != nil {
				return nil, err
			}
			if state.missing || state.checksum != u.Entity.Checksum {
				nodeCauses = append(nodeCauses, u.Entity.Path)
				if !reportedModified[u.Entity.Path] {
					reportedModified[u.Entity.Path] = true
					report.ModifiedInputs = append(report.ModifiedInputs, ModifiedInput{
						Path:     u.Entity.Path,
						Recorded: u.Entity.Checksum,
						Current:  state.checksum,
					})
				}
			}
		}

		// Транзитивное устаревание: поставщик входа устарел и путь
		// не заблокирован удалённым выходом.
		for _, u := range activity.Usages {
			if blocked[u.Entity.Path] {
				continue
			}
			for _, dep := range node.DependsOn {
				if !dep.Activity.GeneratesPath(u.Entity.Path) {
					continue
				}
				if upstream, stale := causes[dep.ID()]; stale {
					nodeCauses = append(nodeCauses, upstream...)
				}
			}
		}

		stale := len(nodeCauses) > 0
		if stale {
			causes[node.ID()] = dedupe(nodeCauses)
		}

		// Классификация невытесненных выходов узла.
		for _, g := range activity.Generations {
			path := g.Entity.Path
			if latest[path] != node.ID() {
				continue // вытеснен более поздней generation
			}

			state, err := e.current(ctx, cache, path)
			if err != nil {
				return nil, err
			}
			if state.missing {
				report.DeletedOutputs = append(report.DeletedOutputs, DeletedOutput{
					Path:       path,
					ActivityID: node.ID(),
				})
				if !opts.IgnoreDeleted {
					blocked[path] = true
				}
				continue
			}

			if stale {
				report.StaleOutputs = append(report.StaleOutputs, StaleOutput{
					Path:       path,
					ActivityID: node.ID(),
					PlanID:     activity.PlanID,
					Causes:     causes[node.ID()],
				})
			} else {
				report.UpToDate = append(report.UpToDate, path)
			}
		}
	}

	report.normalize()
	e.logger.Debug("status computed",
		"nodes", dag.Size(),
		"stale", len(report.StaleOutputs),
		"modified", len(report.ModifiedInputs),
		"deleted", len(report.DeletedOutputs),
	)
	return report, nil
}

// changedPlans помечает версии планов, чьё определение изменилось
// после записи: голова цепочки версий отличается от записанной
// версии. forced-версии из Options сохраняются как есть. План,
// инвалидированный без преемника, изменённым не считается — его
// выходы нечем пересчитывать.
func (e *Engine) changedPlans(ctx context.Context, dag *graph.DAG, forced map[uuid.UUID]bool) (map[uuid.UUID]bool, error) {
	changed := make(map[uuid.UUID]bool, len(forced))
	for id, isChanged := range forced {
		if isChanged {
			changed[id] = true
		}
	}
	if e.plans == nil {
		return changed, nil
	}

	checked := make(map[uuid.UUID]bool)
	for _, node := range dag.Order {
		planID := node.Activity.PlanID
		if checked[planID] || changed[planID] {
			continue
		}
		checked[planID] = true

		latest, err := e.plans.LatestVersion(ctx, planID)
		if err != nil {
			var severed *storage.StaleReferenceError
			if errors.As(err, &severed) {
				continue
			}
			return nil, fmt.Errorf("resolve current plan for %s: %w", planID, err)
		}
		if latest.ID != planID {
			changed[planID] = true
		}
	}
	return changed, nil
}

// current возвращает закешированное состояние пути на диске.
func (e *Engine) current(ctx context.Context, cache map[string]currentState, path string) (currentState, error) {
	if state, ok := cache[path]; ok {
		return state, nil
	}

	checksum, err := e.hasher.CurrentHash(ctx, path)
	var state currentState
	switch {
	case errors.Is(err, vcs.ErrPathMissing):
		state = currentState{missing: true}
	case err != nil:
		return currentState{}, fmt.Errorf("hash %s: %w", path, err)
	default:
		state = currentState{checksum: checksum}
	}
	cache[path] = state
	return state, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
