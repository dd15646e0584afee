package update

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/graph"
	"github.com/vselutin/lineage/internal/status"
)

// PlanResolver — доступ к версиям планов.
type PlanResolver interface {
	// PlanByID возвращает точную версию плана (включая инвалидированные).
	PlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error)

	// LatestVersion возвращает актуальную версию: идёт по цепочке
	// derived-from вперёд до активной головы. Возвращает
	// StaleReferenceError, если голова инвалидирована без преемника.
	LatestVersion(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
}

// Options — параметры update/rerun.
type Options struct {
	// Paths ограничивает update указанными путями.
	// Пустой список с All=false — тоже вся история.
	Paths []string

	// All — пересчитать все устаревшие выходы проекта.
	All bool

	// IgnoreDeleted — не блокировать пересчёт удалёнными выходами.
	IgnoreDeleted bool

	// ChangedPlans принудительно помечает версии планов изменёнными
	// поверх автоматической детекции движка статуса.
	ChangedPlans map[uuid.UUID]bool

	// DryRun / SkipMetadata / Provider / Config / Agent —
	// передаются координатору.
	DryRun       bool
	SkipMetadata bool
	Provider     string
	Config       map[string]string
	Agent        string
}

// Engine — движок update/rerun.
type Engine struct {
	activities  graph.ActivitySource
	plans       PlanResolver
	statusEng   *status.Engine
	coordinator *coordinator.Coordinator
	logger      *slog.Logger
}

// New создаёт Engine.
func New(activities graph.ActivitySource, plans PlanResolver, statusEng *status.Engine, coord *coordinator.Coordinator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		activities:  activities,
		plans:       plans,
		statusEng:   statusEng,
		coordinator: coord,
		logger:      logger,
	}
}

// Update пересчитывает устаревший подграф.
//
// Статус определяет множество устаревших activities; из них в
// топологическом порядке собирается батч юнитов с текущими
// default'ами планов. План, общий для нескольких устаревших веток
// с одинаковыми значениями, попадает в батч один раз.
func (e *Engine) Update(ctx context.Context, opts Options) (*coordinator.Summary, *status.Report, error) {
	paths := opts.Paths
	if opts.All {
		paths = nil
	}

	report, err := e.statusEng.Compute(ctx, status.Options{
		Paths:         paths,
		ChangedPlans:  opts.ChangedPlans,
		IgnoreDeleted: opts.IgnoreDeleted,
	})
	if err != nil {
		return nil, nil, err
	}

	if len(report.DeletedOutputs) > 0 && !opts.IgnoreDeleted {
		return nil, report, fmt.Errorf("%w: %d paths", ErrDeletedOutputs, len(report.DeletedOutputs))
	}
	if len(report.StaleOutputs) == 0 {
		return nil, report, ErrNothingToDo
	}

	var dag *graph.DAG
	if len(paths) > 0 {
		dag, err = graph.BuildForPaths(ctx, e.activities, paths)
	} else {
		dag, err = graph.BuildFull(ctx, e.activities)
	}
	if err != nil {
		return nil, report, err
	}

	stale := make(map[uuid.UUID]bool)
	for _, id := range report.StaleActivityIDs() {
		stale[id] = true
	}

	units, err := e.planUnits(ctx, dag, stale, true)
	if err != nil {
		return nil, report, err
	}

	e.logger.Info("update planned",
		"stale_outputs", len(report.StaleOutputs),
		"units", len(units),
		"dry_run", opts.DryRun,
	)

	summary, err := e.coordinator.Run(ctx, units, coordinator.Options{
		Provider:     opts.Provider,
		Config:       opts.Config,
		DryRun:       opts.DryRun,
		SkipMetadata: opts.SkipMetadata,
		Agent:        opts.Agent,
	})
	if err != nil {
		return nil, report, err
	}
	return summary, report, nil
}

// planUnits собирает юниты для выбранных узлов DAG в
// топологическом порядке с дедупликацией.
//
// current=true — брать актуальную версию плана и её default'ы
// (update); current=false — точную записанную версию и записанные
// значения (rerun).
func (e *Engine) planUnits(ctx context.Context, dag *graph.DAG, selected map[uuid.UUID]bool, current bool) ([]coordinator.Unit, error) {
	units := make([]coordinator.Unit, 0, len(selected))
	unitIndex := make(map[uuid.UUID]int)    // activity → индекс юнита
	dedup := make(map[string]int)           // plan+values → индекс юнита
	dependsOn := make(map[int]map[int]bool) // индекс юнита → зависимости

	for _, node := range dag.Order {
		activity := node.Activity
		if !selected[activity.ID] {
			continue
		}

		plan, values, err := e.unitPlan(ctx, activity, current)
		if err != nil {
			return nil, err
		}

		key := dedupKey(plan.ID, values)
		index, exists := dedup[key]
		if !exists {
			index = len(units)
			unit := coordinator.Unit{
				Plan:       plan,
				Values:     values,
				Supersedes: activity.ID,
			}
			if !current {
				// rerun: записанные входы с checksums позволяют
				// координатору восстановить отсутствующие файлы
				// из хранилища артефактов
				unit.RestoreInputs = activity.Usages
			}
			units = append(units, unit)
			dedup[key] = index
			dependsOn[index] = make(map[int]bool)
		}
		unitIndex[activity.ID] = index

		// зависимости только внутри батча
		for _, dep := range node.DependsOn {
			if depIndex, ok := unitIndex[dep.Activity.ID]; ok && depIndex != index {
				dependsOn[index][depIndex] = true
			}
		}
	}

	for index := range units {
		deps := make([]int, 0, len(dependsOn[index]))
		for dep := range dependsOn[index] {
			deps = append(deps, dep)
		}
		sort.Ints(deps)
		units[index].DependsOn = deps
	}
	return units, nil
}

// unitPlan возвращает план и значения параметров для юнита.
func (e *Engine) unitPlan(ctx context.Context, activity *domain.Activity, current bool) (*domain.Plan, map[string]string, error) {
	if !current {
		plan, err := e.plans.PlanByID(ctx, activity.PlanID)
		if err != nil {
			return nil, nil, fmt.Errorf("load plan %s: %w", activity.PlanID, err)
		}
		return plan, activity.Values, nil
	}

	plan, err := e.plans.LatestVersion(ctx, activity.PlanID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve current plan for %s: %w", activity.PlanID, err)
	}

	// Текущие default'ы побеждают; записанные значения сохраняются
	// для параметров без default'а (обычно пути, связывающие шаги).
	values := make(map[string]string)
	for _, param := range plan.Parameters {
		if param.Default != "" {
			values[param.Name] = param.Default
		} else if recorded, ok := activity.Values[param.Name]; ok {
			values[param.Name] = recorded
		}
	}
	return plan, values, nil
}

func dedupKey(planID uuid.UUID, values map[string]string) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	key := planID.String()
	for _, name := range names {
		key += "|" + name + "=" + values[name]
	}
	return key
}
