package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/telemetry"
	"github.com/vselutin/lineage/internal/vcs"
)

// ErrNoUnits — батч пуст, выполнять нечего.
var ErrNoUnits = errors.New("nothing to execute")

// Unit — запланированная единица работы с provenance-контекстом.
type Unit struct {
	// Plan — версия плана для выполнения.
	Plan *domain.Plan

	// Values — разрешённые значения параметров.
	Values map[string]string

	// WorkDir — рабочая директория относительно корня проекта.
	WorkDir string

	// DependsOn — индексы юнитов батча, от которых зависит данный.
	DependsOn []int

	// Supersedes — activity, чьи generations вытесняются этим
	// запуском (для update). Zero-значение — новый запуск.
	Supersedes uuid.UUID

	// RestoreInputs — записанные входы с checksums; отсутствующие
	// на диске восстанавливаются из хранилища артефактов перед
	// выполнением (rerun).
	RestoreInputs []domain.Usage
}

// Outcome — итог одного юнита.
type Outcome struct {
	// Unit — исходный юнит.
	Unit Unit

	// Result — результат бэкенда (для dry-run статус пуст).
	Result provider.UnitResult

	// Activity — зафиксированная запись выполнения.
	// Nil при dry-run, skip-metadata, падении или пропуске.
	Activity *domain.Activity
}

// Summary — сводка выполнения батча.
type Summary struct {
	// Outcomes — итоги в порядке юнитов.
	Outcomes []Outcome

	// DryRun — батч не выполнялся, только спланирован.
	DryRun bool

	// Executed, Failed, Skipped — счётчики по статусам.
	Executed int
	Failed   int
	Skipped  int
}

// Err возвращает ошибку, если хотя бы одна ветка упала.
// Независимые успешные ветки не отменяют общий неуспех команды.
func (s *Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d units failed, %d skipped downstream",
		provider.ErrExecutionFailed, s.Failed, len(s.Outcomes), s.Skipped)
}

// Options — параметры запуска батча.
type Options struct {
	// Provider — имя бэкенда (default "local").
	Provider string

	// Config — конфигурация бэкенда.
	Config map[string]string

	// DryRun — вывести порядок без выполнения.
	DryRun bool

	// SkipMetadata — выполнить команды, но не фиксировать новые
	// activities (режим инспекции).
	SkipMetadata bool

	// Agent — кто выполняет (для записи в activity).
	Agent string
}

// ActivityRecorder — фиксация новых activities в хранилище.
type ActivityRecorder interface {
	StoreActivity(ctx context.Context, activity *domain.Activity) error
}

// Hasher — часть VCS-коллаборатора для фиксации checksums
// фактических входов и выходов.
type Hasher interface {
	CurrentHash(ctx context.Context, path string) (domain.ContentID, error)
}

// ArtifactStore — опциональное хранилище содержимого: выгрузка
// порождённых выходов и восстановление отсутствующих входов.
type ArtifactStore interface {
	Upload(ctx context.Context, path string, checksum domain.ContentID) error
	Restore(ctx context.Context, path string, checksum domain.ContentID) error
}

// Coordinator выполняет батчи юнитов через Provider.
type Coordinator struct {
	root      string
	registry  *provider.Registry
	recorder  ActivityRecorder
	hasher    Hasher
	artifacts ArtifactStore
	logger    *slog.Logger
}

// New создаёт Coordinator. root — корень проекта: команды юнитов
// выполняются из него (плюс WorkDir юнита), там же хешируются их
// входы и выходы. artifacts может быть nil.
func New(root string, registry *provider.Registry, recorder ActivityRecorder, hasher Hasher, artifacts ArtifactStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		root:      root,
		registry:  registry,
		recorder:  recorder,
		hasher:    hasher,
		artifacts: artifacts,
		logger:    logger,
	}
}

// Run выполняет батч юнитов в топологическом порядке вызывающего.
//
// Падение юнита не прерывает независимые ветки (бэкенд пропускает
// только зависимые юниты); сводка отражает все исходы, а Summary.Err
// сообщает общий неуспех. Новые activities фиксируются по одному
// на успешный юнит, если не включён SkipMetadata.
func (c *Coordinator) Run(ctx context.Context, units []Unit, opts Options) (*Summary, error) {
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	providerName := opts.Provider
	if providerName == "" {
		providerName = "local"
	}
	backend, err := c.registry.Get(providerName)
	if err != nil {
		return nil, err
	}

	summary := &Summary{DryRun: opts.DryRun}
	if opts.DryRun {
		for _, unit := range units {
			summary.Outcomes = append(summary.Outcomes, Outcome{Unit: unit})
		}
		return summary, nil
	}

	if err := c.restoreMissingInputs(ctx, units); err != nil {
		return nil, err
	}

	execUnits := make([]provider.ExecUnit, 0, len(units))
	for _, unit := range units {
		execUnits = append(execUnits, provider.ExecUnit{
			Plan:      unit.Plan,
			Values:    unit.Values,
			WorkDir:   unit.WorkDir,
			DependsOn: unit.DependsOn,
		})
	}

	c.logger.Info("dispatching batch",
		"provider", providerName,
		"units", len(units),
	)

	results, err := backend.Execute(ctx, execUnits, c.root, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", providerName, err)
	}
	if len(results) != len(units) {
		return nil, fmt.Errorf("provider %s returned %d results for %d units", providerName, len(results), len(units))
	}

	for i, result := range results {
		outcome := Outcome{Unit: units[i], Result: result}

		telemetry.ObserveUnit(string(result.Status), units[i].Plan.Name, result.EndedAt.Sub(result.StartedAt))

		switch result.Status {
		case provider.UnitSucceeded:
			summary.Executed++
			if !opts.SkipMetadata {
				activity, err := c.recordActivity(ctx, units[i], result, opts.Agent)
				if err != nil {
					return nil, err
				}
				outcome.Activity = activity
			}
		case provider.UnitSkipped:
			summary.Skipped++
		default:
			summary.Failed++
			c.logger.Warn("unit failed",
				"plan", units[i].Plan.Name,
				"exit_code", result.ExitCode,
				"error", result.Error,
			)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}
	return summary, nil
}

// restoreMissingInputs возвращает на диск записанные входы,
// отсутствующие в рабочем дереве, из хранилища артефактов.
// Присутствующие пути не трогаются, даже если содержимое разошлось.
func (c *Coordinator) restoreMissingInputs(ctx context.Context, units []Unit) error {
	if c.artifacts == nil {
		return nil
	}
	for _, unit := range units {
		for _, usage := range unit.RestoreInputs {
			if usage.Entity.Checksum == "" {
				continue
			}
			_, err := c.hasher.CurrentHash(ctx, usage.Entity.Path)
			if err == nil {
				continue
			}
			if !errors.Is(err, vcs.ErrPathMissing) {
				return fmt.Errorf("hash input %s: %w", usage.Entity.Path, err)
			}
			if err := c.artifacts.Restore(ctx, usage.Entity.Path, usage.Entity.Checksum); err != nil {
				return fmt.Errorf("restore input %s: %w", usage.Entity.Path, err)
			}
			c.logger.Info("input restored from artifact store",
				"path", usage.Entity.Path,
				"checksum", usage.Entity.Checksum,
			)
		}
	}
	return nil
}

// recordActivity строит и фиксирует activity по фактическому
// результату: usages и generations получают текущие checksums.
func (c *Coordinator) recordActivity(ctx context.Context, unit Unit, result provider.UnitResult, agent string) (*domain.Activity, error) {
	activity := &domain.Activity{
		ID:        uuid.New(),
		PlanID:    unit.Plan.ID,
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
		Agent:     agent,
		Values:    unit.Values,
	}

	for _, param := range unit.Plan.Inputs() {
		path := paramValue(unit, param.Name, param.Default)
		if path == "" {
			continue
		}
		checksum, err := c.hasher.CurrentHash(ctx, path)
		if err != nil && !errors.Is(err, vcs.ErrPathMissing) {
			return nil, fmt.Errorf("hash input %s: %w", path, err)
		}
		activity.Usages = append(activity.Usages, domain.Usage{
			Entity: domain.Entity{Path: path, Checksum: checksum},
			Role:   param.Name,
		})
	}

	for _, param := range unit.Plan.Outputs() {
		path := paramValue(unit, param.Name, param.Default)
		if path == "" {
			continue
		}
		checksum, err := c.hasher.CurrentHash(ctx, path)
		if err != nil {
			if errors.Is(err, vcs.ErrPathMissing) {
				return nil, fmt.Errorf("plan %q: declared output %s was not produced", unit.Plan.Name, path)
			}
			return nil, fmt.Errorf("hash output %s: %w", path, err)
		}
		activity.Generations = append(activity.Generations, domain.Generation{
			Entity: domain.Entity{Path: path, Checksum: checksum},
			Role:   param.Name,
		})

		if c.artifacts != nil {
			if err := c.artifacts.Upload(ctx, path, checksum); err != nil {
				// выгрузка артефактов best-effort, provenance важнее
				c.logger.Warn("artifact upload failed", "path", path, "error", err)
			}
		}
	}

	if err := c.recorder.StoreActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("store activity: %w", err)
	}
	c.logger.Info("activity recorded",
		"activity_id", activity.ID,
		"plan", unit.Plan.Name,
		"generations", len(activity.Generations),
	)
	return activity, nil
}

func paramValue(unit Unit, name, fallback string) string {
	if v, ok := unit.Values[name]; ok {
		return v
	}
	return fallback
}
