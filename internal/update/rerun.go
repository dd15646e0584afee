package update

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/graph"
)

// RerunOptions — параметры воспроизведения.
type RerunOptions struct {
	// Paths — выходы, чьи порождающие цепочки воспроизводятся.
	Paths []string

	// From — пути, до которых цепочка не раскручивается: их
	// производители и всё выше по графу исключаются из батча.
	From []string

	// DryRun / SkipMetadata / Provider / Config / Agent —
	// передаются координатору.
	DryRun       bool
	SkipMetadata bool
	Provider     string
	Config       map[string]string
	Agent        string
}

// Rerun воспроизводит исторические цепочки, породившие указанные
// пути: для каждого пути берётся действующий производитель, его
// предки и он сам выполняются в топологическом порядке с точными
// записанными версиями планов и значениями параметров.
//
// В отличие от Update, статус не консультируется: rerun выполняется
// и тогда, когда выходы актуальны.
func (e *Engine) Rerun(ctx context.Context, opts RerunOptions) (*coordinator.Summary, error) {
	if len(opts.Paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", ErrActivityNotFound)
	}

	dag, err := graph.BuildForPaths(ctx, e.activities, opts.Paths)
	if err != nil {
		return nil, err
	}

	selected := make(map[uuid.UUID]bool)
	for _, path := range opts.Paths {
		producer := dag.LatestProducer(path)
		if producer == nil {
			return nil, fmt.Errorf("%w: no recorded execution generates %s", ErrActivityNotFound, path)
		}
		selected[producer.ID()] = true
		for id := range dag.Ancestors(producer.ID()) {
			selected[id] = true
		}
	}

	// --from обрезает цепочку: производители указанных путей и всё
	// выше по графу считаются готовыми и не выполняются заново.
	for _, path := range opts.From {
		producer := dag.LatestProducer(path)
		if producer == nil {
			continue
		}
		delete(selected, producer.ID())
		for id := range dag.Ancestors(producer.ID()) {
			delete(selected, id)
		}
	}

	if len(selected) == 0 {
		return nil, ErrNothingToDo
	}

	units, err := e.planUnits(ctx, dag, selected, false)
	if err != nil {
		return nil, err
	}

	e.logger.Info("rerun planned",
		"paths", len(opts.Paths),
		"units", len(units),
		"dry_run", opts.DryRun,
	)

	return e.coordinator.Run(ctx, units, coordinator.Options{
		Provider:     opts.Provider,
		Config:       opts.Config,
		DryRun:       opts.DryRun,
		SkipMetadata: opts.SkipMetadata,
		Agent:        opts.Agent,
	})
}
