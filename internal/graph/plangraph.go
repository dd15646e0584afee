package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

// CompositeSource — доступ к composite-планам для обхода ссылок.
type CompositeSource interface {
	// CompositeByID возвращает группу по ID.
	CompositeByID(ctx context.Context, id uuid.UUID) (*domain.CompositePlan, error)
}

// dfs-раскраска узлов при поиске цикла.
const (
	colorWhite = iota // не посещён
	colorGray         // в текущем пути обхода
	colorBlack        // обход завершён
)

// CheckAcyclic проверяет, что граф ссылок планов остаётся
// ацикличным после добавления или редактирования candidate.
//
// Вызывается до сохранения: кандидат подменяет сохранённую версию
// своего ID, поэтому редактирование, которое ретроактивно замкнуло
// бы цикл через потомка, тоже отлавливается. Возвращает *CycleError
// с путём цикла по именам планов.
func CheckAcyclic(ctx context.Context, src CompositeSource, candidate *domain.CompositePlan) error {
	walker := &planWalker{
		src:       src,
		candidate: candidate,
		color:     make(map[uuid.UUID]int),
	}
	return walker.visit(ctx, candidate, nil)
}

type planWalker struct {
	src       CompositeSource
	candidate *domain.CompositePlan
	color     map[uuid.UUID]int
}

func (w *planWalker) visit(ctx context.Context, composite *domain.CompositePlan, trail []string) error {
	switch w.color[composite.ID] {
	case colorBlack:
		return nil
	case colorGray:
		return &CycleError{Path: append(append([]string(nil), trail...), composite.Name)}
	}
	w.color[composite.ID] = colorGray
	trail = append(trail, composite.Name)

	for _, child := range composite.Children {
		if child.Kind != domain.ChildComposite {
			continue // листовые планы не ссылаются дальше
		}
		next, err := w.resolve(ctx, child.PlanID)
		if err != nil {
			return fmt.Errorf("child %q: %w", child.Name, err)
		}
		if err := w.visit(ctx, next, trail); err != nil {
			return err
		}
	}

	w.color[composite.ID] = colorBlack
	return nil
}

// resolve возвращает группу по ID, подменяя сохранённую версию
// кандидатом, если ID совпадает.
func (w *planWalker) resolve(ctx context.Context, id uuid.UUID) (*domain.CompositePlan, error) {
	if id == w.candidate.ID {
		return w.candidate, nil
	}
	composite, err := w.src.CompositeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChild, id)
	}
	return composite, nil
}
