package resolve

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

// PlanSource — доступ к планам и группам по идентификатору.
type PlanSource interface {
	// PlanByID возвращает план по ID.
	PlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error)

	// CompositeByID возвращает группу по ID.
	CompositeByID(ctx context.Context, id uuid.UUID) (*domain.CompositePlan, error)
}

// Leaf — листовой параметр развёрнутой группы.
type Leaf struct {
	// Path — dotted-путь параметра: "child.param" или
	// "child.grandchild.param" для вложенных групп.
	Path string

	// PlanPath — dotted-путь плана-владельца ("child",
	// "child.grandchild").
	PlanPath string

	// Plan — план-владелец параметра (конкретная версия).
	Plan *domain.Plan

	// Param — сам параметр.
	Param domain.CommandParameter
}

// Flattened — результат разворачивания группы.
type Flattened struct {
	// Leaves — все листовые параметры в порядке обхода детей.
	Leaves []Leaf

	// Mappings — групповые маппинги всех уровней:
	// полный путь маппинга → пути целевых листовых параметров.
	Mappings map[string][]string

	// MappingDefaults — default'ы маппингов (полный путь → значение).
	MappingDefaults map[string]string

	// MappingOrder — пути маппингов в порядке объявления.
	MappingOrder []string

	// Links — линки всех уровней с полными путями.
	Links []domain.ParameterLink

	// Steps — dotted-пути листовых планов в порядке выполнения группы.
	Steps []string
}

// Leaf возвращает листовой параметр по полному пути или nil.
func (f *Flattened) Leaf(path string) *Leaf {
	for i := range f.Leaves {
		if f.Leaves[i].Path == path {
			return &f.Leaves[i]
		}
	}
	return nil
}

// PlanAt возвращает план по dotted-пути шага или nil.
func (f *Flattened) PlanAt(planPath string) *domain.Plan {
	for i := range f.Leaves {
		if f.Leaves[i].PlanPath == planPath {
			return f.Leaves[i].Plan
		}
	}
	return nil
}

// FlattenComposite разворачивает группу (возможно вложенную) в
// плоский список листовых параметров.
//
// Пути маппингов и линков вложенных групп получают префикс имени
// ребёнка. Разрешимость каждого target/source/sink до листового
// параметра проверяется здесь: неразрешимый путь — ошибка
// определения группы.
func FlattenComposite(ctx context.Context, src PlanSource, composite *domain.CompositePlan) (*Flattened, error) {
	flat := &Flattened{
		Mappings:        make(map[string][]string),
		MappingDefaults: make(map[string]string),
	}
	if err := walkComposite(ctx, src, composite, "", flat); err != nil {
		return nil, err
	}

	// проверяем разрешимость маппингов
	for path, targets := range flat.Mappings {
		for _, target := range targets {
			if flat.Leaf(target) == nil {
				return nil, newResolutionError(path,
					fmt.Sprintf("mapping target %q is not a leaf parameter", target), ErrUnresolvable)
			}
		}
	}

	// проверяем разрешимость и типы линков
	for _, link := range flat.Links {
		source := flat.Leaf(link.Source)
		if source == nil {
			return nil, newResolutionError(link.Source, "link source is not a leaf parameter", ErrUnresolvable)
		}
		if source.Param.Kind != domain.KindOutput {
			return nil, newResolutionError(link.Source, "link source must be an output", ErrKindMismatch)
		}
		for _, sinkPath := range link.Sinks {
			sink := flat.Leaf(sinkPath)
			if sink == nil {
				return nil, newResolutionError(sinkPath, "link sink is not a leaf parameter", ErrUnresolvable)
			}
			if sink.Param.Kind != domain.KindInput {
				return nil, newResolutionError(sinkPath, "link sink must be an input", ErrKindMismatch)
			}
		}
	}
	return flat, nil
}

// walkComposite рекурсивно обходит группу, накапливая листья с
// префиксом prefix ("" для корня, "child." для вложенных).
func walkComposite(ctx context.Context, src PlanSource, composite *domain.CompositePlan, prefix string, flat *Flattened) error {
	for _, child := range composite.Children {
		childPrefix := prefix + child.Name

		switch child.Kind {
		case domain.ChildPlan:
			plan, err := src.PlanByID(ctx, child.PlanID)
			if err != nil {
				return fmt.Errorf("load child plan %q (%s): %w", child.Name, child.PlanID, err)
			}
			flat.Steps = append(flat.Steps, childPrefix)
			for _, param := range plan.Parameters {
				flat.Leaves = append(flat.Leaves, Leaf{
					Path:     childPrefix + "." + param.Name,
					PlanPath: childPrefix,
					Plan:     plan,
					Param:    param,
				})
			}

		case domain.ChildComposite:
			nested, err := src.CompositeByID(ctx, child.PlanID)
			if err != nil {
				return fmt.Errorf("load child group %q (%s): %w", child.Name, child.PlanID, err)
			}
			if err := walkComposite(ctx, src, nested, childPrefix+".", flat); err != nil {
				return err
			}

		default:
			return fmt.Errorf("child %q: unknown kind %q", child.Name, child.Kind)
		}
	}

	for _, m := range composite.Mappings {
		path := prefix + m.Name
		targets := make([]string, 0, len(m.Targets))
		for _, target := range m.Targets {
			targets = append(targets, prefix+target)
		}
		flat.Mappings[path] = targets
		flat.MappingOrder = append(flat.MappingOrder, path)
		if m.Default != "" {
			flat.MappingDefaults[path] = m.Default
		}
	}

	for _, l := range composite.Links {
		link := domain.ParameterLink{Source: prefix + l.Source}
		for _, sink := range l.Sinks {
			link.Sinks = append(link.Sinks, prefix+sink)
		}
		flat.Links = append(flat.Links, link)
	}
	return nil
}
