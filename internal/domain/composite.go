package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChildKind — тип дочернего элемента composite-плана.
type ChildKind string

const (
	// ChildPlan — дочерний элемент — обычный план.
	ChildPlan ChildKind = "plan"

	// ChildComposite — дочерний элемент — вложенная группа.
	ChildComposite ChildKind = "composite"
)

// ChildRef — ссылка на дочерний план внутри группы.
//
// Ссылка хранится по идентификатору, не inline-копией: изменение
// дочернего плана видно всем группам, которые на него ссылаются,
// пока дочерний план не инвалидирован.
type ChildRef struct {
	// Name — имя ребёнка внутри группы (уникально в пределах группы).
	Name string `json:"name"`

	// Kind — plan или composite.
	Kind ChildKind `json:"kind"`

	// PlanID — идентификатор плана или вложенной группы.
	PlanID uuid.UUID `json:"plan_id"`
}

// ParameterMapping — групповой параметр, связанный с параметрами детей.
//
// Позволяет выставить/агрегировать дочерние параметры на уровне
// группы: override по имени маппинга раскрывается во все Targets.
type ParameterMapping struct {
	// Name — имя параметра на уровне группы.
	Name string `json:"name"`

	// Default — опциональное значение по умолчанию.
	Default string `json:"default,omitempty"`

	// Targets — пути дочерних параметров вида "child.param"
	// (для вложенных групп — "child.grandchild.param").
	Targets []string `json:"targets"`
}

// ParameterLink — поток данных внутри группы.
//
// Связывает output одного ребёнка с input'ами других, независимо
// от совпадения файловых путей. Значение источника всегда
// побеждает явный override для связанного input'а.
type ParameterLink struct {
	// Source — путь output-параметра источника ("child.param").
	Source string `json:"source"`

	// Sinks — пути input-параметров получателей.
	Sinks []string `json:"sinks"`
}

// CompositePlan — именованная упорядоченная группа планов.
//
// Дети могут быть планами и вложенными группами; рекурсия
// разрешена, циклы запрещены (проверяется при создании и
// редактировании, до появления каких-либо Activities).
type CompositePlan struct {
	// ID — уникальный идентификатор версии группы.
	ID uuid.UUID `json:"id"`

	// Name — имя группы, уникальное среди неинвалидированных планов.
	Name string `json:"name"`

	// Description — описание назначения группы.
	Description string `json:"description,omitempty"`

	// Keywords — ключевые слова для поиска.
	Keywords []string `json:"keywords,omitempty"`

	// Children — упорядоченные ссылки на дочерние планы.
	Children []ChildRef `json:"children"`

	// Mappings — групповые параметры.
	Mappings []ParameterMapping `json:"mappings,omitempty"`

	// Links — потоки данных output → input между детьми.
	Links []ParameterLink `json:"links,omitempty"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`

	// InvalidatedAt — время мягкого удаления.
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`

	// DerivedFrom — ID версии, из которой получена эта.
	DerivedFrom *uuid.UUID `json:"derived_from,omitempty"`
}

// IsActive возвращает true, если группа не инвалидирована.
func (c *CompositePlan) IsActive() bool {
	return c.InvalidatedAt == nil
}

// Child возвращает ссылку на ребёнка по имени или nil.
func (c *CompositePlan) Child(name string) *ChildRef {
	for i := range c.Children {
		if c.Children[i].Name == name {
			return &c.Children[i]
		}
	}
	return nil
}

// Validate проверяет внутреннюю согласованность группы.
//
// Разрешимость путей маппингов/линков до листовых параметров
// проверяется отдельно резолвером — здесь только локальная форма.
func (c *CompositePlan) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("composite plan %s: %w", c.ID, ErrEmptyPlanName)
	}
	if len(c.Children) == 0 {
		return fmt.Errorf("composite plan %q: %w", c.Name, ErrEmptyChildren)
	}

	seen := make(map[string]bool, len(c.Children))
	for _, child := range c.Children {
		if child.Name == "" {
			return fmt.Errorf("composite plan %q: child has empty name", c.Name)
		}
		if strings.Contains(child.Name, ".") {
			return fmt.Errorf("composite plan %q, child %q: name must not contain dots", c.Name, child.Name)
		}
		if seen[child.Name] {
			return fmt.Errorf("composite plan %q, child %q: %w", c.Name, child.Name, ErrDuplicateChildName)
		}
		seen[child.Name] = true
	}

	for _, m := range c.Mappings {
		if m.Name == "" {
			return fmt.Errorf("composite plan %q: %w", c.Name, ErrEmptyMappingName)
		}
		if len(m.Targets) == 0 {
			return fmt.Errorf("composite plan %q, mapping %q: %w", c.Name, m.Name, ErrEmptyMappingTargets)
		}
		for _, target := range m.Targets {
			if err := checkParameterPath(target, seen); err != nil {
				return fmt.Errorf("composite plan %q, mapping %q: %w", c.Name, m.Name, err)
			}
		}
	}

	for _, l := range c.Links {
		if err := checkParameterPath(l.Source, seen); err != nil {
			return fmt.Errorf("composite plan %q, link source %q: %w", c.Name, l.Source, err)
		}
		if len(l.Sinks) == 0 {
			return fmt.Errorf("composite plan %q, link %q: link has no sinks", c.Name, l.Source)
		}
		for _, sink := range l.Sinks {
			if err := checkParameterPath(sink, seen); err != nil {
				return fmt.Errorf("composite plan %q, link sink %q: %w", c.Name, sink, err)
			}
		}
	}
	return nil
}

// checkParameterPath проверяет форму пути "child.param[...]" и то,
// что первый сегмент — существующий ребёнок группы.
func checkParameterPath(path string, children map[string]bool) error {
	first, rest, found := strings.Cut(path, ".")
	if !found || first == "" || rest == "" {
		return fmt.Errorf("%w: %q", ErrBadParameterPath, path)
	}
	if !children[first] {
		return fmt.Errorf("%w: unknown child %q in %q", ErrBadParameterPath, first, path)
	}
	return nil
}

// Derive создаёт новую версию группы с новым ID и ссылкой DerivedFrom.
func (c *CompositePlan) Derive(now time.Time) *CompositePlan {
	next := *c
	next.ID = uuid.New()
	next.CreatedAt = now
	next.InvalidatedAt = nil
	from := c.ID
	next.DerivedFrom = &from

	next.Keywords = append([]string(nil), c.Keywords...)
	next.Children = append([]ChildRef(nil), c.Children...)
	next.Mappings = append([]ParameterMapping(nil), c.Mappings...)
	next.Links = append([]ParameterLink(nil), c.Links...)
	return &next
}

// Invalidate помечает группу как мягко удалённую.
func (c *CompositePlan) Invalidate(now time.Time) {
	if c.InvalidatedAt == nil {
		c.InvalidatedAt = &now
	}
}
