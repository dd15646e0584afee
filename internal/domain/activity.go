package domain

import (
	"time"

	"github.com/google/uuid"
)

// Usage — потреблённая Activity сущность (вход).
type Usage struct {
	// Entity — файл, прочитанный выполнением.
	Entity Entity `json:"entity"`

	// Role — имя input-параметра плана, через который файл потреблён.
	Role string `json:"role,omitempty"`
}

// Generation — порождённая Activity сущность (выход).
type Generation struct {
	// Entity — файл, записанный выполнением.
	Entity Entity `json:"entity"`

	// Role — имя output-параметра плана, через который файл порождён.
	Role string `json:"role,omitempty"`
}

// Activity — неизменяемая запись одного прошедшего выполнения плана.
//
// Activity ссылается ровно на одну версию плана (PlanID): замена
// плана создаёт новую версию, прежние Activities продолжают
// указывать на старую. Записи append-only и создаются только
// успешным либо явно зафиксированным выполнением.
type Activity struct {
	// ID — уникальный идентификатор activity.
	ID uuid.UUID `json:"id"`

	// PlanID — версия плана, которая выполнялась.
	PlanID uuid.UUID `json:"plan_id"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// EndedAt — время завершения выполнения.
	EndedAt time.Time `json:"ended_at"`

	// Agent — кто выполнил (пользователь@хост или имя сервиса).
	Agent string `json:"agent,omitempty"`

	// Usages — потреблённые входы.
	Usages []Usage `json:"usages,omitempty"`

	// Generations — порождённые выходы.
	Generations []Generation `json:"generations,omitempty"`

	// Values — разрешённые значения параметров на момент запуска
	// (имя параметра → значение). Используются rerun'ом для
	// точного воспроизведения.
	Values map[string]string `json:"values,omitempty"`
}

// Duration возвращает продолжительность выполнения.
func (a *Activity) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}

// GeneratesPath возвращает true, если activity породила данный путь.
func (a *Activity) GeneratesPath(path string) bool {
	for _, g := range a.Generations {
		if g.Entity.Path == path {
			return true
		}
	}
	return false
}

// UsesPath возвращает true, если activity потребила данный путь.
func (a *Activity) UsesPath(path string) bool {
	for _, u := range a.Usages {
		if u.Entity.Path == path {
			return true
		}
	}
	return false
}

// GeneratedPaths возвращает пути всех Generations в порядке записи.
func (a *Activity) GeneratedPaths() []string {
	paths := make([]string, 0, len(a.Generations))
	for _, g := range a.Generations {
		paths = append(paths, g.Entity.Path)
	}
	return paths
}

// UsedPaths возвращает пути всех Usages в порядке записи.
func (a *Activity) UsedPaths() []string {
	paths := make([]string, 0, len(a.Usages))
	for _, u := range a.Usages {
		paths = append(paths, u.Entity.Path)
	}
	return paths
}

// Before сравнивает activities для детерминированного порядка:
// по времени старта, затем по ID.
func (a *Activity) Before(other *Activity) bool {
	if !a.StartedAt.Equal(other.StartedAt) {
		return a.StartedAt.Before(other.StartedAt)
	}
	return a.ID.String() < other.ID.String()
}
