package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vselutin/lineage/internal/domain"
)

// EnvPrefix — префикс переменных окружения, через которые каждый
// параметр юнита доступен команде: LINEAGE_PARAM_<NAME>=<value>.
const EnvPrefix = "LINEAGE_PARAM_"

// UnitStatus — статус выполнения юнита.
type UnitStatus string

const (
	// UnitSucceeded — команда завершилась объявленным кодом успеха.
	UnitSucceeded UnitStatus = "SUCCEEDED"

	// UnitFailed — код выхода вне множества успеха либо
	// инфраструктурная ошибка запуска.
	UnitFailed UnitStatus = "FAILED"

	// UnitSkipped — юнит не запускался: выше по батчу упала
	// зависимость.
	UnitSkipped UnitStatus = "SKIPPED"
)

// ExecUnit — одна единица работы для бэкенда.
type ExecUnit struct {
	// Plan — версия плана для выполнения.
	Plan *domain.Plan `json:"plan"`

	// Values — разрешённые значения параметров (имя → значение).
	Values map[string]string `json:"values,omitempty"`

	// WorkDir — рабочая директория относительно базовой.
	WorkDir string `json:"work_dir,omitempty"`

	// DependsOn — индексы юнитов этого же батча, от которых
	// зависит данный. Бэкенд обязан пропустить юнит, если любая
	// зависимость не завершилась успехом.
	DependsOn []int `json:"depends_on,omitempty"`
}

// UnitResult — результат выполнения одного юнита.
type UnitResult struct {
	// Status — итоговый статус.
	Status UnitStatus `json:"status"`

	// ExitCode — код выхода команды (0, если не запускалась).
	ExitCode int `json:"exit_code"`

	// GeneratedPaths — пути, порождённые выполнением.
	GeneratedPaths []string `json:"generated_paths,omitempty"`

	// Error — описание ошибки для FAILED/SKIPPED.
	Error string `json:"error,omitempty"`

	// StartedAt / EndedAt — границы выполнения.
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Provider — подключаемый бэкенд выполнения.
//
// Контракт: юниты выполняются в переданном порядке (или
// параллелятся с соблюдением DependsOn); возвращается ровно по
// одному результату на юнит, в том же порядке. Ошибка возврата
// означает инфраструктурный сбой бэкенда целиком, не падение
// отдельного юнита.
type Provider interface {
	// Name возвращает уникальное имя бэкенда.
	Name() string

	// Execute выполняет батч юнитов в базовой директории.
	Execute(ctx context.Context, units []ExecUnit, baseDir string, config map[string]string) ([]UnitResult, error)
}

// Registry — реестр бэкендов по имени. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// DefaultRegistry создаёт реестр со встроенными бэкендами.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewLocal())
	r.Register(NewAMQP())
	return r
}

// Register регистрирует бэкенд. Повторная регистрация имени
// перезаписывает предыдущий.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get возвращает бэкенд по имени.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names возвращает имена зарегистрированных бэкендов по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvName приводит имя параметра к форме переменной окружения:
// LINEAGE_PARAM_ + имя в верхнем регистре, не-алфавитноцифровые
// символы заменяются подчёркиванием.
func EnvName(param string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for _, r := range strings.ToUpper(param) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// paramEnv возвращает переменные окружения юнита: каждый параметр
// плана экспортируется как LINEAGE_PARAM_<NAME>=<значение>.
func paramEnv(unit ExecUnit) []string {
	envs := make([]string, 0, len(unit.Plan.Parameters))
	for _, p := range unit.Plan.Parameters {
		value, ok := unit.Values[p.Name]
		if !ok {
			value = p.Default
		}
		if value == "" {
			continue
		}
		envs = append(envs, EnvName(p.Name)+"="+value)
	}
	sort.Strings(envs)
	return envs
}

// skipIfUpstreamFailed проверяет зависимости юнита по уже
// готовым результатам и возвращает результат SKIPPED, если
// какая-то зависимость не успешна.
func skipIfUpstreamFailed(unit ExecUnit, done []UnitResult) *UnitResult {
	for _, dep := range unit.DependsOn {
		if dep < 0 || dep >= len(done) {
			continue
		}
		if done[dep].Status != UnitSucceeded {
			return &UnitResult{
				Status: UnitSkipped,
				Error:  fmt.Sprintf("not attempted: upstream unit %d did not succeed", dep),
			}
		}
	}
	return nil
}
