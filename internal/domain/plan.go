package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Plan — переиспользуемый шаблон выполнения одной команды.
//
// Plan создаётся записанным выполнением (lineage run) или явно.
// Редактирование никогда не мутирует версию, на которую ссылаются
// Activities: создаётся новый Plan с DerivedFrom, а старый
// инвалидируется.
type Plan struct {
	// ID — уникальный идентификатор версии плана.
	ID uuid.UUID `json:"id"`

	// Name — имя плана, уникальное среди неинвалидированных планов.
	Name string `json:"name"`

	// Description — описание назначения плана.
	Description string `json:"description,omitempty"`

	// Keywords — ключевые слова для поиска.
	Keywords []string `json:"keywords,omitempty"`

	// Command — шаблон команды без подставленных параметров
	// (например "python scripts/train.py").
	Command string `json:"command"`

	// Parameters — упорядоченный список типизированных параметров.
	Parameters []CommandParameter `json:"parameters,omitempty"`

	// SuccessCodes — коды выхода, считающиеся успехом.
	// Пустой список означает {0}.
	SuccessCodes []int `json:"success_codes,omitempty"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`

	// InvalidatedAt — время мягкого удаления.
	// Инвалидированные планы сохраняются (provenance остаётся
	// разрешимым), но исключаются из активных списков и не могут
	// быть целью новых выполнений.
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`

	// DerivedFrom — ID плана, из которого получена эта версия
	// редактированием. Nil для первой версии.
	DerivedFrom *uuid.UUID `json:"derived_from,omitempty"`
}

// IsActive возвращает true, если план не инвалидирован.
func (p *Plan) IsActive() bool {
	return p.InvalidatedAt == nil
}

// Parameter возвращает параметр по имени или nil.
func (p *Plan) Parameter(name string) *CommandParameter {
	for i := range p.Parameters {
		if p.Parameters[i].Name == name {
			return &p.Parameters[i]
		}
	}
	return nil
}

// Inputs возвращает параметры с kind=input в порядке позиций.
func (p *Plan) Inputs() []CommandParameter {
	return p.byKind(KindInput)
}

// Outputs возвращает параметры с kind=output в порядке позиций.
func (p *Plan) Outputs() []CommandParameter {
	return p.byKind(KindOutput)
}

func (p *Plan) byKind(kind ParameterKind) []CommandParameter {
	params := make([]CommandParameter, 0)
	for _, cp := range p.Parameters {
		if cp.Kind == kind {
			params = append(params, cp)
		}
	}
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Position < params[j].Position
	})
	return params
}

// IsSuccessCode возвращает true, если код выхода объявлен успешным.
func (p *Plan) IsSuccessCode(code int) bool {
	if len(p.SuccessCodes) == 0 {
		return code == 0
	}
	for _, c := range p.SuccessCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Validate проверяет внутреннюю согласованность плана.
//
// Проверяется: непустые имя и команда, известные kind,
// уникальность имён параметров, stream только на файловых
// параметрах (stdin — input, stdout/stderr — output),
// create_folder только на output.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan %s: %w", p.ID, ErrEmptyPlanName)
	}
	if p.Command == "" {
		return fmt.Errorf("plan %q: %w", p.Name, ErrEmptyCommand)
	}

	seen := make(map[string]bool, len(p.Parameters))
	for _, cp := range p.Parameters {
		if cp.Name == "" {
			return fmt.Errorf("plan %q: %w", p.Name, ErrEmptyParameterName)
		}
		if seen[cp.Name] {
			return fmt.Errorf("plan %q, parameter %q: %w", p.Name, cp.Name, ErrDuplicateParameter)
		}
		seen[cp.Name] = true

		if !cp.Kind.Valid() {
			return fmt.Errorf("plan %q, parameter %q: %w: %s", p.Name, cp.Name, ErrUnknownParameterKind, cp.Kind)
		}
		if cp.CreateFolder && cp.Kind != KindOutput {
			return fmt.Errorf("plan %q, parameter %q: %w", p.Name, cp.Name, ErrCreateFolderOnNonOutput)
		}
		switch cp.Stream {
		case StreamNone:
		case StreamStdin:
			if cp.Kind != KindInput {
				return fmt.Errorf("plan %q, parameter %q: %w", p.Name, cp.Name, ErrStreamKindMismatch)
			}
		case StreamStdout, StreamStderr:
			if cp.Kind != KindOutput {
				return fmt.Errorf("plan %q, parameter %q: %w", p.Name, cp.Name, ErrStreamKindMismatch)
			}
		default:
			return fmt.Errorf("plan %q, parameter %q: unknown stream %q", p.Name, cp.Name, cp.Stream)
		}
	}
	return nil
}

// Derive создаёт новую версию плана с новым ID и ссылкой DerivedFrom.
//
// Вызывающий затем модифицирует копию (имя, default'ы, описание)
// и инвалидирует исходную версию. Activities продолжают ссылаться
// на старый ID.
func (p *Plan) Derive(now time.Time) *Plan {
	next := *p
	next.ID = uuid.New()
	next.CreatedAt = now
	next.InvalidatedAt = nil
	from := p.ID
	next.DerivedFrom = &from

	next.Keywords = append([]string(nil), p.Keywords...)
	next.Parameters = append([]CommandParameter(nil), p.Parameters...)
	next.SuccessCodes = append([]int(nil), p.SuccessCodes...)
	return &next
}

// Invalidate помечает план как мягко удалённый.
func (p *Plan) Invalidate(now time.Time) {
	if p.InvalidatedAt == nil {
		p.InvalidatedAt = &now
	}
}
