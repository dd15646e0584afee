package status

import (
	"sort"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

// StaleOutput — выход, чьи записанные входы больше не соответствуют
// текущему содержимому или чей план изменился.
type StaleOutput struct {
	// Path — путь устаревшего выхода.
	Path string `json:"path"`

	// ActivityID — activity, породившая актуальную версию выхода.
	ActivityID uuid.UUID `json:"activity_id"`

	// PlanID — версия плана этой activity.
	PlanID uuid.UUID `json:"plan_id"`

	// Causes — изменённые пути, из-за которых выход устарел
	// (прямые или транзитивные).
	Causes []string `json:"causes,omitempty"`
}

// ModifiedInput — вход, содержимое которого отличается от записанного.
type ModifiedInput struct {
	// Path — путь изменённого входа.
	Path string `json:"path"`

	// Recorded — checksum на момент записи.
	Recorded domain.ContentID `json:"recorded"`

	// Current — текущий checksum; пуст, если путь отсутствует.
	Current domain.ContentID `json:"current,omitempty"`
}

// DeletedOutput — ранее порождённый путь, отсутствующий на диске.
type DeletedOutput struct {
	// Path — отсутствующий путь.
	Path string `json:"path"`

	// ActivityID — activity, породившая путь.
	ActivityID uuid.UUID `json:"activity_id"`
}

// Report — результат вычисления статуса.
type Report struct {
	// StaleOutputs — устаревшие выходы.
	StaleOutputs []StaleOutput `json:"stale_outputs,omitempty"`

	// ModifiedInputs — изменённые входы.
	ModifiedInputs []ModifiedInput `json:"modified_inputs,omitempty"`

	// DeletedOutputs — удалённые выходы. Если не игнорируются,
	// блокируют распространение staleness через свой путь.
	DeletedOutputs []DeletedOutput `json:"deleted_outputs,omitempty"`

	// UpToDate — актуальные выходы.
	UpToDate []string `json:"up_to_date,omitempty"`
}

// Clean возвращает true, если устаревших и удалённых выходов нет.
func (r *Report) Clean() bool {
	return len(r.StaleOutputs) == 0 && len(r.DeletedOutputs) == 0
}

// StaleActivityIDs возвращает ID activities с устаревшими выходами
// (без дубликатов, порядок не определён).
func (r *Report) StaleActivityIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0)
	for _, s := range r.StaleOutputs {
		if !seen[s.ActivityID] {
			seen[s.ActivityID] = true
			ids = append(ids, s.ActivityID)
		}
	}
	return ids
}

// normalize сортирует все срезы по пути для детерминированного вывода.
func (r *Report) normalize() {
	sort.Slice(r.StaleOutputs, func(i, j int) bool { return r.StaleOutputs[i].Path < r.StaleOutputs[j].Path })
	sort.Slice(r.ModifiedInputs, func(i, j int) bool { return r.ModifiedInputs[i].Path < r.ModifiedInputs[j].Path })
	sort.Slice(r.DeletedOutputs, func(i, j int) bool { return r.DeletedOutputs[i].Path < r.DeletedOutputs[j].Path })
	sort.Strings(r.UpToDate)
	for i := range r.StaleOutputs {
		sort.Strings(r.StaleOutputs[i].Causes)
	}
}
