package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/storage"
)

// StatusResponse — отчёт статуса плюс сводный флаг.
type StatusResponse struct {
	Clean  bool           `json:"clean"`
	Report *status.Report `json:"report"`
}

// StatusFromReport собирает StatusResponse.
func StatusFromReport(report *status.Report) StatusResponse {
	return StatusResponse{Clean: report.Clean(), Report: report}
}

// UpdateRequest — параметры пересчёта.
type UpdateRequest struct {
	// Paths ограничивает пересчёт указанными путями; пусто — всё.
	Paths []string `json:"paths,omitempty"`

	// IgnoreDeleted — не блокировать пересчёт удалёнными выходами.
	IgnoreDeleted bool `json:"ignore_deleted,omitempty"`

	// DryRun — спланировать без выполнения.
	DryRun bool `json:"dry_run,omitempty"`

	// Provider — имя бэкенда выполнения (по умолчанию local).
	Provider string `json:"provider,omitempty"`
}

// UpdateResponse — сводка пересчёта.
type UpdateResponse struct {
	NothingToDo bool              `json:"nothing_to_do"`
	DryRun      bool              `json:"dry_run,omitempty"`
	Executed    int               `json:"executed"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	Outcomes    []OutcomeResponse `json:"outcomes,omitempty"`
}

// OutcomeResponse — итог одного юнита.
type OutcomeResponse struct {
	Plan       string     `json:"plan"`
	Status     string     `json:"status,omitempty"`
	ExitCode   int        `json:"exit_code,omitempty"`
	ActivityID *uuid.UUID `json:"activity_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// UpdateFromSummary собирает UpdateResponse.
func UpdateFromSummary(summary *coordinator.Summary) UpdateResponse {
	resp := UpdateResponse{
		DryRun:   summary.DryRun,
		Executed: summary.Executed,
		Failed:   summary.Failed,
		Skipped:  summary.Skipped,
	}
	for _, outcome := range summary.Outcomes {
		o := OutcomeResponse{
			Plan:     outcome.Unit.Plan.Name,
			Status:   string(outcome.Result.Status),
			ExitCode: outcome.Result.ExitCode,
			Error:    outcome.Result.Error,
		}
		if outcome.Activity != nil {
			id := outcome.Activity.ID
			o.ActivityID = &id
		}
		resp.Outcomes = append(resp.Outcomes, o)
	}
	return resp
}

// PlanResponse — краткое описание плана любого вида.
type PlanResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PlanFromStored собирает PlanResponse.
func PlanFromStored(stored *storage.StoredPlan) PlanResponse {
	resp := PlanResponse{
		ID:     stored.ID(),
		Name:   stored.Name(),
		Kind:   string(stored.Kind),
		Active: stored.IsActive(),
	}
	if stored.Kind == storage.KindComposite {
		resp.CreatedAt = stored.Composite.CreatedAt
	} else {
		resp.CreatedAt = stored.Plan.CreatedAt
	}
	return resp
}
