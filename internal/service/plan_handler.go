package service

import (
	"net/http"

	"github.com/google/uuid"
)

// ListPlans возвращает планы проекта.
// GET /v1/plans?all=1 — включая инвалидированные версии.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	includeInvalidated := r.URL.Query().Get("all") != ""

	plans, err := h.plans.List(r.Context(), includeInvalidated)
	if HandleStorageError(w, h.logger, err, "") {
		return
	}

	result := make([]PlanResponse, len(plans))
	for i, p := range plans {
		result[i] = PlanFromStored(p)
	}
	List(w, result, len(result))
}

// GetPlan возвращает активный план по имени, с полным определением.
// GET /v1/plans/{name}
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		BadRequest(w, "plan name is required")
		return
	}

	stored, err := h.plans.ByName(r.Context(), name)
	if HandleStorageError(w, h.logger, err, "plan not found") {
		return
	}

	if stored.Composite != nil {
		Success(w, stored.Composite)
		return
	}
	Success(w, stored.Plan)
}

// ListActivities возвращает записи выполнений.
// GET /v1/activities?path=...&plan=<uuid>
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Get("path") != "":
		activities, err := h.activities.ListByPath(r.Context(), query.Get("path"))
		if HandleStorageError(w, h.logger, err, "") {
			return
		}
		List(w, activities, len(activities))
	case query.Get("plan") != "":
		planID, err := uuid.Parse(query.Get("plan"))
		if err != nil {
			BadRequest(w, "invalid plan id")
			return
		}
		activities, err := h.activities.ListByPlan(r.Context(), planID)
		if HandleStorageError(w, h.logger, err, "") {
			return
		}
		List(w, activities, len(activities))
	default:
		activities, err := h.activities.ListAll(r.Context())
		if HandleStorageError(w, h.logger, err, "") {
			return
		}
		List(w, activities, len(activities))
	}
}
