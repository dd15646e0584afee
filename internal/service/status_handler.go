package service

import (
	"net/http"

	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/telemetry"
)

// GetStatus вычисляет разбиение выходов проекта.
// GET /v1/status?path=a&path=b&ignore-deleted=1
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	report, err := h.statusEng.Compute(r.Context(), status.Options{
		Paths:         query["path"],
		IgnoreDeleted: query.Get("ignore-deleted") != "",
	})
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	telemetry.ObserveStatus(report.Clean())
	Success(w, StatusFromReport(report))
}
