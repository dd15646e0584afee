package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/update"
)

// PostUpdate пересчитывает устаревшие выходы проекта.
// POST /v1/update
//
// Берёт межпроцессную блокировку проекта: одновременно с CLI или
// вторым экземпляром сервиса пишет только кто-то один.
func (h *Handler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	// пустое тело допустимо: пересчитать всё с настройками по умолчанию
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	release, err := h.lock.Acquire(r.Context(), h.root, h.lockTimeout)
	if err != nil {
		if errors.Is(err, storage.ErrLockTimeout) {
			LockTimeout(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}
	defer release()

	summary, _, err := h.updateEng.Update(r.Context(), update.Options{
		Paths:         req.Paths,
		All:           len(req.Paths) == 0,
		IgnoreDeleted: req.IgnoreDeleted,
		DryRun:        req.DryRun,
		Provider:      req.Provider,
		Agent:         "lineage-service",
	})
	switch {
	case errors.Is(err, update.ErrNothingToDo):
		Success(w, UpdateResponse{NothingToDo: true})
		return
	case errors.Is(err, update.ErrDeletedOutputs):
		InvalidState(w, err.Error())
		return
	case err != nil:
		InternalError(w, h.logger, err)
		return
	}

	resp := UpdateFromSummary(summary)
	if summary.Err() != nil {
		// часть юнитов упала: сводка полная, статус отражает неуспех
		JSON(w, http.StatusConflict, DataResponse{Data: resp})
		return
	}
	Success(w, resp)
}
