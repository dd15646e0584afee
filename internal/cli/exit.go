package cli

import (
	"errors"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/graph"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/resolve"
	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/update"
)

// Коды выхода CLI.
const (
	// ExitOK — команда выполнена успешно.
	ExitOK = 0

	// ExitFailure — выполнение упало или произошла иная ошибка.
	ExitFailure = 1

	// ExitResolution — ошибка графа или разрешения параметров:
	// цикл ссылок, неразрешимый override, конфликт значений.
	ExitResolution = 2

	// ExitLockTimeout — блокировку проекта держит другой процесс.
	ExitLockTimeout = 3

	// ExitNothingToDo — все выходы актуальны, выполнять нечего.
	ExitNothingToDo = 4
)

// ExitCode отображает ошибку команды в код выхода процесса.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var cycleErr *graph.CycleError
	var resolutionErr *resolve.ResolutionError

	switch {
	case errors.Is(err, storage.ErrLockTimeout):
		return ExitLockTimeout
	case errors.Is(err, update.ErrNothingToDo),
		errors.Is(err, coordinator.ErrNoUnits):
		return ExitNothingToDo
	case errors.As(err, &cycleErr),
		errors.As(err, &resolutionErr),
		errors.Is(err, graph.ErrCyclicDependency),
		errors.Is(err, graph.ErrUnknownChild),
		errors.Is(err, update.ErrDeletedOutputs),
		errors.Is(err, update.ErrActivityNotFound):
		return ExitResolution
	case errors.Is(err, provider.ErrExecutionFailed):
		return ExitFailure
	default:
		return ExitFailure
	}
}
