package provider

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Ошибки бэкендов выполнения.
var (
	// ErrUnknownProvider — бэкенд с таким именем не зарегистрирован.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrExecutionFailed — юнит завершился кодом вне множества успеха.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrNoBrokerURL — amqp-бэкенд не сконфигурирован адресом брокера.
	ErrNoBrokerURL = errors.New("amqp provider requires broker url")

	// ErrResultTimeout — удалённый воркер не вернул результаты в срок.
	ErrResultTimeout = errors.New("timed out waiting for remote results")
)

// ExecutionError — падение конкретного юнита с контекстом.
type ExecutionError struct {
	// UnitIndex — позиция юнита в батче.
	UnitIndex int

	// PlanID — версия плана юнита.
	PlanID uuid.UUID

	// PlanName — имя плана для сообщений.
	PlanName string

	// ExitCode — код выхода команды.
	ExitCode int

	// Stderr — хвост stderr команды.
	Stderr string
}

// Error реализует интерфейс error.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("unit %d (plan %q): exit code %d", e.UnitIndex, e.PlanName, e.ExitCode)
}

// Unwrap возвращает сентинел ErrExecutionFailed.
func (e *ExecutionError) Unwrap() error {
	return ErrExecutionFailed
}
