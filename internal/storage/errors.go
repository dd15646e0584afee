package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — конфликт уникальности (активный план с
	// таким именем уже существует).
	ErrAlreadyExists = errors.New("already exists")

	// ErrWrongKind — запись найдена, но имеет другой вид
	// (план вместо группы или наоборот).
	ErrWrongKind = errors.New("wrong plan kind")

	// ErrLockTimeout — блокировка проекта не получена за отведённое
	// время.
	ErrLockTimeout = errors.New("project lock: timed out waiting")
)

// StaleReferenceError — цепочка версий плана оборвана: голова
// инвалидирована и преемника нет, актуальной версии не существует.
type StaleReferenceError struct {
	// Requested — версия, с которой начался поиск.
	Requested uuid.UUID

	// Head — последняя (инвалидированная) версия цепочки.
	Head uuid.UUID
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("plan %s: head version %s is invalidated and has no successor", e.Requested, e.Head)
}
