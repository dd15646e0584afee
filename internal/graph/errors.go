package graph

import (
	"errors"
	"strings"
)

// Ошибки построения графа.
var (
	// ErrCyclicDependency — граф ссылок планов содержит цикл.
	ErrCyclicDependency = errors.New("cyclic plan reference detected")

	// ErrUnknownChild — ссылка на отсутствующий дочерний план.
	ErrUnknownChild = errors.New("composite plan references unknown child")
)

// CycleError — обнаруженный цикл с именами планов по пути цикла.
//
// Возвращается при создании/редактировании composite-плана;
// после записи activities циклы невозможны по построению.
type CycleError struct {
	// Path — имена планов вдоль цикла, замкнутые на первый элемент.
	Path []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return "plan graph cycle: " + strings.Join(e.Path, " -> ")
}

// Unwrap возвращает сентинел ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}
