package update

import "errors"

// Ошибки движка update/rerun.
var (
	// ErrNothingToDo — устаревших выходов нет, пересчитывать нечего.
	ErrNothingToDo = errors.New("nothing to do: all outputs are up to date")

	// ErrActivityNotFound — activity с указанной ссылкой не записана.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrDeletedOutputs — статус обнаружил удалённые выходы, и они
	// не проигнорированы явно: пересчёт через них заблокирован.
	ErrDeletedOutputs = errors.New("previously generated outputs are missing from disk")
)
