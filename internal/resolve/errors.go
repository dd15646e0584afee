package resolve

import "errors"

// Ошибки разрешения параметров.
var (
	// ErrUnresolvable — путь override'а не разрешается в листовой параметр.
	ErrUnresolvable = errors.New("override path does not resolve to a parameter")

	// ErrConflict — конфликтующие override'ы одной специфичности.
	ErrConflict = errors.New("conflicting overrides at the same specificity")

	// ErrKindMismatch — источник линка не output или получатель не input.
	ErrKindMismatch = errors.New("parameter link kind mismatch")

	// ErrEmptyIteration — пространство итерации пусто.
	ErrEmptyIteration = errors.New("iteration space is empty")

	// ErrUnorderedMapping — mapping-файл не сохраняет порядок объявления.
	ErrUnorderedMapping = errors.New("iteration mapping must be a YAML mapping of name to list")
)

// ResolutionError — ошибка разрешения с контекстом выражения.
type ResolutionError struct {
	// Expression — override-выражение или путь, вызвавший ошибку.
	Expression string

	// Reason — человекочитаемое описание.
	Reason string

	// Err — базовая ошибка (ErrUnresolvable, ErrConflict, ...).
	Err error
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	if e.Expression != "" {
		return "resolve " + e.Expression + ": " + e.Reason
	}
	return e.Reason
}

// Unwrap возвращает базовую ошибку.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func newResolutionError(expression, reason string, err error) *ResolutionError {
	return &ResolutionError{Expression: expression, Reason: reason, Err: err}
}
