package record

import "errors"

// Ошибки захвата выполнения.
var (
	// ErrEmptyCommand — командная строка пуста.
	ErrEmptyCommand = errors.New("no command given")

	// ErrNoOutputs — выполнение не породило и не объявило ни одного
	// выхода, а режим без выходов не включён явно.
	ErrNoOutputs = errors.New("no outputs were detected or declared (use --no-output to allow)")

	// ErrAnnotationUnused — явная аннотация ссылается на значение,
	// которого нет ни в командной строке, ни в рабочем дереве.
	ErrAnnotationUnused = errors.New("annotation does not match any command token or existing path")
)
