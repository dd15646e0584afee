package domain

// ParameterKind — роль параметра команды.
type ParameterKind string

const (
	// KindInput — параметр потребляет Entity (входной файл).
	KindInput ParameterKind = "input"

	// KindOutput — параметр порождает Entity (выходной файл).
	KindOutput ParameterKind = "output"

	// KindArgument — позиционный аргумент или флаг без привязки к файлу.
	KindArgument ParameterKind = "argument"
)

// Valid возвращает true для известных значений kind.
func (k ParameterKind) Valid() bool {
	switch k {
	case KindInput, KindOutput, KindArgument:
		return true
	default:
		return false
	}
}

// Stream — привязка параметра к стандартному потоку процесса.
type Stream string

const (
	// StreamNone — параметр не привязан к потоку.
	StreamNone Stream = ""

	// StreamStdin — значение подаётся на stdin команды.
	StreamStdin Stream = "stdin"

	// StreamStdout — stdout команды перенаправляется в файл параметра.
	StreamStdout Stream = "stdout"

	// StreamStderr — stderr команды перенаправляется в файл параметра.
	StreamStderr Stream = "stderr"
)

// CommandParameter — один типизированный параметр плана.
//
// Параметры упорядочены по Position и подставляются в командную
// строку в этом порядке (с учётом Prefix, если задан).
type CommandParameter struct {
	// Name — имя параметра, уникальное внутри плана.
	Name string `json:"name"`

	// Kind — роль: input, output или argument.
	Kind ParameterKind `json:"kind"`

	// Position — позиция в командной строке (начиная с 1).
	// 0 означает "не подставляется позиционно" (только stream/env).
	Position int `json:"position"`

	// Prefix — опциональный префикс перед значением
	// (например "--input " или "-o").
	Prefix string `json:"prefix,omitempty"`

	// Default — значение по умолчанию.
	// Для input/output — путь, для argument — литеральное значение.
	Default string `json:"default,omitempty"`

	// Stream — опциональная привязка к stdin/stdout/stderr.
	Stream Stream `json:"stream,omitempty"`

	// CreateFolder — для output: создать содержащую директорию
	// перед выполнением, если её нет.
	CreateFolder bool `json:"create_folder,omitempty"`
}

// IsFile возвращает true, если параметр ссылается на файл (input или output).
func (p CommandParameter) IsFile() bool {
	return p.Kind == KindInput || p.Kind == KindOutput
}
