package domain

import "errors"

// Ошибки валидации планов.
var (
	// ErrEmptyPlanName — план без имени.
	ErrEmptyPlanName = errors.New("plan has empty name")

	// ErrEmptyCommand — план без команды.
	ErrEmptyCommand = errors.New("plan has empty command")

	// ErrEmptyParameterName — параметр без имени.
	ErrEmptyParameterName = errors.New("parameter has empty name")

	// ErrDuplicateParameter — несколько параметров с одним именем.
	ErrDuplicateParameter = errors.New("duplicate parameter name")

	// ErrUnknownParameterKind — неизвестный kind параметра.
	ErrUnknownParameterKind = errors.New("unknown parameter kind")

	// ErrCreateFolderOnNonOutput — create_folder допустим только на output.
	ErrCreateFolderOnNonOutput = errors.New("create_folder is only valid on output parameters")

	// ErrStreamKindMismatch — stream не согласован с kind
	// (stdin — input, stdout/stderr — output).
	ErrStreamKindMismatch = errors.New("stream mapping does not match parameter kind")
)

// Ошибки валидации composite-планов.
var (
	// ErrEmptyChildren — группа без дочерних планов.
	ErrEmptyChildren = errors.New("composite plan has no children")

	// ErrDuplicateChildName — несколько детей с одним именем внутри группы.
	ErrDuplicateChildName = errors.New("duplicate child name in composite plan")

	// ErrEmptyMappingName — маппинг без имени.
	ErrEmptyMappingName = errors.New("parameter mapping has empty name")

	// ErrEmptyMappingTargets — маппинг без целей.
	ErrEmptyMappingTargets = errors.New("parameter mapping has no targets")

	// ErrBadParameterPath — путь параметра не имеет вида child.param.
	ErrBadParameterPath = errors.New("parameter path must have form child.param")
)

// Ошибки модели Activity.
var (
	// ErrNoGenerations — activity не породила ни одной entity и
	// это не разрешено явно.
	ErrNoGenerations = errors.New("activity has no generations")
)
