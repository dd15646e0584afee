package vcs

import (
	"context"
	"errors"

	"github.com/vselutin/lineage/internal/domain"
)

// Ошибки коллаборатора.
var (
	// ErrPathMissing — путь отсутствует в рабочем дереве.
	ErrPathMissing = errors.New("path does not exist")

	// ErrUnsupported — операция не поддерживается реализацией
	// (например, ChangedPaths без истории версий).
	ErrUnsupported = errors.New("operation not supported by this vcs")
)

// VCS — узкий интерфейс системы контроля версий.
//
// Используется движком статуса и записи выполнений; сама система
// версий — внешний коллаборатор и здесь не реализуется.
type VCS interface {
	// CurrentHash возвращает идентичность текущего содержимого пути.
	// Возвращает ErrPathMissing, если путь отсутствует.
	CurrentHash(ctx context.Context, path string) (domain.ContentID, error)

	// ChangedPaths возвращает пути, изменённые с указанного коммита.
	// since="" означает "с последнего коммита".
	ChangedPaths(ctx context.Context, since string) ([]string, error)

	// Commit фиксирует текущее состояние и возвращает ссылку на коммит.
	Commit(ctx context.Context, message string) (string, error)
}
