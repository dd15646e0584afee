package vcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vselutin/lineage/internal/domain"
)

// Worktree — реализация VCS без истории: идентичность содержимого
// вычисляется как sha256 файла в рабочем дереве.
//
// Достаточна для status/update (они сравнивают записанные checksums
// с текущими); ChangedPaths и Commit возвращают ErrUnsupported.
type Worktree struct {
	root string
}

// NewWorktree создаёт Worktree с указанным корнем проекта.
func NewWorktree(root string) *Worktree {
	return &Worktree{root: root}
}

// CurrentHash возвращает sha256 содержимого файла (hex).
func (w *Worktree) CurrentHash(_ context.Context, path string) (domain.ContentID, error) {
	f, err := os.Open(filepath.Join(w.root, path))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrPathMissing, path)
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return domain.ContentID(hex.EncodeToString(h.Sum(nil))), nil
}

// ChangedPaths не поддерживается: нет истории для сравнения.
func (w *Worktree) ChangedPaths(context.Context, string) ([]string, error) {
	return nil, ErrUnsupported
}

// Commit не поддерживается.
func (w *Worktree) Commit(context.Context, string) (string, error) {
	return "", ErrUnsupported
}
