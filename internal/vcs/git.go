package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vselutin/lineage/internal/domain"
)

// Git — адаптер поверх установленного бинаря git.
//
// Hash содержимого берётся через `git hash-object`, так что
// идентичности совпадают с blob id репозитория.
type Git struct {
	root string
}

// NewGit создаёт Git-адаптер с указанным корнем репозитория.
func NewGit(root string) *Git {
	return &Git{root: root}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// CurrentHash возвращает blob id текущего содержимого пути.
func (g *Git) CurrentHash(ctx context.Context, path string) (domain.ContentID, error) {
	out, err := g.run(ctx, "hash-object", "--", path)
	if err != nil {
		if strings.Contains(err.Error(), "No such file") || strings.Contains(err.Error(), "Cannot open") {
			return "", fmt.Errorf("%w: %s", ErrPathMissing, path)
		}
		return "", err
	}
	return domain.ContentID(out), nil
}

// ChangedPaths возвращает пути, изменённые с указанного коммита.
// since="" сравнивает рабочее дерево с HEAD.
func (g *Git) ChangedPaths(ctx context.Context, since string) ([]string, error) {
	args := []string{"diff", "--name-only"}
	if since != "" {
		args = append(args, since)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Commit фиксирует все изменения и возвращает hash коммита.
func (g *Git) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "--all"); err != nil {
		return "", err
	}
	if _, err := g.run(ctx, "commit", "--message", message); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}
