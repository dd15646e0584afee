package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vselutin/lineage/internal/artifacts"
	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/provider"
	"github.com/vselutin/lineage/internal/record"
	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/storage"
	"github.com/vselutin/lineage/internal/update"
	"github.com/vselutin/lineage/internal/vcs"
)

// DefaultLockTimeout — сколько писатель ждёт блокировку проекта.
const DefaultLockTimeout = 30 * time.Second

// Project — открытый проект: корень рабочего дерева и все
// коллабораторы, собранные вокруг него.
//
// Читающие операции (status, ls, show) работают без блокировки;
// пишущие берут Lock на время транзакции "выполнить и записать".
type Project struct {
	Root       string
	Pool       *pgxpool.Pool
	Plans      *storage.PlanRepo
	Activities *storage.ActivityRepo
	Lock       *storage.ProjectLock
	VCS        vcs.VCS
	Artifacts  *artifacts.Store
	Registry   *provider.Registry
	Logger     *slog.Logger
}

// Open открывает проект: находит корень, подключает хранилище
// метаданных и выбирает реализацию VCS по наличию .git.
func Open(ctx context.Context, root string, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	pool, err := storage.NewPool(ctx)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	var versioner vcs.VCS
	if _, err := os.Stat(filepath.Join(root, ".git")); err == nil {
		versioner = vcs.NewGit(root)
	} else {
		versioner = vcs.NewWorktree(root)
	}

	store, err := artifacts.New(ctx, artifacts.ConfigFromEnv(), root, logger)
	if err != nil && !errors.Is(err, artifacts.ErrNotConfigured) {
		pool.Close()
		return nil, err
	}

	return &Project{
		Root:       root,
		Pool:       pool,
		Plans:      storage.NewPlanRepo(pool),
		Activities: storage.NewActivityRepo(pool),
		Lock:       storage.NewProjectLock(pool, logger),
		VCS:        versioner,
		Artifacts:  store,
		Registry:   provider.DefaultRegistry(),
		Logger:     logger,
	}, nil
}

// Close освобождает ресурсы проекта.
func (p *Project) Close() {
	p.Pool.Close()
}

// StatusEngine собирает движок статуса проекта.
func (p *Project) StatusEngine() *status.Engine {
	return status.New(p.Activities, p.VCS, p.Plans, p.Logger)
}

// Coordinator собирает координатор выполнения.
func (p *Project) Coordinator() *coordinator.Coordinator {
	var store coordinator.ArtifactStore
	if p.Artifacts != nil {
		store = p.Artifacts
	}
	return coordinator.New(p.Root, p.Registry, p.Activities, p.VCS, store, p.Logger)
}

// UpdateEngine собирает движок update/rerun.
func (p *Project) UpdateEngine() *update.Engine {
	return update.New(p.Activities, p.Plans, p.StatusEngine(), p.Coordinator(), p.Logger)
}

// Recorder собирает захват выполнений (lineage run).
// Захват опирается на локальную файловую систему, поэтому бэкенд
// всегда локальный.
func (p *Project) Recorder() *record.Recorder {
	return record.New(p.Root, provider.NewLocal(), p.VCS, p.Plans, p.Activities, p.Logger)
}
