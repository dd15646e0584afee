package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vselutin/lineage/internal/telemetry"
)

// lockRetryInterval — пауза между попытками взять advisory lock.
const lockRetryInterval = 250 * time.Millisecond

// ProjectLock — межпроцессная блокировка проекта через
// pg_try_advisory_lock. Ключ — хеш корня проекта: писатели разных
// проектов не мешают друг другу, читатели блокировку не берут.
type ProjectLock struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewProjectLock создаёт ProjectLock.
func NewProjectLock(pool *pgxpool.Pool, logger *slog.Logger) *ProjectLock {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectLock{pool: pool, logger: logger}
}

// Acquire берёт блокировку проекта, ожидая не дольше timeout.
// Возвращает функцию освобождения; она обязана быть вызвана и
// безопасна к повторному вызову.
//
// Блокировка держится на выделенном соединении: advisory lock в
// PostgreSQL принадлежит сессии.
func (l *ProjectLock) Acquire(ctx context.Context, projectRoot string, timeout time.Duration) (func(), error) {
	key := lockKey(projectRoot)

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		var got bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
			conn.Release()
			return nil, fmt.Errorf("try advisory lock: %w", err)
		}
		if got {
			telemetry.ObserveLockWait(time.Since(start))
			break
		}

		if time.Now().After(deadline) {
			conn.Release()
			telemetry.ObserveLockTimeout()
			return nil, fmt.Errorf("%w: project %s, waited %s", ErrLockTimeout, projectRoot, timeout)
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// освобождение не должно зависеть от отменённого контекста
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			l.logger.Warn("advisory unlock failed", "project", projectRoot, "error", err)
		}
		conn.Release()
	}
	return release, nil
}

// lockKey отображает корень проекта в 64-битный ключ advisory lock.
func lockKey(projectRoot string) int64 {
	h := fnv.New64a()
	h.Write([]byte(projectRoot))
	return int64(h.Sum64())
}
