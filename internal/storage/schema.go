package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы метаданных. Планы хранятся версиями: редактирование
// создаёт новую строку с derived_from, activities ссылаются на точную
// версию. Имя уникально только среди неинвалидированных планов.
const schema = `
CREATE TABLE IF NOT EXISTS plans (
    id             UUID PRIMARY KEY,
    name           TEXT NOT NULL,
    kind           TEXT NOT NULL CHECK (kind IN ('command', 'composite')),
    spec           JSONB NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    invalidated_at TIMESTAMPTZ,
    derived_from   UUID REFERENCES plans(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS plans_active_name
    ON plans (name) WHERE invalidated_at IS NULL;
CREATE INDEX IF NOT EXISTS plans_derived_from ON plans (derived_from);

CREATE TABLE IF NOT EXISTS activities (
    id           UUID PRIMARY KEY,
    plan_id      UUID NOT NULL REFERENCES plans(id),
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    agent        TEXT NOT NULL DEFAULT '',
    usages       JSONB NOT NULL DEFAULT '[]',
    generations  JSONB NOT NULL DEFAULT '[]',
    param_values JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS activities_plan ON activities (plan_id);
CREATE INDEX IF NOT EXISTS activities_started ON activities (started_at);
CREATE INDEX IF NOT EXISTS activities_usages ON activities USING GIN (usages);
CREATE INDEX IF NOT EXISTS activities_generations ON activities USING GIN (generations);
`

// EnsureSchema создаёт таблицы метаданных, если их ещё нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
