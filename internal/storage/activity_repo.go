package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vselutin/lineage/internal/domain"
)

// ActivityRepo — репозиторий записей выполнений. Записи append-only:
// обновлений и удалений нет, вытеснение выражается новыми записями.
type ActivityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo создаёт ActivityRepo.
func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo {
	return &ActivityRepo{pool: pool}
}

const activityColumns = `id, plan_id, started_at, ended_at, agent, usages, generations, param_values`

// StoreActivity сохраняет новую запись выполнения.
func (r *ActivityRepo) StoreActivity(ctx context.Context, activity *domain.Activity) error {
	usagesJSON, err := json.Marshal(activity.Usages)
	if err != nil {
		return fmt.Errorf("marshal usages: %w", err)
	}
	generationsJSON, err := json.Marshal(activity.Generations)
	if err != nil {
		return fmt.Errorf("marshal generations: %w", err)
	}
	valuesJSON, err := json.Marshal(activity.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}

	query := `
		INSERT INTO activities (id, plan_id, started_at, ended_at, agent, usages, generations, param_values)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		activity.ID,
		activity.PlanID,
		activity.StartedAt,
		activity.EndedAt,
		activity.Agent,
		usagesJSON,
		generationsJSON,
		valuesJSON,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// GetByID возвращает activity по ID.
func (r *ActivityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	activity, err := scanActivity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return activity, err
}

// ListAll возвращает все записи в порядке времени старта.
func (r *ActivityRepo) ListAll(ctx context.Context) ([]*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities ORDER BY started_at, id`
	return r.list(ctx, query)
}

// ListByPath возвращает записи, потребившие или породившие путь.
// Поиск идёт jsonb-вложением и покрывается GIN-индексами.
func (r *ActivityRepo) ListByPath(ctx context.Context, path string) ([]*domain.Activity, error) {
	probe, err := json.Marshal([]map[string]map[string]string{
		{"entity": {"path": path}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal path probe: %w", err)
	}

	query := `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE usages @> $1 OR generations @> $1
		ORDER BY started_at, id
	`
	return r.list(ctx, query, probe)
}

// ListByPlan возвращает записи указанной версии плана.
func (r *ActivityRepo) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE plan_id = $1 ORDER BY started_at, id`
	return r.list(ctx, query, planID)
}

func (r *ActivityRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var activities []*domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var (
		activity        domain.Activity
		usagesJSON      []byte
		generationsJSON []byte
		valuesJSON      []byte
	)
	err := row.Scan(
		&activity.ID,
		&activity.PlanID,
		&activity.StartedAt,
		&activity.EndedAt,
		&activity.Agent,
		&usagesJSON,
		&generationsJSON,
		&valuesJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(usagesJSON, &activity.Usages); err != nil {
		return nil, fmt.Errorf("unmarshal usages: %w", err)
	}
	if err := json.Unmarshal(generationsJSON, &activity.Generations); err != nil {
		return nil, fmt.Errorf("unmarshal generations: %w", err)
	}
	if err := json.Unmarshal(valuesJSON, &activity.Values); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return &activity, nil
}
