package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vselutin/lineage/internal/domain"
)

// PlanKind — вид хранимого плана.
type PlanKind string

const (
	// KindCommand — план одной команды.
	KindCommand PlanKind = "command"

	// KindComposite — группа планов.
	KindComposite PlanKind = "composite"
)

// StoredPlan — план любого вида, как он лежит в хранилище.
// Заполнено ровно одно из полей Plan/Composite, согласно Kind.
type StoredPlan struct {
	Kind      PlanKind
	Plan      *domain.Plan
	Composite *domain.CompositePlan
}

// ID возвращает идентификатор версии.
func (s *StoredPlan) ID() uuid.UUID {
	if s.Kind == KindComposite {
		return s.Composite.ID
	}
	return s.Plan.ID
}

// Name возвращает имя плана.
func (s *StoredPlan) Name() string {
	if s.Kind == KindComposite {
		return s.Composite.Name
	}
	return s.Plan.Name
}

// IsActive возвращает true, если версия не инвалидирована.
func (s *StoredPlan) IsActive() bool {
	if s.Kind == KindComposite {
		return s.Composite.IsActive()
	}
	return s.Plan.IsActive()
}

// PlanRepo — репозиторий планов и групп.
type PlanRepo struct {
	pool *pgxpool.Pool
}

// NewPlanRepo создаёт PlanRepo.
func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

// StorePlan сохраняет новую версию плана команды.
func (r *PlanRepo) StorePlan(ctx context.Context, plan *domain.Plan) error {
	return r.insert(ctx, plan.ID, plan.Name, KindCommand, plan, plan.CreatedAt, plan.InvalidatedAt, plan.DerivedFrom)
}

// StoreComposite сохраняет новую версию группы.
func (r *PlanRepo) StoreComposite(ctx context.Context, composite *domain.CompositePlan) error {
	return r.insert(ctx, composite.ID, composite.Name, KindComposite, composite, composite.CreatedAt, composite.InvalidatedAt, composite.DerivedFrom)
}

func (r *PlanRepo) insert(ctx context.Context, id uuid.UUID, name string, kind PlanKind, spec any, createdAt time.Time, invalidatedAt *time.Time, derivedFrom *uuid.UUID) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("marshal plan spec: %w", err)
	}

	query := `
		INSERT INTO plans (id, name, kind, spec, created_at, invalidated_at, derived_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query, id, name, kind, specJSON, createdAt, invalidatedAt, derivedFrom)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("plan %q: %w", name, ErrAlreadyExists)
		}
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// ByID возвращает план любого вида по ID версии.
func (r *PlanRepo) ByID(ctx context.Context, id uuid.UUID) (*StoredPlan, error) {
	query := `SELECT kind, spec FROM plans WHERE id = $1`
	return r.scanStored(r.pool.QueryRow(ctx, query, id))
}

// ByName возвращает активный план любого вида по имени.
func (r *PlanRepo) ByName(ctx context.Context, name string) (*StoredPlan, error) {
	query := `SELECT kind, spec FROM plans WHERE name = $1 AND invalidated_at IS NULL`
	return r.scanStored(r.pool.QueryRow(ctx, query, name))
}

// PlanByID возвращает план команды по ID версии (включая
// инвалидированные: provenance остаётся разрешимым).
func (r *PlanRepo) PlanByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	stored, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Kind != KindCommand {
		return nil, fmt.Errorf("plan %s: %w: expected command, got %s", id, ErrWrongKind, stored.Kind)
	}
	return stored.Plan, nil
}

// CompositeByID возвращает группу по ID версии.
func (r *PlanRepo) CompositeByID(ctx context.Context, id uuid.UUID) (*domain.CompositePlan, error) {
	stored, err := r.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Kind != KindComposite {
		return nil, fmt.Errorf("plan %s: %w: expected composite, got %s", id, ErrWrongKind, stored.Kind)
	}
	return stored.Composite, nil
}

// List возвращает планы всех видов, по умолчанию только активные.
func (r *PlanRepo) List(ctx context.Context, includeInvalidated bool) ([]*StoredPlan, error) {
	query := `
		SELECT kind, spec
		FROM plans
		WHERE $1 OR invalidated_at IS NULL
		ORDER BY created_at, name
	`
	rows, err := r.pool.Query(ctx, query, includeInvalidated)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*StoredPlan
	for rows.Next() {
		stored, err := r.scanStored(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, stored)
	}
	return plans, rows.Err()
}

// Invalidate помечает версию плана мягко удалённой.
// Уже инвалидированная версия не трогается.
func (r *PlanRepo) Invalidate(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE plans
		SET invalidated_at = $2,
		    spec = jsonb_set(spec, '{invalidated_at}', to_jsonb($2::timestamptz))
		WHERE id = $1 AND invalidated_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("invalidate plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestVersion возвращает актуальную версию плана команды:
// цепочка derived_from проходится вперёд до головы. Если голова
// инвалидирована и преемника нет — StaleReferenceError.
func (r *PlanRepo) LatestVersion(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	head, err := r.headID(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := r.PlanByID(ctx, head)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive() {
		return nil, &StaleReferenceError{Requested: id, Head: head}
	}
	return plan, nil
}

// LatestCompositeVersion — то же для групп.
func (r *PlanRepo) LatestCompositeVersion(ctx context.Context, id uuid.UUID) (*domain.CompositePlan, error) {
	head, err := r.headID(ctx, id)
	if err != nil {
		return nil, err
	}
	composite, err := r.CompositeByID(ctx, head)
	if err != nil {
		return nil, err
	}
	if !composite.IsActive() {
		return nil, &StaleReferenceError{Requested: id, Head: head}
	}
	return composite, nil
}

// headID идёт по цепочке преемников до версии без потомков.
// При ветвлении берётся последняя созданная ветка.
func (r *PlanRepo) headID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	query := `
		SELECT id FROM plans
		WHERE derived_from = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	current := id
	visited := map[uuid.UUID]bool{current: true}
	for {
		var next uuid.UUID
		err := r.pool.QueryRow(ctx, query, current).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			return current, nil
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolve plan head: %w", err)
		}
		if visited[next] {
			return uuid.Nil, fmt.Errorf("resolve plan head: derivation chain of %s loops at %s", id, next)
		}
		visited[next] = true
		current = next
	}
}

// scanStored читает (kind, spec) и десериализует нужный вид.
func (r *PlanRepo) scanStored(row pgx.Row) (*StoredPlan, error) {
	var (
		kind     PlanKind
		specJSON []byte
	)
	err := row.Scan(&kind, &specJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}

	stored := &StoredPlan{Kind: kind}
	switch kind {
	case KindComposite:
		stored.Composite = &domain.CompositePlan{}
		if err := json.Unmarshal(specJSON, stored.Composite); err != nil {
			return nil, fmt.Errorf("unmarshal composite spec: %w", err)
		}
	default:
		stored.Plan = &domain.Plan{}
		if err := json.Unmarshal(specJSON, stored.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan spec: %w", err)
		}
	}
	return stored, nil
}
