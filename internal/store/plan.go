package store

import (
	"context"
	"fmt"
	"time"

	"obralog/internal/utils"
	"obralog/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const planTableName = "obralog.w5h2_plans"

var planColumns = utils.StructTagValues(types.RemediationPlan{})

type PlanRepository struct {
	pool *pgxpool.Pool
}

func NewPlanRepository(pool *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

func (r *PlanRepository) Plan(ctx context.Context, userID, planID string) (*types.RemediationPlan, error) {
	query, args, err := psql().
		Select(planColumns...).
		From(planTableName).
		Where(sq.Eq{"id": planID, "user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan query: %w", err)
	}

	var plan = new(types.RemediationPlan)
	err = pgxscan.Get(ctx, r.pool, plan, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}

	return plan, nil
}

func (r *PlanRepository) PlansByProblemIDs(ctx context.Context, problemIDs []string) ([]*types.RemediationPlan, error) {
	if len(problemIDs) == 0 {
		return []*types.RemediationPlan{}, nil
	}

	query, args, err := psql().
		Select(planColumns...).
		From(planTableName).
		Where(sq.Eq{"problem_id": problemIDs}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate plans query: %w", err)
	}

	var plans []*types.RemediationPlan
	err = pgxscan.Select(ctx, r.pool, &plans, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plans: %w", err)
	}

	return plans, nil
}

func (r *PlanRepository) CreatePlan(ctx context.Context, plan *types.RemediationPlan) error {

	now := time.Now()
	plan.ID = utils.NanoID()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	query, args, err := psql().Insert(planTableName).SetMap(utils.StructToMap(plan)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert plan query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create plan")
}

func (r *PlanRepository) UpdatePlan(ctx context.Context, userID, planID string, fields map[string]any) error {

	if len(fields) == 0 {
		return nil
	}

	fields["updated_at"] = time.Now()

	query, args, err := psql().Update(planTableName).SetMap(fields).
		Where(sq.Eq{"id": planID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update plan query for plan %s: %w", planID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrPlanNotFound
	}

	return nil
}

func (r *PlanRepository) DeletePlan(ctx context.Context, userID, planID string) error {

	query, args, err := psql().Delete(planTableName).
		Where(sq.Eq{"id": planID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete plan query for plan %s: %w", planID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrPlanNotFound
	}

	return nil
}

func (r *PlanRepository) DeletePlansByProblem(ctx context.Context, userID, problemID string) error {

	query, args, err := psql().Delete(planTableName).
		Where(sq.Eq{"problem_id": problemID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete plans query for problem %s: %w", problemID, err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to delete plans")
}
