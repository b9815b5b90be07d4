package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"obralog/internal/utils"
	"obralog/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const problemTableName = "obralog.problems"

// problemRecord is the row as stored. Older rows carry the resolved boolean
// instead of status and a single value in type.
type problemRecord struct {
	ID               string     `db:"id"`
	UserID           string     `db:"user_id"`
	ProblemNumber    int64      `db:"problem_number"`
	Title            *string    `db:"title"`
	Description      string     `db:"description"`
	Recommendations  *string    `db:"recommendations"`
	Type             *string    `db:"type"`
	Severity         string     `db:"severity"`
	Location         *string    `db:"location"`
	LatitudeGMS      *string    `db:"latitude_gms"`
	LongitudeGMS     *string    `db:"longitude_gms"`
	LatitudeDecimal  *float64   `db:"latitude_decimal"`
	LongitudeDecimal *float64   `db:"longitude_decimal"`
	Status           *string    `db:"status"`
	Resolved         *bool      `db:"resolved"`
	ResolvedAt       *time.Time `db:"resolved_at"`
	ResolutionNotes  *string    `db:"resolution_notes"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

var problemColumns = utils.StructTagValues(problemRecord{})

// normalizeProblem is the only place legacy row shapes are understood.
func normalizeProblem(rec *problemRecord) *types.Problem {
	status := types.StatusPending
	switch {
	case rec.Status != nil && types.Status(*rec.Status).Valid():
		status = types.Status(*rec.Status)
	case rec.Resolved != nil && *rec.Resolved:
		status = types.StatusResolved
	}

	return &types.Problem{
		ID:               rec.ID,
		UserID:           rec.UserID,
		ProblemNumber:    rec.ProblemNumber,
		Title:            utils.PtrString(rec.Title),
		Description:      rec.Description,
		Recommendations:  rec.Recommendations,
		Tags:             types.ParseTagSet(utils.PtrString(rec.Type)),
		Severity:         types.Severity(strings.TrimSpace(rec.Severity)),
		Location:         utils.PtrString(rec.Location),
		LatitudeGMS:      rec.LatitudeGMS,
		LongitudeGMS:     rec.LongitudeGMS,
		LatitudeDecimal:  rec.LatitudeDecimal,
		LongitudeDecimal: rec.LongitudeDecimal,
		Status:           status,
		ResolvedAt:       rec.ResolvedAt,
		ResolutionNotes:  rec.ResolutionNotes,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		Photos:           []*types.Photo{},
		Plans:            []*types.RemediationPlan{},
	}
}

type ProblemRepository struct {
	pool *pgxpool.Pool
}

func NewProblemRepository(pool *pgxpool.Pool) *ProblemRepository {
	return &ProblemRepository{pool: pool}
}

func (r *ProblemRepository) Problem(ctx context.Context, userID, problemID string) (*types.Problem, error) {

	query, args, err := psql().Select(problemColumns...).From(problemTableName).
		Where(sq.Eq{"id": problemID, "user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate problem query: %w", err)
	}

	var rec = new(problemRecord)
	err = pgxscan.Get(ctx, r.pool, rec, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrProblemNotFound
		}
		return nil, fmt.Errorf("failed to fetch problem: %w", err)
	}

	return normalizeProblem(rec), nil
}

func (r *ProblemRepository) ProblemsByUser(ctx context.Context, userID string) ([]*types.Problem, error) {

	query, args, err := psql().Select(problemColumns...).From(problemTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate problems query: %w", err)
	}

	var recs = make([]*problemRecord, 0)
	err = pgxscan.Select(ctx, r.pool, &recs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch problems: %w", err)
	}

	problems := make([]*types.Problem, 0, len(recs))
	for _, rec := range recs {
		problems = append(problems, normalizeProblem(rec))
	}

	return problems, nil
}

// CreateProblem inserts the row and fills in the store-assigned number.
func (r *ProblemRepository) CreateProblem(ctx context.Context, problem *types.Problem) error {

	now := time.Now()
	problem.ID = utils.NanoID()
	problem.CreatedAt = now
	problem.UpdatedAt = now

	query, args, err := psql().Insert(problemTableName).SetMap(map[string]any{
		"id":                problem.ID,
		"user_id":           problem.UserID,
		"title":             problem.Title,
		"description":       problem.Description,
		"recommendations":   problem.Recommendations,
		"type":              problem.Tags.String(),
		"severity":          string(problem.Severity),
		"location":          problem.Location,
		"latitude_gms":      problem.LatitudeGMS,
		"longitude_gms":     problem.LongitudeGMS,
		"latitude_decimal":  problem.LatitudeDecimal,
		"longitude_decimal": problem.LongitudeDecimal,
		"status":            string(problem.Status),
		"created_at":        now,
		"updated_at":        now,
	}).Suffix("RETURNING problem_number").ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert problem query: %w", err)
	}

	err = r.pool.QueryRow(ctx, query, args...).Scan(&problem.ProblemNumber)
	return utils.ErrorWrapOrNil(err, "failed to create problem")
}

// UpdateProblem applies the column values in fields. ErrProblemNotFound is
// returned when no row of the user matched.
func (r *ProblemRepository) UpdateProblem(ctx context.Context, userID, problemID string, fields map[string]any) error {

	if len(fields) == 0 {
		return nil
	}

	fields["updated_at"] = time.Now()

	query, args, err := psql().Update(problemTableName).SetMap(fields).
		Where(sq.Eq{"id": problemID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update problem query for problem %s: %w", problemID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update problem: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrProblemNotFound
	}

	return nil
}

func (r *ProblemRepository) DeleteProblem(ctx context.Context, userID, problemID string) error {

	query, args, err := psql().Delete(problemTableName).
		Where(sq.Eq{"id": problemID, "user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete problem query for problem %s: %w", problemID, err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete problem: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.ErrProblemNotFound
	}

	return nil
}
