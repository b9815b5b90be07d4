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

const photoTableName = "obralog.problem_photos"

var photoColumns = utils.StructTagValues(types.Photo{})

// photoSelectColumns reads rows written before photo_type existed as
// problem photos.
var photoSelectColumns = []string{
	"id",
	"problem_id",
	"user_id",
	"photo_url",
	"filename",
	"COALESCE(photo_type, 'problem') AS photo_type",
	"created_at",
}

type PhotoRepository struct {
	pool *pgxpool.Pool
}

func NewPhotoRepository(pool *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

func (r *PhotoRepository) PhotosByProblemIDs(ctx context.Context, problemIDs []string) ([]*types.Photo, error) {
	if len(problemIDs) == 0 {
		return []*types.Photo{}, nil
	}

	query, args, err := psql().
		Select(photoSelectColumns...).
		From(photoTableName).
		Where(sq.Eq{"problem_id": problemIDs}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate photos query: %w", err)
	}

	var photos []*types.Photo
	err = pgxscan.Select(ctx, r.pool, &photos, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}

	return photos, nil
}

// CreatePhotos inserts all photos in one statement.
func (r *PhotoRepository) CreatePhotos(ctx context.Context, photos []*types.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	now := time.Now()
	insertBuilder := psql().
		Insert(photoTableName).
		Columns(photoColumns...)

	for _, photo := range photos {
		photo.ID = utils.NanoID()
		photo.CreatedAt = now
		if photo.PhotoType == "" {
			photo.PhotoType = types.PhotoTypeProblem
		}

		insertBuilder = insertBuilder.Values(
			photo.ID,
			photo.ProblemID,
			photo.UserID,
			photo.PhotoURL,
			photo.Filename,
			string(photo.PhotoType),
			photo.CreatedAt,
		)
	}

	query, args, err := insertBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate photo insert query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to insert photos")
}

// DeletePhotos removes the problem's photos. An empty photoType removes
// all of them; PhotoTypeProblem also matches untyped rows.
func (r *PhotoRepository) DeletePhotos(ctx context.Context, userID, problemID string, photoType types.PhotoType) error {

	where := sq.And{sq.Eq{"problem_id": problemID, "user_id": userID}}
	switch photoType {
	case types.PhotoTypeProblem:
		where = append(where, sq.Or{sq.Eq{"photo_type": string(photoType)}, sq.Eq{"photo_type": nil}})
	case types.PhotoTypeResolution:
		where = append(where, sq.Eq{"photo_type": string(photoType)})
	}

	query, args, err := psql().Delete(photoTableName).Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate photo delete query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to delete photos")
}
