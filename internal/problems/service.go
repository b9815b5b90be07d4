// Package problems holds the actions that read and change problem records.
// Each action resolves the session user first and only touches that user's
// rows.
package problems

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
)

type ProblemRepository interface {
	Problem(ctx context.Context, userID, problemID string) (*types.Problem, error)
	ProblemsByUser(ctx context.Context, userID string) ([]*types.Problem, error)
	CreateProblem(ctx context.Context, problem *types.Problem) error
	UpdateProblem(ctx context.Context, userID, problemID string, fields map[string]any) error
	DeleteProblem(ctx context.Context, userID, problemID string) error
}

type PhotoRepository interface {
	PhotosByProblemIDs(ctx context.Context, problemIDs []string) ([]*types.Photo, error)
	CreatePhotos(ctx context.Context, photos []*types.Photo) error
	DeletePhotos(ctx context.Context, userID, problemID string, photoType types.PhotoType) error
}

type PlanRepository interface {
	Plan(ctx context.Context, userID, planID string) (*types.RemediationPlan, error)
	PlansByProblemIDs(ctx context.Context, problemIDs []string) ([]*types.RemediationPlan, error)
	CreatePlan(ctx context.Context, plan *types.RemediationPlan) error
	UpdatePlan(ctx context.Context, userID, planID string, fields map[string]any) error
	DeletePlan(ctx context.Context, userID, planID string) error
	DeletePlansByProblem(ctx context.Context, userID, problemID string) error
}

type Service struct {
	logger   *logrus.Logger
	problems ProblemRepository
	photos   PhotoRepository
	plans    PlanRepository
	now      func() time.Time
}

func NewService(logger *logrus.Logger, problems ProblemRepository, photos PhotoRepository, plans PlanRepository) *Service {
	return &Service{
		logger:   logger,
		problems: problems,
		photos:   photos,
		plans:    plans,
		now:      time.Now,
	}
}

// List returns the user's problems, newest first, with photos and plans
// attached.
func (s *Service) List(ctx context.Context) ([]*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	problems, err := s.problems.ProblemsByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.hydrate(ctx, problems); err != nil {
		return nil, err
	}

	return problems, nil
}

func (s *Service) Get(ctx context.Context, problemID string) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return s.get(ctx, user.ID, problemID)
}

func (s *Service) get(ctx context.Context, userID, problemID string) (*types.Problem, error) {
	problem, err := s.problems.Problem(ctx, userID, problemID)
	if err != nil {
		return nil, err
	}

	if err := s.hydrate(ctx, []*types.Problem{problem}); err != nil {
		return nil, err
	}

	return problem, nil
}

func (s *Service) hydrate(ctx context.Context, problems []*types.Problem) error {
	if len(problems) == 0 {
		return nil
	}

	ids := make([]string, 0, len(problems))
	byID := make(map[string]*types.Problem, len(problems))
	for _, p := range problems {
		ids = append(ids, p.ID)
		byID[p.ID] = p
		p.Photos = []*types.Photo{}
		p.Plans = []*types.RemediationPlan{}
	}

	photos, err := s.photos.PhotosByProblemIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load photos: %w", err)
	}
	for _, photo := range photos {
		if p, ok := byID[photo.ProblemID]; ok {
			p.Photos = append(p.Photos, photo)
		}
	}

	plans, err := s.plans.PlansByProblemIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	for _, plan := range plans {
		if p, ok := byID[plan.ProblemID]; ok {
			p.Plans = append(p.Plans, plan)
		}
	}

	return nil
}

// Create inserts the problem and then its photos, and returns the stored
// record with its sequence number.
func (s *Service) Create(ctx context.Context, in types.NewProblem) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	problem := &types.Problem{
		UserID:          user.ID,
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		Recommendations: optional(in.Recommendations),
		Tags:            in.Tags,
		Severity:        in.Severity,
		Location:        strings.TrimSpace(in.Location),
		LatitudeGMS:     optional(in.LatitudeGMS),
		LongitudeGMS:    optional(in.LongitudeGMS),
		Status:          types.StatusPending,

		LatitudeDecimal:  in.LatitudeDecimal,
		LongitudeDecimal: in.LongitudeDecimal,
	}

	if err := s.problems.CreateProblem(ctx, problem); err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{"problem_id": problem.ID, "user_id": user.ID})

	if err := s.photos.CreatePhotos(ctx, photoRows(user.ID, problem.ID, types.PhotoTypeProblem, in.Photos)); err != nil {
		entry.WithError(err).Error("failed to attach photos to new problem")
		return nil, err
	}

	entry.WithField("problem_number", problem.ProblemNumber).Info("problem created")

	return s.get(ctx, user.ID, problem.ID)
}

// UpdateStatus moves the problem to status. Moving to resolved through
// here only works when resolution notes are already on record; otherwise
// Resolve must be used.
func (s *Service) UpdateStatus(ctx context.Context, problemID string, status types.Status) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	problem, err := s.problems.Problem(ctx, user.ID, problemID)
	if err != nil {
		return nil, err
	}

	if err := problem.CanTransitionTo(status, ""); err != nil {
		return nil, err
	}

	fields := map[string]any{"status": string(status)}
	if status == types.StatusResolved && problem.ResolvedAt == nil {
		fields["resolved_at"] = s.now()
	}

	if err := s.problems.UpdateProblem(ctx, user.ID, problemID, fields); err != nil {
		return nil, err
	}

	return s.get(ctx, user.ID, problemID)
}

func (s *Service) UpdateFields(ctx context.Context, problemID string, patch types.ProblemPatch) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if err := patch.Validate(); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Title != nil {
		fields["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Tags != nil {
		fields["type"] = patch.Tags.String()
	}
	if patch.Severity != nil {
		fields["severity"] = string(*patch.Severity)
	}
	if patch.Location != nil {
		fields["location"] = strings.TrimSpace(*patch.Location)
	}
	if patch.Recommendations != nil {
		fields["recommendations"] = optional(*patch.Recommendations)
	}
	if patch.LatitudeGMS != nil {
		fields["latitude_gms"] = optional(*patch.LatitudeGMS)
	}
	if patch.LongitudeGMS != nil {
		fields["longitude_gms"] = optional(*patch.LongitudeGMS)
	}
	if patch.SetLatitudeDecimal {
		fields["latitude_decimal"] = patch.LatitudeDecimal
	}
	if patch.SetLongitudeDecimal {
		fields["longitude_decimal"] = patch.LongitudeDecimal
	}

	if len(fields) > 0 {
		if err := s.problems.UpdateProblem(ctx, user.ID, problemID, fields); err != nil {
			return nil, err
		}
	} else if _, err := s.problems.Problem(ctx, user.ID, problemID); err != nil {
		return nil, err
	}

	if patch.Photos != nil {
		photoType := patch.PhotoType
		if photoType == "" {
			photoType = types.PhotoTypeProblem
		}
		if err := s.replacePhotos(ctx, user.ID, problemID, photoType, patch.Photos); err != nil {
			return nil, err
		}
	}

	return s.get(ctx, user.ID, problemID)
}

// Resolve records the notes, sets resolved_at once, and attaches resolution
// photos that are not already attached. Repeating the same call changes
// nothing.
func (s *Service) Resolve(ctx context.Context, problemID, notes string, photos []types.PhotoRef) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, types.ErrResolutionNotesRequired
	}

	problem, err := s.get(ctx, user.ID, problemID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		"status":           string(types.StatusResolved),
		"resolution_notes": notes,
	}
	if problem.ResolvedAt == nil || !problem.IsResolved() {
		fields["resolved_at"] = s.now()
	}

	if err := s.problems.UpdateProblem(ctx, user.ID, problemID, fields); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for _, photo := range problem.ResolutionPhotos() {
		existing[photo.PhotoURL] = true
	}

	fresh := make([]types.PhotoRef, 0, len(photos))
	for _, ref := range photos {
		if ref.URL == "" || existing[ref.URL] {
			continue
		}
		existing[ref.URL] = true
		fresh = append(fresh, ref)
	}

	entry := s.logger.WithFields(logrus.Fields{"problem_id": problemID, "user_id": user.ID})

	if err := s.photos.CreatePhotos(ctx, photoRows(user.ID, problemID, types.PhotoTypeResolution, fresh)); err != nil {
		entry.WithError(err).Error("problem resolved but resolution photos were not saved")
		return nil, err
	}

	entry.WithField("resolution_photos", len(fresh)).Info("problem resolved")

	return s.get(ctx, user.ID, problemID)
}

// Reopen sets the problem back to pending. Notes and resolution photos stay
// as history.
func (s *Service) Reopen(ctx context.Context, problemID string) (*types.Problem, error) {
	return s.UpdateStatus(ctx, problemID, types.StatusPending)
}

// ReplacePhotos deletes every photo of photoType and inserts refs. The two
// statements are not wrapped in a transaction.
func (s *Service) ReplacePhotos(ctx context.Context, problemID string, photoType types.PhotoType, refs []types.PhotoRef) (*types.Problem, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if !photoType.Valid() {
		return nil, types.ValidationError{"photo_type": "Tipo de foto inválido."}
	}

	if _, err := s.problems.Problem(ctx, user.ID, problemID); err != nil {
		return nil, err
	}

	if err := s.replacePhotos(ctx, user.ID, problemID, photoType, refs); err != nil {
		return nil, err
	}

	return s.get(ctx, user.ID, problemID)
}

func (s *Service) replacePhotos(ctx context.Context, userID, problemID string, photoType types.PhotoType, refs []types.PhotoRef) error {
	if err := s.photos.DeletePhotos(ctx, userID, problemID, photoType); err != nil {
		return err
	}

	if err := s.photos.CreatePhotos(ctx, photoRows(userID, problemID, photoType, refs)); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"problem_id": problemID,
			"photo_type": photoType,
		}).Error("photo set deleted but new photos were not inserted")
		return err
	}

	return nil
}

// Delete removes photos, then plans, then the problem. Failures on the
// first two are logged and the problem row is still deleted.
func (s *Service) Delete(ctx context.Context, problemID string) error {
	user, err := UserFromContext(ctx)
	if err != nil {
		return err
	}

	if _, err := s.problems.Problem(ctx, user.ID, problemID); err != nil {
		return err
	}

	entry := s.logger.WithFields(logrus.Fields{"problem_id": problemID, "user_id": user.ID})

	if err := s.photos.DeletePhotos(ctx, user.ID, problemID, ""); err != nil {
		entry.WithError(err).Warn("failed to delete problem photos")
	}

	if err := s.plans.DeletePlansByProblem(ctx, user.ID, problemID); err != nil {
		entry.WithError(err).Warn("failed to delete problem plans")
	}

	if err := s.problems.DeleteProblem(ctx, user.ID, problemID); err != nil {
		return err
	}

	entry.Info("problem deleted")
	return nil
}

func photoRows(userID, problemID string, photoType types.PhotoType, refs []types.PhotoRef) []*types.Photo {
	rows := make([]*types.Photo, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.URL) == "" {
			continue
		}
		rows = append(rows, &types.Photo{
			ProblemID: problemID,
			UserID:    userID,
			PhotoURL:  ref.URL,
			Filename:  ref.Filename,
			PhotoType: photoType,
		})
	}
	return rows
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// IsNotFound reports whether err means the record does not exist for the
// user.
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrProblemNotFound) || errors.Is(err, types.ErrPlanNotFound)
}
