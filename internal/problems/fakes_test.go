package problems

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
)

// memoryDB backs all three repositories and records the order of deletes.
type memoryDB struct {
	problems map[string]*types.Problem
	photos   []*types.Photo
	plans    []*types.RemediationPlan
	nextNum  int64
	nextID   int
	clock    time.Time
	calls    []string

	failPhotoDelete bool
	failPhotoCreate bool
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		problems: make(map[string]*types.Problem),
		clock:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryDB) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%d", prefix, m.nextID)
}

func (m *memoryDB) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

type problemRepo struct{ db *memoryDB }
type photoRepo struct{ db *memoryDB }
type planRepo struct{ db *memoryDB }

func (r problemRepo) Problem(_ context.Context, userID, problemID string) (*types.Problem, error) {
	p, ok := r.db.problems[problemID]
	if !ok || p.UserID != userID {
		return nil, types.ErrProblemNotFound
	}
	c := p.Clone()
	c.Photos, c.Plans = nil, nil
	return c, nil
}

func (r problemRepo) ProblemsByUser(_ context.Context, userID string) ([]*types.Problem, error) {
	out := []*types.Problem{}
	for _, p := range r.db.problems {
		if p.UserID == userID {
			c := p.Clone()
			c.Photos, c.Plans = nil, nil
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r problemRepo) CreateProblem(_ context.Context, p *types.Problem) error {
	r.db.nextNum++
	p.ID = r.db.id("p")
	p.ProblemNumber = r.db.nextNum
	p.CreatedAt = r.db.tick()
	p.UpdatedAt = p.CreatedAt
	r.db.problems[p.ID] = p.Clone()
	return nil
}

func (r problemRepo) UpdateProblem(_ context.Context, userID, problemID string, fields map[string]any) error {
	p, ok := r.db.problems[problemID]
	if !ok || p.UserID != userID {
		return types.ErrProblemNotFound
	}

	for k, v := range fields {
		switch k {
		case "status":
			p.Status = types.Status(v.(string))
		case "resolution_notes":
			s := v.(string)
			p.ResolutionNotes = &s
		case "resolved_at":
			t := v.(time.Time)
			p.ResolvedAt = &t
		case "title":
			p.Title = v.(string)
		case "description":
			p.Description = v.(string)
		case "location":
			p.Location = v.(string)
		case "type":
			p.Tags = types.ParseTagSet(v.(string))
		case "severity":
			p.Severity = types.Severity(v.(string))
		case "recommendations":
			p.Recommendations = v.(*string)
		case "latitude_gms":
			p.LatitudeGMS = v.(*string)
		case "longitude_gms":
			p.LongitudeGMS = v.(*string)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	p.UpdatedAt = r.db.tick()
	return nil
}

func (r problemRepo) DeleteProblem(_ context.Context, userID, problemID string) error {
	r.db.calls = append(r.db.calls, "delete problem")
	p, ok := r.db.problems[problemID]
	if !ok || p.UserID != userID {
		return types.ErrProblemNotFound
	}
	delete(r.db.problems, problemID)
	return nil
}

func (r photoRepo) PhotosByProblemIDs(_ context.Context, ids []string) ([]*types.Photo, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.Photo{}
	for _, ph := range r.db.photos {
		if want[ph.ProblemID] {
			c := *ph
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r photoRepo) CreatePhotos(_ context.Context, photos []*types.Photo) error {
	if len(photos) == 0 {
		return nil
	}
	if r.db.failPhotoCreate {
		return errors.New("insert failed")
	}
	for _, ph := range photos {
		ph.ID = r.db.id("ph")
		ph.CreatedAt = r.db.tick()
		c := *ph
		r.db.photos = append(r.db.photos, &c)
	}
	return nil
}

func (r photoRepo) DeletePhotos(_ context.Context, userID, problemID string, t types.PhotoType) error {
	r.db.calls = append(r.db.calls, "delete photos")
	if r.db.failPhotoDelete {
		return errors.New("delete failed")
	}
	kept := r.db.photos[:0]
	for _, ph := range r.db.photos {
		if ph.ProblemID == problemID && ph.UserID == userID && (t == "" || ph.Type() == t) {
			continue
		}
		kept = append(kept, ph)
	}
	r.db.photos = kept
	return nil
}

func (r planRepo) Plan(_ context.Context, userID, planID string) (*types.RemediationPlan, error) {
	for _, p := range r.db.plans {
		if p.ID == planID && p.UserID == userID {
			return p.Clone(), nil
		}
	}
	return nil, types.ErrPlanNotFound
}

func (r planRepo) PlansByProblemIDs(_ context.Context, ids []string) ([]*types.RemediationPlan, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.RemediationPlan{}
	for _, p := range r.db.plans {
		if want[p.ProblemID] {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r planRepo) CreatePlan(_ context.Context, plan *types.RemediationPlan) error {
	plan.ID = r.db.id("pl")
	plan.CreatedAt = r.db.tick()
	plan.UpdatedAt = plan.CreatedAt
	r.db.plans = append(r.db.plans, plan.Clone())
	return nil
}

func (r planRepo) UpdatePlan(_ context.Context, userID, planID string, fields map[string]any) error {
	for _, p := range r.db.plans {
		if p.ID != planID || p.UserID != userID {
			continue
		}
		for k, v := range fields {
			switch k {
			case "resolved":
				p.Resolved = v.(bool)
			case "what":
				p.What = v.(*string)
			case "why":
				p.Why = v.(*string)
			case "when_plan":
				p.WhenPlan = v.(*string)
			case "where_plan":
				p.WherePlan = v.(*string)
			case "who":
				p.Who = v.(*string)
			case "how":
				p.How = v.(*string)
			case "how_much":
				p.HowMuch = v.(*string)
			case "observations":
				p.Observations = v.(*string)
			default:
				return fmt.Errorf("unexpected column %s", k)
			}
		}
		return nil
	}
	return types.ErrPlanNotFound
}

func (r planRepo) DeletePlan(_ context.Context, userID, planID string) error {
	for i, p := range r.db.plans {
		if p.ID == planID && p.UserID == userID {
			r.db.plans = append(r.db.plans[:i], r.db.plans[i+1:]...)
			return nil
		}
	}
	return types.ErrPlanNotFound
}

func (r planRepo) DeletePlansByProblem(_ context.Context, userID, problemID string) error {
	r.db.calls = append(r.db.calls, "delete plans")
	kept := r.db.plans[:0]
	for _, p := range r.db.plans {
		if p.ProblemID == problemID && p.UserID == userID {
			continue
		}
		kept = append(kept, p)
	}
	r.db.plans = kept
	return nil
}

func newTestService() (*Service, *memoryDB) {
	db := newMemoryDB()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	svc := NewService(logger, problemRepo{db}, photoRepo{db}, planRepo{db})
	svc.now = func() time.Time { return db.tick() }
	return svc, db
}

func userCtx(id string) context.Context {
	return WithUser(context.Background(), &types.User{ID: id, Email: id + "@obra.test"})
}
