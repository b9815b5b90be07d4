package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"obralog/internal/photos"
	"obralog/internal/problems"
	"obralog/pkg/types"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// memoryStore backs the three repositories for handler tests.
type memoryStore struct {
	mu       sync.Mutex
	problems map[string]*types.Problem
	photos   []*types.Photo
	plans    []*types.RemediationPlan
	nextNum  int64
	nextID   int
	clock    time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		problems: make(map[string]*types.Problem),
		clock:    time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%d", prefix, m.nextID)
}

func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

type problemRepo struct{ m *memoryStore }
type photoRepo struct{ m *memoryStore }
type planRepo struct{ m *memoryStore }

func (r problemRepo) Problem(_ context.Context, userID, problemID string) (*types.Problem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.problems[problemID]
	if !ok || p.UserID != userID {
		return nil, types.ErrProblemNotFound
	}
	c := p.Clone()
	c.Photos, c.Plans = nil, nil
	return c, nil
}

func (r problemRepo) ProblemsByUser(_ context.Context, userID string) ([]*types.Problem, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	out := []*types.Problem{}
	for _, p := range r.m.problems {
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
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.nextNum++
	p.ID = r.m.id("p")
	p.ProblemNumber = r.m.nextNum
	p.CreatedAt = r.m.tick()
	p.UpdatedAt = p.CreatedAt
	r.m.problems[p.ID] = p.Clone()
	return nil
}

func (r problemRepo) UpdateProblem(_ context.Context, userID, problemID string, fields map[string]any) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.problems[problemID]
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
		case "latitude_decimal":
			p.LatitudeDecimal = v.(*float64)
		case "longitude_decimal":
			p.LongitudeDecimal = v.(*float64)
		default:
			return fmt.Errorf("unexpected column %s", k)
		}
	}
	p.UpdatedAt = r.m.tick()
	return nil
}

func (r problemRepo) DeleteProblem(_ context.Context, userID, problemID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	p, ok := r.m.problems[problemID]
	if !ok || p.UserID != userID {
		return types.ErrProblemNotFound
	}
	delete(r.m.problems, problemID)
	return nil
}

func (r photoRepo) PhotosByProblemIDs(_ context.Context, ids []string) ([]*types.Photo, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.Photo{}
	for _, ph := range r.m.photos {
		if want[ph.ProblemID] {
			c := *ph
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r photoRepo) CreatePhotos(_ context.Context, rows []*types.Photo) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, ph := range rows {
		ph.ID = r.m.id("ph")
		ph.CreatedAt = r.m.tick()
		c := *ph
		r.m.photos = append(r.m.photos, &c)
	}
	return nil
}

func (r photoRepo) DeletePhotos(_ context.Context, userID, problemID string, t types.PhotoType) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	kept := r.m.photos[:0]
	for _, ph := range r.m.photos {
		if ph.ProblemID == problemID && ph.UserID == userID && (t == "" || ph.Type() == t) {
			continue
		}
		kept = append(kept, ph)
	}
	r.m.photos = kept
	return nil
}

func (r planRepo) Plan(_ context.Context, userID, planID string) (*types.RemediationPlan, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, p := range r.m.plans {
		if p.ID == planID && p.UserID == userID {
			return p.Clone(), nil
		}
	}
	return nil, types.ErrPlanNotFound
}

func (r planRepo) PlansByProblemIDs(_ context.Context, ids []string) ([]*types.RemediationPlan, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.RemediationPlan{}
	for _, p := range r.m.plans {
		if want[p.ProblemID] {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (r planRepo) CreatePlan(_ context.Context, plan *types.RemediationPlan) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	plan.ID = r.m.id("pl")
	plan.CreatedAt = r.m.tick()
	plan.UpdatedAt = plan.CreatedAt
	r.m.plans = append(r.m.plans, plan.Clone())
	return nil
}

func (r planRepo) UpdatePlan(_ context.Context, userID, planID string, fields map[string]any) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for _, p := range r.m.plans {
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
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	for i, p := range r.m.plans {
		if p.ID == planID && p.UserID == userID {
			r.m.plans = append(r.m.plans[:i], r.m.plans[i+1:]...)
			return nil
		}
	}
	return types.ErrPlanNotFound
}

func (r planRepo) DeletePlansByProblem(_ context.Context, userID, problemID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	kept := r.m.plans[:0]
	for _, p := range r.m.plans {
		if p.ProblemID == problemID && p.UserID == userID {
			continue
		}
		kept = append(kept, p)
	}
	r.m.plans = kept
	return nil
}

// memoryBlob stores uploads in a map and serves them back under fakeHost.
type memoryBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

const fakeHost = "https://fotos.test/"

func newMemoryBlob() *memoryBlob {
	return &memoryBlob{objects: map[string][]byte{}}
}

func (b *memoryBlob) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return b.PublicURL(key), nil
}

func (b *memoryBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memoryBlob) PublicURL(key string) string {
	return fakeHost + key
}

// mapFetcher serves photo bytes by URL; unknown URLs fail.
type mapFetcher map[string][]byte

func (f mapFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	data, ok := f[u]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

// fakeQuotaStore counts per key in memory.
type fakeQuotaStore struct {
	mu     sync.Mutex
	counts map[string]int64
	ttl    time.Duration
	err    error
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{counts: map[string]int64{}, ttl: -1}
}

func (f *fakeQuotaStore) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "incr", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeQuotaStore) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl = expiration
	cmd := redis.NewBoolCmd(ctx, "expire", key)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeQuotaStore) TTL(ctx context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewDurationCmd(ctx, time.Second, "ttl", key)
	cmd.SetVal(f.ttl)
	return cmd
}

type testEnv struct {
	svc   *Service
	store *memoryStore
	blob  *memoryBlob
	quota *fakeQuotaStore
	logs  *logtest.Hook
}

type envOption func(*envSettings)

type envSettings struct {
	setupMode  bool
	noStorage  bool
	quotaLimit int64
	fetcher    photos.Fetcher
}

func withSetupMode() envOption {
	return func(s *envSettings) { s.setupMode = true }
}

func withoutStorage() envOption {
	return func(s *envSettings) { s.noStorage = true }
}

func withQuota(limit int64) envOption {
	return func(s *envSettings) { s.quotaLimit = limit }
}

func withFetcher(f photos.Fetcher) envOption {
	return func(s *envSettings) { s.fetcher = f }
}

func testConfig() *types.Config {
	return &types.Config{
		Environment:           "development",
		ServerPort:            0,
		DatabaseURL:           "postgres://test",
		ReadTimeoutSec:        5,
		WriteTimeoutSec:       5,
		DevLoginEmail:         "admin@teste.com",
		DevLoginPassword:      "123456",
		CookieName:            "session_id",
		SessionMaxAgeSec:      3600,
		MaxUploadBytes:        photos.DefaultMaxBytes,
		MaxPhotosPerProblem:   5,
		PhotoFetchConcurrency: 2,
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var settings envSettings
	for _, opt := range opts {
		opt(&settings)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	config := testConfig()
	env := &testEnv{store: newMemoryStore(), blob: newMemoryBlob(), logs: logtest.NewLocal(logger)}

	var problemsSvc *problems.Service
	if settings.setupMode {
		config.DatabaseURL = ""
	} else {
		problemsSvc = problems.NewService(logger, problemRepo{env.store}, photoRepo{env.store}, planRepo{env.store})
	}

	pipeline := photos.NewPipeline(logger, env.blob, config.MaxUploadBytes)
	if settings.noStorage {
		pipeline = photos.NewPipeline(logger, nil, config.MaxUploadBytes)
	}

	var quota *UploadQuota
	if settings.quotaLimit > 0 {
		env.quota = newFakeQuotaStore()
		quota = &UploadQuota{store: env.quota, limit: settings.quotaLimit}
	}

	fetcher := settings.fetcher
	if fetcher == nil {
		fetcher = mapFetcher{}
	}

	svc, err := New(config, logger, problemsSvc, pipeline, fetcher, nil, nil, "", quota, nil)
	require.NoError(t, err)
	env.svc = svc

	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.svc.Handler().ServeHTTP(rec, req)
	return rec
}

// login performs the development login and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()

	form := url.Values{"email": {"admin@teste.com"}, "password": {"123456"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := e.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" && c.Value != "" {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func postForm(path string, form url.Values, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func get(path string, cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// noisyPNG is an opaque image of random pixels, so PNG cannot shrink it.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(7))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
