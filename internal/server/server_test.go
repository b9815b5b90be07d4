package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"obralog/internal/format"
	"obralog/internal/problems"
	"obralog/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(get("/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPagesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(get("/problems/new", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	var redirect *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieRedirectName {
			redirect = c
		}
	}
	require.NotNil(t, redirect)
	assert.Equal(t, "/problems/new", redirect.Value)

	form := url.Values{"email": {"admin@teste.com"}, "password": {"123456"}}
	req := postForm("/login", form, redirect)
	rec = env.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/problems/new", rec.Header().Get("Location"))
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		status   int
	}{
		{name: "valid credentials", email: "admin@teste.com", password: "123456", status: http.StatusSeeOther},
		{name: "email is case insensitive", email: "Admin@Teste.com", password: "123456", status: http.StatusSeeOther},
		{name: "wrong password", email: "admin@teste.com", password: "nope", status: http.StatusUnauthorized},
		{name: "unknown email", email: "outro@teste.com", password: "123456", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(postForm("/login", url.Values{"email": {tt.email}, "password": {tt.password}}, nil))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "Email ou senha inválidos.")
			}
		})
	}
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(postForm("/logout", url.Values{}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLogoutDropsBoard(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(get("/", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, env.svc.boards.boards, problems.DevUserID("admin@teste.com"))

	rec = env.do(postForm("/logout", url.Values{}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, env.svc.boards.boards)
}

func TestRegisterUnavailableWithoutIdentityProvider(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{
		"given_name":       {"Ana"},
		"family_name":      {"Souza"},
		"email":            {"ana@teste.com"},
		"password":         {"Senha-Forte-123"},
		"confirm_password": {"Senha-Forte-123"},
	}
	rec := env.do(postForm("/register", form, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cadastro indisponível")
}

func TestValidateRegisterInput(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		confirm   string
		email     string
		wantField string
	}{
		{name: "valid", password: "Senha-Forte-123", confirm: "Senha-Forte-123", email: "a@b.com"},
		{name: "short password", password: "Ab1!", confirm: "Ab1!", email: "a@b.com", wantField: "password"},
		{name: "mismatch", password: "Senha-Forte-123", confirm: "Senha-Forte-124", email: "a@b.com", wantField: "confirm_password"},
		{name: "bad email", password: "Senha-Forte-123", confirm: "Senha-Forte-123", email: "nope", wantField: "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateRegisterInput("Ana", "Souza", tt.email, tt.password, tt.confirm)
			if tt.wantField == "" {
				assert.Empty(t, errs)
				return
			}
			assert.Contains(t, errs, tt.wantField)
		})
	}
}

func TestSetupModeRendersNotice(t *testing.T) {
	env := newTestEnv(t, withSetupMode())
	cookie := env.login(t)

	rec := env.do(get("/", cookie))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "DATABASE_URL")
	assert.Contains(t, rec.Body.String(), "Configuração necessária")
}

func newProblemForm() url.Values {
	return url.Values{
		"title":             {"Andaime sem guarda-corpo"},
		"description":       {"Andaime do bloco B sem proteção lateral"},
		"type":              {"seguranca", "saude"},
		"severity":          {"critico"},
		"location":          {"Bloco B"},
		"latitude_gms":      {"23°33'01\"S"},
		"longitude_gms":     {"46°38'02\"W"},
		"latitude_decimal":  {"-23,550278"},
		"longitude_decimal": {"-46.633889"},
		"photo_url":         {"https://fotos.test/a.jpg", "https://fotos.test/b.jpg"},
		"photo_filename":    {"a.jpg", "b.jpg"},
	}
}

func createProblem(t *testing.T, env *testEnv, cookie *http.Cookie) *types.Problem {
	t.Helper()

	rec := env.do(postForm("/problems", newProblemForm(), cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loc.Path, "/problems/"))

	id := strings.TrimPrefix(loc.Path, "/problems/")
	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	p, ok := env.store.problems[id]
	require.True(t, ok)
	return p.Clone()
}

func TestCreateProblem(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	p := createProblem(t, env, cookie)

	assert.Equal(t, "Andaime sem guarda-corpo", p.Title)
	assert.Equal(t, "seguranca,saude", p.Tags.String())
	assert.Equal(t, types.SeverityCritical, p.Severity)
	assert.Equal(t, types.StatusPending, p.Status)
	assert.Equal(t, "dev:admin@teste.com", p.UserID)
	require.NotNil(t, p.LatitudeDecimal)
	assert.InDelta(t, -23.550278, *p.LatitudeDecimal, 1e-9)
	require.NotNil(t, p.LongitudeDecimal)
	assert.InDelta(t, -46.633889, *p.LongitudeDecimal, 1e-9)

	env.store.mu.Lock()
	assert.Len(t, env.store.photos, 2)
	env.store.mu.Unlock()

	rec := env.do(get("/problems/"+p.ID, cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Andaime sem guarda-corpo")
	assert.Contains(t, body, format.ProblemCode(p.ProblemNumber))
	assert.Contains(t, body, "https://fotos.test/a.jpg")

	rec = env.do(get("/", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Andaime sem guarda-corpo")
	assert.Contains(t, rec.Body.String(), "2 foto(s)")
}

func TestCreateProblemValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(url.Values)
		message string
	}{
		{name: "missing title", mutate: func(v url.Values) { v.Set("title", " ") }, message: "Título é obrigatório."},
		{name: "no type", mutate: func(v url.Values) { v.Del("type") }, message: "Selecione ao menos um tipo."},
		{name: "bad severity", mutate: func(v url.Values) { v.Set("severity", "enorme") }, message: "Severidade inválida."},
		{name: "bad decimal", mutate: func(v url.Values) { v.Set("latitude_decimal", "abc") }, message: "Latitude decimal inválida."},
		{name: "decimal out of range", mutate: func(v url.Values) { v.Set("longitude_decimal", "190") }, message: "Longitude decimal inválida."},
		{name: "too many photos", mutate: func(v url.Values) {
			v["photo_url"] = []string{"u1", "u2", "u3", "u4", "u5", "u6"}
		}, message: "Máximo de 5 fotos por problema."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			cookie := env.login(t)

			form := newProblemForm()
			tt.mutate(form)

			rec := env.do(postForm("/problems", form, cookie))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Empty(t, env.store.problems)
		})
	}
}

func TestCreateProblemWithPostedPhoto(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, vs := range newProblemForm() {
		if k == "photo_url" || k == "photo_filename" {
			continue
		}
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	part, err := mw.CreateFormFile("photos", "obra.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 30, 20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/problems", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)

	rec := env.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	require.Len(t, env.store.photos, 1)
	assert.True(t, strings.HasPrefix(env.store.photos[0].PhotoURL, fakeHost))
	assert.Equal(t, types.PhotoTypeProblem, env.store.photos[0].PhotoType)
	assert.Len(t, env.blob.objects, 1)
}

func TestProblemsAreScopedToSessionUser(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)

	env.store.mu.Lock()
	env.store.problems[p.ID].UserID = "someone-else"
	env.store.mu.Unlock()

	rec := env.do(get("/problems/"+p.ID, cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(postForm("/problems/"+p.ID+"/delete", url.Values{}, cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEditProblem(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)

	rec := env.do(get("/problems/"+p.ID+"/edit", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Andaime sem guarda-corpo")

	form := newProblemForm()
	form.Set("title", "Andaime corrigido parcialmente")
	form.Set("severity", "medio")
	form.Set("latitude_decimal", "")
	form.Del("photo_url")
	form.Del("photo_filename")

	rec = env.do(postForm("/problems/"+p.ID, form, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	got := env.store.problems[p.ID]
	assert.Equal(t, "Andaime corrigido parcialmente", got.Title)
	assert.Equal(t, types.SeverityMedium, got.Severity)
	assert.Nil(t, got.LatitudeDecimal)
	assert.Len(t, env.store.photos, 2, "photos are kept unless replacement is requested")
}

func TestEditProblemReplacesPhotos(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)

	form := newProblemForm()
	form.Set("replace_photos", "true")
	form["photo_url"] = []string{"https://fotos.test/c.jpg"}
	form["photo_filename"] = []string{"c.jpg"}

	rec := env.do(postForm("/problems/"+p.ID, form, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	require.Len(t, env.store.photos, 1)
	assert.Equal(t, "c.jpg", env.store.photos[0].Filename)
}

func TestResolveWorkflow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)
	path := "/problems/" + p.ID

	rec := env.do(postForm(path+"/resolve", url.Values{"resolution_notes": {"  "}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "error=")
	assert.Equal(t, types.StatusPending, env.store.problems[p.ID].Status)

	rec = env.do(postForm(path+"/status", url.Values{"status": {"resolvido"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "error=")
	assert.Equal(t, types.StatusPending, env.store.problems[p.ID].Status)

	resolve := url.Values{
		"resolution_notes": {"Guarda-corpo instalado"},
		"photo_url":        {"https://fotos.test/depois.jpg"},
		"photo_filename":   {"depois.jpg"},
	}
	for i := 0; i < 2; i++ {
		rec = env.do(postForm(path+"/resolve", resolve, cookie))
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "notice=")
	}

	got := env.store.problems[p.ID]
	assert.Equal(t, types.StatusResolved, got.Status)
	require.NotNil(t, got.ResolutionNotes)
	assert.Equal(t, "Guarda-corpo instalado", *got.ResolutionNotes)
	require.NotNil(t, got.ResolvedAt)

	var resolutionPhotos int
	for _, ph := range env.store.photos {
		if ph.Type() == types.PhotoTypeResolution {
			resolutionPhotos++
		}
	}
	assert.Equal(t, 1, resolutionPhotos)

	rec = env.do(postForm(path+"/reopen", url.Values{}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, types.StatusPending, env.store.problems[p.ID].Status)

	rec = env.do(postForm(path+"/status", url.Values{"status": {"resolvido"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "notice=")
	assert.Equal(t, types.StatusResolved, env.store.problems[p.ID].Status)
}

func TestReplaceResolutionPhotos(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)

	rec := env.do(get("/problems/"+p.ID+"/photos?type=resolution", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fotos da resolução")

	form := url.Values{
		"photo_type":     {"resolution"},
		"photo_url":      {"https://fotos.test/r1.jpg", "https://fotos.test/r2.jpg"},
		"photo_filename": {"r1.jpg", "r2.jpg"},
	}
	rec = env.do(postForm("/problems/"+p.ID+"/photos", form, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	counts := map[types.PhotoType]int{}
	for _, ph := range env.store.photos {
		counts[ph.Type()]++
	}
	assert.Equal(t, 2, counts[types.PhotoTypeProblem])
	assert.Equal(t, 2, counts[types.PhotoTypeResolution])
}

func TestDeleteProblem(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)

	rec := env.do(get("/", cookie))
	require.Contains(t, rec.Body.String(), "Andaime sem guarda-corpo")

	rec = env.do(postForm("/problems/"+p.ID+"/delete", url.Values{}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/?notice="))

	assert.Empty(t, env.store.problems)
	assert.Empty(t, env.store.photos)

	rec = env.do(get("/", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Andaime sem guarda-corpo")
	assert.Contains(t, rec.Body.String(), "Nenhum problema registrado.")
}

func TestHomeFilters(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	createProblem(t, env, cookie)

	form := newProblemForm()
	form.Set("title", "Vazamento de óleo")
	form.Set("severity", "baixo")
	form["type"] = []string{"meio_ambiente"}
	rec := env.do(postForm("/problems", form, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	tests := []struct {
		query   string
		want    []string
		notWant []string
	}{
		{query: "", want: []string{"Andaime sem guarda-corpo", "Vazamento de óleo"}},
		{query: "?severity=baixo", want: []string{"Vazamento de óleo"}, notWant: []string{"Andaime sem guarda-corpo"}},
		{query: "?type=seguranca", want: []string{"Andaime sem guarda-corpo"}, notWant: []string{"Vazamento de óleo"}},
		{query: "?q=vazamento", want: []string{"Vazamento de óleo"}, notWant: []string{"Andaime sem guarda-corpo"}},
		{query: "?status=resolvido", notWant: []string{"Andaime sem guarda-corpo", "Vazamento de óleo"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(get("/"+tt.query, cookie))
			require.Equal(t, http.StatusOK, rec.Code)
			body := rec.Body.String()
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, body, w)
			}
		})
	}
}

func TestPlanWorkflow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	p := createProblem(t, env, cookie)
	path := "/problems/" + p.ID

	rec := env.do(get(path+"/plan", cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Plano de ação 5W2H")

	rec = env.do(postForm(path+"/plan", url.Values{"what": {"Instalar guarda-corpo"}, "who": {"Equipe de montagem"}, "resolved": {"false"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, env.store.plans, 1)

	rec = env.do(postForm(path+"/plan", url.Values{"what": {"Instalar guarda-corpo e rodapé"}, "resolved": {"true"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, env.store.plans, 1)
	primary := env.store.plans[0]
	assert.Equal(t, "Instalar guarda-corpo e rodapé", *primary.What)
	assert.Equal(t, "Equipe de montagem", *primary.Who)
	assert.True(t, primary.Resolved)

	rec = env.do(postForm(path+"/plans", url.Values{"what": {"Treinar equipe"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, env.store.plans, 2)
	second := env.store.plans[1]

	rec = env.do(postForm("/plans/"+second.ID, url.Values{"problem_id": {p.ID}, "observations": {"Agendado"}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "Agendado", *env.store.plans[1].Observations)

	rec = env.do(get(path, cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Treinar equipe")
	assert.Contains(t, rec.Body.String(), "Concluído")

	rec = env.do(postForm("/plans/"+second.ID+"/delete", url.Values{"problem_id": {p.ID}}, cookie))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Len(t, env.store.plans, 1)

	rec = env.do(postForm("/plans/missing/delete", url.Values{"problem_id": {p.ID}}, cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name    string
		opts    []envOption
		field   string
		data    func(t *testing.T) []byte
		status  int
		message string
	}{
		{
			name:   "stores image",
			field:  "file",
			data:   func(t *testing.T) []byte { return pngBytes(t, 16, 16) },
			status: http.StatusOK,
		},
		{
			name:    "rejects non image",
			field:   "file",
			data:    func(*testing.T) []byte { return []byte("just some text, not a photo") },
			status:  http.StatusBadRequest,
			message: "Apenas imagens são permitidas",
		},
		{
			name:    "missing file",
			status:  http.StatusBadRequest,
			message: "Nenhum arquivo enviado",
		},
		{
			name:    "storage not configured",
			opts:    []envOption{withoutStorage()},
			field:   "file",
			data:    func(t *testing.T) []byte { return pngBytes(t, 16, 16) },
			status:  http.StatusInternalServerError,
			message: "Configuração de upload não disponível",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			cookie := env.login(t)

			var data []byte
			if tt.data != nil {
				data = tt.data(t)
			}
			body, contentType := multipartUpload(t, tt.field, "foto.png", data)

			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", contentType)
			req.AddCookie(cookie)

			rec := env.do(req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

			if tt.status != http.StatusOK {
				assert.Equal(t, tt.message, resp["error"])
				return
			}

			assert.True(t, strings.HasPrefix(resp["url"].(string), fakeHost))
			assert.Equal(t, "foto.png", resp["filename"])
			assert.Equal(t, "image/png", resp["type"])
			assert.EqualValues(t, len(data), resp["size"])
		})
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	body, contentType := multipartUpload(t, "file", "foto.png", pngBytes(t, 4, 4))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = 64 << 20
	req.AddCookie(cookie)

	rec := env.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "Arquivo muito grande")
}

func TestUploadCompressesLargePhoto(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	data := noisyPNG(t, 2048, 2048)
	require.Greater(t, len(data), 11<<20)

	body, contentType := multipartUpload(t, "file", "fachada.png", data)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.AddCookie(cookie)

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		Type     string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "fachada.jpg", resp.Filename)
	assert.Equal(t, "image/jpeg", resp.Type)
	assert.LessOrEqual(t, resp.Size, int64(8<<20))
	assert.Less(t, resp.Size, int64(len(data)))
	assert.True(t, strings.HasPrefix(resp.URL, fakeHost))
}

func TestUploadRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, "file", "foto.png", pngBytes(t, 4, 4))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sessão expirada")
}

func TestUploadQuota(t *testing.T) {
	env := newTestEnv(t, withQuota(1))
	cookie := env.login(t)

	upload := func() *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, "file", "foto.png", pngBytes(t, 4, 4))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", contentType)
		req.AddCookie(cookie)
		return env.do(req)
	}

	assert.Equal(t, http.StatusOK, upload().Code)

	rec := upload()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "86400", rec.Header().Get("Retry-After"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Limite diário de uploads atingido.", resp["error"])
	assert.EqualValues(t, 86400, resp["retry_after"])

	env.quota.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, upload().Code)
}

func TestUploadQuotaAllow(t *testing.T) {
	store := newFakeQuotaStore()
	quota := &UploadQuota{store: store, limit: 2}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := quota.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := quota.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 24*time.Hour, retry)

	ok, _, err = quota.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok, "quota is per user")

	assert.EqualValues(t, 3, store.counts[uploadQuotaPrefix+":u1"])
}

func TestExportPPTX(t *testing.T) {
	photo := "https://fotos.test/antes.png"
	env := newTestEnv(t, withFetcher(mapFetcher{photo: pngBytes(t, 40, 30)}))
	cookie := env.login(t)

	payload := map[string]any{
		"problems": []map[string]any{{
			"id":             "p1",
			"problem_number": 3,
			"title":          "Poeira excessiva",
			"description":    "Nuvem de poeira no acesso norte",
			"type":           "meio_ambiente,saude",
			"severity":       "medio",
			"location":       "Acesso norte",
			"status":         "pendente",
			"created_at":     "2024-03-07T10:00:00Z",
			"problem_photos": []map[string]any{
				{"photo_url": photo, "filename": "antes.png", "photo_type": "problem"},
			},
		}},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/export-pptx", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.presentationml.presentation", rec.Header().Get("Content-Type"))

	want := `attachment; filename="relatorio-problemas-` + format.ISODate(time.Now()) + `.pptx"`
	assert.Equal(t, want, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestExportPPTXRejects(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/export-pptx", strings.NewReader(`{"problems":[]}`))
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := env.login(t)
	req = httptest.NewRequest(http.MethodPost, "/api/export-pptx", strings.NewReader(`{"problems":`))
	req.AddCookie(cookie)
	rec = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportDownloads(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)
	createProblem(t, env, cookie)
	date := format.ISODate(time.Now())

	tests := []struct {
		kind        string
		status      int
		disposition string
		contains    string
	}{
		{kind: "pptx", status: http.StatusOK, disposition: `attachment; filename="relatorio-problemas-` + date + `.pptx"`},
		{kind: "xlsx", status: http.StatusOK, disposition: `attachment; filename="problemas-` + date + `.xlsx"`},
		{kind: "pdf", status: http.StatusOK, disposition: `attachment; filename="relatorio-problemas-` + date + `.pdf"`},
		{kind: "json", status: http.StatusOK, disposition: `attachment; filename="problemas-obra-` + date + `.json"`, contains: "Andaime sem guarda-corpo"},
		{kind: "print", status: http.StatusOK, disposition: `inline; filename="relatorio-problemas-` + date + `.html"`, contains: "window.print()"},
		{kind: "docx", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rec := env.do(get("/export/"+tt.kind, cookie))
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, tt.disposition, rec.Header().Get("Content-Disposition"))
			assert.NotEmpty(t, rec.Body.Bytes())
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestExportLogsUnreachablePhotos(t *testing.T) {
	env := newTestEnv(t, withFetcher(mapFetcher{"https://fotos.test/a.jpg": pngBytes(t, 8, 8)}))
	cookie := env.login(t)
	createProblem(t, env, cookie)

	rec := env.do(get("/export/xlsx", cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	var skipped []string
	for _, entry := range env.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "skipping photo in report" {
			skipped = append(skipped, entry.Data["photo_url"].(string))
		}
	}
	assert.Equal(t, []string{"https://fotos.test/b.jpg"}, skipped)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(get("/healthz", nil))

	rec := env.do(get("/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "obralog_http_requests_total")
	assert.Contains(t, rec.Body.String(), `status="200"`)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/static/app.css", "/static/app.js"} {
		rec := env.do(get(path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    *float64
		wantErr bool
	}{
		{in: ""},
		{in: "  "},
		{in: "-23,5", want: ptr(-23.5)},
		{in: "46.633889", want: ptr(46.633889)},
		{in: "91", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDecimal(tt.in, 90)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func ptr(v float64) *float64 {
	return &v
}
