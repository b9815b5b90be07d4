package server

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"obralog/internal/format"
	"obralog/internal/photos"
	"obralog/internal/problems"
	"obralog/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

//go:embed templates static
var uiFS embed.FS
var decoder = form.NewDecoder()

// IdentityProvider is the subset of the Cognito client used for sign-in,
// sign-up and sign-out.
type IdentityProvider interface {
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	SignUp(ctx context.Context, in *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	GlobalSignOut(ctx context.Context, in *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
}

type Service struct {
	logger    *logrus.Logger
	config    *types.Config
	problems  *problems.Service
	pipeline  *photos.Pipeline
	fetcher   photos.Fetcher
	identity  IdentityProvider
	quota     *UploadQuota
	metrics   *Metrics
	boards    *boardCache
	templates *template.Template

	cookie *securecookie.SecureCookie

	jwksCache *jwk.Cache
	jwksURL   string

	server *http.Server
}

// New wires the HTTP surface. problemsSvc is nil while the database is not
// configured; pages that need it then render the setup notice.
func New(
	config *types.Config,
	logger *logrus.Logger,
	problemsSvc *problems.Service,
	pipeline *photos.Pipeline,
	fetcher photos.Fetcher,
	identity IdentityProvider,
	jwkCache *jwk.Cache,
	jwksURL string,
	quota *UploadQuota,
	metrics *Metrics,
) (*Service, error) {
	mux := flow.New()

	if metrics == nil {
		metrics = NewMetrics()
	}
	if fetcher == nil {
		fetcher = photos.NewHTTPFetcher()
	}

	s := &Service{
		logger:   logger,
		config:   config,
		problems: problemsSvc,
		pipeline: pipeline,
		fetcher:  fetcher,
		identity: identity,
		quota:    quota,
		metrics:  metrics,
		boards:   newBoardCache(),
		cookie:   newSecureCookie(config, logger),

		jwksCache: jwkCache,
		jwksURL:   jwksURL,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s.templates = templates

	s.buildRouter(mux)

	return s, nil
}

// newSecureCookie falls back to random keys when none are configured, which
// invalidates sessions on every restart.
func newSecureCookie(config *types.Config, logger *logrus.Logger) *securecookie.SecureCookie {
	hashKey, _ := base64.StdEncoding.DecodeString(config.CookieHashKey)
	blockKey, _ := base64.StdEncoding.DecodeString(config.CookieBlockKey)

	if len(hashKey) == 0 || len(blockKey) == 0 {
		logger.Warn("cookie keys not configured, generating ephemeral keys")
		hashKey = securecookie.GenerateRandomKey(32)
		blockKey = securecookie.GenerateRandomKey(32)
	}

	sc := securecookie.New(hashKey, blockKey)
	if config.SessionMaxAgeSec > 0 {
		sc.MaxAge(config.SessionMaxAgeSec)
	}
	return sc
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler(), http.MethodGet)

	r.HandleFunc("/login", s.handleGetLogin, http.MethodGet)
	r.HandleFunc("/login", s.handlePostLogin, http.MethodPost)
	r.HandleFunc("/logout", s.handlePostLogout, http.MethodPost)
	r.HandleFunc("/register", s.handleGetRegister, http.MethodGet)
	r.HandleFunc("/register", s.handlePostRegister, http.MethodPost)
	r.HandleFunc("/register/confirm", s.handleGetRegisterConfirm, http.MethodGet)
	r.HandleFunc("/register/confirm", s.handlePostRegisterConfirm, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)
		r.Use(s.RequireDatabase)

		r.HandleFunc("/", s.handleHome, http.MethodGet)

		r.HandleFunc("/problems/new", s.handleGetNewProblem, http.MethodGet)
		r.HandleFunc("/problems", s.handlePostNewProblem, http.MethodPost)
		r.HandleFunc("/problems/:id", s.handleGetProblem, http.MethodGet)
		r.HandleFunc("/problems/:id/edit", s.handleGetEditProblem, http.MethodGet)
		r.HandleFunc("/problems/:id", s.handlePostEditProblem, http.MethodPost)
		r.HandleFunc("/problems/:id/status", s.handlePostProblemStatus, http.MethodPost)
		r.HandleFunc("/problems/:id/resolve", s.handlePostResolveProblem, http.MethodPost)
		r.HandleFunc("/problems/:id/reopen", s.handlePostReopenProblem, http.MethodPost)
		r.HandleFunc("/problems/:id/delete", s.handlePostDeleteProblem, http.MethodPost)
		r.HandleFunc("/problems/:id/photos", s.handleGetProblemPhotos, http.MethodGet)
		r.HandleFunc("/problems/:id/photos", s.handlePostProblemPhotos, http.MethodPost)

		r.HandleFunc("/problems/:id/plan", s.handleGetPlan, http.MethodGet)
		r.HandleFunc("/problems/:id/plan", s.handlePostPlan, http.MethodPost)
		r.HandleFunc("/problems/:id/plans", s.handlePostAdditionalPlan, http.MethodPost)
		r.HandleFunc("/plans/:planID", s.handlePostUpdatePlan, http.MethodPost)
		r.HandleFunc("/plans/:planID/delete", s.handlePostDeletePlan, http.MethodPost)

		r.HandleFunc("/export/:kind", s.handleExport, http.MethodGet)
	})

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAPIAuth)

		r.HandleFunc("/api/export-pptx", s.handleExportPPTX, http.MethodPost)

		r.Group(func(r *flow.Mux) {
			r.Use(s.LimitUploads)
			r.HandleFunc("/api/upload", s.handleUpload, http.MethodPost)
		})
	})

	staticRoot, err := fs.Sub(uiFS, "static")
	if err != nil {
		s.logger.WithError(err).Fatal("failed to mount static assets")
	}
	r.Handle("/static/...", http.StripPrefix("/static/", http.FileServer(http.FS(staticRoot))), http.MethodGet)
}

type uploaderData struct {
	On  bool
	Max int
}

func loadTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefOr": func(s *string, defaultVal string) string {
			if s == nil || strings.TrimSpace(*s) == "" {
				return defaultVal
			}
			return *s
		},
		"derefTime": func(t *time.Time) time.Time {
			if t == nil {
				return time.Time{}
			}
			return *t
		},
		"date":     format.Date,
		"fileSize": format.FileSize,
		"typeLabel": func(t types.Tag) string {
			return format.TypeLabel(t)
		},
		"severityLabel": format.SeverityLabel,
		"statusLabel":   format.StatusLabel,
		"hexColor": func(hex string) template.CSS {
			return template.CSS("#" + strings.ToLower(hex))
		},
		"nth": func(list []string, i int) string {
			if i < 0 || i >= len(list) {
				return ""
			}
			return list[i]
		},
		"uploader": func(on bool, limit int) uploaderData {
			return uploaderData{On: on, Max: limit}
		},
	}

	t := template.New("").Funcs(funcMap)
	err := fs.WalkDir(uiFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		data, err := fs.ReadFile(uiFS, path)
		if err != nil {
			return fmt.Errorf("read template %s: %w", path, err)
		}

		if _, err := t.Parse(string(data)); err != nil {
			return fmt.Errorf("parse template %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}
