package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"obralog/internal/problems"
	"obralog/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/sirupsen/logrus"
)

const cookieRedirectName = "obralog_redirect"

var errNoSession = errors.New("no session")

// session is the encrypted cookie payload. AccessToken is set for identity
// provider logins; development logins carry only the user fields.
type session struct {
	AccessToken string
	UserID      string
	Email       string
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		elapsed := time.Since(started)
		s.metrics.observeRequest(r.Method, rw.statusCode, elapsed)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("http request")
	})
}

// RequireAuth resolves the session user and attaches it to the request
// context. Unauthenticated page requests are sent to the login page.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			if !errors.Is(err, errNoSession) {
				s.logger.WithError(err).Warn("rejected session")
				s.clearSessionCookie(w)
			}

			if r.Method == http.MethodGet {
				s.setRedirectCookie(w, r.URL.RequestURI(), time.Minute*5)
			}
			s.redirectToLogin(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(problems.WithUser(r.Context(), user)))
	})
}

// RequireAPIAuth is RequireAuth for JSON endpoints: it answers 401 instead
// of redirecting.
func (s *Service) RequireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			s.writeJSONError(w, http.StatusUnauthorized, "Sessão expirada. Faça login novamente.")
			return
		}

		next.ServeHTTP(w, r.WithContext(problems.WithUser(r.Context(), user)))
	})
}

// RequireDatabase renders the setup notice while no database is configured.
func (s *Service) RequireDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.problems != nil {
			next.ServeHTTP(w, r)
			return
		}

		data := &types.SetupPageData{
			BasePageData: types.BasePageData{Title: "Configuração necessária"},
			Missing:      []string{"DATABASE_URL"},
		}

		s.renderStatus(w, r, http.StatusServiceUnavailable, "page.setup", data)
	})
}

func (s *Service) authenticate(r *http.Request) (*types.User, error) {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return nil, errNoSession
	}

	var sess session
	if err := s.cookie.Decode(s.config.CookieName, cookie.Value, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session cookie: %w", err)
	}

	if sess.AccessToken != "" {
		user, err := s.verifyAccessToken(r.Context(), sess.AccessToken)
		if err != nil {
			return nil, err
		}
		if user.Email == "" {
			user.Email = sess.Email
		}
		return user, nil
	}

	if s.config.DevLoginEnabled() && sess.UserID != "" {
		return &types.User{ID: sess.UserID, Email: sess.Email}, nil
	}

	return nil, errNoSession
}

func (s *Service) verifyAccessToken(ctx context.Context, accessToken string) (*types.User, error) {
	if s.jwksCache == nil {
		return nil, errors.New("token verification is not configured")
	}

	set, err := s.jwksCache.Lookup(ctx, s.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(accessToken),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	userID, ok := token.Subject()
	if !ok || userID == "" {
		return nil, errors.New("no user ID in JWT subject claim")
	}

	var email string
	if err := token.Get("email", &email); err != nil {
		s.logger.WithField("user_id", userID).Debug("no email claim in JWT")
	}

	return &types.User{ID: userID, Email: email}, nil
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LimitUploads enforces the per-user daily upload quota when Redis is
// configured.
func (s *Service) LimitUploads(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.quota == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := problems.UserFromContext(r.Context())
		if err != nil {
			s.writeJSONError(w, http.StatusUnauthorized, "Sessão expirada. Faça login novamente.")
			return
		}

		allowed, retryAfter, err := s.quota.Allow(r.Context(), user.ID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Error("failed to check upload quota")
			s.writeJSONError(w, http.StatusInternalServerError, "Falha no upload. Tente novamente.")
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       "Limite diário de uploads atingido.",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
