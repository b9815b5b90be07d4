package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"obralog/internal/problems"
	"obralog/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ctypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

func (s *Service) handleGetLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := &types.LoginPageData{
		BasePageData: types.BasePageData{Title: "Entrar"},
	}
	if r.URL.Query().Get("confirmed") == "true" {
		data.Message = "Conta confirmada. Faça login para continuar."
	}

	if err := s.renderTemplate(w, r, "page.login", data); err != nil {
		s.logger.WithError(err).Error("failed to render login page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	data := &types.LoginPageData{
		BasePageData: types.BasePageData{Title: "Entrar"},
		Email:        email,
	}

	var sess session
	switch {
	case s.config.DevLoginEnabled():
		if !s.devCredentialsMatch(email, password) {
			data.Error = "Email ou senha inválidos."
			s.renderLoginError(w, r, data)
			return
		}
		sess = session{UserID: problems.DevUserID(email), Email: email}

	case s.identity != nil:
		resp, err := s.identity.InitiateAuth(r.Context(), &cognitoidentityprovider.InitiateAuthInput{
			AuthFlow: ctypes.AuthFlowTypeUserPasswordAuth,
			ClientId: aws.String(s.config.CognitoClientID),
			AuthParameters: map[string]string{
				"USERNAME": email,
				"PASSWORD": password,
			},
		})
		if err != nil {
			s.logger.WithError(err).Info("login rejected by identity provider")
			data.Error = loginErrorMessage(err)
			s.renderLoginError(w, r, data)
			return
		}

		if resp.AuthenticationResult == nil || resp.AuthenticationResult.AccessToken == nil {
			data.Error = "Não foi possível entrar. Tente novamente."
			s.renderLoginError(w, r, data)
			return
		}

		sess = session{AccessToken: aws.ToString(resp.AuthenticationResult.AccessToken), Email: email}

	default:
		data.Error = "Login indisponível: provedor de identidade não configurado."
		s.renderLoginError(w, r, data)
		return
	}

	if err := s.setSessionCookie(w, sess); err != nil {
		s.logger.WithError(err).Error("failed to encode session cookie")
		s.internalServerError(w)
		return
	}

	if redirectCookie, err := r.Cookie(cookieRedirectName); err == nil && strings.HasPrefix(redirectCookie.Value, "/") {
		s.clearRedirectCookie(w)
		http.Redirect(w, r, redirectCookie.Value, http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Service) handlePostLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.config.CookieName); err == nil {
		var sess session
		if err := s.cookie.Decode(s.config.CookieName, cookie.Value, &sess); err == nil {
			s.boards.drop(sess.UserID)

			if s.identity != nil && sess.AccessToken != "" {
				_, err := s.identity.GlobalSignOut(r.Context(), &cognitoidentityprovider.GlobalSignOutInput{
					AccessToken: aws.String(sess.AccessToken),
				})
				if err != nil {
					s.logger.WithError(err).Warn("failed to sign out from identity provider")
				}
			}
		}
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Service) renderLoginError(w http.ResponseWriter, r *http.Request, data *types.LoginPageData) {
	s.renderStatus(w, r, http.StatusUnauthorized, "page.login", data)
}

func (s *Service) devCredentialsMatch(email, password string) bool {
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(email)), []byte(strings.ToLower(s.config.DevLoginEmail))) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.config.DevLoginPassword)) == 1
	return emailOK && passwordOK
}

func loginErrorMessage(err error) string {
	var notConfirmed *ctypes.UserNotConfirmedException
	if errors.As(err, &notConfirmed) {
		return "Confirme seu email antes de entrar."
	}
	return "Email ou senha inválidos."
}

func (s *Service) setSessionCookie(w http.ResponseWriter, sess session) error {
	encoded, err := s.cookie.Encode(s.config.CookieName, sess)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    encoded,
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   s.config.SessionMaxAgeSec,
		Path:     "/",
	})
	return nil
}

func (s *Service) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.CookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func (s *Service) setRedirectCookie(w http.ResponseWriter, path string, age time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRedirectName,
		Value:    path,
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(age.Seconds()),
	})
}

func (s *Service) clearRedirectCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRedirectName,
		Value:    "",
		HttpOnly: true,
		Secure:   s.config.Environment != "development",
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
