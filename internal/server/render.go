package server

import (
	"encoding/json"
	"net/http"

	"obralog/internal/problems"
	"obralog/pkg/types"
)

func (s *Service) renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data any) error {
	if setter, ok := data.(types.NavbarDataSetter); ok {
		nav := types.NavbarData{DevLogin: s.config.DevLoginEnabled()}
		if user, err := problems.UserFromContext(r.Context()); err == nil {
			nav.IsAuthenticated = true
			nav.UserID = user.ID
			nav.UserEmail = user.Email
		}
		setter.SetNavbarData(nav)
	}

	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}

	return s.templates.ExecuteTemplate(w, templateName, data)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode json response")
	}
}

func (s *Service) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// renderStatus renders a page with a non-200 status. Failures are only
// logged since the header is already sent.
func (s *Service) renderStatus(w http.ResponseWriter, r *http.Request, status int, templateName string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.renderTemplate(w, r, templateName, data); err != nil {
		s.logger.WithError(err).WithField("template", templateName).Error("failed to render page")
	}
}
