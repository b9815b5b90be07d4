package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"obralog/internal/problems"
	"obralog/internal/report"
	"obralog/pkg/types"
)

const maxExportBody = 16 << 20

type exportRequest struct {
	Problems []*types.Problem `json:"problems"`
}

// handleExportPPTX builds the slide deck from the problems posted by the
// client.
func (s *Service) handleExportPPTX(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxExportBody)

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.WithError(err).Info("invalid export request body")
		s.writeJSONError(w, http.StatusBadRequest, "Requisição inválida.")
		return
	}

	s.sendReport(w, r, report.KindSlides, req.Problems, true)
}

// handleExport renders a report from the session user's stored problems.
// The print report is served inline so the browser can open it directly.
func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	kind, err := report.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	user, err := problems.UserFromContext(r.Context())
	if err != nil {
		s.redirectToLogin(w, r)
		return
	}

	list, err := s.problems.List(r.Context())
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("failed to list problems for export")
		s.metrics.observeExport(string(kind), err)
		s.redirectWithError(w, r, "/", "Não foi possível gerar o relatório. Tente novamente.")
		return
	}

	b := s.boards.sync(user.ID, list)
	s.sendReport(w, r, kind, b.Snapshot(), kind != report.KindPrint)
}

func (s *Service) sendReport(w http.ResponseWriter, r *http.Request, kind report.Kind, list []*types.Problem, attachment bool) {
	in := report.Collect(r.Context(), s.logger, s.fetcher, list, s.config.PhotoFetchConcurrency, time.Now())

	artifact, err := report.Render(kind, in)
	s.metrics.observeExport(string(kind), err)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("failed to render report")
		if r.URL.Path == "/api/export-pptx" {
			s.writeJSONError(w, http.StatusInternalServerError, "Erro ao gerar apresentação.")
			return
		}
		s.redirectWithError(w, r, "/", "Não foi possível gerar o relatório. Tente novamente.")
		return
	}

	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, artifact.Filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		s.logger.WithError(err).Warn("failed to write report")
	}
}
