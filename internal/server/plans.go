package server

import (
	"net/http"
	"strings"

	"obralog/internal/format"
	"obralog/internal/problems"
	"obralog/pkg/types"
)

func (s *Service) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	problem, ok := s.loadProblem(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	plan := problem.PrimaryPlan()
	action := problemPath(problem.ID) + "/plan"

	switch {
	case q.Get("new") == "true" && plan != nil:
		plan = nil
		action = problemPath(problem.ID) + "/plans"
	case q.Get("plan") != "":
		plan = findPlan(problem, q.Get("plan"))
		if plan == nil {
			http.NotFound(w, r)
			return
		}
		action = "/plans/" + plan.ID
	}

	data := &types.PlanFormPageData{
		BasePageData: types.BasePageData{Title: "Plano de ação 5W2H · " + format.ProblemTitle(problem)},
		Problem:      problem,
		Plan:         plan,
		Action:       action,
	}

	if err := s.renderTemplate(w, r, "page.plan.form", data); err != nil {
		s.logger.WithError(err).Error("failed to render plan page")
		s.internalServerError(w)
	}
}

// handlePostPlan saves the primary plan, creating it on first save.
func (s *Service) handlePostPlan(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	patch, ok := s.decodePlanPatch(w, r, problemID)
	if !ok {
		return
	}

	if _, err := s.problems.SavePrimaryPlan(r.Context(), problemID, patch); err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.refreshBoard(r, problemID)
	s.redirectWithNotice(w, r, problemPath(problemID), "Plano de ação salvo.")
}

func (s *Service) handlePostAdditionalPlan(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	patch, ok := s.decodePlanPatch(w, r, problemID)
	if !ok {
		return
	}

	if _, err := s.problems.CreatePlan(r.Context(), problemID, patch); err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.refreshBoard(r, problemID)
	s.redirectWithNotice(w, r, problemPath(problemID), "Plano de ação adicionado.")
}

func (s *Service) handlePostUpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := r.PathValue("planID")
	problemID := strings.TrimSpace(r.FormValue("problem_id"))

	patch, ok := s.decodePlanPatch(w, r, problemID)
	if !ok {
		return
	}

	plan, err := s.problems.UpdatePlan(r.Context(), planID, patch)
	if err != nil {
		s.planActionFailed(w, r, problemID, err)
		return
	}

	s.refreshBoard(r, plan.ProblemID)
	s.redirectWithNotice(w, r, problemPath(plan.ProblemID), "Plano de ação atualizado.")
}

func (s *Service) handlePostDeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := r.PathValue("planID")
	problemID := strings.TrimSpace(r.FormValue("problem_id"))

	if err := s.problems.DeletePlan(r.Context(), planID); err != nil {
		s.planActionFailed(w, r, problemID, err)
		return
	}

	if problemID == "" {
		s.redirectWithNotice(w, r, "/", "Plano de ação excluído.")
		return
	}

	s.refreshBoard(r, problemID)
	s.redirectWithNotice(w, r, problemPath(problemID), "Plano de ação excluído.")
}

func (s *Service) decodePlanPatch(w http.ResponseWriter, r *http.Request, problemID string) (types.PlanPatch, bool) {
	var patch types.PlanPatch
	if err := s.decodeForm(w, r, &patch); err != nil {
		s.logger.WithError(err).Info("failed to decode plan form")

		back := "/"
		if problemID != "" {
			back = problemPath(problemID)
		}
		s.redirectWithError(w, r, back, "Formulário inválido.")
		return patch, false
	}
	return patch, true
}

func (s *Service) planActionFailed(w http.ResponseWriter, r *http.Request, problemID string, err error) {
	if problems.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}

	s.logger.WithError(err).Error("plan action failed")
	back := "/"
	if problemID != "" {
		back = problemPath(problemID)
	}
	s.redirectWithError(w, r, back, "Não foi possível salvar o plano de ação. Tente novamente.")
}

// refreshBoard reloads one problem after a plan change so the home list
// reflects the plan flag.
func (s *Service) refreshBoard(r *http.Request, problemID string) {
	problem, err := s.problems.Get(r.Context(), problemID)
	if err != nil {
		s.logger.WithError(err).WithField("problem_id", problemID).Warn("failed to reload problem after plan change")
		return
	}
	s.boardFor(r).Replace(problem)
}

func findPlan(problem *types.Problem, planID string) *types.RemediationPlan {
	for _, plan := range problem.Plans {
		if plan != nil && plan.ID == planID {
			return plan
		}
	}
	return nil
}
