package server

import (
	"net/http"
	"strings"

	"obralog/internal/board"
	"obralog/internal/format"
	"obralog/internal/problems"
	"obralog/internal/report"
	"obralog/pkg/types"
)

func (s *Service) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := problems.UserFromContext(ctx)
	if err != nil {
		s.redirectToLogin(w, r)
		return
	}

	list, err := s.problems.List(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("failed to list problems")
		s.internalServerError(w)
		return
	}

	b := s.boards.sync(user.ID, list)

	q := r.URL.Query()
	filter := board.Filter{
		Search:   strings.TrimSpace(q.Get("q")),
		Severity: types.Severity(q.Get("severity")),
		Type:     types.Tag(q.Get("type")),
		Status:   types.Status(q.Get("status")),
	}

	matched := b.Filter(filter)
	cards := make([]*types.ProblemCard, 0, len(matched))
	for _, p := range matched {
		cards = append(cards, problemCard(p))
	}

	data := &types.HomePageData{
		BasePageData: types.BasePageData{
			Title:  "Problemas da obra",
			Notice: q.Get("notice"),
			Error:  q.Get("error"),
		},
		Problems:     cards,
		Stats:        statCards(b.Stats()),
		Filters:      homeFilters(filter),
		FilterActive: filter.Active(),
		Total:        b.Len(),
		UploadsOn:    s.pipeline != nil && s.pipeline.Enabled(),
		ExportKinds:  exportOptions(),
	}

	if err := s.renderTemplate(w, r, "page.home", data); err != nil {
		s.logger.WithError(err).Error("failed to render home page")
		s.internalServerError(w)
		return
	}
}

func problemCard(p *types.Problem) *types.ProblemCard {
	return &types.ProblemCard{
		Problem:         p,
		Code:            format.ProblemCode(p.ProblemNumber),
		TypeLabel:       format.RenderTagSet(p.Tags),
		SeverityLabel:   format.SeverityLabel(p.Severity),
		SeverityColor:   format.SeverityColor(p.Severity),
		StatusLabel:     format.StatusLabel(p.Status),
		CreatedAt:       format.Date(p.CreatedAt),
		Coordinates:     format.Coordinates(p.LatitudeGMS, p.LongitudeGMS),
		Decimal:         format.DecimalCoordinates(p.LatitudeDecimal, p.LongitudeDecimal),
		PhotoCount:      len(p.ProblemPhotos()),
		ResolutionCount: len(p.ResolutionPhotos()),
		HasPlan:         p.PrimaryPlan() != nil,
	}
}

func statCards(st board.Stats) []types.StatCard {
	cards := []types.StatCard{
		{Label: "Total", Value: st.Total, Color: "1F2937"},
		{Label: "Pendentes", Value: st.Pending, Color: "DC2626"},
		{Label: "Resolvidos", Value: st.Resolved, Color: "16A34A"},
	}
	for _, sev := range types.AllSeverities {
		cards = append(cards, types.StatCard{
			Label: format.SeverityLabel(sev),
			Value: st.BySeverity[sev],
			Color: format.SeverityColor(sev),
		})
	}
	return cards
}

func homeFilters(f board.Filter) types.HomeFilters {
	out := types.HomeFilters{Search: f.Search}

	out.Severities = append(out.Severities, types.Option{Value: "", Label: "Todas", Selected: f.Severity == ""})
	for _, sev := range types.AllSeverities {
		out.Severities = append(out.Severities, types.Option{
			Value:    string(sev),
			Label:    format.SeverityLabel(sev),
			Selected: f.Severity == sev,
		})
	}

	out.Types = append(out.Types, types.Option{Value: "", Label: "Todos", Selected: f.Type == ""})
	for _, tag := range types.AllTags {
		out.Types = append(out.Types, types.Option{
			Value:    string(tag),
			Label:    format.TypeLabel(tag),
			Selected: f.Type == tag,
		})
	}

	out.Statuses = []types.Option{
		{Value: "", Label: "Todos", Selected: f.Status == ""},
		{Value: string(types.StatusPending), Label: "Pendentes", Selected: f.Status == types.StatusPending},
		{Value: string(types.StatusResolved), Label: "Resolvidos", Selected: f.Status == types.StatusResolved},
	}

	return out
}

var exportLabels = map[report.Kind]string{
	report.KindSlides:      "Apresentação (PPTX)",
	report.KindSpreadsheet: "Planilha (XLSX)",
	report.KindPrint:       "Imprimir",
	report.KindPDF:         "PDF",
	report.KindJSON:        "JSON",
}

func exportOptions() []types.Option {
	out := make([]types.Option, 0, len(report.Kinds))
	for _, k := range report.Kinds {
		out = append(out, types.Option{Value: string(k), Label: exportLabels[k]})
	}
	return out
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) internalServerError(w http.ResponseWriter) {
	http.Error(w, "Erro interno do servidor", http.StatusInternalServerError)
}
