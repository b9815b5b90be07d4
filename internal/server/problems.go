package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"obralog/internal/format"
	"obralog/internal/photos"
	"obralog/internal/problems"
	"obralog/pkg/types"
)

const (
	formMemoryBytes = 32 << 20
	photoFilesField = "photos"
)

func (s *Service) handleGetNewProblem(w http.ResponseWriter, r *http.Request) {
	data := s.problemFormPage(types.ProblemForm{Severity: string(types.SeverityMedium)})
	data.Title = "Novo problema"
	data.Action = "/problems"

	if err := s.renderTemplate(w, r, "page.problem.form", data); err != nil {
		s.logger.WithError(err).Error("failed to render new problem page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostNewProblem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var f types.ProblemForm
	if err := s.decodeForm(w, r, &f); err != nil {
		s.logger.WithError(err).Info("failed to decode problem form")
		s.redirectWithError(w, r, "/problems/new", "Formulário inválido.")
		return
	}

	fieldErrs := types.ValidationError{}
	latitude, longitude := parseDecimalPair(f, fieldErrs)
	refs := s.collectPhotoRefs(r, f.PhotoURLs, f.PhotoFilenames, fieldErrs)

	data := s.problemFormPage(f)
	data.Title = "Novo problema"
	data.Action = "/problems"

	if len(fieldErrs) > 0 {
		data.FieldErrors = fieldErrs
		data.Error = "Corrija os campos destacados."
		s.renderStatus(w, r, http.StatusBadRequest, "page.problem.form", data)
		return
	}

	problem, err := s.problems.Create(ctx, types.NewProblem{
		Title:            f.Title,
		Description:      f.Description,
		Tags:             types.NewTagSet(f.Types),
		Severity:         types.Severity(f.Severity),
		Location:         f.Location,
		Recommendations:  f.Recommendations,
		LatitudeGMS:      f.LatitudeGMS,
		LongitudeGMS:     f.LongitudeGMS,
		LatitudeDecimal:  latitude,
		LongitudeDecimal: longitude,
		Photos:           refs,
	})
	if err != nil {
		var verr types.ValidationError
		if errors.As(err, &verr) {
			data.FieldErrors = verr
			data.Error = "Corrija os campos destacados."
			s.renderStatus(w, r, http.StatusBadRequest, "page.problem.form", data)
			return
		}

		s.logger.WithError(err).Error("failed to create problem")
		data.Error = "Não foi possível salvar o problema. Tente novamente."
		s.renderStatus(w, r, http.StatusInternalServerError, "page.problem.form", data)
		return
	}

	s.boardFor(r).Add(problem)
	s.redirectWithNotice(w, r, problemPath(problem.ID), "Problema registrado.")
}

func (s *Service) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	problem, ok := s.loadProblem(w, r)
	if !ok {
		return
	}

	plans := make([]*types.RemediationPlan, 0, len(problem.Plans))
	fields := make([][]types.PlanField, 0, len(problem.Plans))
	for _, plan := range problem.Plans {
		if plan == nil {
			continue
		}
		plans = append(plans, plan)
		fields = append(fields, plan.Fields())
	}

	q := r.URL.Query()
	data := &types.ProblemDetailPageData{
		BasePageData: types.BasePageData{
			Title:  format.ProblemTitle(problem),
			Notice: q.Get("notice"),
			Error:  q.Get("error"),
		},
		Card:             problemCard(problem),
		ProblemPhotos:    problem.ProblemPhotos(),
		ResolutionPhotos: problem.ResolutionPhotos(),
		Plans:            plans,
		PlanFields:       fields,
		UploadsOn:        s.uploadsOn(),
		MaxPhotos:        s.config.MaxPhotosPerProblem,
	}

	if err := s.renderTemplate(w, r, "page.problem.detail", data); err != nil {
		s.logger.WithError(err).Error("failed to render problem page")
		s.internalServerError(w)
	}
}

func (s *Service) handleGetEditProblem(w http.ResponseWriter, r *http.Request) {
	problem, ok := s.loadProblem(w, r)
	if !ok {
		return
	}

	data := s.problemFormPage(formFromProblem(problem))
	data.Title = "Editar problema"
	data.Action = problemPath(problem.ID)
	data.Editing = true
	data.Problem = problem

	if err := s.renderTemplate(w, r, "page.problem.form", data); err != nil {
		s.logger.WithError(err).Error("failed to render edit problem page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostEditProblem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	problemID := r.PathValue("id")

	var f types.ProblemForm
	if err := s.decodeForm(w, r, &f); err != nil {
		s.logger.WithError(err).Info("failed to decode problem form")
		s.redirectWithError(w, r, problemPath(problemID)+"/edit", "Formulário inválido.")
		return
	}

	fieldErrs := types.ValidationError{}
	latitude, longitude := parseDecimalPair(f, fieldErrs)

	severity := types.Severity(f.Severity)
	patch := types.ProblemPatch{
		Title:               &f.Title,
		Description:         &f.Description,
		Tags:                types.NewTagSet(f.Types),
		Severity:            &severity,
		Location:            &f.Location,
		Recommendations:     &f.Recommendations,
		LatitudeGMS:         &f.LatitudeGMS,
		LongitudeGMS:        &f.LongitudeGMS,
		LatitudeDecimal:     latitude,
		LongitudeDecimal:    longitude,
		SetLatitudeDecimal:  true,
		SetLongitudeDecimal: true,
	}

	if f.ReplacePhotos {
		patch.Photos = s.collectPhotoRefs(r, f.PhotoURLs, f.PhotoFilenames, fieldErrs)
		if patch.Photos == nil {
			patch.Photos = []types.PhotoRef{}
		}
		patch.PhotoType = types.PhotoTypeProblem
	}

	data := s.problemFormPage(f)
	data.Title = "Editar problema"
	data.Action = problemPath(problemID)
	data.Editing = true

	if len(fieldErrs) > 0 {
		data.FieldErrors = fieldErrs
		data.Error = "Corrija os campos destacados."
		s.renderStatus(w, r, http.StatusBadRequest, "page.problem.form", data)
		return
	}

	problem, err := s.problems.UpdateFields(ctx, problemID, patch)
	if err != nil {
		var verr types.ValidationError
		switch {
		case errors.As(err, &verr):
			data.FieldErrors = verr
			data.Error = "Corrija os campos destacados."
			s.renderStatus(w, r, http.StatusBadRequest, "page.problem.form", data)
		case problems.IsNotFound(err):
			http.NotFound(w, r)
		default:
			s.logger.WithError(err).WithField("problem_id", problemID).Error("failed to update problem")
			data.Error = "Não foi possível salvar o problema. Tente novamente."
			s.renderStatus(w, r, http.StatusInternalServerError, "page.problem.form", data)
		}
		return
	}

	s.boardFor(r).Replace(problem)
	s.redirectWithNotice(w, r, problemPath(problem.ID), "Problema atualizado.")
}

func (s *Service) handlePostProblemStatus(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")
	status := types.Status(strings.TrimSpace(r.FormValue("status")))

	problem, err := s.problems.UpdateStatus(r.Context(), problemID, status)
	if err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.boardFor(r).Replace(problem)
	s.redirectWithNotice(w, r, problemPath(problemID), "Status atualizado para "+format.StatusLabel(problem.Status)+".")
}

func (s *Service) handlePostResolveProblem(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	var f types.ResolveForm
	if err := s.decodeForm(w, r, &f); err != nil {
		s.logger.WithError(err).Info("failed to decode resolve form")
		s.redirectWithError(w, r, problemPath(problemID), "Formulário inválido.")
		return
	}

	fieldErrs := types.ValidationError{}
	refs := s.collectPhotoRefs(r, f.PhotoURLs, f.PhotoFilenames, fieldErrs)
	if msg, ok := fieldErrs[photoFilesField]; ok {
		s.redirectWithError(w, r, problemPath(problemID), msg)
		return
	}

	problem, err := s.problems.Resolve(r.Context(), problemID, f.Notes, refs)
	if err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.boardFor(r).Replace(problem)
	s.redirectWithNotice(w, r, problemPath(problemID), "Problema marcado como resolvido.")
}

func (s *Service) handlePostReopenProblem(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	problem, err := s.problems.Reopen(r.Context(), problemID)
	if err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.boardFor(r).Replace(problem)
	s.redirectWithNotice(w, r, problemPath(problemID), "Problema reaberto.")
}

func (s *Service) handlePostDeleteProblem(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	if err := s.problems.Delete(r.Context(), problemID); err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.boardFor(r).Remove(problemID)
	s.redirectWithNotice(w, r, "/", "Problema excluído.")
}

func (s *Service) handleGetProblemPhotos(w http.ResponseWriter, r *http.Request) {
	problem, ok := s.loadProblem(w, r)
	if !ok {
		return
	}

	photoType := types.PhotoType(r.URL.Query().Get("type"))
	if !photoType.Valid() {
		photoType = types.PhotoTypeProblem
	}

	current := problem.ProblemPhotos()
	title := "Fotos do problema"
	if photoType == types.PhotoTypeResolution {
		current = problem.ResolutionPhotos()
		title = "Fotos da resolução"
	}

	data := &types.PhotosFormPageData{
		BasePageData: types.BasePageData{Title: title, Error: r.URL.Query().Get("error")},
		Problem:      problem,
		PhotoType:    photoType,
		Photos:       current,
		UploadsOn:    s.uploadsOn(),
		MaxPhotos:    s.config.MaxPhotosPerProblem,
	}

	if err := s.renderTemplate(w, r, "page.photos.form", data); err != nil {
		s.logger.WithError(err).Error("failed to render photos page")
		s.internalServerError(w)
	}
}

func (s *Service) handlePostProblemPhotos(w http.ResponseWriter, r *http.Request) {
	problemID := r.PathValue("id")

	var f types.ProblemForm
	if err := s.decodeForm(w, r, &f); err != nil {
		s.logger.WithError(err).Info("failed to decode photos form")
		s.redirectWithError(w, r, problemPath(problemID), "Formulário inválido.")
		return
	}

	photoType := types.PhotoType(r.PostForm.Get("photo_type"))
	if !photoType.Valid() {
		photoType = types.PhotoTypeProblem
	}

	fieldErrs := types.ValidationError{}
	refs := s.collectPhotoRefs(r, f.PhotoURLs, f.PhotoFilenames, fieldErrs)
	if msg, ok := fieldErrs[photoFilesField]; ok {
		s.redirectWithError(w, r, problemPath(problemID)+"/photos?type="+string(photoType), msg)
		return
	}

	problem, err := s.problems.ReplacePhotos(r.Context(), problemID, photoType, refs)
	if err != nil {
		s.actionFailed(w, r, problemID, err)
		return
	}

	s.boardFor(r).Replace(problem)
	s.redirectWithNotice(w, r, problemPath(problemID), "Fotos atualizadas.")
}

// loadProblem answers 404 itself when the problem does not belong to the
// session user.
func (s *Service) loadProblem(w http.ResponseWriter, r *http.Request) (*types.Problem, bool) {
	problemID := r.PathValue("id")

	problem, err := s.problems.Get(r.Context(), problemID)
	if err != nil {
		if problems.IsNotFound(err) {
			http.NotFound(w, r)
			return nil, false
		}

		s.logger.WithError(err).WithField("problem_id", problemID).Error("failed to load problem")
		s.internalServerError(w)
		return nil, false
	}

	return problem, true
}

func (s *Service) actionFailed(w http.ResponseWriter, r *http.Request, problemID string, err error) {
	var verr types.ValidationError
	switch {
	case problems.IsNotFound(err):
		http.NotFound(w, r)
	case errors.Is(err, types.ErrResolutionNotesRequired):
		s.redirectWithError(w, r, problemPath(problemID), "Informe as notas de resolução antes de resolver o problema.")
	case errors.Is(err, types.ErrInvalidTransition):
		s.redirectWithError(w, r, problemPath(problemID), "Status inválido.")
	case errors.As(err, &verr):
		s.redirectWithError(w, r, problemPath(problemID), "Dados inválidos.")
	default:
		s.logger.WithError(err).WithField("problem_id", problemID).Error("problem action failed")
		s.redirectWithError(w, r, problemPath(problemID), "Não foi possível concluir a ação. Tente novamente.")
	}
}

// decodeForm parses urlencoded and multipart bodies alike and decodes the
// posted values into dst.
func (s *Service) decodeForm(w http.ResponseWriter, r *http.Request, dst any) error {
	limit := s.uploadBodyLimit()*int64(s.maxPhotos()+1) + formMemoryBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(formMemoryBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("failed to parse form: %w", err)
	}

	return decoder.Decode(dst, r.PostForm)
}

// collectPhotoRefs merges photos already uploaded through the upload
// endpoint with files posted on the form itself. Failures are reported
// under the photos field.
func (s *Service) collectPhotoRefs(r *http.Request, urls, filenames []string, fieldErrs types.ValidationError) []types.PhotoRef {
	var refs []types.PhotoRef
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		name := ""
		if i < len(filenames) {
			name = strings.TrimSpace(filenames[i])
		}
		refs = append(refs, types.PhotoRef{URL: u, Filename: name})
	}

	files := s.postedFiles(r)
	if len(files) > 0 {
		if !s.uploadsOn() {
			fieldErrs[photoFilesField] = photos.Message(photos.ErrUploadDisabled)
			return refs
		}

		for _, res := range s.pipeline.ProcessBatch(r.Context(), files) {
			s.metrics.observeUpload(res.Err)
			if res.Err != nil {
				fieldErrs[photoFilesField] = fmt.Sprintf("%s: %s", res.Filename, photos.Message(res.Err))
				continue
			}
			refs = append(refs, types.PhotoRef{URL: res.Uploaded.URL, Filename: res.Uploaded.Filename})
		}
	}

	if limit := s.maxPhotos(); len(refs) > limit {
		fieldErrs[photoFilesField] = fmt.Sprintf("Máximo de %d fotos por problema.", limit)
	}

	return refs
}

func (s *Service) postedFiles(r *http.Request) []photos.File {
	if r.MultipartForm == nil {
		return nil
	}

	var files []photos.File
	for _, header := range r.MultipartForm.File[photoFilesField] {
		f, err := header.Open()
		if err != nil {
			s.logger.WithError(err).WithField("filename", header.Filename).Warn("failed to open posted photo")
			continue
		}

		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			s.logger.WithError(err).WithField("filename", header.Filename).Warn("failed to read posted photo")
			continue
		}
		if len(data) == 0 {
			continue
		}

		files = append(files, photos.File{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return files
}

func (s *Service) boardFor(r *http.Request) boardUpdater {
	user, err := problems.UserFromContext(r.Context())
	if err != nil {
		return noopBoard{}
	}
	return s.boards.boardFor(user.ID)
}

type boardUpdater interface {
	Add(p *types.Problem)
	Replace(p *types.Problem)
	Remove(id string)
}

type noopBoard struct{}

func (noopBoard) Add(*types.Problem)     {}
func (noopBoard) Replace(*types.Problem) {}
func (noopBoard) Remove(string)          {}

func (s *Service) uploadsOn() bool {
	return s.pipeline != nil && s.pipeline.Enabled()
}

func (s *Service) pipelineMaxBytes() int64 {
	if s.pipeline == nil {
		return photos.DefaultMaxBytes
	}
	return s.pipeline.MaxBytes()
}

func (s *Service) maxPhotos() int {
	if s.config.MaxPhotosPerProblem > 0 {
		return s.config.MaxPhotosPerProblem
	}
	return 5
}

func (s *Service) problemFormPage(f types.ProblemForm) *types.ProblemFormPageData {
	return &types.ProblemFormPageData{
		Form:        f,
		Types:       typeOptions(f.Types),
		Severities:  severityOptions(f.Severity),
		UploadsOn:   s.uploadsOn(),
		MaxPhotos:   s.maxPhotos(),
		MaxUploadMB: s.pipelineMaxBytes() / (1024 * 1024),
	}
}

func typeOptions(selected []string) []types.Option {
	set := types.NewTagSet(selected)
	out := make([]types.Option, 0, len(types.AllTags))
	for _, tag := range types.AllTags {
		out = append(out, types.Option{Value: string(tag), Label: format.TypeLabel(tag), Selected: set.Contains(tag)})
	}
	return out
}

func severityOptions(selected string) []types.Option {
	out := make([]types.Option, 0, len(types.AllSeverities))
	for _, sev := range types.AllSeverities {
		out = append(out, types.Option{Value: string(sev), Label: format.SeverityLabel(sev), Selected: string(sev) == selected})
	}
	return out
}

func formFromProblem(p *types.Problem) types.ProblemForm {
	f := types.ProblemForm{
		Title:           p.Title,
		Description:     p.Description,
		Recommendations: format.OrDefault(p.Recommendations, ""),
		Severity:        string(p.Severity),
		Location:        p.Location,
		LatitudeGMS:     format.OrDefault(p.LatitudeGMS, ""),
		LongitudeGMS:    format.OrDefault(p.LongitudeGMS, ""),
	}
	for _, tag := range p.Tags {
		f.Types = append(f.Types, string(tag))
	}
	if p.LatitudeDecimal != nil {
		f.LatitudeDecimal = strconv.FormatFloat(*p.LatitudeDecimal, 'f', -1, 64)
	}
	if p.LongitudeDecimal != nil {
		f.LongitudeDecimal = strconv.FormatFloat(*p.LongitudeDecimal, 'f', -1, 64)
	}
	return f
}

func parseDecimalPair(f types.ProblemForm, fieldErrs types.ValidationError) (*float64, *float64) {
	lat, err := parseDecimal(f.LatitudeDecimal, 90)
	if err != nil {
		fieldErrs["latitude_decimal"] = "Latitude decimal inválida."
	}
	lon, err := parseDecimal(f.LongitudeDecimal, 180)
	if err != nil {
		fieldErrs["longitude_decimal"] = "Longitude decimal inválida."
	}
	return lat, lon
}

// parseDecimal accepts a comma as the decimal separator. Blank input is nil.
func parseDecimal(raw string, bound float64) (*float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if raw == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	if v < -bound || v > bound {
		return nil, fmt.Errorf("value %v out of range", v)
	}
	return &v, nil
}

func problemPath(id string) string {
	return "/problems/" + id
}
