package server

import (
	"errors"
	"io"
	"net/http"

	"obralog/internal/photos"
	"obralog/internal/problems"

	"github.com/sirupsen/logrus"
)

const (
	// multipartOverhead is the slack allowed above the source limit for the
	// multipart envelope.
	multipartOverhead = 1 << 20
	multipartMemory   = 32 << 20
)

// handleUpload stores a single photo posted as the "file" field and answers
// with its public URL.
func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := s.uploadBodyLimit()

	if !s.uploadsOn() {
		s.metrics.observeUpload(photos.ErrUploadDisabled)
		s.writeJSONError(w, http.StatusInternalServerError, photos.Message(photos.ErrUploadDisabled))
		return
	}

	if r.ContentLength > limit {
		s.metrics.observeUpload(photos.ErrTooLarge)
		s.writeJSONError(w, http.StatusRequestEntityTooLarge, photos.Message(photos.ErrTooLarge))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.observeUpload(photos.ErrTooLarge)
			s.writeJSONError(w, http.StatusRequestEntityTooLarge, photos.Message(photos.ErrTooLarge))
			return
		}

		s.logger.WithError(err).Info("failed to parse upload form")
		s.metrics.observeUpload(photos.ErrNoFile)
		s.writeJSONError(w, http.StatusBadRequest, photos.Message(photos.ErrNoFile))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.metrics.observeUpload(photos.ErrNoFile)
		s.writeJSONError(w, http.StatusBadRequest, photos.Message(photos.ErrNoFile))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.WithError(err).Error("failed to read uploaded file")
		s.metrics.observeUpload(err)
		s.writeJSONError(w, http.StatusInternalServerError, photos.Message(photos.ErrUploadFailed))
		return
	}

	uploaded, err := s.pipeline.Process(ctx, photos.File{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	s.metrics.observeUpload(err)

	entry := s.logger.WithFields(logrus.Fields{
		"filename": header.Filename,
		"size":     len(data),
	})
	if user, uerr := problems.UserFromContext(ctx); uerr == nil {
		entry = entry.WithField("user_id", user.ID)
	}

	if err != nil {
		entry.WithError(err).Warn("photo upload rejected")
		s.writeJSONError(w, photos.StatusCode(err), photos.Message(err))
		return
	}

	entry.WithField("photo_url", uploaded.URL).Info("photo uploaded")
	s.writeJSON(w, http.StatusOK, uploaded)
}

// uploadBodyLimit admits sources large enough to be compressed down to the
// stored photo limit.
func (s *Service) uploadBodyLimit() int64 {
	if s.pipeline == nil {
		return photos.DefaultMaxBytes + multipartOverhead
	}
	return s.pipeline.MaxSourceBytes() + multipartOverhead
}
