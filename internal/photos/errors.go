package photos

import (
	"context"
	"errors"
	"net"
	"net/http"

	"obralog/internal/storage"
)

var (
	ErrNoFile              = errors.New("no file provided")
	ErrNotImage            = errors.New("only images are allowed")
	ErrTooLarge            = errors.New("file too large")
	ErrStorageUnauthorized = errors.New("invalid upload token")
	ErrTimeout             = errors.New("upload timed out")
	ErrUploadDisabled      = errors.New("upload not configured")
	ErrUploadFailed        = errors.New("upload failed")
)

// StatusCode maps a pipeline error onto the HTTP status the upload endpoint
// answers with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrNoFile), errors.Is(err, ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrStorageUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user-facing text for a pipeline error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrNoFile):
		return "Nenhum arquivo enviado"
	case errors.Is(err, ErrNotImage):
		return "Apenas imagens são permitidas"
	case errors.Is(err, ErrTooLarge):
		return "Arquivo muito grande. Tamanho máximo: 10MB"
	case errors.Is(err, ErrStorageUnauthorized):
		return "Token de upload inválido"
	case errors.Is(err, ErrTimeout):
		return "Timeout no upload. Tente novamente."
	case errors.Is(err, ErrUploadDisabled):
		return "Configuração de upload não disponível"
	default:
		return "Falha no upload. Tente novamente."
	}
}

func classifyStorageError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, storage.ErrDisabled):
		return ErrUploadDisabled
	case errors.Is(err, storage.ErrUnauthorized):
		return wrap(ErrStorageUnauthorized, err)
	case errors.Is(err, storage.ErrTooLarge):
		return wrap(ErrTooLarge, err)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return wrap(ErrTimeout, err)
	default:
		return wrap(ErrUploadFailed, err)
	}
}

func wrap(kind, cause error) error {
	return &classifiedError{kind: kind, cause: cause}
}

type classifiedError struct {
	kind  error
	cause error
}

func (e *classifiedError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
