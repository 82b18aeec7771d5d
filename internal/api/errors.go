package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/dedurus/openmct/internal/errors"
)

// statusForError maps domain errors onto HTTP statuses and error codes.
func statusForError(err error) (int, string) {
	var objErr *errors.ObjectError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case stderrors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case stderrors.Is(err, errors.ErrCapabilityMissing):
		return http.StatusUnprocessableEntity, "capability_missing"
	case stderrors.Is(err, errors.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case stderrors.Is(err, errors.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case stderrors.As(err, &objErr) && objErr.Type == errors.ErrorTypeSource:
		return http.StatusBadGateway, "source_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	writeErrorResponse(w, status, code, message, nil)
}
