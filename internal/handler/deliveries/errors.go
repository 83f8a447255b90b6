package deliveries

import (
	"net/http"

	apperrors "github.com/hireflowhq/delivery-api/pkg/errors"
)

var (
	errEmptyIDs   = apperrors.BadRequest("conversation_ids is required", nil)
	errTooManyIDs = apperrors.BadRequest("too many conversation ids requested", nil)
	errInvalidID  = apperrors.BadRequest("invalid conversation id", nil)
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case apperrors.IsCode(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest
	case apperrors.IsCode(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case apperrors.IsCode(err, apperrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
