package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services return these (wrapped or
// bare) and handlers map them to status codes through RespondError.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to the API error envelope. Unknown errors
// become a generic 500; the underlying cause is for logs only and never
// leaks into the response body.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, "Duplicate entry")
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "Unauthorized")
	default:
		Error(w, http.StatusInternalServerError, "Internal error")
	}
}
