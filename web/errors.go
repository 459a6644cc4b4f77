package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Vector/gbp-ops-sync/gbp"
	"github.com/Vector/gbp-ops-sync/hubspot"
	"github.com/Vector/gbp-ops-sync/models"
)

// errValidation marks request errors that map to a 400.
var errValidation = errors.New("invalid request")

// ErrorResponse is the JSON error envelope of the API.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	writeJSON(w, status, ErrorResponse{Code: status, Message: err.Error()})
}

// statusForError maps the service error taxonomy onto HTTP statuses:
// request validation 400, unknown connection 404, upstream timeouts
// 504, upstream API failures 502, anything else 500.
func statusForError(err error) int {
	var (
		gbpErr     *gbp.APIError
		parseErr   *gbp.ParseError
		hubspotErr *hubspot.APIError
	)

	switch {
	case errors.Is(err, errValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, gbp.ErrRetriesExhausted),
		errors.As(err, &gbpErr),
		errors.As(err, &parseErr),
		errors.As(err, &hubspotErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }

	return errors.As(err, &t) && t.Timeout()
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}
