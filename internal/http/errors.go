package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/roadside-assist/internal/lifecycle"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/payments"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// errBadRequest marks malformed input caught by the handlers themselves.
var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	var be *lifecycle.BookingError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrAlreadyActive):
		return http.StatusConflict
	case errors.As(err, &be):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, location.ErrGeocode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, lifecycle.ErrAlreadyTipped),
		errors.Is(err, lifecycle.ErrAlreadyRated),
		errors.Is(err, lifecycle.ErrNotCompleted):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrInvalidRating),
		errors.Is(err, lifecycle.ErrInvalidTip):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "route", routeTemplate(r), "error", err, "request_id", requestIDFromContext(r.Context()))
		msg = "internal error"
	}
	writeJSON(w, code, errorBody{Error: msg, RequestID: requestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
