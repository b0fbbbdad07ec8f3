package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Response is the envelope of every API response.
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: &ErrorBody{Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusBadRequest, "REQUEST.INVALID", message)
}

// writeError maps an engine error to its status code.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", code,
			"error", err,
		)
	}
	writeErrorBody(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, apperrors.Code(err)
	case errors.Is(err, apperrors.ErrTenantRequired):
		return http.StatusBadRequest, apperrors.Code(err)
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusUnprocessableEntity, apperrors.Code(err)
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, apperrors.Code(err)
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "ALERT.CONFLICT"
	case errors.Is(err, apperrors.ErrDataAccess):
		return http.StatusServiceUnavailable, apperrors.Code(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "REQUEST.TIMEOUT"
	default:
		return http.StatusInternalServerError, apperrors.Code(err)
	}
}
