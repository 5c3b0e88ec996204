package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/tazhate/holidaybot/internal/domain"
)

const maxBodyBytes = 1 << 20

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, code, msg string) {
	s.jsonResponse(w, status, errorResponse{OK: false, Code: code, Error: msg})
}

// writeError maps domain errors onto HTTP statuses. Anything unknown is a
// 500 with a generic message; the cause goes to the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var dup *domain.DuplicateError
	switch {
	case errors.As(err, &dup):
		s.jsonError(w, http.StatusConflict, "DUPLICATE", dup.Message)
	case errors.Is(err, domain.ErrDuplicate):
		s.jsonError(w, http.StatusConflict, "DUPLICATE", "already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		s.jsonError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	case errors.Is(err, domain.ErrValidation):
		s.jsonError(w, http.StatusBadRequest, "VALIDATION", err.Error())
	default:
		s.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestID(r.Context())).
			Msg("request failed")
		s.jsonError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// decodeJSON reads a JSON body into v. Bad JSON is a validation error.
func decodeJSON(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validationf("empty body")
		}
		return domain.Validationf("invalid json: %s", err.Error())
	}
	return nil
}

func requireUserID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", domain.Validationf("missing user_id")
	}
	return id, nil
}
