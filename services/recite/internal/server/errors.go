package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"recite/internal/util"
	"recite/services/recite/internal/app"
)

const (
	codeInvalidRequest   = "RECITE_INVALID_REQUEST"
	codeIdentityRequired = "AUTH_IDENTITY_REQUIRED"
	codeUserNotFound     = "RECITE_USER_NOT_FOUND"
	codeChapterNotFound  = "RECITE_CHAPTER_NOT_FOUND"
	codeInvalidToken     = "AUTH_INVALID_TOKEN"
	codeAdminRequired    = "AUTH_ADMIN_REQUIRED"
	codeRateLimited      = "SYSTEM_RATE_LIMITED"
	codeNotFound         = "SYSTEM_NOT_FOUND"
	codeMethodNotAllowed = "SYSTEM_METHOD_NOT_ALLOWED"
	codeInternal         = "SYSTEM_INTERNAL_ERROR"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}

// writeAppError maps app errors onto HTTP. Anything unrecognised is logged
// and hidden behind a 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, app.ErrAuthRequired):
		writeError(w, http.StatusBadRequest, codeIdentityRequired, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, codeUserNotFound, err.Error())
	case errors.Is(err, app.ErrChapterNotFound):
		writeError(w, http.StatusNotFound, codeChapterNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, codeNotFound, "not found")
}
