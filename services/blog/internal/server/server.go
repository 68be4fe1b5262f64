package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"recite/internal/util"
	"recite/services/blog/internal/app"
)

const maxJSONBodyBytes = 1 << 20

const (
	codeInvalidRequest   = "BLOG_INVALID_REQUEST"
	codePostNotFound     = "BLOG_POST_NOT_FOUND"
	codeNotFound         = "SYSTEM_NOT_FOUND"
	codeMethodNotAllowed = "SYSTEM_METHOD_NOT_ALLOWED"
	codeInternal         = "SYSTEM_INTERNAL_ERROR"
)

// Server exposes the blog HTTP endpoints.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured.
func New(appCore *app.App, trustedProxies *util.TrustedProxies) (*Server, error) {
	if appCore == nil {
		return nil, errors.New("server requires app")
	}
	s := &Server{app: appCore, mux: http.NewServeMux(), trustedProxies: trustedProxies}
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("/api/posts", s.handlePosts)
	s.mux.HandleFunc("/api/posts/", s.handlePost)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("blog", s.trustedProxies,
		util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

type createPostRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
}

type patchPostRequest struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		posts, err := s.app.ListPosts(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	case http.MethodPost:
		var req createPostRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		post, err := s.app.CreatePost(r.Context(), app.CreateInput{
			Title:     req.Title,
			Content:   req.Content,
			Published: req.Published,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

// /api/posts/{id}
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/posts/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		post, err := s.app.GetPost(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	case http.MethodPatch:
		var req patchPostRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		post, err := s.app.UpdatePost(r.Context(), id, app.PatchInput{
			Title:     req.Title,
			Content:   req.Content,
			Published: req.Published,
		})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	case http.MethodDelete:
		if err := s.app.DeletePost(r.Context(), id); err != nil {
			writeAppError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, codeInvalidRequest, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body required")
		default:
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		}
		return false
	}
	return true
}

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

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, app.ErrPostNotFound):
		writeError(w, http.StatusNotFound, codePostNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
