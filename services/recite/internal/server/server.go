package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"recite/internal/ratelimit"
	"recite/internal/util"
	"recite/services/recite/internal/app"
	"recite/services/recite/internal/config"
)

const (
	maxJSONBodyBytes      = 1 << 20
	defaultMaxImportBytes = 8 << 20
	rateWindow            = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	IdentityMode  string
	TokenVerifier TokenVerifier
	AdminToken    string

	Redis                    *redis.Client
	ReportRateLimitPerMinute int
	PingRateLimitPerMinute   int
	ImportRateLimitPerMinute int
	TrustedProxies           *util.TrustedProxies

	MaxImportBytes int64
}

// Server exposes HTTP endpoints for the recite service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	identityMode   string
	tokenVerifier  TokenVerifier
	adminToken     string
	trustedProxies *util.TrustedProxies
	maxImportBytes int64

	reportLimiter *ratelimit.FixedWindowLimiter
	pingLimiter   *ratelimit.FixedWindowLimiter
	importLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.IdentityMode))
	if mode == "" {
		mode = config.IdentityModeHeader
	}
	switch mode {
	case config.IdentityModeHeader:
	case config.IdentityModeJWT:
		if cfg.TokenVerifier == nil {
			return nil, errors.New("jwt identity mode requires a token verifier")
		}
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.IdentityMode)
	}
	maxImportBytes := cfg.MaxImportBytes
	if maxImportBytes <= 0 {
		maxImportBytes = defaultMaxImportBytes
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		identityMode:   mode,
		tokenVerifier:  cfg.TokenVerifier,
		adminToken:     strings.TrimSpace(cfg.AdminToken),
		trustedProxies: cfg.TrustedProxies,
		maxImportBytes: maxImportBytes,
	}

	if cfg.Redis != nil {
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				return nil, nil
			}
			limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "recite:ratelimit:"+name, limit, rateWindow)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.reportLimiter, err = newLimiter("report", cfg.ReportRateLimitPerMinute); err != nil {
			return nil, err
		}
		if s.pingLimiter, err = newLimiter("ping", cfg.PingRateLimitPerMinute); err != nil {
			return nil, err
		}
		if s.importLimiter, err = newLimiter("import", cfg.ImportRateLimitPerMinute); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("recite", s.trustedProxies,
		util.WithSecurityHeaders(util.WithCORS(s.withIdentity(s.mux)))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/ensure", s.handleEnsureUser)
	s.mux.HandleFunc("/api/home", s.handleHome)
	s.mux.HandleFunc("/api/works", s.handleWorks)
	s.mux.HandleFunc("/api/chapters/", s.handleChapterParagraphs)
	s.mux.HandleFunc("/api/progress", s.handleProgress)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.Handle("/api/report", s.withRateLimit(s.reportLimiter, http.HandlerFunc(s.handleReport)))
	s.mux.Handle("/api/ping", s.withRateLimit(s.pingLimiter, http.HandlerFunc(s.handlePing)))

	// admin
	s.mux.Handle("/api/admin/import", s.withAdmin(s.withRateLimit(s.importLimiter, http.HandlerFunc(s.handleImport))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ensureRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req ensureRequest
	if !decodeJSON(w, r, &req, maxJSONBodyBytes) {
		return
	}
	userID, displayName := req.UserID, req.DisplayName
	// A verified token decides who the caller is; the body cannot override it.
	if s.identityMode == config.IdentityModeJWT {
		p := principalFromContext(r.Context())
		if p.ExternalID == "" {
			writeAppError(w, r, app.ErrAuthRequired)
			return
		}
		userID = p.ExternalID
		if strings.TrimSpace(displayName) == "" {
			displayName = p.DisplayName
		}
	}
	user, err := s.app.EnsureUser(r.Context(), userID, displayName)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	state, err := s.app.HomeState(r.Context(), principalFromContext(r.Context()).ExternalID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(r.Context(), principalFromContext(r.Context()).ExternalID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleWorks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	works, err := s.app.ListWorks(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, works)
}

// /api/chapters/{id}/paragraphs
func (s *Server) handleChapterParagraphs(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chapters/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "paragraphs" {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	chapterID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || chapterID <= 0 {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid chapter id")
		return
	}
	paragraphs, err := s.app.ListParagraphs(r.Context(), chapterID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paragraphs)
}

type progressRequest struct {
	ChapterID        int64 `json:"chapterId"`
	CurrentParagraph int   `json:"currentParagraph"`
	PracticeSeconds  int64 `json:"practiceSeconds"`
	MarkCompleted    bool  `json:"markCompleted"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req progressRequest
	if !decodeJSON(w, r, &req, maxJSONBodyBytes) {
		return
	}
	progress, err := s.app.RecordProgress(r.Context(), principalFromContext(r.Context()).ExternalID, app.ProgressInput{
		ChapterID:        req.ChapterID,
		CurrentParagraph: req.CurrentParagraph,
		PracticeSeconds:  req.PracticeSeconds,
		MarkCompleted:    req.MarkCompleted,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type reportRequest struct {
	ChapterID int64  `json:"chapterId"`
	Paragraph int    `json:"paragraph"`
	Message   string `json:"message"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req reportRequest
	if !decodeJSON(w, r, &req, maxJSONBodyBytes) {
		return
	}
	report, err := s.app.ReportError(r.Context(), principalFromContext(r.Context()).ExternalID, app.ReportInput{
		ChapterID: req.ChapterID,
		Paragraph: req.Paragraph,
		Message:   req.Message,
		Context: map[string]string{
			"requestId": util.RequestIDFromRequest(r),
			"userAgent": r.UserAgent(),
			"ip":        util.ClientIP(r, s.trustedProxies),
		},
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

type pingRequest struct {
	UsageSeconds int64 `json:"usageSeconds"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req pingRequest
	if !decodeOptionalJSON(w, r, &req, maxJSONBodyBytes) {
		return
	}
	if err := s.app.Ping(r.Context(), principalFromContext(r.Context()).ExternalID, req.UsageSeconds); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type importRequest struct {
	WorkName     string `json:"workName"`
	ChapterTitle string `json:"chapterTitle"`
	Fulltext     string `json:"fulltext"`
	Format       string `json:"format"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req importRequest
	if !decodeJSON(w, r, &req, s.maxImportBytes) {
		return
	}
	result, err := s.app.ImportText(r.Context(), app.ImportInput{
		WorkName:     req.WorkName,
		ChapterTitle: req.ChapterTitle,
		Fulltext:     req.Fulltext,
		Format:       req.Format,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "catalog_import", "success", "work_id", result.WorkID, "chapter_id", result.ChapterID, "paragraphs", result.Paragraphs)
	writeJSON(w, http.StatusCreated, result)
}

// decodeJSON reads one JSON object of at most limit bytes. It writes the
// error response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	return decodeBody(w, r, dst, limit, false)
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	return decodeBody(w, r, dst, limit, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, limit int64, optional bool) bool {
	body := http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
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
