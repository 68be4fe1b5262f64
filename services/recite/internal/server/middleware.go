package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"recite/internal/ratelimit"
	"recite/internal/usertoken"
	"recite/internal/util"
	"recite/services/recite/internal/config"
)

const (
	userIDHeader     = "X-User-Id"
	adminTokenHeader = "X-Admin-Token"
)

// TokenVerifier checks bearer tokens in jwt identity mode.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Identity, error)
}

// principal is the caller as far as the handlers know. An empty ExternalID
// is an anonymous caller.
type principal struct {
	ExternalID  string
	DisplayName string
}

type principalContextKey struct{}

func contextWithPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func principalFromContext(ctx context.Context) principal {
	p, _ := ctx.Value(principalContextKey{}).(principal)
	return p
}

// withIdentity resolves the caller before any handler runs.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p principal
		switch s.identityMode {
		case config.IdentityModeJWT:
			token, ok := bearerToken(r)
			if !ok {
				break
			}
			identity, err := s.tokenVerifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, usertoken.ErrInvalidToken) {
					s.audit(r, "bearer_token", "rejected", "err", err.Error())
					writeError(w, http.StatusUnauthorized, codeInvalidToken, "invalid token")
					return
				}
				util.LoggerFromContext(r.Context()).Error("token verification unavailable", "err", err)
				writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
				return
			}
			p = principal{ExternalID: identity.Subject, DisplayName: identity.Name}
		default:
			p = principal{ExternalID: strings.TrimSpace(r.Header.Get(userIDHeader))}
		}
		ctx := r.Context()
		if p.ExternalID != "" {
			ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user", p.ExternalID))
		}
		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(ctx, p)))
	})
}

// withAdmin guards admin routes with the shared admin token. Without a
// configured token the route stays open.
func (s *Server) withAdmin(next http.Handler) http.Handler {
	if s.adminToken == "" {
		return next
	}
	want := []byte(s.adminToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(strings.TrimSpace(r.Header.Get(adminTokenHeader)))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.audit(r, "admin_access", "rejected")
			writeError(w, http.StatusUnauthorized, codeAdminRequired, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies limiter per path and client IP. A nil limiter
// disables limiting.
func (s *Server) withRateLimit(limiter *ratelimit.FixedWindowLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
		allowed, err := limiter.Check(r.Context(), key)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("rate limiter unavailable", "err", err)
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}
