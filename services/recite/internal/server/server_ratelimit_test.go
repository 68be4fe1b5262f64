package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"recite/internal/ratelimit"
)

func TestPingRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ratelimit.NewRedisClient(context.Background(), mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Redis = client
		cfg.PingRateLimitPerMinute = 1
		cfg.ReportRateLimitPerMinute = 10
	})

	resp, _ := env.do(t, http.MethodPost, "/api/ping", asUser("wx-1"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first ping status = %d, want 200", resp.StatusCode)
	}
	resp, data := env.do(t, http.MethodPost, "/api/ping", asUser("wx-1"), nil)
	expectError(t, resp, data, http.StatusTooManyRequests, codeRateLimited)
	if got := resp.Header.Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want %q", got, "60")
	}

	// other routes keep their own budget
	resp, _ = env.do(t, http.MethodPost, "/api/report", nil, map[string]any{"chapterId": 1, "paragraph": 1, "message": "x"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("report status = %d, want 201", resp.StatusCode)
	}
}

func TestRateLimitFailsClosedWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := ratelimit.NewRedisClient(context.Background(), mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	env := newTestEnv(t, func(cfg *Config) {
		cfg.Redis = client
		cfg.PingRateLimitPerMinute = 100
	})
	mr.Close()

	resp, data := env.do(t, http.MethodPost, "/api/ping", nil, nil)
	expectError(t, resp, data, http.StatusTooManyRequests, codeRateLimited)
}
